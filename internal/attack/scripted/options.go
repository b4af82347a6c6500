package scripted

import (
	"fmt"
	"time"

	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/config"
)

// Options maps a defaulted, validated attack file onto engine options.
func Options(cfg *config.AttackConfig) (engine.Options, error) {
	opts := engine.DefaultOptions()
	opts.BaseURL = cfg.Host
	opts.Users = cfg.Users
	opts.HatchRate = cfg.HatchRate
	opts.RunTime = time.Duration(cfg.RunTime)
	opts.ThrottleRequests = cfg.ThrottleRequests
	opts.NoResetMetrics = cfg.NoResetMetrics
	opts.DrainTimeout = cfg.DrainTimeout.GetDuration(opts.DrainTimeout)
	opts.Seed = cfg.Seed

	var err error
	opts.DebugLog = cfg.DebugLog
	if opts.DebugFormat, err = logsink.ParseFormat(cfg.DebugFormat, logsink.DebugFormats...); err != nil {
		return opts, fmt.Errorf("debug format: %w", err)
	}
	opts.RequestLog = cfg.RequestLog
	if opts.RequestFormat, err = logsink.ParseFormat(cfg.RequestFormat, logsink.RequestFormats...); err != nil {
		return opts, fmt.Errorf("request format: %w", err)
	}

	opts.Headers = config.MergeVariables(cfg.Headers)
	if cfg.HTTP.UserAgent != "" && !hasHeader(opts.Headers, "User-Agent") {
		opts.Headers["User-Agent"] = cfg.HTTP.UserAgent
	}

	opts.HTTP.Timeout = cfg.HTTP.Timeout.GetDuration(opts.HTTP.Timeout)
	if cfg.HTTP.MaxIdleConnsPerHost > 0 {
		opts.HTTP.MaxIdleConnsPerHost = cfg.HTTP.MaxIdleConnsPerHost
	}
	opts.HTTP.MaxConnsPerHost = cfg.HTTP.MaxConnsPerHost
	opts.HTTP.DisableKeepAlives = cfg.HTTP.DisableKeepAlives
	opts.HTTP.InsecureSkipVerify = cfg.HTTP.InsecureSkipVerify
	return opts, nil
}
