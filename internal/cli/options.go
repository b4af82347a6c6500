package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/wesleyorama2/drove/internal/config"
)

// attackFlags holds the attack command line. Flags that were set override
// the attack file.
type attackFlags struct {
	configFile    string
	host          string
	users         int
	hatchRate     float64
	runTime       string
	throttle      float64
	noReset       bool
	drainTimeout  string
	debugLog      string
	debugFormat   string
	requestLog    string
	requestFormat string
	seed          uint64

	report       string
	reportFormat string
	metricsAddr  string
	quiet        bool
	noColor      bool
}

func (f *attackFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&f.configFile, "config", "c", "", "Attack file (YAML or JSON)")
	fs.StringVarP(&f.host, "host", "H", "", "Host to load test, e.g. http://localhost:8080")
	fs.IntVarP(&f.users, "users", "u", 0, "Number of users to hatch (default: number of CPUs)")
	fs.Float64VarP(&f.hatchRate, "hatch-rate", "r", 0, "Users started per second (default 1)")
	fs.StringVarP(&f.runTime, "run-time", "t", "", "Stop after this long once hatched, e.g. 30s, 5m (default: until interrupted)")
	fs.Float64Var(&f.throttle, "throttle-requests", 0, "Maximum requests per second across all users")
	fs.BoolVar(&f.noReset, "no-reset-metrics", false, "Keep requests made while hatching in the results")
	fs.StringVar(&f.drainTimeout, "drain-timeout", "", "How long stopping users may finish their task (default 30s)")
	fs.StringVar(&f.debugLog, "debug-log", "", "Write failed requests to this file")
	fs.StringVar(&f.debugFormat, "debug-format", "", "Debug log format (json, raw)")
	fs.StringVar(&f.requestLog, "request-log", "", "Write every request to this file")
	fs.StringVar(&f.requestFormat, "request-format", "", "Request log format (json, csv, raw)")
	fs.Uint64Var(&f.seed, "seed", 0, "Seed for task selection and wait times (0: random)")

	fs.StringVar(&f.report, "report", "", "Write a report of the run to this file")
	fs.StringVar(&f.reportFormat, "report-format", "", "Report format (json, html; default from the file extension)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "Disable live progress output, show only the final summary")
	fs.BoolVar(&f.noColor, "no-color", false, "Disable colored output")
}

// legacyFlagNames accepts the metrics-log spelling of the request log flags.
func legacyFlagNames(_ *pflag.FlagSet, name string) pflag.NormalizedName {
	switch name {
	case "metrics-log":
		name = "request-log"
	case "metrics-format":
		name = "request-format"
	}
	return pflag.NormalizedName(name)
}

// envDefaults fill settings that neither the file nor a flag provided.
var envDefaults = []struct {
	env string
	key config.DefaultKey
}{
	{"DROVE_HOST", config.DefaultHost},
	{"DROVE_DEBUG_LOG", config.DefaultDebugLog},
	{"DROVE_REQUEST_LOG", config.DefaultRequestLog},
}

// loadAttackConfig reads the attack file, applies flag overrides and
// environment defaults, then defaults and validates the result.
func loadAttackConfig(fs *pflag.FlagSet, f *attackFlags) (*config.AttackConfig, error) {
	cfg := &config.AttackConfig{}
	if f.configFile != "" {
		loaded, err := config.LoadConfig(f.configFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyFlags(fs, f, cfg); err != nil {
		return nil, err
	}

	for _, d := range envDefaults {
		if v := os.Getenv(d.env); v != "" {
			if err := cfg.SetDefault(d.key, v); err != nil {
				return nil, err
			}
		}
	}

	if len(cfg.TaskSets) == 0 {
		if cfg.Host == "" {
			return nil, errors.New("either --config or --host is required")
		}
		cfg.TaskSets = []config.TaskSetConfig{defaultTaskSet()}
	}

	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultTaskSet requests the host root, for runs without an attack file.
func defaultTaskSet() config.TaskSetConfig {
	return config.TaskSetConfig{
		Name: "default",
		Tasks: []config.TaskConfig{
			{Name: "index", Requests: []config.RequestConfig{{Method: "GET", Path: "/"}}},
		},
	}
}

func applyFlags(fs *pflag.FlagSet, f *attackFlags, cfg *config.AttackConfig) error {
	if fs.Changed("host") {
		cfg.Host = f.host
	}
	if fs.Changed("users") {
		cfg.Users = f.users
	}
	if fs.Changed("hatch-rate") {
		cfg.HatchRate = f.hatchRate
	}
	if fs.Changed("run-time") {
		d, err := config.ParseDurationString(f.runTime)
		if err != nil {
			return fmt.Errorf("--run-time: %w", err)
		}
		cfg.RunTime = config.Duration(d)
	}
	if fs.Changed("throttle-requests") {
		cfg.ThrottleRequests = f.throttle
	}
	if fs.Changed("no-reset-metrics") {
		cfg.NoResetMetrics = f.noReset
	}
	if fs.Changed("drain-timeout") {
		d, err := config.ParseDurationString(f.drainTimeout)
		if err != nil {
			return fmt.Errorf("--drain-timeout: %w", err)
		}
		cfg.DrainTimeout = config.Duration(d)
	}
	if fs.Changed("debug-log") {
		cfg.DebugLog = f.debugLog
	}
	if fs.Changed("debug-format") {
		cfg.DebugFormat = f.debugFormat
	}
	if fs.Changed("request-log") {
		cfg.RequestLog = f.requestLog
	}
	if fs.Changed("request-format") {
		cfg.RequestFormat = f.requestFormat
	}
	if fs.Changed("seed") {
		cfg.Seed = f.seed
	}
	return nil
}
