package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"
)

// Default values applied by ApplyDefaults.
const (
	DefaultHatchRateValue     = 1.0
	DefaultDebugFormatValue   = "json"
	DefaultRequestFormatValue = "json"
	DefaultDrainTimeoutValue  = 30 * time.Second
	DefaultHTTPTimeout        = 60 * time.Second
	DefaultUserAgent          = "drove/1.0"
)

// DefaultKey names a setting that SetDefault can fill in.
type DefaultKey int

const (
	DefaultHost DefaultKey = iota
	DefaultUsers
	DefaultHatchRate
	DefaultRunTime
	DefaultThrottleRequests
	DefaultNoResetMetrics
	DefaultDrainTimeout
	DefaultDebugLog
	DefaultDebugFormat
	DefaultRequestLog
	DefaultRequestFormat
)

func (k DefaultKey) String() string {
	switch k {
	case DefaultHost:
		return "host"
	case DefaultUsers:
		return "users"
	case DefaultHatchRate:
		return "hatchRate"
	case DefaultRunTime:
		return "runTime"
	case DefaultThrottleRequests:
		return "throttleRequests"
	case DefaultNoResetMetrics:
		return "noResetMetrics"
	case DefaultDrainTimeout:
		return "drainTimeout"
	case DefaultDebugLog:
		return "debugLog"
	case DefaultDebugFormat:
		return "debugFormat"
	case DefaultRequestLog:
		return "requestLog"
	case DefaultRequestFormat:
		return "requestFormat"
	default:
		return "unknown"
	}
}

// SetDefault sets key to value unless the configuration already has a
// value for it. Values set from a file or flag always win over defaults.
func (c *AttackConfig) SetDefault(key DefaultKey, value interface{}) error {
	switch key {
	case DefaultHost:
		return setString(&c.Host, key, value)
	case DefaultDebugLog:
		return setString(&c.DebugLog, key, value)
	case DefaultDebugFormat:
		return setString(&c.DebugFormat, key, value)
	case DefaultRequestLog:
		return setString(&c.RequestLog, key, value)
	case DefaultRequestFormat:
		return setString(&c.RequestFormat, key, value)
	case DefaultUsers:
		v, ok := value.(int)
		if !ok {
			return typeError(key, "int", value)
		}
		if c.Users == 0 {
			c.Users = v
		}
	case DefaultHatchRate:
		return setFloat(&c.HatchRate, key, value)
	case DefaultThrottleRequests:
		return setFloat(&c.ThrottleRequests, key, value)
	case DefaultRunTime:
		return setDuration(&c.RunTime, key, value)
	case DefaultDrainTimeout:
		return setDuration(&c.DrainTimeout, key, value)
	case DefaultNoResetMetrics:
		v, ok := value.(bool)
		if !ok {
			return typeError(key, "bool", value)
		}
		if !c.NoResetMetrics {
			c.NoResetMetrics = v
		}
	default:
		return fmt.Errorf("unknown default key %d", int(key))
	}
	return nil
}

func setString(dst *string, key DefaultKey, value interface{}) error {
	v, ok := value.(string)
	if !ok {
		return typeError(key, "string", value)
	}
	if *dst == "" {
		*dst = v
	}
	return nil
}

func setFloat(dst *float64, key DefaultKey, value interface{}) error {
	var v float64
	switch val := value.(type) {
	case float64:
		v = val
	case int:
		v = float64(val)
	default:
		return typeError(key, "number", value)
	}
	if *dst == 0 {
		*dst = v
	}
	return nil
}

func setDuration(dst *Duration, key DefaultKey, value interface{}) error {
	var v time.Duration
	switch val := value.(type) {
	case time.Duration:
		v = val
	case string:
		d, err := ParseDurationString(val)
		if err != nil {
			return fmt.Errorf("default %s: %w", key, err)
		}
		v = d
	default:
		return typeError(key, "duration", value)
	}
	if *dst == 0 {
		*dst = Duration(v)
	}
	return nil
}

func typeError(key DefaultKey, want string, value interface{}) error {
	return fmt.Errorf("default %s: expected %s, got %T", key, want, value)
}

// ApplyDefaults applies default values to an AttackConfig.
func ApplyDefaults(config *AttackConfig) {
	if config.Users == 0 {
		config.Users = runtime.NumCPU()
	}
	if config.HatchRate == 0 {
		config.HatchRate = DefaultHatchRateValue
	}
	if config.DrainTimeout == 0 {
		config.DrainTimeout = Duration(DefaultDrainTimeoutValue)
	}
	if config.DebugFormat == "" {
		config.DebugFormat = DefaultDebugFormatValue
	}
	if config.RequestFormat == "" {
		config.RequestFormat = DefaultRequestFormatValue
	}
	if config.HTTP.Timeout == 0 {
		config.HTTP.Timeout = Duration(DefaultHTTPTimeout)
	}
	if config.HTTP.MaxIdleConnsPerHost == 0 {
		config.HTTP.MaxIdleConnsPerHost = 100
	}
	if config.HTTP.UserAgent == "" {
		config.HTTP.UserAgent = DefaultUserAgent
	}

	for i := range config.TaskSets {
		applyTaskSetDefaults(&config.TaskSets[i])
	}
}

func applyTaskSetDefaults(ts *TaskSetConfig) {
	if ts.Weight == nil {
		ts.Weight = intPtr(1)
	}
	if ts.Policy == "" {
		ts.Policy = "weighted"
	}
	for i := range ts.Tasks {
		task := &ts.Tasks[i]
		if task.Weight == nil {
			task.Weight = intPtr(1)
		}
		for j := range task.Requests {
			req := &task.Requests[j]
			if req.Method == "" {
				req.Method = "GET"
			}
			req.Method = strings.ToUpper(req.Method)
		}
	}
}

func intPtr(v int) *int {
	return &v
}
