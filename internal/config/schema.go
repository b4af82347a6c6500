// Package config loads, validates and defaults attack configuration files.
package config

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// AttackConfig is the root configuration for an attack.
//
// Example YAML:
//
//	name: "Site smoke"
//	host: "http://localhost:8080"
//	users: 2
//	hatchRate: 4
//	runTime: 1m
//	taskSets:
//	  - name: Index
//	    tasks:
//	      - name: index
//	        requests:
//	          - method: GET
//	            path: /
type AttackConfig struct {
	// Name of the attack (for reporting)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Host is the base URL every relative path resolves against
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// Users is the number of virtual users to hatch
	Users int `json:"users,omitempty" yaml:"users,omitempty"`

	// HatchRate is the number of users started per second
	HatchRate float64 `json:"hatchRate,omitempty" yaml:"hatchRate,omitempty"`

	// RunTime is how long to run after hatching; zero runs until interrupted
	RunTime Duration `json:"runTime,omitempty" yaml:"runTime,omitempty"`

	// ThrottleRequests caps requests per second across all users
	ThrottleRequests float64 `json:"throttleRequests,omitempty" yaml:"throttleRequests,omitempty"`

	// NoResetMetrics keeps requests made while hatching in the results
	NoResetMetrics bool `json:"noResetMetrics,omitempty" yaml:"noResetMetrics,omitempty"`

	// DrainTimeout bounds how long stopping users may take
	DrainTimeout Duration `json:"drainTimeout,omitempty" yaml:"drainTimeout,omitempty"`

	// Seed pins every user's random source; zero picks a random seed
	Seed uint64 `json:"seed,omitempty" yaml:"seed,omitempty"`

	// DebugLog is the path of the failure trace log
	DebugLog string `json:"debugLog,omitempty" yaml:"debugLog,omitempty"`

	// DebugFormat is "json" or "raw"
	DebugFormat string `json:"debugFormat,omitempty" yaml:"debugFormat,omitempty"`

	// RequestLog is the path of the per-request log
	RequestLog string `json:"requestLog,omitempty" yaml:"requestLog,omitempty"`

	// RequestFormat is "json", "csv" or "raw"
	RequestFormat string `json:"requestFormat,omitempty" yaml:"requestFormat,omitempty"`

	// HTTP configures the shared transport
	HTTP HTTPSettings `json:"http,omitempty" yaml:"http,omitempty"`

	// Headers are sent with every request
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Variables are available to every scripted request as {{name}}
	Variables map[string]string `json:"variables,omitempty" yaml:"variables,omitempty"`

	// TaskSets are the scripted task sets, in registration order
	TaskSets []TaskSetConfig `json:"taskSets" yaml:"taskSets"`
}

// HTTPSettings configures the HTTP transport.
type HTTPSettings struct {
	Timeout             Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	MaxIdleConnsPerHost int      `json:"maxIdleConnsPerHost,omitempty" yaml:"maxIdleConnsPerHost,omitempty"`
	MaxConnsPerHost     int      `json:"maxConnsPerHost,omitempty" yaml:"maxConnsPerHost,omitempty"`
	DisableKeepAlives   bool     `json:"disableKeepAlives,omitempty" yaml:"disableKeepAlives,omitempty"`
	InsecureSkipVerify  bool     `json:"insecureSkipVerify,omitempty" yaml:"insecureSkipVerify,omitempty"`
	UserAgent           string   `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

// TaskSetConfig declares one task set.
type TaskSetConfig struct {
	Name string `json:"name" yaml:"name"`

	// Weight is the share of users assigned to this set (default 1)
	Weight *int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Policy is "weighted" (default) or "sequential"
	Policy string `json:"policy,omitempty" yaml:"policy,omitempty"`

	// Host overrides the attack host for this set
	Host string `json:"host,omitempty" yaml:"host,omitempty"`

	// WaitTime pauses between tasks
	WaitTime *WaitTimeConfig `json:"waitTime,omitempty" yaml:"waitTime,omitempty"`

	Tasks []TaskConfig `json:"tasks" yaml:"tasks"`
}

// WaitTimeConfig is a random pause between Min and Max.
type WaitTimeConfig struct {
	Min Duration `json:"min,omitempty" yaml:"min,omitempty"`
	Max Duration `json:"max,omitempty" yaml:"max,omitempty"`
}

// TaskConfig declares one task: a list of requests run in order.
type TaskConfig struct {
	Name string `json:"name" yaml:"name"`

	// Weight is how often the task is picked (default 1)
	Weight *int `json:"weight,omitempty" yaml:"weight,omitempty"`

	// Sequence orders tasks; zero is unsequenced
	Sequence int `json:"sequence,omitempty" yaml:"sequence,omitempty"`

	OnStart bool `json:"onStart,omitempty" yaml:"onStart,omitempty"`
	OnStop  bool `json:"onStop,omitempty" yaml:"onStop,omitempty"`

	Requests []RequestConfig `json:"requests" yaml:"requests"`
}

// RequestConfig defines a single HTTP request.
type RequestConfig struct {
	// Name for this request (used in metrics; defaults to the path)
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	// Method is the HTTP method (default GET)
	Method string `json:"method,omitempty" yaml:"method,omitempty"`

	// Path is resolved against the host (supports {{var}} substitution)
	Path string `json:"path" yaml:"path"`

	// Headers are request-specific headers (supports substitution)
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// Body is sent as-is (supports substitution)
	Body string `json:"body,omitempty" yaml:"body,omitempty"`

	// ExpectStatus fails the request unless the status is listed
	ExpectStatus []int `json:"expectStatus,omitempty" yaml:"expectStatus,omitempty"`

	// Schema is a JSON schema the response body must satisfy
	Schema string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Extract stores values from the response as user variables
	Extract []ExtractConfig `json:"extract,omitempty" yaml:"extract,omitempty"`
}

// ExtractConfig defines how to extract a variable from a response.
type ExtractConfig struct {
	// Name of the variable to store
	Name string `json:"name" yaml:"name"`

	// Source is where to extract from: "body", "header", "status"
	Source string `json:"source" yaml:"source"`

	// Path is the header name, or a gjson/JSONPath expression for body
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Duration is a time.Duration that unmarshals from "30s"-style strings or
// from a bare number of seconds.
type Duration time.Duration

// GetDuration returns the duration or a default if unset.
func (d Duration) GetDuration(defaultValue time.Duration) time.Duration {
	if d == 0 {
		return defaultValue
	}
	return time.Duration(d)
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.set(v)
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	return d.set(v)
}

func (d *Duration) set(v interface{}) error {
	switch val := v.(type) {
	case nil:
		*d = 0
	case string:
		dur, err := ParseDurationString(val)
		if err != nil {
			return err
		}
		*d = Duration(dur)
	case int:
		*d = Duration(time.Duration(val) * time.Second)
	case float64:
		*d = Duration(time.Duration(val * float64(time.Second)))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// String returns the duration as a string.
func (d Duration) String() string {
	return time.Duration(d).String()
}
