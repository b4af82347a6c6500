package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors struct {
	Errors []*ValidationError
}

func (e *ValidationErrors) Error() string {
	if len(e.Errors) == 0 {
		return "no validation errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e.Errors)))
	for i, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (e *ValidationErrors) Add(field, message string) {
	e.Errors = append(e.Errors, &ValidationError{Field: field, Message: message})
}

// HasErrors returns true if there are any errors.
func (e *ValidationErrors) HasErrors() bool {
	return len(e.Errors) > 0
}

// Fields returns the field of every error, in order.
func (e *ValidationErrors) Fields() []string {
	fields := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		fields[i] = err.Field
	}
	return fields
}

var (
	debugFormats   = map[string]bool{"json": true, "raw": true}
	requestFormats = map[string]bool{"json": true, "csv": true, "raw": true}
	policies       = map[string]bool{"": true, "weighted": true, "random": true, "sequential": true}
	extractSources = map[string]bool{"body": true, "header": true, "status": true}
)

// Validate validates the entire attack configuration.
//
// Returns nil if valid, or a ValidationErrors containing all validation errors.
func (c *AttackConfig) Validate() error {
	errs := &ValidationErrors{}

	if c.Host != "" {
		validateURL("host", c.Host, errs)
	}
	if c.Users < 0 {
		errs.Add("users", "users must be greater than 0")
	}
	if c.HatchRate < 0 {
		errs.Add("hatchRate", "hatchRate must be greater than 0")
	}
	if c.RunTime < 0 {
		errs.Add("runTime", "runTime must not be negative")
	}
	if c.ThrottleRequests < 0 {
		errs.Add("throttleRequests", "throttleRequests must not be negative")
	}
	if c.DrainTimeout < 0 {
		errs.Add("drainTimeout", "drainTimeout must not be negative")
	}
	if c.DebugFormat != "" && !debugFormats[c.DebugFormat] {
		errs.Add("debugFormat", fmt.Sprintf("unknown debug format %q (expected json or raw)", c.DebugFormat))
	}
	if c.RequestFormat != "" && !requestFormats[c.RequestFormat] {
		errs.Add("requestFormat", fmt.Sprintf("unknown request log format %q (expected json, csv or raw)", c.RequestFormat))
	}
	if c.DebugLog != "" && c.DebugLog == c.RequestLog {
		errs.Add("requestLog", "requestLog must differ from debugLog")
	}

	if len(c.TaskSets) == 0 {
		errs.Add("taskSets", "at least one task set is required")
	}

	names := make(map[string]bool, len(c.TaskSets))
	weighted := 0
	for i := range c.TaskSets {
		ts := &c.TaskSets[i]
		prefix := fmt.Sprintf("taskSets[%d]", i)
		if names[ts.Name] {
			errs.Add(prefix+".name", fmt.Sprintf("duplicate task set name %q", ts.Name))
		}
		names[ts.Name] = true
		if ts.Weight == nil || *ts.Weight > 0 {
			weighted++
		}
		validateTaskSet(prefix, ts, c.Host, errs)
	}
	if len(c.TaskSets) > 0 && weighted == 0 {
		errs.Add("taskSets", "at least one task set must have a positive weight")
	}

	if errs.HasErrors() {
		return errs
	}
	return nil
}

func validateTaskSet(prefix string, ts *TaskSetConfig, host string, errs *ValidationErrors) {
	if ts.Name == "" {
		errs.Add(prefix+".name", "name is required")
	}
	if ts.Weight != nil && *ts.Weight < 0 {
		errs.Add(prefix+".weight", "weight must not be negative")
	}
	if !policies[ts.Policy] {
		errs.Add(prefix+".policy", fmt.Sprintf("unknown policy %q", ts.Policy))
	}
	if ts.Host != "" {
		validateURL(prefix+".host", ts.Host, errs)
	} else if host == "" && needsHost(ts) {
		errs.Add(prefix+".host", "host is required when request paths are relative")
	}
	if ts.WaitTime != nil {
		if ts.WaitTime.Min < 0 || ts.WaitTime.Max < ts.WaitTime.Min {
			errs.Add(prefix+".waitTime", fmt.Sprintf("invalid wait time %s..%s", ts.WaitTime.Min, ts.WaitTime.Max))
		}
	}

	eligible := 0
	for j := range ts.Tasks {
		task := &ts.Tasks[j]
		taskPrefix := fmt.Sprintf("%s.tasks[%d]", prefix, j)
		if task.Name == "" {
			errs.Add(taskPrefix+".name", "name is required")
		}
		if task.Weight != nil && *task.Weight < 0 {
			errs.Add(taskPrefix+".weight", "weight must not be negative")
		}
		if task.OnStart && task.OnStop {
			errs.Add(taskPrefix, "a task cannot be both onStart and onStop")
		}
		if !task.OnStart && !task.OnStop && (task.Weight == nil || *task.Weight > 0) {
			eligible++
		}
		if len(task.Requests) == 0 {
			errs.Add(taskPrefix+".requests", "at least one request is required")
		}
		for k := range task.Requests {
			validateRequest(fmt.Sprintf("%s.requests[%d]", taskPrefix, k), &task.Requests[k], errs)
		}
	}
	if eligible == 0 {
		errs.Add(prefix+".tasks", "task set has no eligible tasks")
	}
}

func validateRequest(prefix string, req *RequestConfig, errs *ValidationErrors) {
	if req.Path == "" {
		errs.Add(prefix+".path", "path is required")
	}
	if req.Method != "" {
		switch strings.ToUpper(req.Method) {
		case "GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS":
		default:
			errs.Add(prefix+".method", fmt.Sprintf("unsupported method %q", req.Method))
		}
	}
	for i, code := range req.ExpectStatus {
		if code < 100 || code > 599 {
			errs.Add(fmt.Sprintf("%s.expectStatus[%d]", prefix, i), fmt.Sprintf("invalid status code %d", code))
		}
	}
	for i, ex := range req.Extract {
		exPrefix := fmt.Sprintf("%s.extract[%d]", prefix, i)
		if ex.Name == "" {
			errs.Add(exPrefix+".name", "name is required")
		}
		if !extractSources[ex.Source] {
			errs.Add(exPrefix+".source", fmt.Sprintf("unknown source %q (expected body, header or status)", ex.Source))
		}
		if ex.Source == "header" && ex.Path == "" {
			errs.Add(exPrefix+".path", "header name is required")
		}
	}
}

func validateURL(field, raw string, errs *ValidationErrors) {
	if strings.Contains(raw, "{{") {
		return
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs.Add(field, fmt.Sprintf("invalid URL %q", raw))
	}
}

func needsHost(ts *TaskSetConfig) bool {
	for _, task := range ts.Tasks {
		for _, req := range task.Requests {
			if !strings.HasPrefix(req.Path, "http://") && !strings.HasPrefix(req.Path, "https://") {
				return true
			}
		}
	}
	return false
}
