package attack

import (
	"fmt"
	"net/http"
	"time"
)

// Debug record tags.
const (
	TagRequest = "request"
	TagTask    = "task"
)

// DebugRecord captures the full context of a failed or flagged request. It
// is written as one line of the debug log.
type DebugRecord struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	UserID    int       `json:"user"`
	TaskSet   string    `json:"task_set"`
	Task      string    `json:"task"`
	Tag       string    `json:"tag"`

	Method         string            `json:"method,omitempty"`
	URL            string            `json:"url,omitempty"`
	RequestHeaders map[string]string `json:"request_headers,omitempty"`
	RequestBody    string            `json:"request_body,omitempty"`

	StatusCode      int         `json:"status_code,omitempty"`
	ResponseHeaders http.Header `json:"response_headers,omitempty"`
	ResponseBody    string      `json:"response_body,omitempty"`

	Elapsed time.Duration `json:"elapsed,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// RequestError is returned by User request methods when a request fails:
// a transport error, an error status, or a failed check.
type RequestError struct {
	Method     string
	Name       string
	URL        string
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Name, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.Name, e.Err)
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// TaskError wraps the failure of one task run.
type TaskError struct {
	TaskSet string
	Task    string
	Err     error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("task %s/%s: %v", e.TaskSet, e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// PanicError is the failure recorded for a task that panicked.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
