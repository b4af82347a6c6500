// Package metrics aggregates request outcomes into per-request statistics.
package metrics

import (
	"math"
	"strconv"
	"time"
)

// RequestOutcome is the measured result of one completed request. It is
// produced by a virtual user and consumed exactly once by the Aggregator.
type RequestOutcome struct {
	Method     string        `json:"method"`
	Name       string        `json:"name"`
	URL        string        `json:"url"`
	Elapsed    time.Duration `json:"elapsed"`
	StatusCode int           `json:"status_code"`
	Success    bool          `json:"success"`
	Timestamp  time.Time     `json:"timestamp"`
	UserID     int           `json:"user"`
	TaskSet    string        `json:"task_set,omitempty"`
	Task       string        `json:"task,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Key returns the aggregation key, "METHOD name".
func (o *RequestOutcome) Key() string {
	return Key(o.Method, o.Name)
}

// CSVFields renders the outcome as one request-log CSV row.
func (o *RequestOutcome) CSVFields() []string {
	return []string{
		o.Timestamp.UTC().Format(time.RFC3339Nano),
		o.Method,
		o.Name,
		o.URL,
		strconv.FormatInt(o.Elapsed.Milliseconds(), 10),
		strconv.Itoa(o.StatusCode),
		strconv.FormatBool(o.Success),
		strconv.Itoa(o.UserID),
		o.TaskSet,
		o.Task,
		o.Error,
	}
}

// Key builds the aggregation key for a method and request name.
func Key(method, name string) string {
	return method + " " + name
}

// RoundResponseTime buckets a response time in milliseconds: exact below
// 100ms, to 10ms below 500ms, to 100ms below 1s and to whole seconds above.
func RoundResponseTime(d time.Duration) int64 {
	ms := d.Milliseconds()
	switch {
	case ms < 100:
		return ms
	case ms < 500:
		return roundTo(ms, 10)
	case ms < 1000:
		return roundTo(ms, 100)
	default:
		return roundTo(ms, 1000)
	}
}

func roundTo(ms, unit int64) int64 {
	return int64(math.Round(float64(ms)/float64(unit))) * unit
}
