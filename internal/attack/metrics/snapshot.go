package metrics

import (
	"sort"
	"time"
)

// LatencyPercentiles contains latency percentiles from the HDR histogram.
type LatencyPercentiles struct {
	P50 time.Duration `json:"p50"`
	P90 time.Duration `json:"p90"`
	P95 time.Duration `json:"p95"`
	P99 time.Duration `json:"p99"`
}

// RequestStats holds the counters for one "METHOD name" key.
type RequestStats struct {
	Method string `json:"method"`
	Name   string `json:"name"`

	// ResponseTimeCounter counts every response time recorded, successful
	// or not.
	ResponseTimeCounter int64 `json:"response_time_counter"`
	SuccessCount        int64 `json:"success_count"`
	FailCount           int64 `json:"fail_count"`

	TotalResponseTime time.Duration `json:"total_response_time"`
	MinResponseTime   time.Duration `json:"min_response_time"`
	MaxResponseTime   time.Duration `json:"max_response_time"`

	// ResponseTimes maps rounded milliseconds to occurrences.
	ResponseTimes    map[int64]int64 `json:"response_times"`
	StatusCodeCounts map[int]int64   `json:"status_code_counts"`

	Latency LatencyPercentiles `json:"latency"`
}

// MeanResponseTime returns the average response time.
func (s *RequestStats) MeanResponseTime() time.Duration {
	if s.ResponseTimeCounter == 0 {
		return 0
	}
	return s.TotalResponseTime / time.Duration(s.ResponseTimeCounter)
}

// FailRatio returns failures over total requests.
func (s *RequestStats) FailRatio() float64 {
	total := s.SuccessCount + s.FailCount
	if total == 0 {
		return 0
	}
	return float64(s.FailCount) / float64(total)
}

func (s *RequestStats) clone() *RequestStats {
	c := *s
	c.ResponseTimes = make(map[int64]int64, len(s.ResponseTimes))
	for k, v := range s.ResponseTimes {
		c.ResponseTimes[k] = v
	}
	c.StatusCodeCounts = make(map[int]int64, len(s.StatusCodeCounts))
	for k, v := range s.StatusCodeCounts {
		c.StatusCodeCounts[k] = v
	}
	return &c
}

// Snapshot is an immutable copy of the aggregator state.
type Snapshot struct {
	Requests map[string]*RequestStats `json:"requests"`

	// Duration is the span of the run timer: from the end of hatching to
	// the stop signal (or now, while running).
	Duration      time.Duration `json:"duration"`
	HatchDuration time.Duration `json:"hatch_duration"`
	Users         int           `json:"users"`
	StartedAt     time.Time     `json:"started_at"`
	Timestamp     time.Time     `json:"timestamp"`

	TotalRequests int64 `json:"total_requests"`
	TotalSuccess  int64 `json:"total_success"`
	TotalFail     int64 `json:"total_fail"`
}

// Keys returns the request keys in sorted order.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.Requests))
	for k := range s.Requests {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the stats for method and name, or nil.
func (s *Snapshot) Get(method, name string) *RequestStats {
	return s.Requests[Key(method, name)]
}

// RPS returns the overall request rate over the run duration.
func (s *Snapshot) RPS() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.TotalRequests) / s.Duration.Seconds()
}

// ErrorRate returns failures over total requests.
func (s *Snapshot) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalFail) / float64(s.TotalRequests)
}
