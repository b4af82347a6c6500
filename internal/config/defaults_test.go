package config

import (
	"runtime"
	"testing"
	"time"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &AttackConfig{
		TaskSets: []TaskSetConfig{
			{
				Name: "Index",
				Tasks: []TaskConfig{
					{Name: "index", Requests: []RequestConfig{{Path: "/"}, {Method: "post", Path: "/x"}}},
				},
			},
		},
	}
	ApplyDefaults(cfg)

	if cfg.Users != runtime.NumCPU() {
		t.Errorf("Users = %d, want %d", cfg.Users, runtime.NumCPU())
	}
	if cfg.HatchRate != 1 {
		t.Errorf("HatchRate = %g, want 1", cfg.HatchRate)
	}
	if cfg.RunTime != 0 {
		t.Errorf("RunTime = %s, want 0", cfg.RunTime)
	}
	if cfg.DebugFormat != "json" || cfg.RequestFormat != "json" {
		t.Errorf("formats = %s/%s, want json/json", cfg.DebugFormat, cfg.RequestFormat)
	}
	if time.Duration(cfg.DrainTimeout) != 30*time.Second {
		t.Errorf("DrainTimeout = %s, want 30s", cfg.DrainTimeout)
	}
	if time.Duration(cfg.HTTP.Timeout) != 60*time.Second {
		t.Errorf("HTTP.Timeout = %s, want 60s", cfg.HTTP.Timeout)
	}

	ts := cfg.TaskSets[0]
	if ts.Weight == nil || *ts.Weight != 1 {
		t.Errorf("task set weight = %v, want 1", ts.Weight)
	}
	if ts.Policy != "weighted" {
		t.Errorf("policy = %q, want weighted", ts.Policy)
	}
	if w := ts.Tasks[0].Weight; w == nil || *w != 1 {
		t.Errorf("task weight = %v, want 1", w)
	}
	if m := ts.Tasks[0].Requests[0].Method; m != "GET" {
		t.Errorf("method = %q, want GET", m)
	}
	if m := ts.Tasks[0].Requests[1].Method; m != "POST" {
		t.Errorf("method = %q, want POST", m)
	}
}

func TestApplyDefaults_KeepsExplicitValues(t *testing.T) {
	cfg := &AttackConfig{Users: 7, HatchRate: 3, DebugFormat: "raw", TaskSets: []TaskSetConfig{{Name: "a", Weight: intPtr(0)}}}
	ApplyDefaults(cfg)

	if cfg.Users != 7 || cfg.HatchRate != 3 || cfg.DebugFormat != "raw" {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
	if *cfg.TaskSets[0].Weight != 0 {
		t.Errorf("explicit zero weight overwritten")
	}
}

func TestSetDefault(t *testing.T) {
	cfg := &AttackConfig{Users: 5}

	steps := []struct {
		key   DefaultKey
		value interface{}
	}{
		{DefaultHost, "http://example.com"},
		{DefaultUsers, 10},
		{DefaultHatchRate, 4},
		{DefaultRunTime, "1s"},
		{DefaultThrottleRequests, 2.5},
		{DefaultDrainTimeout, 5 * time.Second},
		{DefaultNoResetMetrics, true},
		{DefaultDebugLog, "debug.log"},
		{DefaultDebugFormat, "raw"},
		{DefaultRequestLog, "requests.log"},
		{DefaultRequestFormat, "csv"},
	}
	for _, s := range steps {
		if err := cfg.SetDefault(s.key, s.value); err != nil {
			t.Fatalf("SetDefault(%s) unexpected error: %v", s.key, err)
		}
	}

	if cfg.Users != 5 {
		t.Errorf("Users = %d, want explicit 5 kept", cfg.Users)
	}
	if cfg.Host != "http://example.com" {
		t.Errorf("Host = %q", cfg.Host)
	}
	if cfg.HatchRate != 4 {
		t.Errorf("HatchRate = %g, want 4", cfg.HatchRate)
	}
	if time.Duration(cfg.RunTime) != time.Second {
		t.Errorf("RunTime = %s, want 1s", cfg.RunTime)
	}
	if cfg.ThrottleRequests != 2.5 {
		t.Errorf("ThrottleRequests = %g, want 2.5", cfg.ThrottleRequests)
	}
	if time.Duration(cfg.DrainTimeout) != 5*time.Second {
		t.Errorf("DrainTimeout = %s, want 5s", cfg.DrainTimeout)
	}
	if !cfg.NoResetMetrics {
		t.Error("NoResetMetrics = false, want true")
	}
	if cfg.DebugFormat != "raw" || cfg.RequestFormat != "csv" {
		t.Errorf("formats = %s/%s", cfg.DebugFormat, cfg.RequestFormat)
	}
	if cfg.DebugLog != "debug.log" || cfg.RequestLog != "requests.log" {
		t.Errorf("logs = %s/%s", cfg.DebugLog, cfg.RequestLog)
	}
}

func TestSetDefault_TypeErrors(t *testing.T) {
	cfg := &AttackConfig{}
	tests := []struct {
		key   DefaultKey
		value interface{}
	}{
		{DefaultHost, 1},
		{DefaultUsers, "ten"},
		{DefaultHatchRate, "fast"},
		{DefaultRunTime, 3},
		{DefaultRunTime, "soon"},
		{DefaultNoResetMetrics, "yes"},
		{DefaultKey(99), "x"},
	}
	for _, tt := range tests {
		if err := cfg.SetDefault(tt.key, tt.value); err == nil {
			t.Errorf("SetDefault(%s, %v) expected error", tt.key, tt.value)
		}
	}
}
