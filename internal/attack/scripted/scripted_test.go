package scripted

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/drove/internal/attack"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
	"github.com/wesleyorama2/drove/internal/config"
	"github.com/wesleyorama2/drove/internal/transport"
)

const itemsSchema = `{
	"type": "object",
	"required": ["items"],
	"properties": {"items": {"type": "array"}}
}`

type apiServer struct {
	*httptest.Server

	loginBody  atomic.Value
	loginType  atomic.Value
	authorized atomic.Int64
	badItems   bool
}

func newAPIServer(t *testing.T, badItems bool) *apiServer {
	t.Helper()
	s := &apiServer{badItems: badItems}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/login":
			body, _ := io.ReadAll(r.Body)
			s.loginBody.Store(string(body))
			s.loginType.Store(r.Header.Get("Content-Type"))
			w.Header().Set("X-Session", "s1")
			w.Write([]byte(`{"token":"abc","user":{"id":7}}`))
		case r.Method == http.MethodGet && r.URL.Path == "/items/7":
			if r.Header.Get("Authorization") != "Bearer abc" || r.Header.Get("X-Session") != "s1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			s.authorized.Add(1)
			if s.badItems {
				w.Write([]byte(`{"items":"none"}`))
				return
			}
			w.Write([]byte(`{"items":[{"id":1}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func apiConfig() *config.AttackConfig {
	return &config.AttackConfig{
		Variables: map[string]string{"prefix": "/items"},
		TaskSets: []config.TaskSetConfig{{
			Name:     "api",
			WaitTime: &config.WaitTimeConfig{Min: config.Duration(time.Millisecond), Max: config.Duration(2 * time.Millisecond)},
			Tasks: []config.TaskConfig{
				{
					Name:    "login",
					OnStart: true,
					Requests: []config.RequestConfig{{
						Method:       "post",
						Path:         "/login",
						Body:         `{"user":"{{userId}}","set":"{{taskSet}}"}`,
						ExpectStatus: []int{200},
						Extract: []config.ExtractConfig{
							{Name: "token", Source: "body", Path: "$.token"},
							{Name: "uid", Source: "body", Path: "$.user.id"},
							{Name: "session", Source: "header", Path: "X-Session"},
						},
					}},
				},
				{
					Name: "items",
					Requests: []config.RequestConfig{{
						Path: "{{prefix}}/{{uid}}",
						Headers: map[string]string{
							"Authorization": "Bearer {{token}}",
							"X-Session":     "{{session}}",
						},
						Schema: itemsSchema,
					}},
				},
			},
		}},
	}
}

// outcomeRecorder drains outcomes so users never block on a full channel.
type outcomeRecorder struct {
	ch   chan *metrics.RequestOutcome
	mu   sync.Mutex
	seen []*metrics.RequestOutcome
	done chan struct{}
}

func newOutcomeRecorder() *outcomeRecorder {
	r := &outcomeRecorder{ch: make(chan *metrics.RequestOutcome, 16), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		for o := range r.ch {
			r.mu.Lock()
			r.seen = append(r.seen, o)
			r.mu.Unlock()
		}
	}()
	return r
}

func (r *outcomeRecorder) outcomes() []*metrics.RequestOutcome {
	close(r.ch)
	<-r.done
	return r.seen
}

func runOneUser(t *testing.T, sets []*attack.TaskSet, baseURL string, until func() bool) (*attack.VirtualUser, []*metrics.RequestOutcome) {
	t.Helper()
	rec := newOutcomeRecorder()
	env := &attack.Environment{
		Client:   transport.NewClient(transport.WithBaseURL(baseURL)),
		Outcomes: rec.ch,
	}
	sched, err := attack.NewScheduler(sets, env, 1)
	require.NoError(t, err)

	vu, err := sched.Spawn(context.Background(), 0)
	require.NoError(t, err)

	require.Eventually(t, until, 5*time.Second, 5*time.Millisecond)
	sched.StopAll()
	require.Equal(t, 0, sched.WaitForAll(5*time.Second))
	sched.Wait()
	return vu, rec.outcomes()
}

func TestBuild_ExtractedValuesFlowIntoLaterRequests(t *testing.T) {
	server := newAPIServer(t, false)
	sets, err := Build(apiConfig())
	require.NoError(t, err)
	require.Len(t, sets, 1)

	vu, outcomes := runOneUser(t, sets, server.URL, func() bool {
		return server.authorized.Load() >= 3
	})

	assert.Equal(t, int64(0), vu.TaskFailures())

	var login map[string]string
	require.NoError(t, json.Unmarshal([]byte(server.loginBody.Load().(string)), &login))
	assert.Equal(t, map[string]string{"user": "1", "set": "api"}, login)
	assert.Equal(t, "application/json", server.loginType.Load())

	require.NotEmpty(t, outcomes)
	assert.Equal(t, "POST", outcomes[0].Method)
	assert.Equal(t, "/login", outcomes[0].Name)
	for _, o := range outcomes[1:] {
		assert.Equal(t, "{{prefix}}/{{uid}}", o.Name)
		assert.True(t, o.Success, o.Error)
		assert.Contains(t, o.URL, "/items/7")
	}
}

func TestBuild_SchemaMismatchFailsRequest(t *testing.T) {
	server := newAPIServer(t, true)
	sets, err := Build(apiConfig())
	require.NoError(t, err)

	vu, outcomes := runOneUser(t, sets, server.URL, func() bool {
		return server.authorized.Load() >= 2
	})

	assert.Greater(t, vu.TaskFailures(), int64(0))
	var failed *metrics.RequestOutcome
	for _, o := range outcomes {
		if !o.Success {
			failed = o
			break
		}
	}
	require.NotNil(t, failed)
	assert.Equal(t, 200, failed.StatusCode)
	assert.Contains(t, failed.Error, "schema validation failed")
	assert.Contains(t, failed.Error, "/items")
}

func TestBuild_ExpectedErrorStatusPasses(t *testing.T) {
	var served atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		served.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	cfg := &config.AttackConfig{
		TaskSets: []config.TaskSetConfig{{
			Name: "cleanup",
			Tasks: []config.TaskConfig{{
				Name: "gone",
				Requests: []config.RequestConfig{{
					Path:         "/gone",
					ExpectStatus: []int{http.StatusNotFound, http.StatusGone},
				}},
			}},
		}},
	}
	sets, err := Build(cfg)
	require.NoError(t, err)

	vu, outcomes := runOneUser(t, sets, server.URL, func() bool {
		return served.Load() >= 3
	})

	assert.Equal(t, int64(0), vu.TaskFailures())
	require.NotEmpty(t, outcomes)
	for _, o := range outcomes {
		assert.True(t, o.Success, o.Error)
		assert.Equal(t, http.StatusNotFound, o.StatusCode)
	}
}

func TestBuild_TaskSetShape(t *testing.T) {
	cfg := apiConfig()
	cfg.TaskSets[0].Policy = "sequential"
	cfg.TaskSets[0].Host = "http://{{apiHost}}"
	cfg.Variables["apiHost"] = "api.local:8080"
	weight := 3
	cfg.TaskSets[0].Weight = &weight

	sets, err := Build(cfg)
	require.NoError(t, err)

	ts := sets[0]
	assert.Equal(t, "api", ts.Name)
	assert.Equal(t, 3, ts.Weight)
	assert.Equal(t, attack.PolicySequential, ts.Policy)
	assert.Equal(t, "http://api.local:8080", ts.Host)
	assert.Equal(t, time.Millisecond, ts.WaitTime.Min)
	assert.Equal(t, 2*time.Millisecond, ts.WaitTime.Max)

	tasks := ts.Tasks()
	require.Len(t, tasks, 2)
	assert.True(t, tasks[0].OnStart)
	assert.Equal(t, 1, tasks[1].Weight)
	assert.NoError(t, ts.Validate())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.AttackConfig)
		wantErr string
	}{
		{
			name:    "unknown policy",
			mutate:  func(c *config.AttackConfig) { c.TaskSets[0].Policy = "round-robin" },
			wantErr: "taskSets[0]: unknown task policy",
		},
		{
			name:    "schema is not JSON",
			mutate:  func(c *config.AttackConfig) { c.TaskSets[0].Tasks[1].Requests[0].Schema = "{" },
			wantErr: "taskSets[0]: tasks[1]: requests[0]: invalid schema",
		},
		{
			name:    "schema does not compile",
			mutate:  func(c *config.AttackConfig) { c.TaskSets[0].Tasks[1].Requests[0].Schema = `{"type": 5}` },
			wantErr: "invalid schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := apiConfig()
			tt.mutate(cfg)
			_, err := Build(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
