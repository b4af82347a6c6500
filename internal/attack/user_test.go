package attack

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
	"github.com/wesleyorama2/drove/internal/transport"
)

func newTarget(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Write([]byte("index"))
		case "/about.html":
			w.Write([]byte("about"))
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ok":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte("missing"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

type userFixture struct {
	user     *User
	outcomes chan *metrics.RequestOutcome
	sink     *logsink.Sink[DebugRecord]
	path     string
}

func newUserFixture(t *testing.T, baseURL string, ts *TaskSet) *userFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "debug.log")
	sink, err := logsink.Open[DebugRecord](path, logsink.FormatJSON)
	require.NoError(t, err)
	go sink.Run()

	outcomes := make(chan *metrics.RequestOutcome, 16)
	env := &Environment{
		Client:   transport.NewClient(transport.WithBaseURL(baseURL)),
		Outcomes: outcomes,
		Debug:    sink,
		RunID:    "run-1",
	}
	if ts == nil {
		ts = NewTaskSet("set")
	}
	u := newUser(1, ts, env, 1)
	u.task = "task"
	return &userFixture{user: u, outcomes: outcomes, sink: sink, path: path}
}

func (f *userFixture) debugRecords(t *testing.T) []DebugRecord {
	t.Helper()
	f.sink.Shutdown()
	<-f.sink.Done()

	file, err := os.Open(f.path)
	require.NoError(t, err)
	defer file.Close()

	var out []DebugRecord
	sc := bufio.NewScanner(file)
	for sc.Scan() {
		var rec DebugRecord
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestUser_GetSuccess(t *testing.T) {
	server := newTarget(t)
	f := newUserFixture(t, server.URL, nil)

	resp, err := f.user.Get(context.Background(), "/")
	require.NoError(t, err)
	assert.Equal(t, "index", resp.BodyString())

	o := <-f.outcomes
	assert.Equal(t, "GET /", o.Key())
	assert.True(t, o.Success)
	assert.Equal(t, http.StatusOK, o.StatusCode)
	assert.Equal(t, 1, o.UserID)
	assert.Equal(t, "set", o.TaskSet)
	assert.Equal(t, "task", o.Task)
	assert.Equal(t, server.URL+"/", o.URL)
	assert.Positive(t, o.Elapsed)

	assert.Empty(t, f.debugRecords(t))
}

func TestUser_ErrorStatusFails(t *testing.T) {
	server := newTarget(t)
	f := newUserFixture(t, server.URL, nil)

	resp, err := f.user.Get(context.Background(), "/nope")
	require.Error(t, err)
	require.NotNil(t, resp)

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)

	o := <-f.outcomes
	assert.False(t, o.Success)
	assert.Equal(t, http.StatusNotFound, o.StatusCode)
	assert.NotEmpty(t, o.Error)

	records := f.debugRecords(t)
	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "run-1", rec.RunID)
	assert.Equal(t, TagRequest, rec.Tag)
	assert.Equal(t, "GET", rec.Method)
	assert.Equal(t, http.StatusNotFound, rec.StatusCode)
	assert.Equal(t, "missing", rec.ResponseBody)
	assert.Equal(t, "task", rec.Task)
}

func TestUser_CheckFailsSuccessfulResponse(t *testing.T) {
	server := newTarget(t)
	f := newUserFixture(t, server.URL, nil)

	req := transport.NewRequest("GET", "/json").WithName("json endpoint")
	_, err := f.user.Request(context.Background(), req, ExpectStatus(http.StatusCreated))
	require.Error(t, err)

	o := <-f.outcomes
	assert.Equal(t, "GET json endpoint", o.Key())
	assert.False(t, o.Success)
	assert.Equal(t, http.StatusOK, o.StatusCode)
	assert.Len(t, f.debugRecords(t), 1)
}

func TestUser_ExpectedErrorStatus(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		checks      []Check
		wantSuccess bool
	}{
		{"listed 404 passes", "/missing", []Check{ExpectStatus(http.StatusNotFound)}, true},
		{"404 among several", "/missing", []Check{ExpectStatus(http.StatusOK, http.StatusNotFound)}, true},
		{"unlisted 404 fails", "/missing", []Check{ExpectStatus(http.StatusOK)}, false},
		{"listed 404 but got 200", "/", []Check{ExpectStatus(http.StatusNotFound)}, false},
		{"other checks keep the default rule", "/missing", []Check{CheckFunc(func(*transport.Response) error { return nil })}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTarget(t)
			f := newUserFixture(t, server.URL, nil)

			_, err := f.user.Get(context.Background(), tt.path, tt.checks...)
			o := <-f.outcomes
			assert.Equal(t, tt.wantSuccess, o.Success)
			if tt.wantSuccess {
				assert.NoError(t, err)
				assert.Empty(t, f.debugRecords(t))
			} else {
				assert.Error(t, err)
				assert.Len(t, f.debugRecords(t), 1)
			}
		})
	}
}

func TestUser_TransportErrorIsRecorded(t *testing.T) {
	server := newTarget(t)
	url := server.URL
	server.Close()

	f := newUserFixture(t, url, nil)
	resp, err := f.user.Get(context.Background(), "/")
	require.Error(t, err)
	assert.Nil(t, resp)

	o := <-f.outcomes
	assert.False(t, o.Success)
	assert.Zero(t, o.StatusCode)
	assert.Equal(t, url+"/", o.URL)
	assert.Len(t, f.debugRecords(t), 1)
}

func TestUser_HostOverride(t *testing.T) {
	server := newTarget(t)
	f := newUserFixture(t, "http://127.0.0.1:1", NewTaskSet("set").SetHost(server.URL))

	_, err := f.user.Get(context.Background(), "/about.html")
	require.NoError(t, err)
	assert.Equal(t, server.URL, f.user.BaseURL())
}

func TestUser_AbandonUnblocksEmit(t *testing.T) {
	abandon := make(chan struct{})
	env := &Environment{
		Client:   transport.NewClient(),
		Outcomes: make(chan *metrics.RequestOutcome),
		Abandon:  abandon,
	}
	u := newUser(1, NewTaskSet("set"), env, 1)

	done := make(chan struct{})
	go func() {
		u.emit(&metrics.RequestOutcome{Method: "GET", Name: "/"})
		close(done)
	}()

	close(abandon)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit did not return after abandon")
	}
}

func TestUser_LogAndData(t *testing.T) {
	f := newUserFixture(t, "http://example.invalid", nil)

	f.user.SetData("token", "abc")
	v, ok := f.user.GetData("token")
	assert.True(t, ok)
	assert.Equal(t, "abc", v)
	_, ok = f.user.GetData("missing")
	assert.False(t, ok)

	assert.True(t, f.user.Log(&DebugRecord{Error: "looks odd"}))
	assert.False(t, f.user.Log(nil))

	records := f.debugRecords(t)
	require.Len(t, records, 1)
	assert.Equal(t, TagFlag, records[0].Tag)
	assert.Equal(t, 1, records[0].UserID)
	assert.Equal(t, "set", records[0].TaskSet)
	assert.False(t, records[0].Timestamp.IsZero())
}

func TestUser_LogWithoutDebugSink(t *testing.T) {
	u := newUser(1, NewTaskSet("set"), &Environment{Client: transport.NewClient()}, 1)
	assert.False(t, u.Log(&DebugRecord{}))
}
