package perf

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("ok"))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRun(t *testing.T) {
	server := newServer(t)

	set := NewTaskSet("Index").Register(NewTask("home", func(ctx context.Context, u *User) error {
		_, err := u.Get(ctx, "/", ExpectStatus(http.StatusOK))
		return err
	}))

	opts := DefaultOptions()
	opts.BaseURL = server.URL
	opts.Users = 2
	opts.HatchRate = 100
	opts.RunTime = 100 * time.Millisecond
	opts.NoResetMetrics = true

	result, err := Run(context.Background(), opts, set)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Users)
	assert.Equal(t, 0, result.Undrained)
	assert.Greater(t, result.Metrics.TotalRequests, int64(0))
	assert.Equal(t, int64(0), result.Metrics.TotalFail)
}

func TestRun_InvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.Users = 0

	_, err := Run(context.Background(), opts, NewTaskSet("Index"))
	assert.Error(t, err)
}

func TestLoadAttack(t *testing.T) {
	server := newServer(t)

	path := filepath.Join(t.TempDir(), "attack.yaml")
	content := `
host: ` + server.URL + `
users: 3
hatchRate: 10
runTime: 1m
taskSets:
  - name: Index
    tasks:
      - name: home
        requests:
          - path: /
            expectStatus: [200]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	opts, sets, err := LoadAttack(path)
	require.NoError(t, err)
	assert.Equal(t, server.URL, opts.BaseURL)
	assert.Equal(t, 3, opts.Users)
	assert.Equal(t, time.Minute, opts.RunTime)
	require.Len(t, sets, 1)
	assert.Equal(t, "Index", sets[0].Name)
	assert.Len(t, sets[0].Tasks(), 1)
}

func TestLoadAttack_Missing(t *testing.T) {
	_, _, err := LoadAttack(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
