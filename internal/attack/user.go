package attack

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
	"github.com/wesleyorama2/drove/internal/attack/rate"
	"github.com/wesleyorama2/drove/internal/transport"
)

// TagFlag marks debug records written through User.Log.
const TagFlag = "flag"

// Environment holds the shared collaborators every user sends to. Users
// only hold senders; the aggregator and sinks own their state.
type Environment struct {
	Client   *transport.Client
	Throttle *rate.Throttle

	// Outcomes receives one RequestOutcome per completed request.
	Outcomes chan<- *metrics.RequestOutcome

	// Abandon is closed by the controller when it stops waiting for
	// users; pending outcome sends are dropped from then on.
	Abandon <-chan struct{}

	Debug *logsink.Sink[DebugRecord]

	RunID  string
	Logger *zap.Logger
}

// Check inspects a response and returns an error to mark the request failed.
type Check interface {
	Verify(resp *transport.Response) error
}

// CheckFunc adapts a function to Check.
type CheckFunc func(resp *transport.Response) error

// Verify calls f(resp).
func (f CheckFunc) Verify(resp *transport.Response) error { return f(resp) }

// StatusCheck lists the acceptable status codes of a request. Passing one
// replaces the default rule that fails every 4xx and 5xx response.
type StatusCheck []int

// Verify fails unless the response status is listed.
func (s StatusCheck) Verify(resp *transport.Response) error {
	if slices.Contains(s, resp.StatusCode) {
		return nil
	}
	return fmt.Errorf("expected status %v, got %d", []int(s), resp.StatusCode)
}

// ExpectStatus fails the request unless the status is one of codes. Error
// statuses listed in codes count as success.
func ExpectStatus(codes ...int) Check {
	return StatusCheck(codes)
}

func expectsStatus(checks []Check) bool {
	for _, check := range checks {
		if _, ok := check.(StatusCheck); ok {
			return true
		}
	}
	return false
}

// User is the handle a task uses to issue requests and keep state. It
// belongs to exactly one virtual user and is never shared between
// goroutines.
type User struct {
	id      int
	env     *Environment
	client  *transport.Client
	rng     *rand.Rand
	logger  *zap.Logger
	taskSet string
	task    string
	data    map[string]any
}

func newUser(id int, ts *TaskSet, env *Environment, seed uint64) *User {
	client := env.Client
	if ts.Host != "" {
		client = client.WithBase(ts.Host)
	}
	logger := env.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &User{
		id:      id,
		env:     env,
		client:  client,
		rng:     rand.New(rand.NewPCG(seed, uint64(id))),
		logger:  logger.With(zap.Int("user", id), zap.String("task_set", ts.Name)),
		taskSet: ts.Name,
		data:    make(map[string]any),
	}
}

// ID returns the user's id. Ids start at 1 in spawn order.
func (u *User) ID() int { return u.id }

// TaskSet returns the name of the user's task set.
func (u *User) TaskSet() string { return u.taskSet }

// Task returns the name of the task currently running.
func (u *User) Task() string { return u.task }

// Rand returns the user's seeded random source.
func (u *User) Rand() *rand.Rand { return u.rng }

// Logger returns a logger tagged with the user and task set.
func (u *User) Logger() *zap.Logger { return u.logger }

// BaseURL returns the base URL requests are resolved against.
func (u *User) BaseURL() string { return u.client.BaseURL() }

// SetData stores a user-scoped value.
func (u *User) SetData(key string, value any) {
	u.data[key] = value
}

// GetData returns a user-scoped value.
func (u *User) GetData(key string) (any, bool) {
	v, ok := u.data[key]
	return v, ok
}

// Get issues a GET request for path.
func (u *User) Get(ctx context.Context, path string, checks ...Check) (*transport.Response, error) {
	return u.Request(ctx, transport.NewRequest("GET", path), checks...)
}

// Post issues a POST request for path with a JSON or raw body.
func (u *User) Post(ctx context.Context, path string, body any, checks ...Check) (*transport.Response, error) {
	return u.Request(ctx, transport.NewRequest("POST", path).WithBody(body), checks...)
}

// Request performs req and records its outcome. The request fails on a
// transport error, a status of 400 or above unless a StatusCheck is given,
// or the first failing check;
// the returned error is then a *RequestError and the response, if any, is
// still returned.
func (u *User) Request(ctx context.Context, req *transport.Request, checks ...Check) (*transport.Response, error) {
	if err := u.env.Throttle.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("waiting for throttle: %w", err)
	}

	start := time.Now()
	resp, err := u.client.Do(ctx, req)
	elapsed := time.Since(start)

	var failure error
	switch {
	case err != nil:
		failure = err
	case resp.IsError() && !expectsStatus(checks):
		failure = fmt.Errorf("unexpected status %s", resp.Status)
	default:
		for _, check := range checks {
			if cerr := check.Verify(resp); cerr != nil {
				failure = cerr
				break
			}
		}
	}

	outcome := &metrics.RequestOutcome{
		Method:    req.Method,
		Name:      req.DisplayName(),
		Elapsed:   elapsed,
		Success:   failure == nil,
		Timestamp: start,
		UserID:    u.id,
		TaskSet:   u.taskSet,
		Task:      u.task,
	}
	if resp != nil {
		outcome.StatusCode = resp.StatusCode
		outcome.URL = resp.URL
	}
	if outcome.URL == "" {
		outcome.URL, _ = req.URL(u.client.BaseURL())
	}
	if failure != nil {
		outcome.Error = failure.Error()
	}
	u.emit(outcome)

	if failure == nil {
		return resp, nil
	}

	if u.env.Debug.Enabled() {
		u.env.Debug.Send(u.requestRecord(req, resp, outcome))
	}
	return resp, &RequestError{
		Method:     outcome.Method,
		Name:       outcome.Name,
		URL:        outcome.URL,
		StatusCode: outcome.StatusCode,
		Err:        failure,
	}
}

// Log writes a flagged record to the debug log. Identity fields left empty
// are filled in from the user. It returns false if the debug log is not
// enabled or already closed.
func (u *User) Log(rec *DebugRecord) bool {
	if rec == nil || !u.env.Debug.Enabled() {
		return false
	}
	u.fill(rec)
	if rec.Tag == "" {
		rec.Tag = TagFlag
	}
	return u.env.Debug.Send(rec)
}

func (u *User) emit(o *metrics.RequestOutcome) {
	if u.env.Outcomes == nil {
		return
	}
	select {
	case u.env.Outcomes <- o:
	case <-u.env.Abandon:
	}
}

func (u *User) fill(rec *DebugRecord) {
	if rec.RunID == "" {
		rec.RunID = u.env.RunID
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	if rec.UserID == 0 {
		rec.UserID = u.id
	}
	if rec.TaskSet == "" {
		rec.TaskSet = u.taskSet
	}
	if rec.Task == "" {
		rec.Task = u.task
	}
}

func (u *User) requestRecord(req *transport.Request, resp *transport.Response, o *metrics.RequestOutcome) *DebugRecord {
	rec := &DebugRecord{
		Timestamp:   o.Timestamp,
		Tag:         TagRequest,
		Method:      o.Method,
		URL:         o.URL,
		RequestBody: req.BodyString(),
		StatusCode:  o.StatusCode,
		Elapsed:     o.Elapsed,
		Error:       o.Error,
	}
	if len(req.Headers) > 0 {
		rec.RequestHeaders = make(map[string]string, len(req.Headers))
		for k, v := range req.Headers {
			rec.RequestHeaders[k] = v
		}
	}
	if resp != nil {
		rec.ResponseHeaders = resp.Headers.Clone()
		rec.ResponseBody = resp.BodyString()
	}
	u.fill(rec)
	return rec
}

// traceTaskError writes a debug record for a task failure that was not
// already traced by a failed request.
func (u *User) traceTaskError(err error) {
	if !u.env.Debug.Enabled() {
		return
	}
	rec := &DebugRecord{Tag: TagTask, Error: err.Error()}
	u.fill(rec)
	u.env.Debug.Send(rec)
}
