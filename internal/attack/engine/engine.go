// Package engine runs an attack: it hatches virtual users, runs them for the
// configured time, stops and drains them, and collects the final metrics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/wesleyorama2/drove/internal/attack"
	"github.com/wesleyorama2/drove/internal/attack/logsink"
	"github.com/wesleyorama2/drove/internal/attack/metrics"
	"github.com/wesleyorama2/drove/internal/attack/rate"
	"github.com/wesleyorama2/drove/internal/transport"
)

// Phase is the stage an attack is in.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseHatching
	PhaseRunning
	PhaseStopping
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseHatching:
		return "hatching"
	case PhaseRunning:
		return "running"
	case PhaseStopping:
		return "stopping"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

// Engine is the controller of an attack.
//
// It coordinates:
//   - user distribution across task sets and staggered hatching
//   - the run timer and the broadcast stop
//   - the aggregator, debug log, request log and throttle goroutines
//
// Example usage:
//
//	e, _ := engine.New(opts)
//	e.RegisterTaskSet(index, about)
//	result, _ := e.Run(ctx)
type Engine struct {
	opts Options
	sets []*attack.TaskSet

	logger     *zap.Logger
	registerer prometheus.Registerer
	client     *transport.Client

	mu      sync.RWMutex
	running bool
	agg     *metrics.Aggregator
	sched   *attack.Scheduler

	phase   atomic.Int32
	spawned atomic.Int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRegisterer exports live request metrics to reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(e *Engine) {
		e.registerer = reg
	}
}

// WithClient replaces the transport client built from Options.HTTP.
func WithClient(c *transport.Client) Option {
	return func(e *Engine) {
		e.client = c
	}
}

// Result is the outcome of one attack.
type Result struct {
	RunID     string    `json:"run_id"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`

	// HatchDuration is the time taken to spawn every user.
	HatchDuration time.Duration `json:"hatch_duration"`

	// Duration is the span of the run timer, from the end of hatching to
	// the stop signal.
	Duration time.Duration `json:"duration"`

	Users      int            `json:"users"`
	UsersBySet map[string]int `json:"users_by_task_set"`

	// Undrained is the number of users that had not stopped when the
	// drain timeout expired.
	Undrained int `json:"undrained"`

	// Cancelled is set when the run was ended by its context.
	Cancelled bool `json:"cancelled"`

	TaskRuns     int64 `json:"task_runs"`
	TaskFailures int64 `json:"task_failures"`

	// Throttled is the number of requests that passed through the
	// throttle. Zero when no throttle was configured.
	Throttled int64 `json:"throttled"`

	DebugLog       string `json:"debug_log,omitempty"`
	DebugRecords   int64  `json:"debug_records"`
	RequestLog     string `json:"request_log,omitempty"`
	RequestRecords int64  `json:"request_records"`

	Metrics *metrics.Snapshot `json:"metrics"`
}

// Progress is a live view of a running attack.
type Progress struct {
	Phase  Phase
	Users  int
	Target int

	// Active is the number of users that have not finished yet. It drops
	// below Users while stopped users drain.
	Active int

	Metrics *metrics.Snapshot
}

// New creates an engine. Options are validated here so configuration
// errors surface before anything runs.
func New(opts Options, options ...Option) (*Engine, error) {
	opts.applyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		opts:   opts,
		logger: zap.NewNop(),
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "engine"))
	return e, nil
}

// RegisterTaskSet adds task sets in registration order. Registration order
// breaks ties when users are distributed.
func (e *Engine) RegisterTaskSet(sets ...*attack.TaskSet) *Engine {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sets = append(e.sets, sets...)
	return e
}

// Phase returns the current phase.
func (e *Engine) Phase() Phase {
	return Phase(e.phase.Load())
}

// Snapshot returns the current metrics, or nil before Run has started.
func (e *Engine) Snapshot() *metrics.Snapshot {
	e.mu.RLock()
	agg := e.agg
	e.mu.RUnlock()
	if agg == nil {
		return nil
	}
	return agg.Snapshot()
}

// Progress returns a live view of the attack.
func (e *Engine) Progress() Progress {
	p := Progress{
		Phase:   e.Phase(),
		Users:   int(e.spawned.Load()),
		Target:  e.opts.Users,
		Metrics: e.Snapshot(),
	}
	e.mu.RLock()
	sched := e.sched
	e.mu.RUnlock()
	if sched != nil {
		p.Active = sched.ActiveCount()
	}
	return p
}

// Run executes the attack and returns its result. Configuration errors and
// a debug log that cannot be created are returned before any user starts.
// Cancelling ctx ends the run early; in-flight tasks still complete.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return nil, fmt.Errorf("engine is already running")
	}
	e.running = true
	sets := append([]*attack.TaskSet(nil), e.sets...)
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	opts := e.opts
	runID := uuid.NewString()
	logger := e.logger.With(zap.String("run_id", runID))

	client := e.client
	if client == nil {
		clientOpts := []transport.ClientOption{
			transport.WithBaseURL(opts.BaseURL),
			transport.WithConfig(opts.HTTP),
		}
		for k, v := range opts.Headers {
			clientOpts = append(clientOpts, transport.WithHeader(k, v))
		}
		client = transport.NewClient(clientOpts...)
	}
	defer client.CloseIdleConnections()

	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	env := &attack.Environment{
		Client: client,
		RunID:  runID,
		Logger: logger,
	}
	sched, err := attack.NewScheduler(sets, env, seed)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	weights := make([]int, len(sets))
	for i, ts := range sets {
		weights[i] = ts.Weight
	}
	counts, err := attack.Distribute(opts.Users, weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}

	debug, err := logsink.Open[attack.DebugRecord](opts.DebugLog, opts.DebugFormat,
		logsink.WithLogger(logger), logsink.WithName("debug"))
	if err != nil {
		return nil, err
	}
	requests, err := logsink.Open[metrics.RequestOutcome](opts.RequestLog, opts.RequestFormat,
		logsink.WithLogger(logger), logsink.WithName("requests"))
	if err != nil {
		debug.Shutdown()
		debug.Run()
		return nil, err
	}

	for _, sink := range []struct {
		name   string
		path   string
		format logsink.Format
		on     bool
	}{
		{"debug", debug.Path(), debug.Format(), debug.Enabled()},
		{"requests", requests.Path(), requests.Format(), requests.Enabled()},
	} {
		if sink.on {
			logger.Info("writing log", zap.String("log", sink.name),
				zap.String("path", sink.path), zap.Stringer("format", sink.format))
		}
	}

	aggOpts := []metrics.Option{metrics.WithLogger(logger)}
	if requests.Enabled() {
		aggOpts = append(aggOpts, metrics.WithTee(func(o *metrics.RequestOutcome) {
			requests.Send(o)
		}))
	}
	if e.registerer != nil {
		collector, err := metrics.NewPromCollector(e.registerer)
		if err != nil {
			debug.Shutdown()
			debug.Run()
			requests.Shutdown()
			requests.Run()
			return nil, fmt.Errorf("registering metrics: %w", err)
		}
		aggOpts = append(aggOpts, metrics.WithCollector(collector))
	}
	agg := metrics.NewAggregator(opts.Metrics, aggOpts...)

	throttle := rate.NewThrottle(opts.ThrottleRequests, opts.ThrottleCapacity)
	throttleCtx, stopThrottle := context.WithCancel(context.Background())
	defer stopThrottle()

	abandon := make(chan struct{})
	env.Throttle = throttle
	env.Outcomes = agg.Outcomes()
	env.Abandon = abandon
	env.Debug = debug

	var bg errgroup.Group
	bg.Go(func() error {
		agg.Run()
		return nil
	})
	bg.Go(debug.Run)
	bg.Go(requests.Run)
	bg.Go(func() error {
		throttle.Run(throttleCtx)
		return nil
	})

	e.mu.Lock()
	e.agg = agg
	e.sched = sched
	e.mu.Unlock()
	e.spawned.Store(0)

	// Users keep running through a cancellation of ctx until they are told
	// to stop; userCtx is only cancelled when the drain timeout expires.
	userCtx, cancelUsers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelUsers()

	result := &Result{
		RunID:      runID,
		StartTime:  time.Now(),
		DebugLog:   debug.Path(),
		RequestLog: requests.Path(),
	}

	logger.Info("hatching users",
		zap.Int("users", opts.Users),
		zap.Float64("hatch_rate", opts.HatchRate),
		zap.Int("task_sets", len(sets)),
		zap.Float64("throttle", opts.ThrottleRequests))

	e.phase.Store(int32(PhaseHatching))
	agg.MarkStarted(result.StartTime)
	cancelled, spawnErr := e.hatch(ctx, userCtx, logger, sched, attack.SpawnOrder(counts))
	result.HatchDuration = time.Since(result.StartTime)
	result.Users = sched.Count()
	agg.SetUsers(result.Users, result.HatchDuration)

	if spawnErr == nil && !cancelled {
		logger.Info("all users hatched",
			zap.Int("users", result.Users),
			zap.Duration("hatch_duration", result.HatchDuration))
		if !opts.NoResetMetrics {
			agg.Reset()
		}
		agg.MarkStarted(time.Now())
		e.phase.Store(int32(PhaseRunning))
		cancelled = waitRunTime(ctx, opts.RunTime)
	}

	e.phase.Store(int32(PhaseStopping))
	agg.MarkStopped(time.Now())
	logger.Info("stopping users", zap.Int("users", result.Users), zap.Bool("cancelled", cancelled))

	sched.StopAll()
	result.Undrained = sched.WaitForAll(opts.DrainTimeout)
	if result.Undrained > 0 {
		logger.Warn("users did not stop within the drain timeout",
			zap.Int("undrained", result.Undrained),
			zap.Duration("drain_timeout", opts.DrainTimeout))
		cancelUsers()
		close(abandon)
		agg.Abort()
	} else {
		agg.Close()
	}

	result.Metrics = agg.Snapshot()
	result.Duration = result.Metrics.Duration

	debug.Shutdown()
	requests.Shutdown()
	stopThrottle()
	if err := bg.Wait(); err != nil {
		logger.Warn("background task failed", zap.Error(err))
	}

	result.EndTime = time.Now()
	result.Cancelled = cancelled
	result.UsersBySet = sched.CountsBySet()
	result.TaskRuns, result.TaskFailures = sched.TaskStats()
	result.Throttled = throttle.Acquired()
	result.DebugRecords = debug.Written()
	result.RequestRecords = requests.Written()
	e.phase.Store(int32(PhaseDone))

	logger.Info("attack finished",
		zap.Duration("duration", result.Duration),
		zap.Int64("requests", result.Metrics.TotalRequests),
		zap.Int64("failures", result.Metrics.TotalFail),
		zap.Int("undrained", result.Undrained))

	if spawnErr != nil {
		return result, spawnErr
	}
	return result, nil
}

// hatch spawns one user per entry of order, the first immediately and then
// one every hatch interval. It reports whether ctx was cancelled first.
func (e *Engine) hatch(ctx, userCtx context.Context, logger *zap.Logger, sched *attack.Scheduler, order []int) (bool, error) {
	interval := e.opts.hatchInterval()
	start := time.Now()

	for i, set := range order {
		if !sleepUntil(ctx, start.Add(time.Duration(i)*interval)) {
			logger.Info("hatching cancelled", zap.Int("spawned", i))
			return true, nil
		}
		if _, err := sched.Spawn(userCtx, set); err != nil {
			return false, err
		}
		e.spawned.Add(1)
	}
	return false, nil
}

// sleepUntil waits until t. It returns false if ctx ends first.
func sleepUntil(ctx context.Context, t time.Time) bool {
	if ctx.Err() != nil {
		return false
	}
	d := time.Until(t)
	if d <= 0 {
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// waitRunTime blocks for d, or until ctx is done when d is zero. It
// reports whether ctx ended the wait.
func waitRunTime(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		<-ctx.Done()
		return true
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return false
	case <-ctx.Done():
		return true
	}
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrInvalidOptions)
}
