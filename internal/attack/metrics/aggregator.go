package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"go.uber.org/zap"
)

// Config contains configuration for the Aggregator.
type Config struct {
	// Buffer is the capacity of the outcome channel (default: 1024)
	Buffer int

	// HistogramMin is the minimum recordable value in microseconds (default: 1)
	HistogramMin int64

	// HistogramMax is the maximum recordable value in microseconds (default: 1 hour)
	HistogramMax int64

	// HistogramSigFigs is the number of significant figures (default: 3)
	HistogramSigFigs int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Buffer:           1024,
		HistogramMin:     1,
		HistogramMax:     3600000000,
		HistogramSigFigs: 3,
	}
}

// Collector receives every outcome after it has been aggregated.
// Implementations must be safe to call from the aggregator goroutine.
type Collector interface {
	Observe(o *RequestOutcome)
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithTee forwards every consumed outcome to fn, e.g. a request log.
func WithTee(fn func(*RequestOutcome)) Option {
	return func(a *Aggregator) {
		a.tee = fn
	}
}

// WithCollector mirrors outcomes into c.
func WithCollector(c Collector) Option {
	return func(a *Aggregator) {
		a.collector = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Aggregator) {
		a.logger = l
	}
}

type bucket struct {
	stats *RequestStats
	hist  *hdrhistogram.Histogram
}

type control struct {
	fn    func()
	reply chan struct{}
}

// Aggregator is the single consumer of the RequestOutcome stream.
//
// All state is owned by the goroutine executing Run. Producers only send on
// the channel returned by Outcomes; Reset, Snapshot and the Mark* methods
// are executed on the aggregator goroutine through a control channel, so the
// bucket map is never touched concurrently and needs no lock.
type Aggregator struct {
	config Config

	in   chan *RequestOutcome
	ctrl chan control
	quit chan struct{}
	done chan struct{}

	closeOnce sync.Once

	// after Run has returned, control functions run here instead
	postMu sync.Mutex

	buckets map[string]*bucket

	users     int
	hatch     time.Duration
	startedAt time.Time
	stoppedAt time.Time

	tee       func(*RequestOutcome)
	collector Collector
	logger    *zap.Logger
}

// NewAggregator creates an aggregator. Run must be started before any
// control method is called.
func NewAggregator(config Config, opts ...Option) *Aggregator {
	defaults := DefaultConfig()
	if config.Buffer <= 0 {
		config.Buffer = defaults.Buffer
	}
	if config.HistogramMin <= 0 {
		config.HistogramMin = defaults.HistogramMin
	}
	if config.HistogramMax <= config.HistogramMin {
		config.HistogramMax = defaults.HistogramMax
	}
	if config.HistogramSigFigs <= 0 {
		config.HistogramSigFigs = defaults.HistogramSigFigs
	}

	a := &Aggregator{
		config:  config,
		in:      make(chan *RequestOutcome, config.Buffer),
		ctrl:    make(chan control),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
		buckets: make(map[string]*bucket),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With(zap.String("component", "aggregator"))
	return a
}

// Outcomes returns the send side of the outcome channel.
func (a *Aggregator) Outcomes() chan<- *RequestOutcome {
	return a.in
}

// Run consumes outcomes until the outcome channel is closed (Close) or the
// aggregator is aborted (Abort). Everything already buffered is consumed
// before Run returns.
func (a *Aggregator) Run() {
	defer close(a.done)

	for {
		select {
		case o, ok := <-a.in:
			if !ok {
				a.logger.Debug("outcome channel closed")
				return
			}
			a.record(o)
		case c := <-a.ctrl:
			a.drainPending()
			c.fn()
			close(c.reply)
		case <-a.quit:
			a.drainPending()
			a.logger.Debug("aggregator aborted")
			return
		}
	}
}

// drainPending consumes everything currently buffered without blocking, so
// a control operation observes every outcome whose send has completed.
func (a *Aggregator) drainPending() {
	for {
		select {
		case o, ok := <-a.in:
			if !ok {
				return
			}
			a.record(o)
		default:
			return
		}
	}
}

func (a *Aggregator) record(o *RequestOutcome) {
	if o == nil {
		return
	}

	key := o.Key()
	b, exists := a.buckets[key]
	if !exists {
		b = &bucket{
			stats: &RequestStats{
				Method:           o.Method,
				Name:             o.Name,
				ResponseTimes:    make(map[int64]int64),
				StatusCodeCounts: make(map[int]int64),
			},
			hist: hdrhistogram.New(a.config.HistogramMin, a.config.HistogramMax, a.config.HistogramSigFigs),
		}
		a.buckets[key] = b
	}

	s := b.stats
	if s.ResponseTimeCounter == 0 || o.Elapsed < s.MinResponseTime {
		s.MinResponseTime = o.Elapsed
	}
	if o.Elapsed > s.MaxResponseTime {
		s.MaxResponseTime = o.Elapsed
	}
	s.ResponseTimeCounter++
	s.TotalResponseTime += o.Elapsed
	s.ResponseTimes[RoundResponseTime(o.Elapsed)]++
	s.StatusCodeCounts[o.StatusCode]++
	if o.Success {
		s.SuccessCount++
	} else {
		s.FailCount++
	}

	micros := o.Elapsed.Microseconds()
	if micros < a.config.HistogramMin {
		micros = a.config.HistogramMin
	}
	if micros > a.config.HistogramMax {
		micros = a.config.HistogramMax
	}
	if err := b.hist.RecordValue(micros); err != nil {
		a.logger.Debug("histogram rejected value", zap.Int64("micros", micros), zap.Error(err))
	}

	if a.collector != nil {
		a.collector.Observe(o)
	}
	if a.tee != nil {
		a.tee(o)
	}
}

// do runs fn on the aggregator goroutine and waits for it.
func (a *Aggregator) do(fn func()) {
	c := control{fn: fn, reply: make(chan struct{})}
	select {
	case a.ctrl <- c:
		<-c.reply
	case <-a.done:
		a.postMu.Lock()
		defer a.postMu.Unlock()
		fn()
	}
}

// Reset clears every bucket's counters but keeps the set of keys. Outcomes
// sent before Reset is called are counted and then cleared.
func (a *Aggregator) Reset() {
	a.do(func() {
		for _, b := range a.buckets {
			b.stats = &RequestStats{
				Method:           b.stats.Method,
				Name:             b.stats.Name,
				ResponseTimes:    make(map[int64]int64),
				StatusCodeCounts: make(map[int]int64),
			}
			b.hist.Reset()
		}
		a.logger.Debug("metrics reset", zap.Int("keys", len(a.buckets)))
	})
}

// SetUsers records the number of users that completed hatching.
func (a *Aggregator) SetUsers(users int, hatch time.Duration) {
	a.do(func() {
		a.users = users
		a.hatch = hatch
	})
}

// MarkStarted records the start of the run timer.
func (a *Aggregator) MarkStarted(t time.Time) {
	a.do(func() {
		a.startedAt = t
		a.stoppedAt = time.Time{}
	})
}

// MarkStopped records the stop signal.
func (a *Aggregator) MarkStopped(t time.Time) {
	a.do(func() {
		a.stoppedAt = t
	})
}

// Snapshot returns an immutable copy of all buckets plus derived fields.
func (a *Aggregator) Snapshot() *Snapshot {
	var snap *Snapshot
	a.do(func() {
		snap = a.snapshot()
	})
	return snap
}

func (a *Aggregator) snapshot() *Snapshot {
	now := time.Now()
	snap := &Snapshot{
		Requests:      make(map[string]*RequestStats, len(a.buckets)),
		HatchDuration: a.hatch,
		Users:         a.users,
		StartedAt:     a.startedAt,
		Timestamp:     now,
	}

	switch {
	case a.startedAt.IsZero():
	case a.stoppedAt.IsZero():
		snap.Duration = now.Sub(a.startedAt)
	default:
		snap.Duration = a.stoppedAt.Sub(a.startedAt)
	}

	for key, b := range a.buckets {
		s := b.stats.clone()
		s.Latency = LatencyPercentiles{
			P50: time.Duration(b.hist.ValueAtQuantile(50)) * time.Microsecond,
			P90: time.Duration(b.hist.ValueAtQuantile(90)) * time.Microsecond,
			P95: time.Duration(b.hist.ValueAtQuantile(95)) * time.Microsecond,
			P99: time.Duration(b.hist.ValueAtQuantile(99)) * time.Microsecond,
		}
		snap.Requests[key] = s
		snap.TotalRequests += s.ResponseTimeCounter
		snap.TotalSuccess += s.SuccessCount
		snap.TotalFail += s.FailCount
	}

	return snap
}

// Close closes the outcome channel and waits for everything buffered to be
// consumed. No producer may send after Close.
func (a *Aggregator) Close() {
	a.closeOnce.Do(func() {
		close(a.in)
	})
	<-a.done
}

// Abort stops consumption without closing the outcome channel, for when
// producers may still be alive. Buffered outcomes are consumed first.
func (a *Aggregator) Abort() {
	a.closeOnce.Do(func() {
		close(a.quit)
	})
	<-a.done
}

// Done is closed once Run has returned.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}
