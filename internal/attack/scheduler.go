package attack

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/drove/internal/transport"
)

// Scheduler manages the lifecycle of Virtual Users.
//
// It provides:
// - validated, precomputed task sets
// - VU spawning with per-user seeds
// - broadcast stop and bounded drain
//
// The scheduler does not decide when or how many users to spawn; the
// engine drives it.
type Scheduler struct {
	sets  []*TaskSet
	plans []*plan
	env   *Environment
	seed  uint64

	vus   []*VirtualUser
	vusMu sync.RWMutex

	nextVUID atomic.Int32
	wg       sync.WaitGroup

	logger *zap.Logger
}

// NewScheduler validates the task sets and returns a scheduler that spawns
// users into them. seed is combined with each user id to seed the user's
// random source.
func NewScheduler(sets []*TaskSet, env *Environment, seed uint64) (*Scheduler, error) {
	if len(sets) == 0 {
		return nil, fmt.Errorf("no task sets registered")
	}
	if env == nil {
		env = &Environment{}
	}
	if env.Client == nil {
		env.Client = transport.NewClient()
	}
	if env.Logger == nil {
		env.Logger = zap.NewNop()
	}

	s := &Scheduler{
		sets:   sets,
		plans:  make([]*plan, len(sets)),
		env:    env,
		seed:   seed,
		logger: env.Logger.With(zap.String("component", "scheduler")),
	}
	seen := make(map[string]bool, len(sets))
	for i, ts := range sets {
		if err := ts.Validate(); err != nil {
			return nil, err
		}
		if seen[ts.Name] {
			return nil, fmt.Errorf("duplicate task set name %q", ts.Name)
		}
		seen[ts.Name] = true
		s.plans[i] = newPlan(ts)
	}
	return s, nil
}

// Spawn creates a VU bound to the task set at index set and starts it in
// its own goroutine. ctx bounds the VU's in-flight work.
func (s *Scheduler) Spawn(ctx context.Context, set int) (vu *VirtualUser, err error) {
	if set < 0 || set >= len(s.sets) {
		return nil, fmt.Errorf("task set index %d out of range", set)
	}

	defer func() {
		if r := recover(); r != nil {
			vu = nil
			err = fmt.Errorf("spawning user for task set %q: %w", s.sets[set].Name, &PanicError{Value: r})
		}
	}()

	id := int(s.nextVUID.Add(1))
	vu = newVirtualUser(id, s.sets[set], s.plans[set], s.env, s.seed)

	s.vusMu.Lock()
	s.vus = append(s.vus, vu)
	s.vusMu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		vu.Run(ctx)
	}()

	s.logger.Debug("user spawned", zap.Int("user", id), zap.String("task_set", vu.TaskSet()))
	return vu, nil
}

// Users returns all spawned VUs in spawn order.
func (s *Scheduler) Users() []*VirtualUser {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	out := make([]*VirtualUser, len(s.vus))
	copy(out, s.vus)
	return out
}

// Count returns the number of spawned VUs.
func (s *Scheduler) Count() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()
	return len(s.vus)
}

// ActiveCount returns the number of VUs that are not done.
func (s *Scheduler) ActiveCount() int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	count := 0
	for _, vu := range s.vus {
		if vu.GetState() != VUStateDone {
			count++
		}
	}
	return count
}

// CountsBySet returns the number of spawned VUs per task set name.
func (s *Scheduler) CountsBySet() map[string]int {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	counts := make(map[string]int, len(s.sets))
	for _, vu := range s.vus {
		counts[vu.TaskSet()]++
	}
	return counts
}

// StopAll requests every VU to stop after its in-flight task.
func (s *Scheduler) StopAll() {
	s.vusMu.RLock()
	defer s.vusMu.RUnlock()

	for _, vu := range s.vus {
		vu.RequestStop()
	}
}

// WaitForAll waits for all VUs to stop with a timeout.
//
// Returns the number of VUs that did not stop within the timeout.
func (s *Scheduler) WaitForAll(timeout time.Duration) int {
	deadline := time.Now().Add(timeout)

	notStopped := 0
	for _, vu := range s.Users() {
		if !vu.WaitForStop(time.Until(deadline)) {
			notStopped++
		}
	}
	return notStopped
}

// Wait blocks until every VU goroutine has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TaskStats sums task runs and failures over all VUs.
func (s *Scheduler) TaskStats() (runs, failures int64) {
	for _, vu := range s.Users() {
		runs += vu.TaskRuns()
		failures += vu.TaskFailures()
	}
	return runs, failures
}
