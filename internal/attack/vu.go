package attack

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// VUState represents the lifecycle state of a Virtual User.
type VUState int32

const (
	// VUStateIdle indicates the VU has been spawned but not started.
	VUStateIdle VUState = iota
	// VUStateRunning indicates the VU is running tasks.
	VUStateRunning
	// VUStateStopping indicates the VU has been asked to stop and is
	// finishing its in-flight task or running on-stop tasks.
	VUStateStopping
	// VUStateDone indicates the VU has exited.
	VUStateDone
)

func (s VUState) String() string {
	switch s {
	case VUStateIdle:
		return "idle"
	case VUStateRunning:
		return "running"
	case VUStateStopping:
		return "stopping"
	case VUStateDone:
		return "done"
	default:
		return "unknown"
	}
}

// VirtualUser is one simulated user bound to a single TaskSet.
//
// A VU runs its on-start tasks once, then selects and runs main-loop tasks
// until it is asked to stop, then runs its on-stop tasks. The stop request
// is observed between tasks, never in the middle of one.
type VirtualUser struct {
	ID int

	set  *TaskSet
	plan *plan
	user *User

	// sequential policy position
	cursor int

	state atomic.Int32

	stopCh   chan struct{}
	stopOnce sync.Once
	doneCh   chan struct{}
	doneOnce sync.Once

	runs     atomic.Int64
	failures atomic.Int64

	logger *zap.Logger
}

func newVirtualUser(id int, ts *TaskSet, p *plan, env *Environment, seed uint64) *VirtualUser {
	u := newUser(id, ts, env, seed)
	return &VirtualUser{
		ID:     id,
		set:    ts,
		plan:   p,
		user:   u,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
		logger: u.logger,
	}
}

// TaskSet returns the name of the VU's task set.
func (vu *VirtualUser) TaskSet() string {
	return vu.set.Name
}

// GetState returns the current VU state.
func (vu *VirtualUser) GetState() VUState {
	return VUState(vu.state.Load())
}

// TaskRuns returns the number of tasks the VU has run.
func (vu *VirtualUser) TaskRuns() int64 {
	return vu.runs.Load()
}

// TaskFailures returns the number of task runs that returned an error.
func (vu *VirtualUser) TaskFailures() int64 {
	return vu.failures.Load()
}

// RequestStop asks the VU to stop after its in-flight task.
func (vu *VirtualUser) RequestStop() {
	vu.stopOnce.Do(func() {
		vu.state.CompareAndSwap(int32(VUStateRunning), int32(VUStateStopping))
		close(vu.stopCh)
	})
}

// WaitForStop waits until the VU is done or the timeout expires. It
// reports whether the VU is done.
func (vu *VirtualUser) WaitForStop(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-vu.doneCh:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-vu.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// Done is closed when the VU has exited.
func (vu *VirtualUser) Done() <-chan struct{} {
	return vu.doneCh
}

// MarkDone transitions the VU to done.
func (vu *VirtualUser) MarkDone() {
	vu.doneOnce.Do(func() {
		vu.state.Store(int32(VUStateDone))
		close(vu.doneCh)
	})
}

// Run executes the VU lifecycle. ctx bounds in-flight work and is only
// expected to be cancelled when the VU has to be abandoned; the normal way
// to end a VU is RequestStop.
func (vu *VirtualUser) Run(ctx context.Context) {
	defer vu.MarkDone()

	if !vu.state.CompareAndSwap(int32(VUStateIdle), int32(VUStateRunning)) {
		return
	}
	vu.logger.Debug("user started")

	for _, i := range vu.plan.onStart {
		vu.runTask(ctx, i)
	}

	for !vu.stopRequested(ctx) {
		vu.runTask(ctx, vu.next())
		if !vu.pause(ctx) {
			break
		}
	}

	vu.state.Store(int32(VUStateStopping))
	for _, i := range vu.plan.onStop {
		vu.runTask(ctx, i)
	}
	vu.logger.Debug("user stopped",
		zap.Int64("task_runs", vu.runs.Load()),
		zap.Int64("task_failures", vu.failures.Load()))
}

func (vu *VirtualUser) stopRequested(ctx context.Context) bool {
	select {
	case <-vu.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// next selects the next main-loop task index.
func (vu *VirtualUser) next() int {
	if vu.set.Policy == PolicySequential {
		i := vu.plan.sequence[vu.cursor]
		vu.cursor = (vu.cursor + 1) % len(vu.plan.sequence)
		return i
	}
	return vu.plan.pick(vu.user.rng.IntN(vu.plan.total))
}

// pause waits the task set's wait time. It returns false if the VU was
// asked to stop meanwhile.
func (vu *VirtualUser) pause(ctx context.Context) bool {
	wt := vu.set.WaitTime
	if wt.Max <= 0 {
		return true
	}
	d := wt.Min
	if spread := wt.Max - wt.Min; spread > 0 {
		d += time.Duration(vu.user.rng.Int64N(int64(spread) + 1))
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-vu.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

func (vu *VirtualUser) runTask(ctx context.Context, i int) {
	task := &vu.set.tasks[i]
	vu.user.task = task.Name

	err := vu.call(ctx, task)
	vu.runs.Add(1)
	if err == nil {
		return
	}

	vu.failures.Add(1)
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		vu.user.traceTaskError(err)
	}
	vu.logger.Debug("task failed", zap.String("task", task.Name), zap.Error(err))
}

func (vu *VirtualUser) call(ctx context.Context, task *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &TaskError{TaskSet: vu.set.Name, Task: task.Name, Err: &PanicError{Value: r}}
		}
	}()

	if ferr := task.Func(ctx, vu.user); ferr != nil {
		return &TaskError{TaskSet: vu.set.Name, Task: task.Name, Err: ferr}
	}
	return nil
}
