// Package attack implements virtual users and the scheduler that runs them.
package attack

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// TaskFunc is the body of a Task. It is called with the user executing it;
// a returned error marks the task run as failed but never ends the user.
type TaskFunc func(ctx context.Context, u *User) error

// Task is one scripted unit of work.
type Task struct {
	Name string

	// Weight controls how often the task is picked. Zero disables it in
	// the main loop.
	Weight int

	// Sequence orders tasks for the sequential policy and for on-start and
	// on-stop tasks. Zero means unsequenced; unsequenced tasks follow the
	// sequenced ones in registration order.
	Sequence int

	OnStart bool
	OnStop  bool

	Func TaskFunc
}

// NewTask creates a task with weight 1.
func NewTask(name string, fn TaskFunc) *Task {
	return &Task{Name: name, Weight: 1, Func: fn}
}

// SetWeight sets the task weight.
func (t *Task) SetWeight(weight int) *Task {
	t.Weight = weight
	return t
}

// SetSequence sets the sequence position.
func (t *Task) SetSequence(seq int) *Task {
	t.Sequence = seq
	return t
}

// SetOnStart marks the task to run once when the user starts.
func (t *Task) SetOnStart() *Task {
	t.OnStart = true
	return t
}

// SetOnStop marks the task to run once when the user stops.
func (t *Task) SetOnStop() *Task {
	t.OnStop = true
	return t
}

func (t *Task) eligible() bool {
	return !t.OnStart && !t.OnStop && t.Weight > 0
}

// Policy selects the next task in a user's main loop.
type Policy int

const (
	// PolicyWeighted draws tasks at random in proportion to their weights.
	PolicyWeighted Policy = iota
	// PolicySequential runs tasks in sequence order, each repeated weight
	// times, wrapping at the end.
	PolicySequential
)

func (p Policy) String() string {
	switch p {
	case PolicyWeighted:
		return "weighted"
	case PolicySequential:
		return "sequential"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name. An empty name is PolicyWeighted.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "weighted", "random":
		return PolicyWeighted, nil
	case "sequential":
		return PolicySequential, nil
	default:
		return 0, fmt.Errorf("unknown task policy %q", s)
	}
}

// WaitTime is the random pause between two main-loop tasks.
type WaitTime struct {
	Min time.Duration
	Max time.Duration
}

// ErrNoEligibleTasks is returned for a task set without weighted main-loop
// tasks.
var ErrNoEligibleTasks = errors.New("task set has no eligible tasks")

// TaskSet is a named, weighted collection of tasks. Every virtual user is
// bound to exactly one task set.
type TaskSet struct {
	Name string

	// Weight controls the share of users assigned to this set.
	Weight int

	Policy Policy

	// Host overrides the attack's base URL for this set.
	Host string

	WaitTime WaitTime

	tasks []Task
}

// NewTaskSet creates an empty task set with weight 1.
func NewTaskSet(name string) *TaskSet {
	return &TaskSet{Name: name, Weight: 1}
}

// SetWeight sets the set weight.
func (ts *TaskSet) SetWeight(weight int) *TaskSet {
	ts.Weight = weight
	return ts
}

// SetPolicy sets the task selection policy.
func (ts *TaskSet) SetPolicy(p Policy) *TaskSet {
	ts.Policy = p
	return ts
}

// SetHost sets the host override.
func (ts *TaskSet) SetHost(host string) *TaskSet {
	ts.Host = host
	return ts
}

// SetWaitTime sets the pause between tasks.
func (ts *TaskSet) SetWaitTime(min, max time.Duration) *TaskSet {
	ts.WaitTime = WaitTime{Min: min, Max: max}
	return ts
}

// Register adds a copy of t. Later changes to t do not affect the set.
func (ts *TaskSet) Register(t *Task) *TaskSet {
	ts.tasks = append(ts.tasks, *t)
	return ts
}

// Tasks returns a copy of the registered tasks.
func (ts *TaskSet) Tasks() []Task {
	out := make([]Task, len(ts.tasks))
	copy(out, ts.tasks)
	return out
}

// Validate checks the task set for configuration errors.
func (ts *TaskSet) Validate() error {
	if ts.Name == "" {
		return errors.New("task set name is required")
	}
	if ts.Weight < 0 {
		return fmt.Errorf("task set %q: weight must be non-negative, got %d", ts.Name, ts.Weight)
	}
	if ts.WaitTime.Min < 0 || ts.WaitTime.Max < ts.WaitTime.Min {
		return fmt.Errorf("task set %q: invalid wait time %s..%s", ts.Name, ts.WaitTime.Min, ts.WaitTime.Max)
	}

	eligible := 0
	for i := range ts.tasks {
		t := &ts.tasks[i]
		if t.Func == nil {
			return fmt.Errorf("task set %q: task %q has no function", ts.Name, t.Name)
		}
		if t.Weight < 0 {
			return fmt.Errorf("task set %q: task %q weight must be non-negative, got %d", ts.Name, t.Name, t.Weight)
		}
		if t.eligible() {
			eligible++
		}
	}
	if eligible == 0 {
		return fmt.Errorf("%w: %q", ErrNoEligibleTasks, ts.Name)
	}
	return nil
}

// plan is the precomputed, read-only selection data for one task set. It
// is shared by every user bound to the set.
type plan struct {
	onStart []int
	onStop  []int

	// weighted policy
	weighted   []int
	cumulative []int
	total      int

	// sequential policy
	sequence []int
}

func newPlan(ts *TaskSet) *plan {
	p := &plan{}

	var main []int
	for i := range ts.tasks {
		t := &ts.tasks[i]
		switch {
		case t.OnStart:
			p.onStart = append(p.onStart, i)
		case t.OnStop:
			p.onStop = append(p.onStop, i)
		case t.Weight > 0:
			main = append(main, i)
		}
	}

	p.onStart = ordered(ts.tasks, p.onStart)
	p.onStop = ordered(ts.tasks, p.onStop)

	for _, i := range main {
		p.total += ts.tasks[i].Weight
		p.weighted = append(p.weighted, i)
		p.cumulative = append(p.cumulative, p.total)
	}

	for _, i := range ordered(ts.tasks, main) {
		for n := 0; n < ts.tasks[i].Weight; n++ {
			p.sequence = append(p.sequence, i)
		}
	}
	return p
}

// ordered sorts task indexes by ascending sequence, unsequenced last, ties
// in registration order.
func ordered(tasks []Task, idx []int) []int {
	out := make([]int, len(idx))
	copy(out, idx)
	sort.SliceStable(out, func(a, b int) bool {
		sa, sb := tasks[out[a]].Sequence, tasks[out[b]].Sequence
		if sa == 0 || sb == 0 {
			return sa != 0 && sb == 0
		}
		return sa < sb
	})
	return out
}

// pick maps r in [0, total) to a task index.
func (p *plan) pick(r int) int {
	i := sort.Search(len(p.cumulative), func(i int) bool {
		return p.cumulative[i] > r
	})
	return p.weighted[i]
}
