package attack

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noop(context.Context, *User) error { return nil }

func TestTaskSet_Validate(t *testing.T) {
	tests := []struct {
		name    string
		build   func() *TaskSet
		wantErr error
		errText bool
	}{
		{
			name: "valid",
			build: func() *TaskSet {
				return NewTaskSet("ok").Register(NewTask("a", noop))
			},
		},
		{
			name: "empty",
			build: func() *TaskSet {
				return NewTaskSet("empty")
			},
			wantErr: ErrNoEligibleTasks,
		},
		{
			name: "only lifecycle tasks",
			build: func() *TaskSet {
				return NewTaskSet("lifecycle").
					Register(NewTask("start", noop).SetOnStart()).
					Register(NewTask("stop", noop).SetOnStop())
			},
			wantErr: ErrNoEligibleTasks,
		},
		{
			name: "only zero weight",
			build: func() *TaskSet {
				return NewTaskSet("zero").Register(NewTask("a", noop).SetWeight(0))
			},
			wantErr: ErrNoEligibleTasks,
		},
		{
			name: "negative task weight",
			build: func() *TaskSet {
				return NewTaskSet("neg").Register(NewTask("a", noop).SetWeight(-1))
			},
			errText: true,
		},
		{
			name: "negative set weight",
			build: func() *TaskSet {
				return NewTaskSet("neg").SetWeight(-2).Register(NewTask("a", noop))
			},
			errText: true,
		},
		{
			name: "missing func",
			build: func() *TaskSet {
				return NewTaskSet("nofunc").Register(NewTask("a", nil))
			},
			errText: true,
		},
		{
			name: "inverted wait time",
			build: func() *TaskSet {
				return NewTaskSet("wait").SetWaitTime(2*time.Second, time.Second).Register(NewTask("a", noop))
			},
			errText: true,
		},
		{
			name: "missing name",
			build: func() *TaskSet {
				return NewTaskSet("").Register(NewTask("a", noop))
			},
			errText: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.build().Validate()
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
				}
			case tt.errText:
				if err == nil {
					t.Error("Validate() expected error, got nil")
				}
			default:
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			}
		})
	}
}

func TestTaskSet_RegisterCopiesTask(t *testing.T) {
	task := NewTask("a", noop)
	ts := NewTaskSet("set").Register(task)
	task.SetWeight(5)

	if got := ts.Tasks()[0].Weight; got != 1 {
		t.Errorf("registered weight = %d, want 1", got)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		input   string
		want    Policy
		wantErr bool
	}{
		{"", PolicyWeighted, false},
		{"weighted", PolicyWeighted, false},
		{"random", PolicyWeighted, false},
		{"sequential", PolicySequential, false},
		{"round-robin", 0, true},
	}
	for _, tt := range tests {
		got, err := ParsePolicy(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func names(ts *TaskSet, idx []int) []string {
	out := make([]string, len(idx))
	for i, j := range idx {
		out[i] = ts.tasks[j].Name
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewPlan_Ordering(t *testing.T) {
	ts := NewTaskSet("set").
		Register(NewTask("start-unsequenced", noop).SetOnStart()).
		Register(NewTask("start-2", noop).SetOnStart().SetSequence(2)).
		Register(NewTask("start-1", noop).SetOnStart().SetSequence(1)).
		Register(NewTask("start-1b", noop).SetOnStart().SetSequence(1)).
		Register(NewTask("free", noop).SetWeight(2)).
		Register(NewTask("third", noop).SetSequence(3)).
		Register(NewTask("first", noop).SetSequence(1)).
		Register(NewTask("disabled", noop).SetWeight(0)).
		Register(NewTask("stop", noop).SetOnStop())

	p := newPlan(ts)

	wantStart := []string{"start-1", "start-1b", "start-2", "start-unsequenced"}
	if got := names(ts, p.onStart); !equalStrings(got, wantStart) {
		t.Errorf("onStart = %v, want %v", got, wantStart)
	}
	if got := names(ts, p.onStop); !equalStrings(got, []string{"stop"}) {
		t.Errorf("onStop = %v, want [stop]", got)
	}

	wantSeq := []string{"first", "third", "free", "free"}
	if got := names(ts, p.sequence); !equalStrings(got, wantSeq) {
		t.Errorf("sequence = %v, want %v", got, wantSeq)
	}

	if p.total != 4 {
		t.Errorf("total = %d, want 4", p.total)
	}
}

func TestPlan_Pick(t *testing.T) {
	ts := NewTaskSet("set").
		Register(NewTask("a", noop).SetWeight(1)).
		Register(NewTask("b", noop).SetWeight(0)).
		Register(NewTask("c", noop).SetWeight(3))
	p := newPlan(ts)

	tests := []struct {
		r    int
		want string
	}{
		{0, "a"},
		{1, "c"},
		{2, "c"},
		{3, "c"},
	}
	for _, tt := range tests {
		if got := ts.tasks[p.pick(tt.r)].Name; got != tt.want {
			t.Errorf("pick(%d) = %s, want %s", tt.r, got, tt.want)
		}
	}
}
