package perf

import (
	"context"

	"go.uber.org/zap"

	"github.com/wesleyorama2/drove/internal/attack"
	"github.com/wesleyorama2/drove/internal/attack/engine"
	"github.com/wesleyorama2/drove/internal/attack/scripted"
	"github.com/wesleyorama2/drove/internal/config"
)

type (
	// User is the handle a task receives for the simulated user running it.
	User = attack.User
	// Task is one unit of user behaviour.
	Task = attack.Task
	// TaskFunc is the body of a task.
	TaskFunc = attack.TaskFunc
	// TaskSet groups the tasks one kind of user runs.
	TaskSet = attack.TaskSet
	// Policy selects how a task set picks its next task.
	Policy = attack.Policy
	// Check inspects a response and fails the request by returning an error.
	Check = attack.Check
	// CheckFunc adapts a function to Check.
	CheckFunc = attack.CheckFunc
	// DebugRecord is a line written to the debug log.
	DebugRecord = attack.DebugRecord

	// Options controls a single run.
	Options = engine.Options
	// Result is the outcome of a run.
	Result = engine.Result
	// Progress is a live view of a running attack.
	Progress = engine.Progress
)

const (
	PolicyWeighted   = attack.PolicyWeighted
	PolicySequential = attack.PolicySequential
)

// NewTask creates a task with weight 1.
func NewTask(name string, fn TaskFunc) *Task { return attack.NewTask(name, fn) }

// NewTaskSet creates an empty weighted task set with weight 1.
func NewTaskSet(name string) *TaskSet { return attack.NewTaskSet(name) }

// ExpectStatus fails a request unless its status is one of codes.
func ExpectStatus(codes ...int) Check { return attack.ExpectStatus(codes...) }

// DefaultOptions returns options with every default set. BaseURL and Users
// still need filling in.
func DefaultOptions() Options { return engine.DefaultOptions() }

// Run executes one attack and blocks until every user has stopped or the
// drain timeout has expired. Cancelling ctx ends the run early; the partial
// Result is still returned.
func Run(ctx context.Context, opts Options, sets ...*TaskSet) (*Result, error) {
	return RunWithLogger(ctx, zap.NewNop(), opts, sets...)
}

// RunWithLogger is Run with engine diagnostics sent to logger.
func RunWithLogger(ctx context.Context, logger *zap.Logger, opts Options, sets ...*TaskSet) (*Result, error) {
	e, err := engine.New(opts, engine.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return e.RegisterTaskSet(sets...).Run(ctx)
}

// LoadAttack reads an attack file and builds its task sets. The returned
// options carry every run setting from the file, with defaults applied.
func LoadAttack(path string) (Options, []*TaskSet, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return Options{}, nil, err
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return Options{}, nil, err
	}

	sets, err := scripted.Build(cfg)
	if err != nil {
		return Options{}, nil, err
	}
	opts, err := scripted.Options(cfg)
	if err != nil {
		return Options{}, nil, err
	}
	return opts, sets, nil
}
