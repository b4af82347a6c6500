package attack

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(nil, nil, 1)
	assert.Error(t, err)

	_, err = NewScheduler([]*TaskSet{NewTaskSet("empty")}, nil, 1)
	assert.True(t, errors.Is(err, ErrNoEligibleTasks))

	dup := []*TaskSet{
		NewTaskSet("same").Register(NewTask("a", noop)),
		NewTaskSet("same").Register(NewTask("b", noop)),
	}
	_, err = NewScheduler(dup, nil, 1)
	assert.Error(t, err)
}

func TestScheduler_SpawnStopWait(t *testing.T) {
	var runs atomic.Int64
	tick := func(ctx context.Context, _ *User) error {
		runs.Add(1)
		time.Sleep(time.Millisecond)
		return nil
	}
	sets := []*TaskSet{
		NewTaskSet("a").Register(NewTask("tick", tick)),
		NewTaskSet("b").Register(NewTask("tick", tick)),
	}
	s, err := NewScheduler(sets, nil, 1)
	require.NoError(t, err)

	for _, set := range []int{0, 1, 0} {
		_, err := s.Spawn(context.Background(), set)
		require.NoError(t, err)
	}
	_, err = s.Spawn(context.Background(), 5)
	assert.Error(t, err)

	assert.Equal(t, 3, s.Count())
	assert.Equal(t, map[string]int{"a": 2, "b": 1}, s.CountsBySet())

	users := s.Users()
	require.Len(t, users, 3)
	for i, vu := range users {
		assert.Equal(t, i+1, vu.ID)
	}

	time.Sleep(20 * time.Millisecond)
	s.StopAll()
	assert.Zero(t, s.WaitForAll(time.Second))
	s.Wait()

	assert.Zero(t, s.ActiveCount())
	taskRuns, failures := s.TaskStats()
	assert.Equal(t, runs.Load(), taskRuns)
	assert.Zero(t, failures)
	assert.Positive(t, taskRuns)
}

func TestScheduler_WaitForAllReportsUndrained(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 2)
	block := func(ctx context.Context, _ *User) error {
		entered <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}
	s, err := NewScheduler([]*TaskSet{NewTaskSet("stuck").Register(NewTask("block", block))}, nil, 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for i := 0; i < 2; i++ {
		_, err := s.Spawn(ctx, 0)
		require.NoError(t, err)
	}
	<-entered
	<-entered

	s.StopAll()
	assert.Equal(t, 2, s.WaitForAll(30*time.Millisecond))

	cancel()
	s.Wait()
	assert.Zero(t, s.ActiveCount())
	close(release)
}
