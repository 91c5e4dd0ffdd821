package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManual_TimersFireInDeadlineOrder(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)

	var order []string
	var seen []time.Time
	record := func(name string) func() {
		return func() {
			order = append(order, name)
			seen = append(seen, m.Now())
		}
	}

	m.At("c", start.Add(3*time.Second), record("c"))
	m.At("a", start.Add(1*time.Second), record("a"))
	m.At("b1", start.Add(2*time.Second), record("b1"))
	m.At("b2", start.Add(2*time.Second), record("b2"))
	m.At("late", start.Add(10*time.Second), record("late"))

	m.Advance(5 * time.Second)

	require.Equal(t, []string{"a", "b1", "b2", "c"}, order)
	require.Equal(t, start.Add(2*time.Second), seen[1])
	require.Equal(t, start.Add(5*time.Second), m.Now())
	require.Equal(t, 1, m.PendingTimers())
}

func TestManual_PastDeadlineRunsOnDrain(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)

	ran := false
	m.At("past", start.Add(-time.Minute), func() { ran = true })
	m.Drain()
	require.True(t, ran)
}

func TestManual_TimerScheduledFromTask(t *testing.T) {
	start := time.Unix(1000, 0)
	m := NewManual(start)

	var order []string
	m.At("first", start.Add(time.Second), func() {
		order = append(order, "first")
		m.At("second", m.Now().Add(time.Second), func() { order = append(order, "second") })
	})
	m.Advance(3 * time.Second)
	require.Equal(t, []string{"first", "second"}, order)
}

func TestManual_PanicBecomesFatal(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	m.Post("boom", func() { panic("boom") })
	m.Drain()

	require.Len(t, m.Errors, 1)
	require.ErrorIs(t, m.Errors[0], ErrTaskPanicked)
}

func TestGo_PostsContinuation(t *testing.T) {
	m := NewManual(time.Unix(0, 0))

	result := 0
	Go(m, Inline{}, "work", func() func() {
		v := 41
		return func() { result = v + 1 }
	})
	require.Zero(t, result, "continuation runs on the loop")

	m.Drain()
	require.Equal(t, 42, result)
}

type failingExecutor struct{}

func (failingExecutor) Go(func()) error { return errors.New("stopped") }

func TestGo_SubmitFailureIsFatal(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	Go(m, failingExecutor{}, "work", func() func() { return nil })
	require.Len(t, m.Errors, 1)
}

func TestLoop_RunsPostedTasksAndTimers(t *testing.T) {
	l := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var (
		mu    sync.Mutex
		order []string
	)
	done := make(chan struct{})
	add := func(s string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, s)
		if len(order) == 3 {
			close(done)
		}
	}

	now := time.Now()
	l.At("t2", now.Add(40*time.Millisecond), func() { add("t2") })
	l.At("t1", now.Add(20*time.Millisecond), func() { add("t1") })
	l.Post("p", func() { add("p") })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("tasks did not run")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"p", "t1", "t2"}, order)
}

func TestLoop_PanicReportsFailure(t *testing.T) {
	l := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	l.Post("boom", func() { panic("boom") })

	select {
	case err := <-l.Failures():
		require.ErrorIs(t, err, ErrTaskPanicked)
	case <-time.After(2 * time.Second):
		t.Fatal("no failure reported")
	}
}
