// Package loop runs all round and dispatcher state on a single goroutine.
//
// Work enters the loop through Post (run as soon as possible) and At (run
// at an absolute deadline). Blocking calls run elsewhere through Go and
// post their continuation back. Every task is supervised: a panic is
// recovered and reported through Fatal.
package loop

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler is the interface state machines use to schedule work.
type Scheduler interface {
	// Now returns the scheduler's current time.
	Now() time.Time
	// Post queues fn to run on the loop.
	Post(name string, fn func())
	// At queues fn to run on the loop once deadline has passed. Tasks with
	// equal deadlines run in the order they were scheduled.
	At(name string, deadline time.Time, fn func())
	// Fatal reports an unrecoverable error.
	Fatal(err error)
}

// Executor runs blocking work off the loop. pond.Pool satisfies it.
type Executor interface {
	Go(task func()) error
}

// Loop is the production Scheduler.
type Loop struct {
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	pending []task
	timers  *timerQueue
	wake    chan struct{}

	failures  chan error
	fatalOnce sync.Once
	onFatal   func(error)
}

type task struct {
	name string
	fn   func()
}

// Config holds optional Loop settings.
type Config struct {
	Logger *slog.Logger
	// TimeFunc overrides time.Now.
	TimeFunc func() time.Time
	// OnFatal replaces the default fatal handling (tests).
	OnFatal func(error)
}

// New creates a loop. Call Run to start processing.
func New(cfg Config) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.TimeFunc
	if now == nil {
		now = time.Now
	}
	return &Loop{
		log:      logger.With("component", "loop"),
		now:      now,
		timers:   newTimerQueue(),
		wake:     make(chan struct{}, 1),
		failures: make(chan error, 1),
		onFatal:  cfg.OnFatal,
	}
}

func (l *Loop) Now() time.Time {
	return l.now()
}

func (l *Loop) Post(name string, fn func()) {
	l.mu.Lock()
	l.pending = append(l.pending, task{name: name, fn: fn})
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) At(name string, deadline time.Time, fn func()) {
	l.mu.Lock()
	l.timers.push(deadline, task{name: name, fn: fn})
	l.mu.Unlock()
	l.signal()
}

// Fatal logs err and reports it on Failures. Only the first error is
// delivered.
func (l *Loop) Fatal(err error) {
	l.log.Error("fatal error", "err", err)
	if l.onFatal != nil {
		l.onFatal(err)
		return
	}
	l.fatalOnce.Do(func() {
		l.failures <- err
	})
}

// Failures delivers the first fatal error.
func (l *Loop) Failures() <-chan error {
	return l.failures
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes tasks until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		l.mu.Lock()
		tasks := l.pending
		l.pending = nil
		due := l.timers.popDue(l.now())
		next, hasNext := l.timers.next()
		l.mu.Unlock()

		for _, t := range due {
			l.run(t)
		}
		for _, t := range tasks {
			l.run(t)
		}
		if len(due) > 0 || len(tasks) > 0 {
			continue
		}

		wait := time.Hour
		if hasNext {
			wait = max(next.Sub(l.now()), 0)
		}
		timer.Reset(wait)

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		case <-timer.C:
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
}

func (l *Loop) run(t task) {
	runSupervised(l, t)
}

// runSupervised runs a task and turns a panic into a fatal error.
func runSupervised(s Scheduler, t task) {
	defer func() {
		if r := recover(); r != nil {
			s.Fatal(fmt.Errorf("%w: task %q: %v", ErrTaskPanicked, t.name, r))
		}
	}()
	t.fn()
}

// Go runs work on exec and posts the continuation it returns back to s.
// A nil continuation is skipped. A panic in work is reported through
// s.Fatal.
func Go(s Scheduler, exec Executor, name string, work func() func()) {
	err := exec.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				s.Fatal(fmt.Errorf("%w: async task %q: %v", ErrTaskPanicked, name, r))
			}
		}()
		if next := work(); next != nil {
			s.Post(name, next)
		}
	})
	if err != nil {
		s.Fatal(fmt.Errorf("submit %q: %w", name, err))
	}
}

// Inline is an Executor that runs tasks on the calling goroutine.
type Inline struct{}

func (Inline) Go(task func()) error {
	task()
	return nil
}

// Goroutine is an Executor that starts a goroutine per task.
type Goroutine struct{}

func (Goroutine) Go(task func()) error {
	go task()
	return nil
}
