package loop

import "time"

// Manual is a Scheduler driven by a virtual clock, for tests. Nothing runs
// until Drain, Advance or AdvanceTo is called.
type Manual struct {
	now     time.Time
	pending []task
	timers  *timerQueue
	Errors  []error
}

// NewManual creates a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start, timers: newTimerQueue()}
}

func (m *Manual) Now() time.Time {
	return m.now
}

func (m *Manual) Post(name string, fn func()) {
	m.pending = append(m.pending, task{name: name, fn: fn})
}

func (m *Manual) At(name string, deadline time.Time, fn func()) {
	m.timers.push(deadline, task{name: name, fn: fn})
}

// Fatal records err.
func (m *Manual) Fatal(err error) {
	m.Errors = append(m.Errors, err)
}

// Drain runs posted tasks and due timers until none are left.
func (m *Manual) Drain() {
	for {
		if len(m.pending) > 0 {
			t := m.pending[0]
			m.pending = m.pending[1:]
			runSupervised(m, t)
			continue
		}
		e, ok := m.timers.popFirstDue(m.now)
		if !ok {
			return
		}
		runSupervised(m, e.task)
	}
}

// AdvanceTo moves the clock to t, firing timers in deadline order. The
// clock reads each timer's deadline while it runs.
func (m *Manual) AdvanceTo(t time.Time) {
	m.Drain()
	for {
		next, ok := m.timers.next()
		if !ok || next.After(t) {
			break
		}
		if next.After(m.now) {
			m.now = next
		}
		m.Drain()
	}
	if t.After(m.now) {
		m.now = t
	}
	m.Drain()
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.AdvanceTo(m.now.Add(d))
}

// PendingTimers returns the number of scheduled timers.
func (m *Manual) PendingTimers() int {
	return m.timers.len()
}
