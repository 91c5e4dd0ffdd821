// Package clock provides time-to-round conversion for the attestation
// protocol.
//
// Round N collects requests during epoch N, is bit-voted on during the
// first part of epoch N+1, committed during the rest of epoch N+1 and
// revealed during epoch N+2. Every provider must agree on these
// boundaries to submit into the right buffer.
package clock

import (
	"time"

	"github.com/geanlabs/attester/types"
)

// RoundClock converts wall-clock time to rounds and phase boundaries.
type RoundClock struct {
	FirstEpochStart time.Time     // start of round 0
	EpochPeriod     time.Duration // length of one epoch
	BitVoteWindow   time.Duration // length of the choose phase
	timeFunc        func() time.Time
}

// New creates a RoundClock using the system clock.
func New(firstEpochStart time.Time, epochPeriod, bitVoteWindow time.Duration) *RoundClock {
	return NewWithTimeFunc(firstEpochStart, epochPeriod, bitVoteWindow, time.Now)
}

// NewWithTimeFunc creates a RoundClock with a custom time source (for testing).
func NewWithTimeFunc(firstEpochStart time.Time, epochPeriod, bitVoteWindow time.Duration, timeFunc func() time.Time) *RoundClock {
	return &RoundClock{
		FirstEpochStart: firstEpochStart,
		EpochPeriod:     epochPeriod,
		BitVoteWindow:   bitVoteWindow,
		timeFunc:        timeFunc,
	}
}

// Now returns the current time of the clock's time source.
func (c *RoundClock) Now() time.Time {
	return c.timeFunc()
}

// RoundForTime returns the round collecting at t (0 before the first epoch).
func (c *RoundClock) RoundForTime(t time.Time) types.RoundID {
	if t.Before(c.FirstEpochStart) {
		return 0
	}
	return types.RoundID(t.Sub(c.FirstEpochStart) / c.EpochPeriod)
}

// RoundForUnix is RoundForTime for a unix timestamp in seconds.
func (c *RoundClock) RoundForUnix(sec uint64) types.RoundID {
	return c.RoundForTime(time.Unix(int64(sec), 0))
}

// CurrentRound returns the round currently collecting.
func (c *RoundClock) CurrentRound() types.RoundID {
	return c.RoundForTime(c.timeFunc())
}

// BitVoteRoundForTime returns the epoch whose bit-vote window contains t.
// Bit votes cast at t belong to the round before that epoch.
func (c *RoundClock) BitVoteRoundForTime(t time.Time) (types.RoundID, bool) {
	if t.Before(c.FirstEpochStart) {
		return 0, false
	}
	since := t.Sub(c.FirstEpochStart)
	epoch := types.RoundID(since / c.EpochPeriod)
	if since%c.EpochPeriod > c.BitVoteWindow {
		return 0, false
	}
	return epoch, true
}

// RoundStart returns when a round starts collecting.
func (c *RoundClock) RoundStart(id types.RoundID) time.Time {
	return c.FirstEpochStart.Add(time.Duration(id) * c.EpochPeriod)
}

// ChooseStart returns when the bit-vote (choose) phase of a round starts.
func (c *RoundClock) ChooseStart(id types.RoundID) time.Time {
	return c.RoundStart(id).Add(c.EpochPeriod)
}

// CommitStart returns when the commit phase of a round starts.
func (c *RoundClock) CommitStart(id types.RoundID) time.Time {
	return c.ChooseStart(id).Add(c.BitVoteWindow)
}

// RevealStart returns when the reveal phase of a round starts.
func (c *RoundClock) RevealStart(id types.RoundID) time.Time {
	return c.ChooseStart(id).Add(c.EpochPeriod)
}

// RoundComplete returns when the reveal phase of a round ends.
func (c *RoundClock) RoundComplete(id types.RoundID) time.Time {
	return c.RevealStart(id).Add(c.EpochPeriod)
}

// IsBeforeFirstEpoch returns true if current time is before round 0.
func (c *RoundClock) IsBeforeFirstEpoch() bool {
	return c.timeFunc().Before(c.FirstEpochStart)
}
