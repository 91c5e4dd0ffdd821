package clock

import (
	"testing"
	"time"

	"github.com/geanlabs/attester/types"
)

const (
	epoch   = 90 * time.Second
	bitVote = 45 * time.Second
)

var firstEpoch = time.Unix(1000, 0)

// mockTime creates a time function that returns a fixed time.
func mockTime(unixSeconds int64) func() time.Time {
	return func() time.Time {
		return time.Unix(unixSeconds, 0)
	}
}

func TestCurrentRound_BeforeFirstEpoch(t *testing.T) {
	clock := NewWithTimeFunc(firstEpoch, epoch, bitVote, mockTime(500))

	round := clock.CurrentRound()
	if round != 0 {
		t.Errorf("CurrentRound before first epoch = %d, want 0", round)
	}
	if !clock.IsBeforeFirstEpoch() {
		t.Error("IsBeforeFirstEpoch = false, want true")
	}
}

func TestCurrentRound(t *testing.T) {
	tests := []struct {
		name      string
		nowTime   int64
		wantRound types.RoundID
	}{
		{"at first epoch", 1000, 0},
		{"89 seconds in", 1089, 0},
		{"90 seconds in (round 1)", 1090, 1},
		{"180 seconds in (round 2)", 1180, 2},
		{"9000 seconds in (round 100)", 10000, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := NewWithTimeFunc(firstEpoch, epoch, bitVote, mockTime(tt.nowTime))
			round := clock.CurrentRound()
			if round != tt.wantRound {
				t.Errorf("CurrentRound = %d, want %d", round, tt.wantRound)
			}
		})
	}
}

func TestPhaseBoundaries(t *testing.T) {
	clock := New(firstEpoch, epoch, bitVote)
	id := types.RoundID(2)

	tests := []struct {
		name string
		got  time.Time
		want int64
	}{
		{"RoundStart", clock.RoundStart(id), 1180},
		{"ChooseStart", clock.ChooseStart(id), 1270},
		{"CommitStart", clock.CommitStart(id), 1315},
		{"RevealStart", clock.RevealStart(id), 1360},
		{"RoundComplete", clock.RoundComplete(id), 1450},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Unix() != tt.want {
				t.Errorf("%s(%d) = %d, want %d", tt.name, id, tt.got.Unix(), tt.want)
			}
		})
	}
}

func TestBitVoteRoundForTime(t *testing.T) {
	clock := New(firstEpoch, epoch, bitVote)

	tests := []struct {
		name      string
		at        int64
		wantRound types.RoundID
		wantOK    bool
	}{
		{"before first epoch", 900, 0, false},
		{"start of epoch 1", 1090, 1, true},
		{"end of window", 1135, 1, true},
		{"after window", 1136, 0, false},
		{"epoch 3 window", 1300, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			round, ok := clock.BitVoteRoundForTime(time.Unix(tt.at, 0))
			if ok != tt.wantOK || round != tt.wantRound {
				t.Errorf("BitVoteRoundForTime = (%d, %v), want (%d, %v)", round, ok, tt.wantRound, tt.wantOK)
			}
		})
	}
}

func TestRoundForUnix(t *testing.T) {
	clock := New(firstEpoch, epoch, bitVote)
	if got := clock.RoundForUnix(1181); got != 2 {
		t.Errorf("RoundForUnix = %d, want 2", got)
	}
}

func TestNew(t *testing.T) {
	clock := New(firstEpoch, epoch, bitVote)

	if !clock.FirstEpochStart.Equal(firstEpoch) {
		t.Errorf("FirstEpochStart = %v, want %v", clock.FirstEpochStart, firstEpoch)
	}
	if clock.timeFunc == nil {
		t.Error("timeFunc should not be nil")
	}
}
