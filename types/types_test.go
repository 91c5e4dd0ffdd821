package types

import "testing"

func TestRoundID_CheckByte(t *testing.T) {
	tests := []struct {
		name  string
		round RoundID
		want  byte
	}{
		{"zero", 0, 0},
		{"below wrap", 255, 255},
		{"wraps", 256, 0},
		{"after wrap", 513, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.round.CheckByte(); got != tt.want {
				t.Errorf("RoundID(%d).CheckByte() = %d, want %d", tt.round, got, tt.want)
			}
		})
	}
}

func TestRoundID_Prev(t *testing.T) {
	if _, ok := RoundID(0).Prev(); ok {
		t.Error("round 0 has no predecessor")
	}
	if got, ok := RoundID(7).Prev(); !ok || got != 6 {
		t.Errorf("RoundID(7).Prev() = %d, %v, want 6, true", got, ok)
	}
}

func TestRoundStatus_Terminal(t *testing.T) {
	for s := RoundCollecting; s <= RoundProcessingTimeout; s++ {
		want := s == RoundError || s == RoundProcessingTimeout
		if got := s.Terminal(); got != want {
			t.Errorf("%s.Terminal() = %v, want %v", s, got, want)
		}
	}
}

func TestAttestationStatus_InFlight(t *testing.T) {
	tests := []struct {
		status AttestationStatus
		want   bool
	}{
		{AttestationQueued, true},
		{AttestationProcessing, true},
		{AttestationUndetermined, true},
		{AttestationFailed, false},
		{AttestationValid, false},
		{AttestationInvalid, false},
		{AttestationTooLate, false},
		{AttestationOverLimit, false},
		{AttestationError, false},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.InFlight(); got != tt.want {
				t.Errorf("InFlight() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatusNames(t *testing.T) {
	if got := RoundStatus(200).String(); got != "unknown" {
		t.Errorf("unknown status name = %q", got)
	}
	if got := PhaseFinalise.String(); got != "finalise" {
		t.Errorf("PhaseFinalise.String() = %q", got)
	}
}
