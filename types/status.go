package types

// AttestationStatus tracks a single attestation through verification.
type AttestationStatus uint8

const (
	AttestationQueued       AttestationStatus = iota // waiting in a source queue
	AttestationProcessing                            // verifier call in flight
	AttestationUndetermined                          // created, not yet dispatched
	AttestationFailed                                // malformed or unsupported, never dispatched
	AttestationValid                                 // verified, MIC matched
	AttestationInvalid                               // verifier rejected it or MIC mismatch
	AttestationTooLate                               // commit deadline passed before dispatch
	AttestationOverLimit                             // round weight budget exhausted
	AttestationError                                 // retries exhausted or internal fault
)

var attestationStatusNames = [...]string{
	"queued", "processing", "undetermined", "failed", "valid", "invalid", "tooLate", "overLimit", "error",
}

func (s AttestationStatus) String() string {
	if int(s) < len(attestationStatusNames) {
		return attestationStatusNames[s]
	}
	return "unknown"
}

// InFlight reports whether the attestation has not reached a terminal status.
func (s AttestationStatus) InFlight() bool {
	return s == AttestationQueued || s == AttestationProcessing || s == AttestationUndetermined
}

// RoundPhase is the time-driven phase of a round.
type RoundPhase uint8

const (
	PhaseCollect RoundPhase = iota
	PhaseChoose
	PhaseCommit
	PhaseReveal
	PhaseFinalise
)

var roundPhaseNames = [...]string{"collect", "choose", "commit", "reveal", "finalise"}

func (p RoundPhase) String() string {
	if int(p) < len(roundPhaseNames) {
		return roundPhaseNames[p]
	}
	return "unknown"
}

// RoundStatus is the progress-driven status of a round. Values up to
// RoundRevealed are ordered; RoundError and RoundProcessingTimeout are
// absorbing.
type RoundStatus uint8

const (
	RoundCollecting RoundStatus = iota
	RoundBitVotingClosed
	RoundChosen
	RoundCommitDataPrepared
	RoundCommitted
	RoundRevealed
	RoundError
	RoundProcessingTimeout
)

var roundStatusNames = [...]string{
	"collecting", "bitVotingClosed", "chosen", "commitDataPrepared", "committed", "revealed", "error", "processingTimeout",
}

func (s RoundStatus) String() string {
	if int(s) < len(roundStatusNames) {
		return roundStatusNames[s]
	}
	return "unknown"
}

// Terminal reports whether the status is absorbing.
func (s RoundStatus) Terminal() bool {
	return s == RoundError || s == RoundProcessingTimeout
}
