package verifier

// Status is the verification status reported by a verifier server.
type Status string

const (
	StatusOK              Status = "OK"
	StatusNeedsMoreChecks Status = "NEEDS_MORE_CHECKS"
	StatusSystemFailure   Status = "SYSTEM_FAILURE"

	StatusNotConfirmed                    Status = "NOT_CONFIRMED"
	StatusNonExistentTransaction          Status = "NON_EXISTENT_TRANSACTION"
	StatusNonExistentBlock                Status = "NON_EXISTENT_BLOCK"
	StatusNotPayment                      Status = "NOT_PAYMENT"
	StatusNonExistentMinimalBlock         Status = "NON_EXISTENT_MINIMAL_BLOCK"
	StatusReferencedTransactionExists     Status = "REFERENCED_TRANSACTION_EXISTS"
	StatusZeroPaymentReferenceUnsupported Status = "ZERO_PAYMENT_REFERENCE_UNSUPPORTED"
	StatusPaymentSummaryError             Status = "PAYMENT_SUMMARY_ERROR"
)

// Summary collapses a Status into the outcome the dispatcher acts on.
type Summary uint8

const (
	SummaryValid Summary = iota
	SummaryInvalid
	SummaryIndeterminate
)

// Summarize maps a status to valid, invalid or indeterminate. A system
// failure on the verifier side and any status this client does not know
// are indeterminate; every other non-OK status is a definite rejection.
func Summarize(s Status) Summary {
	switch s {
	case StatusOK:
		return SummaryValid
	case StatusNotConfirmed,
		StatusNonExistentTransaction,
		StatusNonExistentBlock,
		StatusNotPayment,
		StatusNonExistentMinimalBlock,
		StatusReferencedTransactionExists,
		StatusZeroPaymentReferenceUnsupported,
		StatusPaymentSummaryError:
		return SummaryInvalid
	default:
		return SummaryIndeterminate
	}
}
