package chain

import "errors"

var (
	ErrBadLog         = errors.New("malformed event log")    // log data does not match the event ABI
	ErrReceiptTimeout = errors.New("receipt wait timed out") // transaction not mined before deadline
	ErrTxFailed       = errors.New("transaction reverted")   // mined with status 0
)
