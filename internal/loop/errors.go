package loop

import "errors"

var (
	ErrTaskPanicked = errors.New("task panicked") // a supervised task recovered from a panic
)
