package bitvote

import "errors"

var (
	ErrEmptyVote = errors.New("empty bit vote payload") // payload carries no round check byte
)
