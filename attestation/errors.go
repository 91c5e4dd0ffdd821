package attestation

import "errors"

var (
	ErrShortRequest = errors.New("request shorter than header") // fewer than HeaderSize bytes
)
