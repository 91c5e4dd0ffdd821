package source

import "errors"

var (
	ErrNoManager = errors.New("no source manager")   // supported source was never initialized
	ErrNoConfig  = errors.New("no config for round") // global config or verifier router missing
	ErrNoRouter  = errors.New("no verifier route")   // request has no verifier for its round
)
