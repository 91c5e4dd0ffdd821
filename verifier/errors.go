package verifier

import "errors"

var (
	ErrNoRoute     = errors.New("no verifier route")           // (source, type) pair has no configured route
	ErrAPIResponse = errors.New("verifier api returned error") // non-OK HTTP or API status
)
