package config

import "errors"

// Sentinel errors for configuration loading.
var (
	ErrInvalidConfig   = errors.New("invalid config")               // a required field is missing or out of range
	ErrDuplicateSource = errors.New("duplicate source")             // a source appears twice in one file
	ErrDuplicateType   = errors.New("duplicate attestation type")   // a type appears twice for one source
	ErrDuplicateStart  = errors.New("duplicate start round")        // two files start at the same round
	ErrNoConfig        = errors.New("no configuration files found") // a configuration folder is empty
)
