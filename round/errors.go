package round

import "errors"

var (
	ErrNoGlobalConfig    = errors.New("no global config for round")             // no config file starts at or before the round
	ErrNoVerifierRouter  = errors.New("no verifier router for round")           // no routes file starts at or before the round
	ErrUnsupported       = errors.New("unsupported source or type")             // pair missing from global config or routes
	ErrProcessedOverflow = errors.New("more attestations processed than added") // an attestation reported twice
	ErrNoDefaultSet      = errors.New("default set not resolved")               // attestor lookup retries exhausted
)
