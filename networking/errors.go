package networking

import "errors"

var (
	ErrBadBootnode = errors.New("invalid bootnode address") // not a /p2p multiaddr or ENR
	ErrBadNodeKey  = errors.New("unreadable node key")      // none of the supported key encodings
)
