// Package networking gossips round summaries between attestation
// providers over libp2p, so each provider can compare its own result with
// what its peers committed to.
package networking

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// DefaultListenAddr is used when no listen address is configured.
const DefaultListenAddr = "/ip4/0.0.0.0/udp/9100/quic-v1"

type HostConfig struct {
	PrivateKey  crypto.PrivKey
	ListenAddrs []string
}

// NewHost creates a libp2p host. Without a key a fresh secp256k1
// identity is generated.
func NewHost(_ context.Context, cfg HostConfig) (host.Host, error) {
	privKey := cfg.PrivateKey
	if privKey == nil {
		var err error
		privKey, _, err = crypto.GenerateKeyPairWithReader(crypto.Secp256k1, 256, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate key: %w", err)
		}
	}

	listenAddrs := cfg.ListenAddrs
	if len(listenAddrs) == 0 {
		listenAddrs = []string{DefaultListenAddr}
	}

	h, err := libp2p.New(
		libp2p.Identity(privKey),
		libp2p.ListenAddrStrings(listenAddrs...),
	)
	if err != nil {
		return nil, fmt.Errorf("create host: %w", err)
	}
	return h, nil
}

// ParseBootnodes parses /p2p multiaddrs and ENRs into peer infos.
// Addresses of the same peer are merged.
func ParseBootnodes(addrs []string) ([]peer.AddrInfo, error) {
	var out []peer.AddrInfo
	index := make(map[peer.ID]int)
	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		pi, err := parseBootnode(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrBadBootnode, addr, err)
		}
		if i, ok := index[pi.ID]; ok {
			out[i].Addrs = append(out[i].Addrs, pi.Addrs...)
			continue
		}
		index[pi.ID] = len(out)
		out = append(out, *pi)
	}
	return out, nil
}

func parseBootnode(addr string) (*peer.AddrInfo, error) {
	if isENR(addr) {
		return enrToAddrInfo(addr)
	}
	ma, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return nil, err
	}
	return peer.AddrInfoFromP2pAddr(ma)
}
