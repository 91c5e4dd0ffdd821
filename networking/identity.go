package networking

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// LoadNodeKey loads the secp256k1 identity at path, creating it if the
// file does not exist. Hex, raw 32 byte and libp2p encoded keys are read.
func LoadNodeKey(path string) (crypto.PrivKey, error) {
	key, err := loadOrGenerateKey(path)
	if err != nil {
		return nil, err
	}
	priv, err := crypto.UnmarshalSecp256k1PrivateKey(gethcrypto.FromECDSA(key))
	if err != nil {
		return nil, fmt.Errorf("convert node key: %w", err)
	}
	return priv, nil
}

func loadOrGenerateKey(path string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		key, err := gethcrypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		if err := gethcrypto.SaveECDSA(path, key); err != nil {
			return nil, fmt.Errorf("save node key: %w", err)
		}
		return key, nil
	}
	if key, err := gethcrypto.LoadECDSA(path); err == nil {
		return key, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node key: %w", err)
	}
	if len(data) == 32 {
		return gethcrypto.ToECDSA(data)
	}
	sk, err := crypto.UnmarshalPrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadNodeKey, path)
	}
	raw, err := sk.Raw()
	if err != nil {
		return nil, fmt.Errorf("raw node key: %w", err)
	}
	return gethcrypto.ToECDSA(raw)
}

func isENR(s string) bool {
	return strings.HasPrefix(s, "enr:")
}

// enrToAddrInfo turns a node record into a peer with a QUIC address.
func enrToAddrInfo(s string) (*peer.AddrInfo, error) {
	node, err := enode.Parse(enode.ValidSchemes, s)
	if err != nil {
		return nil, fmt.Errorf("parse enr: %w", err)
	}
	ip := node.IP()
	if ip == nil {
		return nil, errors.New("enr has no ip")
	}
	var quic enr.QUIC
	if err := node.Record().Load(&quic); err != nil {
		return nil, fmt.Errorf("enr has no quic port: %w", err)
	}
	pub := node.Pubkey()
	if pub == nil {
		return nil, errors.New("enr has no public key")
	}
	key, err := crypto.UnmarshalSecp256k1PublicKey(gethcrypto.CompressPubkey(pub))
	if err != nil {
		return nil, fmt.Errorf("convert pubkey: %w", err)
	}
	pid, err := peer.IDFromPublicKey(key)
	if err != nil {
		return nil, fmt.Errorf("derive peer id: %w", err)
	}

	proto := "ip4"
	if ip.To4() == nil {
		proto = "ip6"
	}
	addr, err := multiaddr.NewMultiaddr(fmt.Sprintf("/%s/%s/udp/%d/quic-v1", proto, ip, quic))
	if err != nil {
		return nil, fmt.Errorf("build multiaddr: %w", err)
	}
	return &peer.AddrInfo{ID: pid, Addrs: []multiaddr.Multiaddr{addr}}, nil
}
