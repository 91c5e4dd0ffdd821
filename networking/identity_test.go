package networking

import (
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/p2p/enode"
	"github.com/ethereum/go-ethereum/p2p/enr"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

func TestLoadNodeKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.key")

	first, err := LoadNodeKey(path)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	second, err := LoadNodeKey(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if !first.Equals(second) {
		t.Error("reloaded key differs from the generated one")
	}

	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	raw := filepath.Join(dir, "raw.key")
	if err := os.WriteFile(raw, gethcrypto.FromECDSA(key), 0o600); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadNodeKey(raw)
	if err != nil {
		t.Fatalf("raw key: %v", err)
	}
	want, err := crypto.UnmarshalSecp256k1PrivateKey(gethcrypto.FromECDSA(key))
	if err != nil {
		t.Fatal(err)
	}
	if !want.Equals(loaded) {
		t.Error("raw key loaded as a different key")
	}

	bad := filepath.Join(dir, "bad.key")
	if err := os.WriteFile(bad, []byte("not a key"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadNodeKey(bad); !errors.Is(err, ErrBadNodeKey) {
		t.Errorf("bad key err = %v, want %v", err, ErrBadNodeKey)
	}
}

func TestParseBootnodes_ENR(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	db, err := enode.OpenDB("")
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	local := enode.NewLocalNode(db, key)
	local.SetStaticIP(net.IP{127, 0, 0, 1})
	local.Set(enr.QUIC(9100))

	peers, err := ParseBootnodes([]string{local.Node().String()})
	if err != nil {
		t.Fatalf("ParseBootnodes: %v", err)
	}
	if len(peers) != 1 {
		t.Fatalf("peers = %d, want 1", len(peers))
	}
	if got := peers[0].Addrs[0].String(); got != "/ip4/127.0.0.1/udp/9100/quic-v1" {
		t.Errorf("addr = %s", got)
	}

	pub, err := crypto.UnmarshalSecp256k1PublicKey(gethcrypto.CompressPubkey(&key.PublicKey))
	if err != nil {
		t.Fatal(err)
	}
	want, err := peer.IDFromPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	if peers[0].ID != want {
		t.Errorf("peer id = %s, want %s", peers[0].ID, want)
	}

	if _, err := ParseBootnodes([]string{"enr:-garbage"}); !errors.Is(err, ErrBadBootnode) {
		t.Errorf("garbage enr err = %v, want %v", err, ErrBadBootnode)
	}
}
