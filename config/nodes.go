package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// bootnodeEntry represents a bootnode with named fields.
type bootnodeEntry struct {
	Multiaddr string `yaml:"multiaddr"`
}

// LoadBootnodes loads a nodes.yaml file of relay peers and returns the
// multiaddr strings. Supports both formats:
//   - Struct:  [{multiaddr: "/ip4/..."}]
//   - Plain:   ["/ip4/..."]
func LoadBootnodes(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read nodes: %w", err)
	}

	var entries []bootnodeEntry
	if err := yaml.Unmarshal(data, &entries); err == nil && len(entries) > 0 && entries[0].Multiaddr != "" {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			if e.Multiaddr != "" {
				out = append(out, e.Multiaddr)
			}
		}
		return out, nil
	}

	var strs []string
	if err := yaml.Unmarshal(data, &strs); err != nil {
		return nil, fmt.Errorf("parse nodes: %w", err)
	}
	return strs, nil
}

// AllBootnodes returns the configured bootnodes plus those listed in
// BootnodesFile.
func (n NetworkConfig) AllBootnodes() ([]string, error) {
	out := append([]string(nil), n.Bootnodes...)
	if n.BootnodesFile == "" {
		return out, nil
	}
	fromFile, err := LoadBootnodes(n.BootnodesFile)
	if err != nil {
		return nil, err
	}
	return append(out, fromFile...), nil
}
