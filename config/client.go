// Package config defines the YAML configuration files of the attestation
// client: the client config, per-round global attestation configs and
// per-round verifier routes.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ClientConfig is the top level configuration of an attestation client.
type ClientConfig struct {
	Label string `yaml:"label"`

	Epochs EpochConfig  `yaml:"epochs"`
	Timing TimingConfig `yaml:"timing"`
	Chain  ChainConfig  `yaml:"chain"`

	Network  NetworkConfig  `yaml:"network"`
	Database DatabaseConfig `yaml:"database"`

	GlobalConfigurationsFolder string `yaml:"globalConfigurationsFolder"`
	VerifierRoutesFolder       string `yaml:"verifierRoutesFolder"`
	// ConfigReloadSpec is a cron spec for reloading both folders.
	ConfigReloadSpec string `yaml:"configReloadSpec"`

	VerifierWorkers    int `yaml:"verifierWorkers"`
	VerifierTimeoutSec int `yaml:"verifierTimeoutSec"`
}

// EpochConfig mirrors the epoch settings of the on-chain contracts.
type EpochConfig struct {
	FirstEpochStartTime uint64 `yaml:"firstEpochStartTime"` // unix seconds
	EpochPeriodSec      uint64 `yaml:"epochPeriodSec"`
	BitVoteWindowSec    uint64 `yaml:"bitVoteWindowSec"`
}

// TimingConfig holds the submission offsets relative to phase boundaries.
type TimingConfig struct {
	// CommitTimeSec is added to the reveal start to get the verification
	// deadline and first commit time. Negative.
	CommitTimeSec int `yaml:"commitTimeSec"`
	// BitVoteTimeSec is added to the commit start to get the bit vote
	// submission time. Negative.
	BitVoteTimeSec int `yaml:"bitVoteTimeSec"`
	// ForceCloseBitVotingSec is added to the commit start to get the local
	// bit voting close time.
	ForceCloseBitVotingSec int `yaml:"forceCloseBitVotingSec"`
}

// ChainConfig configures the JSON-RPC connection and contract addresses.
type ChainConfig struct {
	RPCURL                 string `yaml:"rpcUrl"`
	PrivateKey             string `yaml:"privateKey"`
	StateConnector         string `yaml:"stateConnector"`
	BitVoting              string `yaml:"bitVoting"`
	AttestationClientSuite string `yaml:"attestationClientSuite"`
	PollIntervalMs         int    `yaml:"pollIntervalMs"`
	// StartBlock is the first block the collector reads; 0 means latest.
	StartBlock uint64 `yaml:"startBlock"`
	// ReceiptTimeoutSec bounds the wait for a submitted transaction.
	ReceiptTimeoutSec int `yaml:"receiptTimeoutSec"`
}

// NetworkConfig configures the gossip relay. Empty ListenAddrs disables it.
type NetworkConfig struct {
	Name          string   `yaml:"name"`
	ListenAddrs   []string `yaml:"listenAddrs"`
	Bootnodes     []string `yaml:"bootnodes"`
	BootnodesFile string   `yaml:"bootnodesFile"`
	// NodeKeyFile keeps the gossip identity across restarts. Empty uses a
	// fresh key on every start.
	NodeKeyFile string `yaml:"nodeKeyFile"`
}

// DatabaseConfig configures round persistence. An empty path keeps rounds
// in memory.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// Defaults.
const (
	DefaultEpochPeriodSec         = 90
	DefaultBitVoteWindowSec       = 45
	DefaultCommitTimeSec          = -10
	DefaultBitVoteTimeSec         = -10
	DefaultForceCloseBitVotingSec = 2
	DefaultConfigReloadSpec       = "@every 80s"
	DefaultVerifierWorkers        = 64
	DefaultVerifierTimeoutSec     = 30
	DefaultPollIntervalMs         = 1000
	DefaultReceiptTimeoutSec      = 60
	DefaultNetworkName            = "flare"
)

// LoadClientConfig reads a client config file, expanding ${VAR}
// references from the environment.
func LoadClientConfig(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read client config: %w", err)
	}

	cfg := &ClientConfig{
		Epochs: EpochConfig{
			EpochPeriodSec:   DefaultEpochPeriodSec,
			BitVoteWindowSec: DefaultBitVoteWindowSec,
		},
		Timing: TimingConfig{
			CommitTimeSec:          DefaultCommitTimeSec,
			BitVoteTimeSec:         DefaultBitVoteTimeSec,
			ForceCloseBitVotingSec: DefaultForceCloseBitVotingSec,
		},
		Chain: ChainConfig{
			PollIntervalMs:    DefaultPollIntervalMs,
			ReceiptTimeoutSec: DefaultReceiptTimeoutSec,
		},
		Network:            NetworkConfig{Name: DefaultNetworkName},
		ConfigReloadSpec:   DefaultConfigReloadSpec,
		VerifierWorkers:    DefaultVerifierWorkers,
		VerifierTimeoutSec: DefaultVerifierTimeoutSec,
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse client config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the round engine depends on.
func (c *ClientConfig) Validate() error {
	if c.Epochs.EpochPeriodSec == 0 {
		return fmt.Errorf("%w: epochPeriodSec must be positive", ErrInvalidConfig)
	}
	if c.Epochs.BitVoteWindowSec >= c.Epochs.EpochPeriodSec {
		return fmt.Errorf("%w: bitVoteWindowSec must be shorter than the epoch", ErrInvalidConfig)
	}
	if c.Timing.CommitTimeSec >= 0 || c.Timing.BitVoteTimeSec >= 0 {
		return fmt.Errorf("%w: commitTimeSec and bitVoteTimeSec must be negative", ErrInvalidConfig)
	}
	if c.GlobalConfigurationsFolder == "" || c.VerifierRoutesFolder == "" {
		return fmt.Errorf("%w: configuration folders are required", ErrInvalidConfig)
	}
	return nil
}

// FirstEpochStart returns the start of round 0.
func (e EpochConfig) FirstEpochStart() time.Time {
	return time.Unix(int64(e.FirstEpochStartTime), 0)
}

func (e EpochConfig) EpochPeriod() time.Duration {
	return time.Duration(e.EpochPeriodSec) * time.Second
}

func (e EpochConfig) BitVoteWindow() time.Duration {
	return time.Duration(e.BitVoteWindowSec) * time.Second
}

func (t TimingConfig) CommitTime() time.Duration {
	return time.Duration(t.CommitTimeSec) * time.Second
}

func (t TimingConfig) BitVoteTime() time.Duration {
	return time.Duration(t.BitVoteTimeSec) * time.Second
}

func (t TimingConfig) ForceCloseBitVoting() time.Duration {
	return time.Duration(t.ForceCloseBitVotingSec) * time.Second
}
