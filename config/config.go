// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: Defined in genesis, immutable, must match across all nodes
//   - Node settings: Runtime configuration, can vary per node
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// =============================================================================
// Node Configuration (runtime, per-node settings)
// =============================================================================

// Config holds node-specific runtime configuration.
// These settings can vary between nodes without breaking consensus.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// P2P networking
	P2P P2PConfig

	// RPC server
	RPC RPCConfig

	// Wallet
	Wallet WalletConfig

	// Masternode operation (operational, not consensus rules)
	Masternode MasternodeConfig

	// Logging
	Log LogConfig

	// DevMode runs a single-node bootstrap network (no peer discovery required).
	DevMode bool

	// FullSync records the --full-sync flag. No node component reads it:
	// startup sync runs the same way whether or not it is set.
	FullSync bool

	// GenesisPath overrides the embedded genesis with a file on disk, read from
	// the GENESIS_PATH environment variable.
	GenesisPath string

	// PublicIP is read from the NODE_PUBLIC_IP environment variable. It is
	// stored only: the P2P layer does not read it, and the addresses
	// advertised to peers are not overridden by it.
	PublicIP string

	// QuietDiscovery is read from the TIMECOIN_QUIET_DISCOVERY environment
	// variable. It is stored only: discovery logging does not change with it.
	QuietDiscovery bool

	// StrictDiscovery is read from the TIMECOIN_STRICT_DISCOVERY environment
	// variable. It is stored only: bootstrap peers are not filtered by
	// reachability because of it.
	StrictDiscovery bool

	// Maintenance (not persisted in config file)
	RebuildIndexes bool
}

// MasternodeConfig holds masternode block-production settings.
// Note: Whether to run as a masternode is a node choice; HOW consensus
// validates is protocol.
type MasternodeConfig struct {
	Enabled      bool   `conf:"masternode.enabled"`
	Address      string `conf:"masternode.address"`
	ValidatorKey string `conf:"masternode.validatorkey"` // Path to Schnorr signing key
	Tier         string `conf:"masternode.tier"`         // free, bronze, silver, gold
}

// P2PConfig holds peer-to-peer network settings.
type P2PConfig struct {
	Enabled    bool     `conf:"p2p.enabled"`
	ListenAddr string   `conf:"p2p.listen"`
	Port       int      `conf:"p2p.port"`
	Seeds      []string `conf:"p2p.seeds"`
	MaxPeers   int      `conf:"p2p.maxpeers"`
	NoDiscover bool     `conf:"p2p.nodiscover"`
	DHTServer  bool     `conf:"p2p.dhtserver"` // Run DHT in server mode (for seeds/masternodes)
	ClearBans  bool     // Clear all peer bans on startup (not persisted in config file).
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
	EnableWS    bool     `conf:"rpc.ws"`   // Enable the wallet UTXOSubscribe websocket upgrade.
	WSPort      int      `conf:"rpc.wsport"`
}

// WalletConfig holds wallet settings.
type WalletConfig struct {
	Enabled  bool   `conf:"wallet.enabled"`
	FilePath string `conf:"wallet.file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.timecoin
//	macOS:   ~/Library/Application Support/TimeCoin
//	Windows: %APPDATA%\TimeCoin
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".timecoin"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "TimeCoin")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "TimeCoin")
		}
		return filepath.Join(home, "AppData", "Roaming", "TimeCoin")
	default:
		return filepath.Join(home, ".timecoin")
	}
}

// ChainDataDir returns the chain-specific data directory.
func (c *Config) ChainDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// BlocksDir returns the blocks storage directory (badger KV dir).
func (c *Config) BlocksDir() string {
	return filepath.Join(c.ChainDataDir(), "blockchain")
}

// UTXOSnapshotPath returns the UTXO snapshot file path used by three-tier sync.
func (c *Config) UTXOSnapshotPath() string {
	return filepath.Join(c.ChainDataDir(), "blockchain", "utxo_snapshot")
}

// MempoolFile returns the persisted mempool file path.
func (c *Config) MempoolFile() string {
	return filepath.Join(c.ChainDataDir(), "mempool.json")
}

// BlockHeightFile returns the last-known block height marker file path.
func (c *Config) BlockHeightFile() string {
	return filepath.Join(c.ChainDataDir(), "block_height.txt")
}

// WalletDir returns the wallet storage directory.
func (c *Config) WalletDir() string {
	return filepath.Join(c.ChainDataDir(), "wallets")
}

// NodeWalletFile returns the node's own operating wallet file path.
func (c *Config) NodeWalletFile() string {
	return filepath.Join(c.WalletDir(), "node.json")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.ChainDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "timecoin.conf")
}

// =============================================================================
// Environment overrides
// =============================================================================

// ApplyEnv applies environment-variable overrides on top of file/flag config,
// matching the env vars named in the external-interfaces surface.
func (c *Config) ApplyEnv() {
	if ip := os.Getenv("NODE_PUBLIC_IP"); ip != "" {
		c.PublicIP = ip
	}
	if v := os.Getenv("TIMECOIN_QUIET_DISCOVERY"); v != "" {
		c.QuietDiscovery = v == "1" || v == "true"
	}
	if v := os.Getenv("TIMECOIN_STRICT_DISCOVERY"); v != "" {
		c.StrictDiscovery = v == "1" || v == "true"
	}
	if p := os.Getenv("GENESIS_PATH"); p != "" {
		c.GenesisPath = p
	}
}
