package config

import (
	"fmt"
)

// ValidMasternodeTiers are the accepted values for masternode.tier.
var ValidMasternodeTiers = map[string]bool{
	"free":   true,
	"bronze": true,
	"silver": true,
	"gold":   true,
}

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.P2P.Port < 0 || cfg.P2P.Port > 65535 {
		return fmt.Errorf("p2p.port must be in range [0, 65535]")
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	if cfg.RPC.EnableWS && (cfg.RPC.WSPort < 0 || cfg.RPC.WSPort > 65535) {
		return fmt.Errorf("rpc.wsport must be in range [0, 65535]")
	}

	if cfg.Masternode.Tier == "" {
		cfg.Masternode.Tier = "free"
	}
	if !ValidMasternodeTiers[cfg.Masternode.Tier] {
		return fmt.Errorf("masternode.tier must be one of free, bronze, silver, gold")
	}
	if cfg.Masternode.Enabled {
		if cfg.Masternode.Address == "" {
			return fmt.Errorf("masternode.enabled requires masternode.address")
		}
		if cfg.Masternode.ValidatorKey == "" {
			return fmt.Errorf("masternode.enabled requires masternode.validatorkey")
		}
	}

	return nil
}
