// Timecoin full node daemon.
//
// Usage:
//
//	timecoind --masternode --validator-key=...   Run as a masternode
//	timecoind --help                             Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/time-coin/timecoin-node/config"
	klog "github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/node"
	"github.com/time-coin/timecoin-node/pkg/types"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 1a. Set address HRP based on network ────────────────────────────
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	if err := config.EnsureDataDirs(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating data directories: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ────────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/timecoind.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.WithComponent("main")

	logger.Info().
		Str("network", string(cfg.Network)).
		Bool("masternode", cfg.Masternode.Enabled).
		Str("data_dir", cfg.DataDir).
		Msg("Starting Timecoin node")

	// ── 3. Build and start the node ──────────────────────────────────────
	n, err := node.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to construct node")
	}

	if err := n.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start node")
	}

	logger.Info().
		Uint64("height", n.Height()).
		Str("rpc", n.RPCAddr()).
		Msg("Node started successfully")

	// ── 4. Wait for shutdown ─────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	n.Stop()
	logger.Info().Msg("Goodbye!")
}
