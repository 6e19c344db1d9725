// Package node wires every consensus, storage, and networking component
// into a single runnable masternode.
package node

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/time-coin/timecoin-node/config"
	"github.com/time-coin/timecoin-node/internal/approval"
	"github.com/time-coin/timecoin-node/internal/blockconsensus"
	"github.com/time-coin/timecoin-node/internal/chain"
	"github.com/time-coin/timecoin-node/internal/health"
	"github.com/time-coin/timecoin-node/internal/instantfinality"
	klog "github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/internal/mempool"
	"github.com/time-coin/timecoin-node/internal/metrics"
	"github.com/time-coin/timecoin-node/internal/orchestrator"
	"github.com/time-coin/timecoin-node/internal/p2p"
	"github.com/time-coin/timecoin-node/internal/rpc"
	"github.com/time-coin/timecoin-node/internal/storage"
	internalsync "github.com/time-coin/timecoin-node/internal/sync"
	"github.com/time-coin/timecoin-node/internal/treasury"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/internal/wallet"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/crypto"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/rs/zerolog"
)

// devRoundInterval is the round cadence used when cfg.DevMode is set, in
// place of the protocol's 24h BlockInterval, so a single-node bootstrap
// network produces blocks fast enough to exercise end to end.
const devRoundInterval = 30 * time.Second

// approvalCacheCapacity bounds the last-mile decision cache (spec.md §4.5).
const approvalCacheCapacity = 10_000

// Node is a fully-initialized masternode.
type Node struct {
	cfg         *config.Config
	genesisHash types.Hash
	logger      zerolog.Logger

	// Core
	db        storage.DB
	utxoStore *utxo.Store
	ch        *chain.Chain
	pool      *mempool.Pool

	// Consensus
	registry  *masternode.Registry
	consensus *blockconsensus.Manager
	finality  *instantfinality.Manager
	healthTr  *health.Tracker
	treasury  *treasury.Manager
	approvals *approval.Manager
	orch      *orchestrator.Orchestrator

	// Networking
	p2pNode     *p2p.Node
	p2pSyncer   *p2p.Syncer
	syncer      *internalsync.Syncer
	broadcaster *p2pBroadcaster
	selfID      string

	// RPC
	rpcServer *rpc.Server
	keystore  *wallet.Keystore

	// Masternode operation
	validatorKey   *crypto.PrivateKey
	masternodeAddr types.Address
	masternodeTier masternode.Tier
	isMasternode   bool

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates and initializes a new Node: storage, consensus primitives,
// P2P, and RPC are all constructed and started. Background round/sync/
// heartbeat loops are not started until Start() is called.
func New(cfg *config.Config) (*Node, error) {
	// ── 1. Address HRP ───────────────────────────────────────────────
	if cfg.Network == config.Testnet {
		types.SetAddressHRP(types.TestnetHRP)
	} else {
		types.SetAddressHRP(types.MainnetHRP)
	}

	// ── 2. Logger ─────────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			return nil, fmt.Errorf("creating logs dir: %w", err)
		}
		logFile = logsDir + "/timecoind.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		return nil, fmt.Errorf("initializing logger: %w", err)
	}
	logger := klog.WithComponent("node")

	// ── 3. Genesis ────────────────────────────────────────────────────
	genesis, err := genesisForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("load genesis: %w", err)
	}
	genesisHash := genesis.Hash()

	logger.Info().
		Str("network", string(cfg.Network)).
		Str("genesis_hash", genesisHash.String()).
		Msg("Starting TimeCoin node")

	// ── 4. Storage ────────────────────────────────────────────────────
	db, err := storage.NewBadger(cfg.ChainDataDir())
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", cfg.ChainDataDir(), err)
	}

	utxoStore := utxo.NewStore(db)
	logger.Info().Str("path", cfg.ChainDataDir()).Msg("Database opened")

	// ── 5. Chain ──────────────────────────────────────────────────────
	ch, err := chain.New(db, utxoStore, genesis)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create chain: %w", err)
	}
	logger.Info().
		Uint64("height", ch.TipHeight()).
		Str("tip", ch.TipHash().String()).
		Msg("Chain ready")

	// ── 6. Masternode identity ──────────────────────────────────────
	var validatorKey *crypto.PrivateKey
	var masternodeAddr types.Address
	if cfg.Masternode.Enabled {
		if cfg.Masternode.ValidatorKey != "" {
			validatorKey, err = loadValidatorKey(cfg.Masternode.ValidatorKey)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("load validator key %s: %w", cfg.Masternode.ValidatorKey, err)
			}
			logger.Info().
				Str("pubkey", hex.EncodeToString(validatorKey.PublicKey())[:16]+"...").
				Msg("Validator key loaded")
		}
		masternodeAddr, err = resolveMasternodeAddress(cfg.Masternode.Address, validatorKey)
		if err != nil {
			db.Close()
			if validatorKey != nil {
				validatorKey.Zero()
			}
			return nil, fmt.Errorf("resolve masternode address: %w", err)
		}
	}
	masternodeTier := masternode.Tier(cfg.Masternode.Tier)
	if masternodeTier == "" {
		masternodeTier = masternode.TierFree
	}

	// ── 7. Mempool ────────────────────────────────────────────────────
	pool := mempool.New(newUTXOAdapter(utxoStore), 5000)
	pool.SetCoinbaseMaturity(config.CoinbaseMaturity, ch.TipHeight, utxoStore)
	logger.Info().Msg("Mempool ready")

	// ── 8. Consensus primitives ───────────────────────────────────────
	registry := masternode.NewRegistry()
	consensusMgr := blockconsensus.New(registry)
	finalityMgr := instantfinality.New(utxoStore, ch.TipHeight)
	healthTr := health.New(registry, time.Now)
	treasuryMgr := treasury.New(registry)
	approvalMgr := approval.New(approvalCacheCapacity)

	// ── 9. P2P ────────────────────────────────────────────────────────
	var p2pNode *p2p.Node
	var p2pSyncer *p2p.Syncer
	var broadcaster *p2pBroadcaster
	var syncer *internalsync.Syncer
	selfID := ""

	if cfg.P2P.Enabled {
		p2pNode = p2p.New(p2p.Config{
			ListenAddr: cfg.P2P.ListenAddr,
			Port:       cfg.P2P.Port,
			Seeds:      cfg.P2P.Seeds,
			MaxPeers:   cfg.P2P.MaxPeers,
			NoDiscover: cfg.P2P.NoDiscover,
			DB:         db,
			DHTServer:  cfg.P2P.DHTServer,
			NetworkID:  string(cfg.Network),
			DataDir:    cfg.ChainDataDir(),
		})

		p2pNode.SetGenesisHash(genesisHash)
		p2pNode.SetHeightFn(func() uint64 { return ch.TipHeight() })

		p2pNode.SetTxHandler(func(from peer.ID, data []byte) {
			var t tx.Transaction
			if err := json.Unmarshal(data, &t); err != nil {
				p2pNode.BanManager.RecordOffense(from, p2p.PenaltyInvalidTx, "unmarshal: "+err.Error())
				return
			}
			fee, err := pool.Add(&t)
			if err != nil {
				logger.Debug().Err(err).Msg("rejected gossiped transaction")
				p2pNode.BanManager.RecordOffense(from, p2p.PenaltyInvalidTx, err.Error())
				return
			}
			logger.Debug().Str("tx", t.Hash().String()).Uint64("fee", fee).Msg("transaction added to mempool")
		})

		p2pNode.SetBlockHandler(func(from peer.ID, data []byte) {
			var blk block.Block
			if err := json.Unmarshal(data, &blk); err != nil {
				p2pNode.BanManager.RecordOffense(from, p2p.PenaltyInvalidBlock, "unmarshal: "+err.Error())
				return
			}
			applyGossipedBlock(ch, pool, logger, &blk)
		})

		p2pNode.SetProposalHandler(func(blk *block.Block) {
			consensusMgr.Propose(blk)
		})
		p2pNode.SetVoteHandler(func(msg *p2p.VoteMessage) {
			consensusMgr.Vote(msg.Height, msg.BlockHash, msg.Voter, msg.Approve)
			metrics.VotesReceivedTotal.WithLabelValues(fmt.Sprint(msg.Approve)).Inc()
		})
		p2pNode.SetFinalizedHandler(func(blk *block.Block) {
			applyGossipedBlock(ch, pool, logger, blk)
		})

		if err := p2pNode.Start(); err != nil {
			db.Close()
			if validatorKey != nil {
				validatorKey.Zero()
			}
			return nil, fmt.Errorf("start P2P: %w", err)
		}
		selfID = p2pNode.ID().String()

		logger.Info().
			Str("id", selfID).
			Int("port", cfg.P2P.Port).
			Bool("discovery", !cfg.P2P.NoDiscover).
			Msg("P2P node started")

		if err := p2pNode.JoinHeartbeat(); err != nil {
			logger.Warn().Err(err).Msg("failed to join heartbeat topic")
		}
		if err := p2pNode.JoinProposal(); err != nil {
			logger.Warn().Err(err).Msg("failed to join proposal topic")
		}
		if err := p2pNode.JoinVote(); err != nil {
			logger.Warn().Err(err).Msg("failed to join vote topic")
		}
		if err := p2pNode.JoinFinalized(); err != nil {
			logger.Warn().Err(err).Msg("failed to join finalized topic")
		}

		broadcaster = newP2PBroadcaster(p2pNode)
		broadcaster.SetOnHeartbeat(func(msg *p2p.HeartbeatMessage) {
			recordHeartbeat(registry, healthTr, msg)
		})

		p2pSyncer = p2p.NewSyncer(p2pNode)
		p2pSyncer.RegisterHandler(func(fromHeight uint64, max uint32) []*block.Block {
			var blocks []*block.Block
			for h := fromHeight; h < fromHeight+uint64(max); h++ {
				blk, err := ch.GetBlock(h)
				if err != nil {
					break
				}
				blocks = append(blocks, blk)
			}
			return blocks
		})
		p2pSyncer.RegisterBlockHashHandler(func(height uint64) (types.Hash, bool) {
			blk, err := ch.GetBlock(height)
			if err != nil {
				return types.Hash{}, false
			}
			return blk.Hash(), true
		})
		p2pSyncer.RegisterHeightHandler(func() (uint64, string) {
			return ch.TipHeight(), ch.TipHash().String()
		})

		syncer = internalsync.New(ch, p2pSyncer)
		logger.Info().Msg("chain sync protocol registered")
	} else {
		logger.Warn().Msg("P2P disabled by config; node will run isolated")
	}

	// ── 10. Orchestrator ──────────────────────────────────────────────
	orch := orchestrator.New(
		selfID,
		registry,
		consensusMgr,
		finalityMgr,
		pool,
		ch,
		orchestratorBroadcaster(broadcaster),
		config.FixedRewardSchedule{},
		config.TreasuryAddress(),
	)
	orch.SetApprovalManager(approvalMgr)

	// ── 11. Self-registration ─────────────────────────────────────────
	isMasternode := cfg.Masternode.Enabled && selfID != ""
	if isMasternode {
		registry.Register(&masternode.Record{
			ID:            selfID,
			WalletAddress: masternodeAddr,
			Tier:          masternodeTier,
			RegisteredAt:  time.Now().Unix(),
			Status:        masternode.StatusActive,
			LastHeartbeat: time.Now().Unix(),
		})
		logger.Info().Str("id", selfID).Str("tier", string(masternodeTier)).Msg("registered self as masternode")
	}

	// ── 12. RPC ───────────────────────────────────────────────────────
	var rpcServer *rpc.Server
	var keystore *wallet.Keystore
	if cfg.RPC.Enabled {
		rpcAddr := fmt.Sprintf("%s:%d", cfg.RPC.Addr, cfg.RPC.Port)
		rpcServer = rpc.New(rpcAddr, rpc.Deps{
			Chain:       ch,
			UTXOs:       utxoStore,
			Pool:        pool,
			P2PNode:     p2pNode,
			Registry:    registry,
			Consensus:   consensusMgr,
			Finality:    finalityMgr,
			Treasury:    treasuryMgr,
			GenesisHash: genesisHash,
		}, cfg.RPC)

		if err := rpcServer.Start(); err != nil {
			if p2pNode != nil {
				p2pNode.Stop()
			}
			db.Close()
			if validatorKey != nil {
				validatorKey.Zero()
			}
			return nil, fmt.Errorf("start RPC at %s: %w", rpcAddr, err)
		}
		logger.Info().Str("addr", rpcServer.Addr()).Msg("RPC server started")

		if cfg.Wallet.Enabled {
			keystore, err = wallet.NewKeystore(cfg.KeystoreDir())
			if err != nil {
				rpcServer.Stop()
				if p2pNode != nil {
					p2pNode.Stop()
				}
				db.Close()
				if validatorKey != nil {
					validatorKey.Zero()
				}
				return nil, fmt.Errorf("create wallet keystore: %w", err)
			}
			rpcServer.SetKeystore(keystore)
			logger.Info().Str("path", cfg.KeystoreDir()).Msg("wallet keystore enabled")
		}
	} else {
		logger.Warn().Msg("RPC disabled by config")
	}

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		cfg:            cfg,
		genesisHash:    genesisHash,
		logger:         logger,
		db:             db,
		utxoStore:      utxoStore,
		ch:             ch,
		pool:           pool,
		registry:       registry,
		consensus:      consensusMgr,
		finality:       finalityMgr,
		healthTr:       healthTr,
		treasury:       treasuryMgr,
		approvals:      approvalMgr,
		orch:           orch,
		p2pNode:        p2pNode,
		p2pSyncer:      p2pSyncer,
		syncer:         syncer,
		broadcaster:    broadcaster,
		selfID:         selfID,
		rpcServer:      rpcServer,
		keystore:       keystore,
		validatorKey:   validatorKey,
		masternodeAddr: masternodeAddr,
		masternodeTier: masternodeTier,
		isMasternode:   isMasternode,
		ctx:            ctx,
		cancel:         cancel,
	}

	return n, nil
}

// genesisForConfig returns the embedded genesis block, or a block loaded
// from cfg.GenesisPath when one is set (a JSON-encoded block.Block, used
// for standing up isolated test networks with a different allocation).
func genesisForConfig(cfg *config.Config) (*block.Block, error) {
	if cfg.GenesisPath == "" {
		return config.GenesisBlock(), nil
	}
	data, err := os.ReadFile(expandHome(cfg.GenesisPath))
	if err != nil {
		return nil, fmt.Errorf("read genesis file %s: %w", cfg.GenesisPath, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("parse genesis file %s: %w", cfg.GenesisPath, err)
	}
	return &blk, nil
}

// applyGossipedBlock applies a finalized block received over gossip
// (either the finalized-block topic, the canonical path, or the plain
// block topic, kept for light-client compatibility). Both topics can
// carry the same block, so height-gap/already-applied errors are
// swallowed rather than logged as failures.
func applyGossipedBlock(ch *chain.Chain, pool *mempool.Pool, logger zerolog.Logger, blk *block.Block) {
	if err := ch.AddBlock(blk); err != nil {
		if errors.Is(err, chain.ErrHeightGap) || errors.Is(err, chain.ErrPrevHashMismatch) {
			return
		}
		logger.Debug().Err(err).Uint64("height", blk.Header.Height).Msg("failed to apply gossiped block")
		return
	}
	pool.RemoveConfirmed(blk.Transactions)
	logger.Info().
		Uint64("height", blk.Header.Height).
		Str("hash", blk.Hash().String()).
		Int("txs", len(blk.Transactions)).
		Msg("block received and applied")
}

// recordHeartbeat feeds a verified heartbeat into the health tracker and
// auto-registers masternodes that announce themselves for the first
// time, covering the named race condition where a new masternode's
// first heartbeat arrives before any operator-driven registration.
func recordHeartbeat(registry *masternode.Registry, healthTr *health.Tracker, msg *p2p.HeartbeatMessage) {
	if _, ok := registry.Get(msg.NodeID); !ok {
		registry.Register(&masternode.Record{
			ID:              msg.NodeID,
			Tier:            masternode.Tier(msg.Tier),
			RegisteredAt:    msg.Timestamp,
			Status:          masternode.StatusActive,
			ReputationScore: msg.Reputation,
			DaysActive:      msg.DaysActive,
			LastHeartbeat:   msg.Timestamp,
		})
	}
	healthTr.RecordResponse(msg.NodeID, 0)
}

// orchestratorBroadcaster returns b as an orchestrator.Broadcaster. When
// P2P is disabled b is nil and RunRound is never invoked, so the nil
// interface value is never dereferenced.
func orchestratorBroadcaster(b *p2pBroadcaster) orchestrator.Broadcaster {
	if b == nil {
		return nil
	}
	return b
}

// Start launches the node's background goroutines: startup sync, the
// periodic sync loop, the masternode round loop, heartbeat broadcasting,
// and health-expiration bookkeeping.
func (n *Node) Start() error {
	if n.p2pNode != nil && n.syncer != nil {
		n.runStartupSync()
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runSyncLoop()
		}()
	}

	if n.isMasternode {
		n.wg.Add(1)
		go func() {
			defer n.wg.Done()
			n.runRoundLoop()
		}()

		if n.validatorKey != nil && n.p2pNode != nil {
			n.wg.Add(1)
			go func() {
				defer n.wg.Done()
				n.runHeartbeatLoop()
			}()
		}
	}

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.runHealthExpirationLoop()
	}()

	n.logger.Info().
		Uint64("height", n.ch.TipHeight()).
		Str("tip", n.ch.TipHash().String()).
		Bool("masternode", n.isMasternode).
		Msg("node started successfully")

	return nil
}

// Stop performs graceful shutdown in reverse order.
func (n *Node) Stop() {
	n.cancel()
	n.wg.Wait()

	if n.rpcServer != nil {
		n.rpcServer.Stop()
	}
	if n.p2pNode != nil {
		n.p2pNode.Stop()
	}
	if n.validatorKey != nil {
		n.validatorKey.Zero()
	}
	if n.db != nil {
		n.db.Close()
	}

	n.logger.Info().Msg("node stopped")
}

// RPCAddr returns the address the RPC server is listening on.
func (n *Node) RPCAddr() string {
	if n.rpcServer == nil {
		return ""
	}
	return n.rpcServer.Addr()
}

// Height returns the current chain height.
func (n *Node) Height() uint64 {
	return n.ch.TipHeight()
}

// ── Round loop ───────────────────────────────────────────────────────────

// runRoundLoop runs one orchestrator round per block interval (the
// protocol's 24h BlockInterval, or devRoundInterval under cfg.DevMode).
func (n *Node) runRoundLoop() {
	interval := config.BlockInterval
	if n.cfg.DevMode {
		interval = devRoundInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			result, err := n.orch.RunRound(n.ctx)
			if err != nil {
				n.logger.Warn().Err(err).Msg("round failed to reach consensus")
				continue
			}
			n.logger.Info().
				Uint64("height", result.Height).
				Str("strategy", result.Strategy).
				Bool("leader", result.IsLeader).
				Msg("round finalized")
		}
	}
}

// ── Heartbeat loop ─────────────────────────────────────────────────────────

func (n *Node) runHeartbeatLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	n.broadcastHeartbeat()
	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.broadcastHeartbeat()
		}
	}
}

func (n *Node) broadcastHeartbeat() {
	pubKey := n.validatorKey.PublicKey()
	height := n.ch.TipHeight()
	now := time.Now().Unix()

	signingBytes := p2p.HeartbeatSigningBytes(pubKey, height, now)
	hash := crypto.Hash(signingBytes)
	sig, err := n.validatorKey.Sign(hash[:])
	if err != nil {
		n.logger.Warn().Err(err).Msg("failed to sign heartbeat")
		return
	}

	rec, _ := n.registry.Get(n.selfID)
	msg := &p2p.HeartbeatMessage{
		PubKey:       pubKey,
		NodeID:       n.selfID,
		Height:       height,
		ChainTipHash: n.ch.TipHash(),
		Tier:         string(n.masternodeTier),
		Version:      "1",
		Timestamp:    now,
		Signature:    sig,
	}
	if rec != nil {
		msg.Reputation = rec.ReputationScore
		msg.DaysActive = rec.DaysActive
	}

	if err := n.p2pNode.BroadcastHeartbeat(msg); err != nil {
		n.logger.Warn().Err(err).Msg("failed to broadcast heartbeat")
	}
}

// ── Health expiration loop ───────────────────────────────────────────────

func (n *Node) runHealthExpirationLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			n.healthTr.CheckExpirations()
			metrics.MempoolSize.Set(float64(n.pool.Count()))
		}
	}
}

// ── Sync ───────────────────────────────────────────────────────────────────

func (n *Node) runSyncLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			if n.p2pNode.PeerCount() == 0 {
				continue
			}
			n.runStartupSync()
		}
	}
}

// runStartupSync implements spec.md §4.9's Tier 1 height poll, escalating
// to Tier 2 batch fetch for any gap it finds. Tier 3 (UTXO-snapshot
// bootstrap) has no SnapshotSource implementation yet, so a Critical gap
// is logged and left for a future pass rather than attempted.
func (n *Node) runStartupSync() {
	peers := n.p2pNode.PeerList()
	if len(peers) == 0 {
		return
	}

	limit := 5
	if len(peers) < limit {
		limit = len(peers)
	}

	var reports []internalsync.PeerHeight
	bestPeerByHeight := make(map[uint64]peer.ID)
	for _, p := range peers[:limit] {
		reqCtx, cancel := context.WithTimeout(n.ctx, 5*time.Second)
		resp, err := n.p2pSyncer.RequestHeight(reqCtx, p.ID)
		cancel()
		if err != nil {
			continue
		}
		reports = append(reports, internalsync.PeerHeight{PeerID: p.ID.String(), Height: resp.Height})
		bestPeerByHeight[resp.Height] = p.ID
	}
	if len(reports) == 0 {
		return
	}

	consensusHeight, ok := internalsync.PollHeights(reports)
	if !ok {
		n.logger.Debug().Msg("no quorum height among sampled peers, skipping sync")
		return
	}

	localHeight := n.ch.TipHeight()
	if consensusHeight <= localHeight {
		return
	}
	gap := consensusHeight - localHeight
	class := internalsync.ClassifyGap(gap, false)

	switch class {
	case internalsync.InSync:
		return
	case internalsync.SmallGap, internalsync.MediumGap, internalsync.LargeGap:
		peerID := bestPeerByHeight[consensusHeight].String()
		err := n.syncer.TierTwoFetch(n.ctx, peerID, consensusHeight, func(p internalsync.Progress) {
			n.logger.Debug().Float64("percent", p.Percent()).Msg("sync progress")
		})
		if err != nil {
			n.logger.Warn().Err(err).Uint64("gap", gap).Msg("tier 2 sync failed")
		} else {
			n.logger.Info().Uint64("height", n.ch.TipHeight()).Msg("tier 2 sync complete")
		}
	case internalsync.Critical:
		n.logger.Warn().
			Uint64("local_height", localHeight).
			Uint64("peer_height", consensusHeight).
			Msg("sync gap classified critical; snapshot bootstrap (tier 3) is not yet implemented, leaving node behind")
	}
}
