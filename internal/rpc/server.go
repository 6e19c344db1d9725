// Package rpc implements the node's HTTP control and block-consensus
// broadcast surface.
package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/time-coin/timecoin-node/config"
	"github.com/time-coin/timecoin-node/internal/blockconsensus"
	"github.com/time-coin/timecoin-node/internal/chain"
	"github.com/time-coin/timecoin-node/internal/instantfinality"
	klog "github.com/time-coin/timecoin-node/internal/log"
	"github.com/time-coin/timecoin-node/internal/masternode"
	"github.com/time-coin/timecoin-node/internal/mempool"
	"github.com/time-coin/timecoin-node/internal/p2p"
	"github.com/time-coin/timecoin-node/internal/treasury"
	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/internal/wallet"
	"github.com/time-coin/timecoin-node/pkg/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Server is the node's HTTP API server: blockchain/peer/mempool queries,
// block-consensus broadcast endpoints, and the instant-finality/treasury
// submission paths from spec.md §6.
type Server struct {
	addr        string
	chain       *chain.Chain
	utxos       *utxo.Store
	pool        *mempool.Pool
	p2pNode     *p2p.Node
	registry    *masternode.Registry
	consensus   *blockconsensus.Manager
	finality    *instantfinality.Manager
	treasury    *treasury.Manager
	genesisHash types.Hash
	keystore    *wallet.Keystore // Optional; nil disables wallet endpoints.

	server      *http.Server
	logger      zerolog.Logger
	ln          net.Listener
	allowedNets []*net.IPNet
	corsOrigins []string
}

// Deps bundles the component references the RPC layer serves queries
// and mutations against.
type Deps struct {
	Chain       *chain.Chain
	UTXOs       *utxo.Store
	Pool        *mempool.Pool
	P2PNode     *p2p.Node
	Registry    *masternode.Registry
	Consensus   *blockconsensus.Manager
	Finality    *instantfinality.Manager
	Treasury    *treasury.Manager
	GenesisHash types.Hash
}

// New creates an RPC server bound to addr. rpcCfg controls IP allowlisting
// and CORS; omit it (or pass a zero value) to allow all origins.
func New(addr string, deps Deps, rpcCfg ...config.RPCConfig) *Server {
	s := &Server{
		addr:        addr,
		chain:       deps.Chain,
		utxos:       deps.UTXOs,
		pool:        deps.Pool,
		p2pNode:     deps.P2PNode,
		registry:    deps.Registry,
		consensus:   deps.Consensus,
		finality:    deps.Finality,
		treasury:    deps.Treasury,
		genesisHash: deps.GenesisHash,
		logger:      klog.WithComponent("rpc"),
	}

	if len(rpcCfg) > 0 {
		s.allowedNets = parseAllowedIPs(rpcCfg[0].AllowedIPs)
		s.corsOrigins = rpcCfg[0].CORSOrigins
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/consensus/finalized-block", s.withMiddleware(s.handleFinalizedBlock))
	mux.HandleFunc("/consensus/request-block-proposal", s.withMiddleware(s.handleRequestBlockProposal))
	mux.HandleFunc("/blockchain/info", s.withMiddleware(s.handleBlockchainInfo))
	mux.HandleFunc("/peers", s.withMiddleware(s.handlePeers))
	mux.HandleFunc("/mempool/all", s.withMiddleware(s.handleMempoolAll))
	mux.HandleFunc("/instant-finality/submit", s.withMiddleware(s.handleInstantFinalitySubmit))
	mux.HandleFunc("/instant-finality/vote", s.withMiddleware(s.handleInstantFinalityVote))
	mux.HandleFunc("/instant-finality/status", s.withMiddleware(s.handleInstantFinalityStatus))
	mux.HandleFunc("/treasury/proposals", s.withMiddleware(s.handleTreasuryProposals))
	mux.HandleFunc("/treasury/vote", s.withMiddleware(s.handleTreasuryVote))
	mux.HandleFunc("/utxo/subscribe", s.withMiddleware(s.handleUTXOSubscribe))
	mux.HandleFunc("/wallet/create", s.withMiddleware(s.handleWalletCreate))
	mux.HandleFunc("/wallet/list", s.withMiddleware(s.handleWalletList))
	mux.HandleFunc("/wallet/accounts", s.withMiddleware(s.handleWalletAccounts))
	mux.HandleFunc("/wallet/address/new", s.withMiddleware(s.handleWalletNewAddress))
	mux.HandleFunc("/wallet/balance", s.withMiddleware(s.handleWalletBalance))
	mux.HandleFunc("/wallet/send", s.withMiddleware(s.handleWalletSend))
	mux.HandleFunc("/metrics", s.withMiddleware(promhttp.Handler().ServeHTTP))

	s.server = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// SetKeystore attaches a wallet keystore, enabling wallet RPC endpoints.
func (s *Server) SetKeystore(ks *wallet.Keystore) {
	s.keystore = ks
}

// parseAllowedIPs converts string IP/CIDR entries into net.IPNet.
func parseAllowedIPs(entries []string) []*net.IPNet {
	var nets []*net.IPNet
	for _, entry := range entries {
		_, ipNet, err := net.ParseCIDR(entry)
		if err == nil {
			nets = append(nets, ipNet)
			continue
		}
		ip := net.ParseIP(entry)
		if ip == nil {
			continue
		}
		bits := 32
		if ip.To4() == nil {
			bits = 128
		}
		nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
	}
	return nets
}

// Start begins listening and serving in a background goroutine. It
// returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rpc listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("RPC server error")
		}
	}()

	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) isIPAllowed(ip net.IP) bool {
	for _, n := range s.allowedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	if len(s.corsOrigins) == 0 {
		return
	}
	origin := r.Header.Get("Origin")
	for _, allowed := range s.corsOrigins {
		if allowed == "*" || allowed == origin {
			w.Header().Set("Access-Control-Allow-Origin", allowed)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}

// withMiddleware wraps a handler with IP filtering and CORS, matching
// every registered endpoint the same way.
func (s *Server) withMiddleware(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(s.allowedNets) > 0 {
			host, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			ip := net.ParseIP(host)
			if ip == nil || !s.isIPAllowed(ip) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
		}

		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		h(w, r)
	}
}

// decodeBody reads and JSON-decodes a size-limited request body into v.
func decodeBody(r *http.Request, v interface{}) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(body) > maxBodySize {
		return fmt.Errorf("request body too large")
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
