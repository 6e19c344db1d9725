package rpc

import (
	"fmt"
	"net/http"

	"github.com/time-coin/timecoin-node/internal/treasury"
)

// handleFinalizedBlock applies a block pushed by a peer who finalized it,
// for nodes that missed (or never joined) the gossip finalized-block
// topic. Idempotent: a block already held at that height is a no-op as
// long as its hash matches the one already stored.
func (s *Server) handleFinalizedBlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req FinalizedBlockRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Block == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing block"))
		return
	}

	height := req.Block.Header.Height
	if height <= s.chain.TipHeight() {
		existing, err := s.chain.GetBlock(height)
		if err == nil && existing.Hash() == req.Block.Hash() {
			writeJSON(w, http.StatusOK, struct{}{})
			return
		}
		writeErr(w, http.StatusConflict, fmt.Errorf("block at height %d already finalized with a different hash", height))
		return
	}

	if err := s.chain.AddBlock(req.Block); err != nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("apply finalized block: %w", err))
		return
	}
	if s.pool != nil {
		s.pool.RemoveConfirmed(req.Block.Transactions)
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// handleRequestBlockProposal returns the proposal this node currently
// holds for the requested height, for peers who missed the proposal
// gossip message.
func (s *Server) handleRequestBlockProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req BlockProposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	proposal, ok := s.consensus.Proposal(req.Height)
	writeJSON(w, http.StatusOK, BlockProposalResponse{Found: ok, Proposal: proposal})
}

// handleBlockchainInfo answers GET /blockchain/info.
func (s *Server) handleBlockchainInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("GET required"))
		return
	}

	info := BlockchainInfo{
		Height:        s.chain.TipHeight(),
		BestBlockHash: s.chain.TipHash(),
		GenesisHash:   s.genesisHash,
		MempoolSize:   s.pool.Count(),
	}
	if s.registry != nil {
		info.MasternodeCount = len(s.registry.All())
		info.ActiveCount = len(s.registry.Active())
	}
	writeJSON(w, http.StatusOK, info)
}

// handlePeers answers GET /peers.
func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("GET required"))
		return
	}

	var out []PeerInfo
	if s.p2pNode != nil {
		for _, p := range s.p2pNode.PeerList() {
			out = append(out, PeerInfo{
				ID:          p.ID.String(),
				Source:      p.Source,
				ConnectedAt: p.ConnectedAt.Unix(),
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleMempoolAll answers GET /mempool/all.
func (s *Server) handleMempoolAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("GET required"))
		return
	}

	hashes := s.pool.Hashes()
	out := make([]interface{}, 0, len(hashes))
	for _, h := range hashes {
		if t := s.pool.Get(h); t != nil {
			out = append(out, t)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// handleInstantFinalitySubmit answers POST /instant-finality/submit.
func (s *Server) handleInstantFinalitySubmit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req InstantFinalitySubmitRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Transaction == nil {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing transaction"))
		return
	}

	txid, err := s.finality.Submit(req.Transaction)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, InstantFinalitySubmitResponse{TxID: txid})
}

// handleInstantFinalityVote answers POST /instant-finality/vote.
func (s *Server) handleInstantFinalityVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req InstantFinalityVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	status, err := s.finality.RecordVote(req.TxID, req.Voter, req.Approve, req.TotalVoters)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, InstantFinalityVoteResponse{Status: status.String()})
}

// handleInstantFinalityStatus answers POST /instant-finality/status.
func (s *Server) handleInstantFinalityStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req InstantFinalityStatusRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	status, ok := s.finality.Status(req.TxID)
	writeJSON(w, http.StatusOK, InstantFinalityStatusResponse{Status: status.String(), Found: ok})
}

// handleTreasuryProposals answers POST /treasury/proposals.
func (s *Server) handleTreasuryProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req TreasuryProposalRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.ID == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("missing proposal id"))
		return
	}

	p := s.treasury.Propose(req.ID, req.Description, req.VotingDeadline, req.ExecutionDeadline)
	writeJSON(w, http.StatusOK, p)
}

// handleTreasuryVote answers POST /treasury/vote.
func (s *Server) handleTreasuryVote(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	var req TreasuryVoteRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	ballot, err := parseBallot(req.Ballot)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if err := s.treasury.Vote(req.ID, req.Voter, ballot); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	yes, no, abstain, err := s.treasury.Tally(req.ID)
	if err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, TreasuryVoteResponse{Yes: yes, No: no, Abstain: abstain})
}

func parseBallot(s string) (treasury.Ballot, error) {
	switch s {
	case "yes":
		return treasury.BallotYes, nil
	case "no":
		return treasury.BallotNo, nil
	case "abstain":
		return treasury.BallotAbstain, nil
	default:
		return 0, fmt.Errorf("invalid ballot %q: expected yes, no, or abstain", s)
	}
}
