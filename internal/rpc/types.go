package rpc

import (
	"github.com/time-coin/timecoin-node/internal/wallet"
	"github.com/time-coin/timecoin-node/pkg/block"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// BlockchainInfo answers GET /blockchain/info.
type BlockchainInfo struct {
	Height          uint64     `json:"height"`
	BestBlockHash   types.Hash `json:"best_block_hash"`
	GenesisHash     types.Hash `json:"genesis_hash"`
	MasternodeCount int        `json:"masternode_count"`
	ActiveCount     int        `json:"active_count"`
	MempoolSize     int        `json:"mempool_size"`
}

// PeerInfo describes one connected peer for GET /peers.
type PeerInfo struct {
	ID          string `json:"id"`
	Source      string `json:"source"`
	ConnectedAt int64  `json:"connected_at"`
}

// FinalizedBlockRequest is the payload for POST /consensus/finalized-block.
type FinalizedBlockRequest struct {
	Block *block.Block `json:"block"`
}

// BlockProposalRequest asks the node for the proposal it currently holds
// for a given height (POST /consensus/request-block-proposal).
type BlockProposalRequest struct {
	Height uint64 `json:"height"`
}

// BlockProposalResponse carries the proposal, if one is held.
type BlockProposalResponse struct {
	Found    bool         `json:"found"`
	Proposal *block.Block `json:"proposal,omitempty"`
}

// InstantFinalitySubmitRequest is the payload for POST /instant-finality/submit.
type InstantFinalitySubmitRequest struct {
	Transaction *tx.Transaction `json:"transaction"`
}

// InstantFinalitySubmitResponse echoes the assigned transaction hash.
type InstantFinalitySubmitResponse struct {
	TxID types.Hash `json:"txid"`
}

// InstantFinalityVoteRequest is the payload for POST /instant-finality/vote.
type InstantFinalityVoteRequest struct {
	TxID        types.Hash `json:"txid"`
	Voter       string     `json:"voter"`
	Approve     bool       `json:"approve"`
	TotalVoters int        `json:"total_voters"`
}

// InstantFinalityVoteResponse reports the status after recording the vote.
type InstantFinalityVoteResponse struct {
	Status string `json:"status"`
}

// InstantFinalityStatusRequest is the payload for POST /instant-finality/status.
type InstantFinalityStatusRequest struct {
	TxID types.Hash `json:"txid"`
}

// InstantFinalityStatusResponse reports a transaction's lifecycle stage.
type InstantFinalityStatusResponse struct {
	Status string `json:"status"`
	Found  bool   `json:"found"`
}

// TreasuryProposalRequest is the payload for POST /treasury/proposals.
type TreasuryProposalRequest struct {
	ID                string `json:"id"`
	Description       string `json:"description"`
	VotingDeadline    int64  `json:"voting_deadline"`
	ExecutionDeadline int64  `json:"execution_deadline"`
}

// TreasuryVoteRequest is the payload for POST /treasury/vote.
type TreasuryVoteRequest struct {
	ID     string `json:"id"`
	Voter  string `json:"voter"`
	Ballot string `json:"ballot"` // "yes", "no", "abstain"
}

// TreasuryVoteResponse reports the proposal's current tally.
type TreasuryVoteResponse struct {
	Yes     uint32 `json:"yes"`
	No      uint32 `json:"no"`
	Abstain uint32 `json:"abstain"`
}

// errorResponse is the JSON body written on any handler failure.
type errorResponse struct {
	Error string `json:"error"`
}

// UTXOSubscribeRequest is the first message a client sends after
// upgrading to the /utxo/subscribe websocket: the set of outpoints and
// addresses it wants state-change notifications for.
type UTXOSubscribeRequest struct {
	Outpoints    []types.Outpoint `json:"outpoints"`
	Addresses    []types.Address  `json:"addresses"`
	SubscriberID string           `json:"subscriber_id"`
}

// UTXOStateNotification is pushed to a subscriber for every matching
// UTXO state transition.
type UTXOStateNotification struct {
	Outpoint  types.Outpoint `json:"outpoint"`
	OldState  string         `json:"old_state"`
	NewState  string         `json:"new_state"`
	Address   types.Address  `json:"address"`
	Amount    uint64         `json:"amount"`
	Timestamp int64          `json:"timestamp"`
}

// WalletCreateRequest is the payload for POST /wallet/create. A fresh
// mnemonic is generated server-side and its seed is used to derive the
// wallet's first receiving address.
type WalletCreateRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

// WalletCreateResponse returns the generated mnemonic (shown once) and
// the wallet's first receiving address.
type WalletCreateResponse struct {
	Mnemonic string        `json:"mnemonic"`
	Address  types.Address `json:"address"`
}

// WalletListResponse answers GET /wallet/list.
type WalletListResponse struct {
	Names []string `json:"names"`
}

// WalletAccountsRequest is the payload for POST /wallet/accounts.
type WalletAccountsRequest struct {
	Name string `json:"name"`
}

// WalletAccountsResponse lists the derived accounts for a wallet.
type WalletAccountsResponse struct {
	Accounts []wallet.AccountEntry `json:"accounts"`
}

// WalletNewAddressRequest is the payload for POST /wallet/address/new.
// Change selects the BIP-44 chain: false for a receiving (external)
// address, true for a change (internal) address.
type WalletNewAddressRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
	Label    string `json:"label"`
	Change   bool   `json:"change"`
}

// WalletNewAddressResponse carries the freshly derived address.
type WalletNewAddressResponse struct {
	Address types.Address `json:"address"`
	Index   uint32        `json:"index"`
}

// WalletBalanceRequest is the payload for POST /wallet/balance.
type WalletBalanceRequest struct {
	Name string `json:"name"`
}

// WalletBalanceResponse reports the wallet's aggregate UTXO balance.
// Confirmed is the sum of spendable (unspent) outputs; Unconfirmed is
// the sum of outputs mid state-transition (locked or spend-pending).
type WalletBalanceResponse struct {
	Confirmed   uint64 `json:"confirmed"`
	Unconfirmed uint64 `json:"unconfirmed"`
}

// WalletSendRequest is the payload for POST /wallet/send: spend from
// every address the named wallet controls to fund a single payment.
type WalletSendRequest struct {
	Name     string        `json:"name"`
	Password string        `json:"password"`
	To       types.Address `json:"to"`
	Amount   uint64        `json:"amount"`
	FeeRate  uint64        `json:"fee_rate"`
}

// WalletSendResponse echoes the broadcast transaction's hash.
type WalletSendResponse struct {
	TxID types.Hash `json:"txid"`
}
