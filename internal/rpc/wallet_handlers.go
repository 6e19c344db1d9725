package rpc

import (
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/time-coin/timecoin-node/internal/utxo"
	"github.com/time-coin/timecoin-node/internal/wallet"
	"github.com/time-coin/timecoin-node/pkg/crypto"
	"github.com/time-coin/timecoin-node/pkg/tx"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// requireKeystore writes a 503 and returns false when no keystore was
// attached via SetKeystore (node started without --wallet).
func (s *Server) requireKeystore(w http.ResponseWriter) bool {
	if s.keystore == nil {
		writeErr(w, http.StatusServiceUnavailable, fmt.Errorf("wallet support disabled on this node"))
		return false
	}
	return true
}

// handleWalletCreate generates a new mnemonic, derives its first
// receiving address, and persists the encrypted wallet.
func (s *Server) handleWalletCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	var req WalletCreateRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Name == "" || req.Password == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("name and password are required"))
		return
	}

	mnemonic, err := wallet.GenerateMnemonic()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	seed, err := wallet.SeedFromMnemonic(mnemonic, "")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.keystore.Create(req.Name, seed, []byte(req.Password), wallet.DefaultParams()); err != nil {
		writeErr(w, http.StatusConflict, err)
		return
	}

	addr, err := s.deriveAndRecordAddress(req.Name, seed, wallet.ChangeExternal, "default")
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, WalletCreateResponse{Mnemonic: mnemonic, Address: addr})
}

// handleWalletList answers GET /wallet/list with the names of every
// wallet file in the keystore.
func (s *Server) handleWalletList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("GET required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	names, err := s.keystore.List()
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletListResponse{Names: names})
}

// handleWalletAccounts lists the accounts derived for a wallet so far.
func (s *Server) handleWalletAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	var req WalletAccountsRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	accounts, err := s.keystore.ListAccounts(req.Name)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, WalletAccountsResponse{Accounts: accounts})
}

// handleWalletNewAddress derives and records the next external or
// change address for an existing wallet.
func (s *Server) handleWalletNewAddress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	var req WalletNewAddressRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	seed, err := s.keystore.Load(req.Name, []byte(req.Password))
	if err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}

	change := wallet.ChangeExternal
	if req.Change {
		change = wallet.ChangeInternal
	}
	addr, index, err := s.deriveNextAddress(req.Name, seed, uint32(change), req.Label)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, WalletNewAddressResponse{Address: addr, Index: index})
}

// handleWalletBalance sums the value of every spendable and in-flight
// UTXO across every address a wallet has derived so far.
func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	var req WalletBalanceRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	accounts, err := s.keystore.ListAccounts(req.Name)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}

	var bal WalletBalanceResponse
	for _, acct := range accounts {
		addr, err := parseAccountAddress(acct)
		if err != nil {
			continue
		}
		outs, err := s.utxos.GetByAddress(addr)
		if err != nil {
			continue
		}
		for _, u := range outs {
			switch u.State {
			case utxo.StateUnspent:
				bal.Confirmed += u.Value
			case utxo.StateLocked, utxo.StateSpentPending:
				bal.Unconfirmed += u.Value
			}
		}
	}
	writeJSON(w, http.StatusOK, bal)
}

// handleWalletSend builds, signs, and submits a payment transaction
// funded from every address the named wallet has derived, using
// wallet.SelectCoins (the smallest single covering UTXO or a largest-first
// accumulation, whichever leaves less change) and sending change back to a freshly
// derived change address.
func (s *Server) handleWalletSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("POST required"))
		return
	}
	if !s.requireKeystore(w) {
		return
	}
	var req WalletSendRequest
	if err := decodeBody(r, &req); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}
	if req.Amount == 0 {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("amount must be positive"))
		return
	}

	seed, err := s.keystore.Load(req.Name, []byte(req.Password))
	if err != nil {
		writeErr(w, http.StatusUnauthorized, err)
		return
	}
	accounts, err := s.keystore.ListAccounts(req.Name)
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	spendable, outpointAddr, signers, err := s.collectSpendableUTXOs(master, accounts)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}

	feeRate := req.FeeRate
	if feeRate == 0 {
		feeRate = 1
	}

	fee := tx.EstimateTxFee(1, 2, feeRate)
	target := req.Amount + fee
	selection, err := wallet.SelectCoins(spendable, target)
	if err != nil {
		writeErr(w, http.StatusPaymentRequired, err)
		return
	}
	fee = tx.EstimateTxFee(len(selection.Inputs), 2, feeRate)
	if selection.Total < req.Amount+fee {
		selection, err = wallet.SelectCoins(spendable, req.Amount+fee)
		if err != nil {
			writeErr(w, http.StatusPaymentRequired, err)
			return
		}
		fee = tx.EstimateTxFee(len(selection.Inputs), 2, feeRate)
	}
	if selection.Total < req.Amount+fee {
		writeErr(w, http.StatusPaymentRequired, wallet.ErrInsufficientFunds)
		return
	}
	change := selection.Total - req.Amount - fee

	builder := tx.NewBuilder()
	for _, in := range selection.Inputs {
		builder.AddInput(in.Outpoint)
	}
	builder.AddOutput(req.Amount, types.Script{Type: types.ScriptTypeP2PKH, Data: append([]byte(nil), req.To[:]...)})
	if change > 0 {
		changeAddr, _, err := s.deriveNextAddress(req.Name, seed, wallet.ChangeInternal, "change")
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err)
			return
		}
		builder.AddOutput(change, types.Script{Type: types.ScriptTypeP2PKH, Data: append([]byte(nil), changeAddr[:]...)})
	}

	spendAddr := make(map[types.Outpoint]types.Address, len(selection.Inputs))
	for _, in := range selection.Inputs {
		spendAddr[in.Outpoint] = outpointAddr[in.Outpoint]
	}
	if err := builder.SignMulti(signers, spendAddr); err != nil {
		writeErr(w, http.StatusInternalServerError, err)
		return
	}
	for _, key := range signers {
		key.Zero()
	}

	transaction := builder.Build()
	if _, err := s.pool.Add(transaction); err != nil {
		writeErr(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, WalletSendResponse{TxID: transaction.Hash()})
}

// collectSpendableUTXOs derives every known account's address from
// master and gathers its unspent outputs, keyed for coin selection and
// per-input signing.
func (s *Server) collectSpendableUTXOs(master *wallet.HDKey, accounts []wallet.AccountEntry) ([]wallet.UTXO, map[types.Outpoint]types.Address, map[types.Address]*crypto.PrivateKey, error) {
	var spendable []wallet.UTXO
	outpointAddr := make(map[types.Outpoint]types.Address)
	signers := make(map[types.Address]*crypto.PrivateKey)

	for _, acct := range accounts {
		change, index := acct.Derivation()
		child, err := master.DeriveAddress(0, change, index)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("derive account %s: %w", acct.Name, err)
		}
		addr := child.Address()
		signer, err := child.Signer()
		if err != nil {
			return nil, nil, nil, fmt.Errorf("signer for account %s: %w", acct.Name, err)
		}
		signers[addr] = signer

		outs, err := s.utxos.GetByAddress(addr)
		if err != nil {
			continue
		}
		for _, u := range outs {
			if u.State != utxo.StateUnspent {
				continue
			}
			spendable = append(spendable, wallet.UTXO{Outpoint: u.Outpoint, Value: u.Value, Script: u.Script})
			outpointAddr[u.Outpoint] = addr
		}
	}
	return spendable, outpointAddr, signers, nil
}

// deriveAndRecordAddress derives the address at the given change chain's
// next unused index, records it in the keystore, and advances the index.
func (s *Server) deriveAndRecordAddress(walletName string, seed []byte, change uint32, label string) (types.Address, error) {
	addr, _, err := s.deriveNextAddress(walletName, seed, change, label)
	return addr, err
}

// deriveNextAddress derives the next account at the given BIP-44 change
// chain, records it, and advances that chain's index.
func (s *Server) deriveNextAddress(walletName string, seed []byte, change uint32, label string) (types.Address, uint32, error) {
	var index uint32
	var err error
	if change == wallet.ChangeInternal {
		index, err = s.keystore.GetChangeIndex(walletName)
	} else {
		index, err = s.keystore.GetExternalIndex(walletName)
	}
	if err != nil {
		return types.Address{}, 0, err
	}

	master, err := wallet.NewMasterKey(seed)
	if err != nil {
		return types.Address{}, 0, err
	}
	child, err := master.DeriveAddress(0, change, index)
	if err != nil {
		return types.Address{}, 0, err
	}
	addr := child.Address()

	if err := s.keystore.AddAccount(walletName, wallet.AccountEntry{
		Index:   index,
		Change:  change,
		Name:    label,
		Address: hex.EncodeToString(addr[:]),
	}); err != nil {
		return types.Address{}, 0, err
	}
	if change == wallet.ChangeInternal {
		err = s.keystore.IncrementChangeIndex(walletName)
	} else {
		err = s.keystore.IncrementExternalIndex(walletName)
	}
	if err != nil {
		return types.Address{}, 0, err
	}
	return addr, index, nil
}

// parseAccountAddress decodes an AccountEntry's stored hex address.
func parseAccountAddress(acct wallet.AccountEntry) (types.Address, error) {
	return types.ParseAddress(acct.Address)
}
