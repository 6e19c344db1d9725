package utxo

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/time-coin/timecoin-node/internal/storage"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Key prefixes for the UTXO store.
var (
	prefixUTXO  = []byte("u/") // u/<txid><index> -> UTXO JSON
	prefixAddr  = []byte("a/") // a/<address><txid><index> -> empty (index)
	prefixStake = []byte("k/") // k/<pubkey33><txid><index> -> empty (stake index)
)

// lockStripes is the number of mutex stripes used to serialize writes
// per outpoint. Reads never take a stripe lock.
const lockStripes = 256

// subscriberBuffer is the channel depth for a single subscription.
// Delivery is best-effort: a full channel drops the update rather than
// blocking the writer.
const subscriberBuffer = 32

// Store implements Set backed by a storage.DB, with per-outpoint write
// serialization and a subscribe/publish layer for state transitions.
type Store struct {
	db storage.DB

	stripes [lockStripes]sync.Mutex

	subMu      sync.Mutex
	byOutpoint map[types.Outpoint][]chan StateChange
	byAddress  map[types.Address][]chan StateChange
}

// NewStore creates a new UTXO store backed by the given database.
func NewStore(db storage.DB) *Store {
	return &Store{
		db:         db,
		byOutpoint: make(map[types.Outpoint][]chan StateChange),
		byAddress:  make(map[types.Address][]chan StateChange),
	}
}

// stripe returns the mutex guarding writes to the given outpoint.
func (s *Store) stripe(op types.Outpoint) *sync.Mutex {
	var h uint32
	for _, b := range op.TxID[:4] {
		h = h*31 + uint32(b)
	}
	h += op.Index
	return &s.stripes[h%lockStripes]
}

// utxoKey builds a storage key for an outpoint: "u/" + txid(32) + index(4).
func utxoKey(op types.Outpoint) []byte {
	key := make([]byte, len(prefixUTXO)+types.HashSize+4)
	copy(key, prefixUTXO)
	copy(key[len(prefixUTXO):], op.TxID[:])
	binary.BigEndian.PutUint32(key[len(prefixUTXO)+types.HashSize:], op.Index)
	return key
}

// addrKey builds an address index key: "a/" + addr(20) + txid(32) + index(4).
func addrKey(addr types.Address, op types.Outpoint) []byte {
	key := make([]byte, len(prefixAddr)+types.AddressSize+types.HashSize+4)
	copy(key, prefixAddr)
	copy(key[len(prefixAddr):], addr[:])
	off := len(prefixAddr) + types.AddressSize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// compressedPubKeySize is the length of a compressed secp256k1 public key.
const compressedPubKeySize = 33

// stakeKey builds a stake index key: "k/" + pubkey(33) + txid(32) + index(4).
func stakeKey(pubKey []byte, op types.Outpoint) []byte {
	key := make([]byte, len(prefixStake)+compressedPubKeySize+types.HashSize+4)
	copy(key, prefixStake)
	copy(key[len(prefixStake):], pubKey)
	off := len(prefixStake) + compressedPubKeySize
	copy(key[off:], op.TxID[:])
	binary.BigEndian.PutUint32(key[off+types.HashSize:], op.Index)
	return key
}

// Get retrieves a UTXO by its outpoint.
func (s *Store) Get(outpoint types.Outpoint) (*UTXO, error) {
	data, err := s.db.Get(utxoKey(outpoint))
	if err != nil {
		return nil, fmt.Errorf("utxo get: %w", err)
	}
	var u UTXO
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, fmt.Errorf("utxo unmarshal: %w", err)
	}
	return &u, nil
}

// scriptAddress returns the address embedded in a script, if any.
// P2PKH scripts store a 20-byte address in Data.
func scriptAddress(s types.Script) (types.Address, bool) {
	switch s.Type {
	case types.ScriptTypeP2PKH:
		if len(s.Data) >= types.AddressSize {
			var addr types.Address
			copy(addr[:], s.Data[:types.AddressSize])
			return addr, true
		}
	}
	return types.Address{}, false
}

// Put stores a UTXO and updates the address index.
func (s *Store) Put(u *UTXO) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("utxo marshal: %w", err)
	}
	if err := s.db.Put(utxoKey(u.Outpoint), data); err != nil {
		return fmt.Errorf("utxo put: %w", err)
	}

	// Index by address for script types that contain one.
	if addr, ok := scriptAddress(u.Script); ok {
		if err := s.db.Put(addrKey(addr, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("utxo index put: %w", err)
		}
	}

	// Index by validator pubkey if it's a stake script.
	if u.Script.Type == types.ScriptTypeStake && len(u.Script.Data) == compressedPubKeySize {
		if err := s.db.Put(stakeKey(u.Script.Data, u.Outpoint), []byte{}); err != nil {
			return fmt.Errorf("stake index put: %w", err)
		}
	}

	return nil
}

// Delete removes a UTXO and its address index entry.
func (s *Store) Delete(outpoint types.Outpoint) error {
	// Read first to clean up secondary indexes.
	u, err := s.Get(outpoint)
	if err == nil {
		if addr, ok := scriptAddress(u.Script); ok {
			s.db.Delete(addrKey(addr, u.Outpoint))
		}
		if u.Script.Type == types.ScriptTypeStake && len(u.Script.Data) == compressedPubKeySize {
			s.db.Delete(stakeKey(u.Script.Data, u.Outpoint))
		}
	}

	if err := s.db.Delete(utxoKey(outpoint)); err != nil {
		return fmt.Errorf("utxo delete: %w", err)
	}
	return nil
}

// Has checks if a UTXO exists for the given outpoint.
func (s *Store) Has(outpoint types.Outpoint) (bool, error) {
	return s.db.Has(utxoKey(outpoint))
}

// ForEach iterates over all UTXOs in the store.
func (s *Store) ForEach(fn func(*UTXO) error) error {
	return s.db.ForEach(prefixUTXO, func(key, value []byte) error {
		var u UTXO
		if err := json.Unmarshal(value, &u); err != nil {
			return fmt.Errorf("utxo unmarshal: %w", err)
		}
		return fn(&u)
	})
}

// GetStakes returns all stake UTXOs locked by the given compressed public key.
// It scans the stake index and loads each referenced UTXO.
func (s *Store) GetStakes(pubKey []byte) ([]*UTXO, error) {
	if len(pubKey) != compressedPubKeySize {
		return nil, fmt.Errorf("pubkey must be %d bytes, got %d", compressedPubKeySize, len(pubKey))
	}

	// Build the prefix: "k/" + pubkey(33).
	prefix := make([]byte, len(prefixStake)+compressedPubKeySize)
	copy(prefix, prefixStake)
	copy(prefix[len(prefixStake):], pubKey)

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: "k/" + pubkey(33) + txid(32) + index(4).
		off := len(prefixStake) + compressedPubKeySize
		if len(key) < off+types.HashSize+4 {
			return nil // Malformed key, skip.
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		u, err := s.Get(op)
		if err != nil {
			return nil // UTXO may have been spent, skip.
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan stake index: %w", err)
	}
	return utxos, nil
}

// GetAllStakedValidators returns the unique compressed public keys of all
// validators that currently have stake UTXOs. It scans the "k/" stake index.
func (s *Store) GetAllStakedValidators() ([][]byte, error) {
	seen := make(map[string]struct{})
	var validators [][]byte

	err := s.db.ForEach(prefixStake, func(key, _ []byte) error {
		// Key layout: "k/" + pubkey(33) + txid(32) + index(4).
		if len(key) < len(prefixStake)+compressedPubKeySize {
			return nil
		}
		pk := key[len(prefixStake) : len(prefixStake)+compressedPubKeySize]
		pkStr := string(pk)
		if _, ok := seen[pkStr]; !ok {
			seen[pkStr] = struct{}{}
			pubKey := make([]byte, compressedPubKeySize)
			copy(pubKey, pk)
			validators = append(validators, pubKey)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan stake index: %w", err)
	}
	return validators, nil
}

// ClearAll removes all UTXOs and their secondary indexes (address, stake).
// Used during UTXO set recovery after a crash during reorg.
func (s *Store) ClearAll() error {
	var keys [][]byte
	for _, prefix := range [][]byte{prefixUTXO, prefixAddr, prefixStake} {
		if err := s.db.ForEach(prefix, func(key, _ []byte) error {
			k := make([]byte, len(key))
			copy(k, key)
			keys = append(keys, k)
			return nil
		}); err != nil {
			return fmt.Errorf("scan prefix %s: %w", prefix, err)
		}
	}
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil {
			return fmt.Errorf("delete utxo key: %w", err)
		}
	}
	return nil
}

// GetByAddress returns all UTXOs belonging to the given address.
// It scans the address index and loads each referenced UTXO.
func (s *Store) GetByAddress(addr types.Address) ([]*UTXO, error) {
	// Build the prefix: "a/" + addr(20).
	prefix := make([]byte, len(prefixAddr)+types.AddressSize)
	copy(prefix, prefixAddr)
	copy(prefix[len(prefixAddr):], addr[:])

	var utxos []*UTXO
	err := s.db.ForEach(prefix, func(key, _ []byte) error {
		// Key layout: "a/" + addr(20) + txid(32) + index(4).
		off := len(prefixAddr) + types.AddressSize
		if len(key) < off+types.HashSize+4 {
			return nil // Malformed key, skip.
		}
		var op types.Outpoint
		copy(op.TxID[:], key[off:off+types.HashSize])
		op.Index = binary.BigEndian.Uint32(key[off+types.HashSize:])

		u, err := s.Get(op)
		if err != nil {
			return nil // UTXO may have been spent, skip.
		}
		utxos = append(utxos, u)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan address index: %w", err)
	}
	return utxos, nil
}

// transition loads the UTXO at outpoint, checks the transition is legal,
// applies fn to mutate it, persists it, and publishes a StateChange to
// every matching subscription. The whole sequence runs under the
// outpoint's write stripe.
func (s *Store) transition(outpoint types.Outpoint, to State, fn func(*UTXO)) error {
	mu := s.stripe(outpoint)
	mu.Lock()
	defer mu.Unlock()

	u, err := s.Get(outpoint)
	if err != nil {
		return fmt.Errorf("transition get: %w", err)
	}
	if err := checkTransition(u.State, to); err != nil {
		return err
	}

	old := u.State
	fn(u)
	u.State = to

	if err := s.Put(u); err != nil {
		return fmt.Errorf("transition put: %w", err)
	}

	addr, _ := scriptAddress(u.Script)
	s.publish(StateChange{
		Outpoint:  outpoint,
		OldState:  old,
		NewState:  to,
		Address:   addr,
		Amount:    u.Value,
		Timestamp: time.Now().Unix(),
	})
	return nil
}

// MarkLocked transitions an outpoint Unspent -> Locked{txid}.
func (s *Store) MarkLocked(outpoint types.Outpoint, txid types.Hash) error {
	return s.transition(outpoint, StateLocked, func(u *UTXO) {
		u.LockTxID = txid
	})
}

// MarkSpentPending transitions an outpoint Locked -> SpentPending.
func (s *Store) MarkSpentPending(outpoint types.Outpoint) error {
	return s.transition(outpoint, StateSpentPending, func(*UTXO) {})
}

// MarkSpentFinalized transitions an outpoint SpentPending -> SpentFinalized.
func (s *Store) MarkSpentFinalized(outpoint types.Outpoint) error {
	return s.transition(outpoint, StateSpentFinalized, func(*UTXO) {})
}

// MarkConfirmed transitions an outpoint SpentFinalized -> Confirmed,
// recording the block height at which the spend confirmed.
func (s *Store) MarkConfirmed(outpoint types.Outpoint, blockHeight uint64) error {
	return s.transition(outpoint, StateConfirmed, func(u *UTXO) {
		u.Confirmed = blockHeight
	})
}

// Rollback reverts an outpoint from Locked or SpentPending back to
// Unspent. It is the escape hatch used by chain reorganizations and by
// rejection-quorum detection; it is illegal from SpentFinalized or
// Confirmed.
func (s *Store) Rollback(outpoint types.Outpoint) error {
	return s.transition(outpoint, StateUnspent, func(u *UTXO) {
		u.LockTxID = types.Hash{}
		u.Votes = 0
	})
}

// IncrementVotes bumps the vote tally on an outpoint sitting in
// SpentPending without changing its variant. Returns the updated count.
func (s *Store) IncrementVotes(outpoint types.Outpoint, delta uint32) (uint32, error) {
	mu := s.stripe(outpoint)
	mu.Lock()
	defer mu.Unlock()

	u, err := s.Get(outpoint)
	if err != nil {
		return 0, fmt.Errorf("increment votes get: %w", err)
	}
	u.Votes += delta
	if err := s.Put(u); err != nil {
		return 0, fmt.Errorf("increment votes put: %w", err)
	}
	return u.Votes, nil
}

// Subscribe returns a channel that receives every StateChange affecting
// the given outpoint. Delivery is best-effort and at-most-once: a
// subscriber that falls behind misses updates rather than stalling
// writers. Call Unsubscribe when done to release the channel.
func (s *Store) Subscribe(outpoint types.Outpoint) <-chan StateChange {
	ch := make(chan StateChange, subscriberBuffer)
	s.subMu.Lock()
	s.byOutpoint[outpoint] = append(s.byOutpoint[outpoint], ch)
	s.subMu.Unlock()
	return ch
}

// SubscribeAddress returns a channel that receives every StateChange
// whose UTXO resolves to the given address.
func (s *Store) SubscribeAddress(addr types.Address) <-chan StateChange {
	ch := make(chan StateChange, subscriberBuffer)
	s.subMu.Lock()
	s.byAddress[addr] = append(s.byAddress[addr], ch)
	s.subMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel previously returned by
// Subscribe or SubscribeAddress.
func (s *Store) Unsubscribe(ch <-chan StateChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for op, chans := range s.byOutpoint {
		if idx := indexOfChan(chans, ch); idx >= 0 {
			close(chans[idx])
			s.byOutpoint[op] = append(chans[:idx], chans[idx+1:]...)
			return
		}
	}
	for addr, chans := range s.byAddress {
		if idx := indexOfChan(chans, ch); idx >= 0 {
			close(chans[idx])
			s.byAddress[addr] = append(chans[:idx], chans[idx+1:]...)
			return
		}
	}
}

func indexOfChan(chans []chan StateChange, target <-chan StateChange) int {
	for i, c := range chans {
		if c == target {
			return i
		}
	}
	return -1
}

// publish delivers a StateChange to every subscription matching the
// outpoint or the address, dropping it for any subscriber whose buffer
// is full.
func (s *Store) publish(change StateChange) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.byOutpoint[change.Outpoint] {
		select {
		case ch <- change:
		default:
		}
	}
	if !change.Address.IsZero() {
		for _, ch := range s.byAddress[change.Address] {
			select {
			case ch <- change:
			default:
			}
		}
	}
}
