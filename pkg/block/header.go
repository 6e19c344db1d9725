package block

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/time-coin/timecoin-node/pkg/crypto"
	"github.com/time-coin/timecoin-node/pkg/types"
)

// Header contains block metadata for a daily consensus block.
type Header struct {
	Version          uint32            `json:"version"`
	PrevHash         types.Hash        `json:"prev_hash"`
	MerkleRoot       types.Hash        `json:"merkle_root"`
	Timestamp        uint64            `json:"timestamp"`
	Height           uint64            `json:"height"`
	ValidatorAddress types.Address     `json:"validator_address"`
	MasternodeCounts map[string]uint32 `json:"masternode_counts,omitempty"`
	ValidatorSig     []byte            `json:"validator_sig,omitempty"`
}

// headerJSON is the JSON representation of Header with hex-encoded validator sig.
type headerJSON struct {
	Version          uint32            `json:"version"`
	PrevHash         types.Hash        `json:"prev_hash"`
	MerkleRoot       types.Hash        `json:"merkle_root"`
	Timestamp        uint64            `json:"timestamp"`
	Height           uint64            `json:"height"`
	ValidatorAddress types.Address     `json:"validator_address"`
	MasternodeCounts map[string]uint32 `json:"masternode_counts,omitempty"`
	ValidatorSig     string            `json:"validator_sig,omitempty"`
}

// MarshalJSON encodes the header with hex-encoded validator signature.
func (h *Header) MarshalJSON() ([]byte, error) {
	j := headerJSON{
		Version:          h.Version,
		PrevHash:         h.PrevHash,
		MerkleRoot:       h.MerkleRoot,
		Timestamp:        h.Timestamp,
		Height:           h.Height,
		ValidatorAddress: h.ValidatorAddress,
		MasternodeCounts: h.MasternodeCounts,
	}
	if h.ValidatorSig != nil {
		j.ValidatorSig = hex.EncodeToString(h.ValidatorSig)
	}
	return json.Marshal(j)
}

// UnmarshalJSON decodes a header with hex-encoded validator signature.
func (h *Header) UnmarshalJSON(data []byte) error {
	var j headerJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	h.Version = j.Version
	h.PrevHash = j.PrevHash
	h.MerkleRoot = j.MerkleRoot
	h.Timestamp = j.Timestamp
	h.Height = j.Height
	h.ValidatorAddress = j.ValidatorAddress
	h.MasternodeCounts = j.MasternodeCounts
	if j.ValidatorSig != "" {
		b, err := hex.DecodeString(j.ValidatorSig)
		if err != nil {
			return err
		}
		h.ValidatorSig = b
	}
	return nil
}

// Hash computes the block header hash.
// Excludes ValidatorSig so the hash is stable for signing.
func (h *Header) Hash() types.Hash {
	return crypto.Hash(h.SigningBytes())
}

// SigningBytes returns the canonical bytes for hashing/signing.
// Format: version(4) | prev_hash(32) | merkle_root(32) | timestamp(8) | height(8) |
// validator_address(var) | sorted masternode_counts entries(tier,count)...
func (h *Header) SigningBytes() []byte {
	buf := make([]byte, 0, 128)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash[:]...)
	buf = append(buf, h.MerkleRoot[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, h.Timestamp)
	buf = binary.LittleEndian.AppendUint64(buf, h.Height)
	addrBytes := []byte(h.ValidatorAddress.String())
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(addrBytes)))
	buf = append(buf, addrBytes...)

	tiers := make([]string, 0, len(h.MasternodeCounts))
	for tier := range h.MasternodeCounts {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tiers)))
	for _, tier := range tiers {
		tb := []byte(tier)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tb)))
		buf = append(buf, tb...)
		buf = binary.LittleEndian.AppendUint32(buf, h.MasternodeCounts[tier])
	}
	return buf
}
