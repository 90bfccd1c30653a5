package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/jmerrifield20/starregistry/internal/codec"
)

// NoPreviousHash is the previous hash of the genesis block.
const NoPreviousHash = ""

// GenesisData is the literal stored in the genesis block's payload.
const GenesisData = "Genesis Block"

// GenesisMarker is the decoded payload of the genesis block. It is a distinct
// type so callers can tell it apart from any OwnedRecord.
type GenesisMarker struct{}

// Genesis is the value DecodedPayload returns for height 0.
var Genesis = GenesisMarker{}

// MarshalJSON renders the marker as the genesis literal.
func (GenesisMarker) MarshalJSON() ([]byte, error) {
	return []byte(`"` + GenesisData + `"`), nil
}

// OwnedRecord is the payload of every non-genesis block: the submitted star
// and the address that proved ownership of it.
type OwnedRecord struct {
	Owner string `json:"owner" cbor:"owner"`
	Star  any    `json:"star" cbor:"star"`
}

// Block is a single entry in the chain. Height, Timestamp, PreviousHash and
// Hash are assigned by the Chain when the block is appended.
type Block struct {
	Height       int    `json:"height"`
	Timestamp    int64  `json:"timestamp"` // unix seconds
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"body"`
	Hash         string `json:"hash"`
}

// NewBlock returns an unpositioned block carrying payload.
func NewBlock(payload string) *Block {
	return &Block{Payload: payload}
}

// ComputeHash returns the hex SHA-256 of the block's fields in fixed order.
// Hash itself is excluded.
func (b *Block) ComputeHash() string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|%s", b.Height, b.Timestamp, b.PreviousHash, b.Payload)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateSelf reports whether the stored hash matches the block's content.
// It does not check the link to the previous block.
func (b *Block) ValidateSelf() bool {
	return b.Hash == b.ComputeHash()
}

// IsGenesis reports whether b is the first block of a chain.
func (b *Block) IsGenesis() bool {
	return b.Height == 0
}

// DecodedPayload returns Genesis for the genesis block and the decoded
// OwnedRecord otherwise.
func (b *Block) DecodedPayload(c codec.Codec) (any, error) {
	if b.IsGenesis() {
		return Genesis, nil
	}
	return b.record(c)
}

func (b *Block) record(c codec.Codec) (OwnedRecord, error) {
	var rec OwnedRecord
	if err := c.Decode(b.Payload, &rec); err != nil {
		return OwnedRecord{}, fmt.Errorf("block %d: %w", b.Height, err)
	}
	return rec, nil
}
