package ledger

import (
	"encoding/json"
	"fmt"
)

// FaultKind classifies an integrity violation found by Audit.
type FaultKind string

const (
	// SelfHashMismatch: the stored hash does not match the block's content.
	SelfHashMismatch FaultKind = "self_hash_mismatch"
	// BrokenLink: the stored previous hash does not match the hash of the
	// block one position earlier.
	BrokenLink FaultKind = "broken_link"
)

// Fault is one integrity violation at a given height.
type Fault struct {
	Kind   FaultKind
	Height int
}

// Error implements error so faults can be logged or wrapped directly.
func (f Fault) Error() string {
	switch f.Kind {
	case SelfHashMismatch:
		return fmt.Sprintf("block %d: stored hash does not match content", f.Height)
	case BrokenLink:
		return fmt.Sprintf("block %d: previous hash does not match block %d", f.Height, f.Height-1)
	default:
		return fmt.Sprintf("block %d: %s", f.Height, f.Kind)
	}
}

// MarshalJSON includes the human readable message.
func (f Fault) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind    FaultKind `json:"kind"`
		Height  int       `json:"height"`
		Message string    `json:"message"`
	}{f.Kind, f.Height, f.Error()})
}

// Audit walks blocks in order and returns every fault found, reported at the
// block's position in the slice. Each block gets both checks; a block may
// produce zero, one or two faults. An empty result means the chain is intact.
// blocks is not modified.
func Audit(blocks []Block) []Fault {
	faults := []Fault{}
	prevHash := NoPreviousHash
	for i := range blocks {
		b := &blocks[i]
		if !b.ValidateSelf() {
			faults = append(faults, Fault{Kind: SelfHashMismatch, Height: i})
		}
		if i > 0 && b.PreviousHash != prevHash {
			faults = append(faults, Fault{Kind: BrokenLink, Height: i})
		}
		prevHash = b.Hash
	}
	return faults
}
