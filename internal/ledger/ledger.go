package ledger

import (
	"context"

	"github.com/jmerrifield20/starregistry/internal/codec"
)

// Ledger is the interface the HTTP layer and health monitor use.
// Chain is its only implementation.
type Ledger interface {
	// RequestChallenge returns the message address must sign before it can
	// submit a star.
	RequestChallenge(ctx context.Context, address string) (string, error)

	// SubmitRecord verifies the ownership proof and appends star, owned by
	// address, as a new block.
	SubmitRecord(ctx context.Context, address, message, signature string, star any) (*Block, error)

	// BlockByHash returns the block with the given hash.
	BlockByHash(ctx context.Context, hash string) (*Block, bool)

	// BlockByHeight returns the block at height.
	BlockByHeight(ctx context.Context, height int) (*Block, bool)

	// RecordsByOwner returns every record owned by address in chain order.
	RecordsByOwner(ctx context.Context, address string) ([]OwnedRecord, error)

	// Height returns the height of the latest block.
	Height(ctx context.Context) int

	// Tip returns the latest block.
	Tip(ctx context.Context) *Block

	// Validate audits the whole chain. An empty result means it is intact.
	Validate(ctx context.Context) []Fault

	// Codec is the payload codec blocks are encoded with.
	Codec() codec.Codec
}

// ProofVerifier issues and checks ownership challenges.
// *ownership.Verifier satisfies this interface.
type ProofVerifier interface {
	IssueChallenge(address string) string
	Verify(address, message, signature string) error
}
