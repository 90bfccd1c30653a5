package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmerrifield20/starregistry/internal/codec"
	"go.uber.org/zap"
)

var (
	// ErrOwnershipProofFailed wraps every proof rejection. The specific
	// reason (ownership.ErrExpiredChallenge, ownership.ErrInvalidSignature,
	// ownership.ErrMalformedChallenge) is wrapped as well.
	ErrOwnershipProofFailed = errors.New("ownership proof failed")

	// ErrInvalidSubmission is returned when a required field is empty.
	ErrInvalidSubmission = errors.New("invalid submission")
)

// Chain is an in-memory, thread-safe Ledger. Blocks live in a slice indexed
// by height; the slice only grows, and a block is never modified once it has
// been appended.
type Chain struct {
	mu     sync.RWMutex
	blocks []Block

	verifier ProofVerifier
	codec    codec.Codec
	now      func() time.Time
	logger   *zap.Logger
	onAppend []func(Block)
}

// Option configures a Chain.
type Option func(*Chain)

// WithCodec sets the payload codec (default codec.JSON).
func WithCodec(c codec.Codec) Option {
	return func(ch *Chain) { ch.codec = c }
}

// WithClock replaces time.Now for block timestamps.
func WithClock(now func() time.Time) Option {
	return func(ch *Chain) { ch.now = now }
}

// WithLogger sets the logger (default zap.NewNop).
func WithLogger(l *zap.Logger) Option {
	return func(ch *Chain) { ch.logger = l }
}

// WithAppendHook registers fn to run after every append, outside the lock.
func WithAppendHook(fn func(Block)) Option {
	return func(ch *Chain) { ch.onAppend = append(ch.onAppend, fn) }
}

// New creates a Chain initialised with its genesis block.
func New(verifier ProofVerifier, opts ...Option) (*Chain, error) {
	c := &Chain{
		verifier: verifier,
		codec:    codec.JSON{},
		now:      time.Now,
		logger:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}

	payload, err := c.codec.Encode(GenesisData)
	if err != nil {
		return nil, fmt.Errorf("encode genesis: %w", err)
	}
	genesis := c.append(NewBlock(payload))

	c.logger.Info("ledger initialised",
		zap.String("codec", c.codec.Name()),
		zap.String("genesis_hash", genesis.Hash),
	)
	return c, nil
}

// append positions b at the end of the chain and stores it. Height, link and
// hash assignment happen under the write lock as one step.
func (c *Chain) append(b *Block) Block {
	c.mu.Lock()
	defer c.mu.Unlock()

	b.Height = len(c.blocks)
	b.Timestamp = c.now().Unix()
	b.PreviousHash = NoPreviousHash
	if b.Height > 0 {
		b.PreviousHash = c.blocks[b.Height-1].Hash
	}
	b.Hash = b.ComputeHash()

	c.blocks = append(c.blocks, *b)
	return *b
}

// RequestChallenge implements Ledger.
func (c *Chain) RequestChallenge(_ context.Context, address string) (string, error) {
	if address == "" {
		return "", fmt.Errorf("%w: address is required", ErrInvalidSubmission)
	}
	return c.verifier.IssueChallenge(address), nil
}

// SubmitRecord implements Ledger. The proof check and payload encoding run
// before the lock is taken; nothing is appended unless both succeed.
func (c *Chain) SubmitRecord(_ context.Context, address, message, signature string, star any) (*Block, error) {
	switch {
	case address == "":
		return nil, fmt.Errorf("%w: address is required", ErrInvalidSubmission)
	case message == "":
		return nil, fmt.Errorf("%w: message is required", ErrInvalidSubmission)
	case signature == "":
		return nil, fmt.Errorf("%w: signature is required", ErrInvalidSubmission)
	case star == nil:
		return nil, fmt.Errorf("%w: star is required", ErrInvalidSubmission)
	}

	if err := c.verifier.Verify(address, message, signature); err != nil {
		c.logger.Info("ownership proof rejected",
			zap.String("address", address),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %w", ErrOwnershipProofFailed, err)
	}

	payload, err := c.codec.Encode(OwnedRecord{Owner: address, Star: star})
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}

	block := c.append(NewBlock(payload))
	for _, fn := range c.onAppend {
		fn(block)
	}

	c.logger.Debug("block appended",
		zap.Int("height", block.Height),
		zap.String("hash", block.Hash),
		zap.String("owner", address),
	)
	return &block, nil
}

// BlockByHash implements Ledger.
func (c *Chain) BlockByHash(_ context.Context, hash string) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.blocks {
		if c.blocks[i].Hash == hash {
			b := c.blocks[i]
			return &b, true
		}
	}
	return nil, false
}

// BlockByHeight implements Ledger.
func (c *Chain) BlockByHeight(_ context.Context, height int) (*Block, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height >= len(c.blocks) {
		return nil, false
	}
	b := c.blocks[height]
	return &b, true
}

// RecordsByOwner implements Ledger. Payloads are decoded outside the lock.
func (c *Chain) RecordsByOwner(_ context.Context, address string) ([]OwnedRecord, error) {
	blocks := c.snapshot()
	records := []OwnedRecord{}
	for i := 1; i < len(blocks); i++ {
		rec, err := blocks[i].record(c.codec)
		if err != nil {
			return nil, err
		}
		if rec.Owner == address {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Height implements Ledger.
func (c *Chain) Height(_ context.Context) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.blocks) - 1
}

// Tip implements Ledger.
func (c *Chain) Tip(_ context.Context) *Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b := c.blocks[len(c.blocks)-1]
	return &b
}

// Validate implements Ledger. The audit runs on a snapshot, so appends are
// not held up while it walks the chain.
func (c *Chain) Validate(_ context.Context) []Fault {
	faults := Audit(c.snapshot())
	if len(faults) > 0 {
		c.logger.Warn("ledger audit found faults", zap.Int("count", len(faults)))
	}
	return faults
}

// Codec implements Ledger.
func (c *Chain) Codec() codec.Codec { return c.codec }

// snapshot returns the current blocks. The slice is capped so appends never
// write into it, and appended blocks are immutable, so it is safe to read
// without the lock.
func (c *Chain) snapshot() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.blocks[:len(c.blocks):len(c.blocks)]
}
