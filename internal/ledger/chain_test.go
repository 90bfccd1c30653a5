package ledger_test

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jmerrifield20/starregistry/internal/codec"
	"github.com/jmerrifield20/starregistry/internal/ledger"
	"github.com/jmerrifield20/starregistry/internal/ownership"
)

var ctx = context.Background()

// acceptAll is a ProofVerifier that accepts every proof.
type acceptAll struct{}

func (acceptAll) IssueChallenge(address string) string {
	return ownership.Challenge(address, time.Now())
}
func (acceptAll) Verify(_, _, _ string) error { return nil }

// rejectWith is a ProofVerifier that rejects every proof with err.
type rejectWith struct{ err error }

func (r rejectWith) IssueChallenge(address string) string {
	return ownership.Challenge(address, time.Now())
}
func (r rejectWith) Verify(_, _, _ string) error { return r.err }

func newChain(t *testing.T, opts ...ledger.Option) *ledger.Chain {
	t.Helper()
	c, err := ledger.New(acceptAll{}, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func star(story string) map[string]any {
	return map[string]any{"dec": "68° 52' 56.9", "ra": "16h 29m 1.0s", "story": story}
}

func submit(t *testing.T, c *ledger.Chain, owner, story string) *ledger.Block {
	t.Helper()
	b, err := c.SubmitRecord(ctx, owner, "msg", "sig", star(story))
	if err != nil {
		t.Fatalf("SubmitRecord(%s): %v", owner, err)
	}
	return b
}

func TestNew_genesisBlock(t *testing.T) {
	c := newChain(t)

	if h := c.Height(ctx); h != 0 {
		t.Errorf("Height: got %d, want 0", h)
	}

	genesis, ok := c.BlockByHeight(ctx, 0)
	if !ok {
		t.Fatal("genesis block not found")
	}
	if genesis.PreviousHash != ledger.NoPreviousHash {
		t.Errorf("genesis PreviousHash: got %q, want none", genesis.PreviousHash)
	}
	if !genesis.ValidateSelf() {
		t.Error("genesis block fails self validation")
	}

	data, err := genesis.DecodedPayload(c.Codec())
	if err != nil {
		t.Fatal(err)
	}
	if data != ledger.Genesis {
		t.Errorf("genesis payload: got %#v, want Genesis marker", data)
	}
}

func TestSubmitRecord_heightsAndLinks(t *testing.T) {
	c := newChain(t)

	var blocks []*ledger.Block
	for i := 1; i <= 5; i++ {
		b := submit(t, c, "owner", fmt.Sprintf("star %d", i))
		if b.Height != i {
			t.Errorf("block %d: got height %d", i, b.Height)
		}
		if !b.ValidateSelf() {
			t.Errorf("block %d fails self validation right after append", i)
		}
		blocks = append(blocks, b)
	}

	for h := 1; h <= c.Height(ctx); h++ {
		curr, _ := c.BlockByHeight(ctx, h)
		prev, _ := c.BlockByHeight(ctx, h-1)
		if curr.PreviousHash != prev.Hash {
			t.Errorf("height %d: PreviousHash %q, want %q", h, curr.PreviousHash, prev.Hash)
		}
	}

	if tip := c.Tip(ctx); tip.Hash != blocks[len(blocks)-1].Hash {
		t.Errorf("Tip: got %q, want %q", tip.Hash, blocks[len(blocks)-1].Hash)
	}
	if faults := c.Validate(ctx); len(faults) != 0 {
		t.Errorf("Validate on intact chain: %v", faults)
	}
}

func TestSubmitRecord_timestamp(t *testing.T) {
	at := time.Unix(1_700_000_123, 0)
	c := newChain(t, ledger.WithClock(func() time.Time { return at }))

	b := submit(t, c, "owner", "s")
	if b.Timestamp != at.Unix() {
		t.Errorf("Timestamp: got %d, want %d", b.Timestamp, at.Unix())
	}
}

func TestSubmitRecord_proofFailure(t *testing.T) {
	for _, reason := range []error{ownership.ErrExpiredChallenge, ownership.ErrInvalidSignature} {
		c, err := ledger.New(rejectWith{err: fmt.Errorf("%w: detail", reason)})
		if err != nil {
			t.Fatal(err)
		}

		_, err = c.SubmitRecord(ctx, "owner", "msg", "sig", star("s"))
		if !errors.Is(err, ledger.ErrOwnershipProofFailed) {
			t.Errorf("expected ErrOwnershipProofFailed, got %v", err)
		}
		if !errors.Is(err, reason) {
			t.Errorf("expected sub-reason %v, got %v", reason, err)
		}
		if h := c.Height(ctx); h != 0 {
			t.Errorf("rejected submission was appended: height %d", h)
		}
	}
}

func TestSubmitRecord_missingFields(t *testing.T) {
	c := newChain(t)
	cases := []struct {
		address, message, signature string
		star                        any
	}{
		{"", "m", "s", star("x")},
		{"a", "", "s", star("x")},
		{"a", "m", "", star("x")},
		{"a", "m", "s", nil},
	}
	for i, tc := range cases {
		_, err := c.SubmitRecord(ctx, tc.address, tc.message, tc.signature, tc.star)
		if !errors.Is(err, ledger.ErrInvalidSubmission) {
			t.Errorf("case %d: expected ErrInvalidSubmission, got %v", i, err)
		}
	}
	if h := c.Height(ctx); h != 0 {
		t.Errorf("invalid submissions were appended: height %d", h)
	}
}

func TestSubmitRecord_unencodableStar(t *testing.T) {
	c := newChain(t)
	_, err := c.SubmitRecord(ctx, "owner", "msg", "sig", map[string]any{"bad": make(chan int)})
	if !errors.Is(err, codec.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	if h := c.Height(ctx); h != 0 {
		t.Errorf("failed encode left a block behind: height %d", h)
	}
}

func TestBlockByHash(t *testing.T) {
	c := newChain(t)
	b := submit(t, c, "owner", "s")

	got, ok := c.BlockByHash(ctx, b.Hash)
	if !ok {
		t.Fatal("block not found by hash")
	}
	if !reflect.DeepEqual(got, b) {
		t.Errorf("BlockByHash: got %+v, want %+v", got, b)
	}

	if _, ok := c.BlockByHash(ctx, "deadbeef"); ok {
		t.Error("unknown hash found")
	}
}

func TestBlockByHeight_outOfRange(t *testing.T) {
	c := newChain(t)
	for _, h := range []int{-1, 1, 100} {
		if _, ok := c.BlockByHeight(ctx, h); ok {
			t.Errorf("height %d: expected not found", h)
		}
	}
}

func TestBlockByHeight_returnsCopy(t *testing.T) {
	c := newChain(t)
	b := submit(t, c, "owner", "s")

	b.Payload = "00"
	stored, _ := c.BlockByHeight(ctx, 1)
	if stored.Payload == "00" {
		t.Error("mutating a returned block changed the chain")
	}
}

func TestRecordsByOwner(t *testing.T) {
	for _, cd := range []codec.Codec{codec.JSON{}, codec.CBOR{}} {
		c := newChain(t, ledger.WithCodec(cd))
		submit(t, c, "A", "first")
		submit(t, c, "B", "second")
		submit(t, c, "A", "third")

		got, err := c.RecordsByOwner(ctx, "A")
		if err != nil {
			t.Fatal(err)
		}
		want := []ledger.OwnedRecord{
			{Owner: "A", Star: star("first")},
			{Owner: "A", Star: star("third")},
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: RecordsByOwner(A): got %#v, want %#v", cd.Name(), got, want)
		}

		none, err := c.RecordsByOwner(ctx, "C")
		if err != nil {
			t.Fatal(err)
		}
		if none == nil || len(none) != 0 {
			t.Errorf("%s: RecordsByOwner(C): got %#v, want empty slice", cd.Name(), none)
		}
	}
}

func TestAppendHook(t *testing.T) {
	var got []int
	c := newChain(t, ledger.WithAppendHook(func(b ledger.Block) { got = append(got, b.Height) }))
	submit(t, c, "owner", "a")
	submit(t, c, "owner", "b")

	if !reflect.DeepEqual(got, []int{1, 2}) {
		t.Errorf("append hook heights: got %v", got)
	}
}

func TestRequestChallenge(t *testing.T) {
	c := newChain(t)
	msg, err := c.RequestChallenge(ctx, "owner")
	if err != nil {
		t.Fatal(err)
	}
	if a, _, err := ownership.ParseChallenge(msg); err != nil || a != "owner" {
		t.Errorf("challenge %q: address %q, err %v", msg, a, err)
	}
	if _, err := c.RequestChallenge(ctx, ""); !errors.Is(err, ledger.ErrInvalidSubmission) {
		t.Errorf("empty address: expected ErrInvalidSubmission, got %v", err)
	}
}

// TestSubmitRecord_concurrent submits from many goroutines, each with its own
// ed25519 account and a real signed challenge.
func TestSubmitRecord_concurrent(t *testing.T) {
	const n = 64

	verifier := ownership.NewVerifier(ownership.AccountChecker{})
	c, err := ledger.New(verifier)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pub, priv, err := ed25519.GenerateKey(nil)
			if err != nil {
				errs <- err
				return
			}
			address := ownership.NewAccount(pub, true).String()
			msg, err := c.RequestChallenge(ctx, address)
			if err != nil {
				errs <- err
				return
			}
			sig := ownership.SignAccountMessage(priv, msg)
			if _, err := c.SubmitRecord(ctx, address, msg, sig, star(fmt.Sprint(i))); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent submit: %v", err)
	}

	if h := c.Height(ctx); h != n {
		t.Fatalf("Height: got %d, want %d", h, n)
	}
	seen := make(map[string]bool)
	for h := 0; h <= n; h++ {
		b, ok := c.BlockByHeight(ctx, h)
		if !ok || b.Height != h {
			t.Fatalf("height %d missing or mislabelled", h)
		}
		if seen[b.Hash] {
			t.Errorf("duplicate hash at height %d", h)
		}
		seen[b.Hash] = true
	}
	if faults := c.Validate(ctx); len(faults) != 0 {
		t.Errorf("audit after concurrent appends: %v", faults)
	}
}
