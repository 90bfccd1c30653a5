package ledger

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/jmerrifield20/starregistry/internal/codec"
)

type passVerifier struct{}

func (passVerifier) IssueChallenge(address string) string { return address + ":0:starRegistry" }
func (passVerifier) Verify(_, _, _ string) error { return nil }

// chainWith returns a chain holding genesis plus n submitted blocks.
func chainWith(t *testing.T, n int) *Chain {
	t.Helper()
	c, err := New(passVerifier{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < n; i++ {
		if _, err := c.SubmitRecord(context.Background(), "owner", "m", "s", map[string]any{"i": float64(i)}); err != nil {
			t.Fatal(err)
		}
	}
	return c
}

func TestAudit_intact(t *testing.T) {
	c := chainWith(t, 4)
	if faults := c.Validate(context.Background()); len(faults) != 0 {
		t.Errorf("expected no faults, got %v", faults)
	}
}

func TestAudit_genesisOnly(t *testing.T) {
	c := chainWith(t, 0)
	faults := c.Validate(context.Background())
	if faults == nil || len(faults) != 0 {
		t.Errorf("expected empty fault list, got %#v", faults)
	}
}

func TestAudit_tamperedPayload(t *testing.T) {
	c := chainWith(t, 4)
	payload, err := c.codec.Encode(OwnedRecord{Owner: "mallory", Star: "stolen"})
	if err != nil {
		t.Fatal(err)
	}
	c.blocks[2].Payload = payload

	got := c.Validate(context.Background())
	want := []Fault{{Kind: SelfHashMismatch, Height: 2}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAudit_brokenLink(t *testing.T) {
	c := chainWith(t, 4)
	c.blocks[3].PreviousHash = "0000"

	got := Audit(c.blocks)
	// The stored hash no longer covers the new previous hash either.
	want := []Fault{
		{Kind: SelfHashMismatch, Height: 3},
		{Kind: BrokenLink, Height: 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAudit_relinkedBlock(t *testing.T) {
	c := chainWith(t, 4)
	// Re-hash after changing the link so only the link check fails.
	b := &c.blocks[3]
	b.PreviousHash = "0000"
	b.Hash = b.ComputeHash()

	got := Audit(c.blocks)
	want := []Fault{
		{Kind: BrokenLink, Height: 3},
		{Kind: BrokenLink, Height: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAudit_collectsAllFaults(t *testing.T) {
	c := chainWith(t, 5)
	c.blocks[1].Timestamp++
	c.blocks[4].Payload = "00"

	got := Audit(c.blocks)
	want := []Fault{
		{Kind: SelfHashMismatch, Height: 1},
		{Kind: SelfHashMismatch, Height: 4},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestAudit_doesNotMutate(t *testing.T) {
	c := chainWith(t, 3)
	c.blocks[2].Payload = "00"
	before := append([]Block(nil), c.blocks...)

	Audit(c.blocks)
	if !reflect.DeepEqual(before, c.blocks) {
		t.Error("Audit modified the blocks")
	}
}

func TestFault_message(t *testing.T) {
	f := Fault{Kind: BrokenLink, Height: 7}
	if f.Error() != "block 7: previous hash does not match block 6" {
		t.Errorf("unexpected message %q", f.Error())
	}
}

func TestDecodedPayload_malformed(t *testing.T) {
	c := chainWith(t, 1)
	b := c.blocks[1]
	b.Payload = "not hex"
	if _, err := b.DecodedPayload(c.codec); !errors.Is(err, codec.ErrMalformedPayload) {
		t.Errorf("expected ErrMalformedPayload, got %v", err)
	}
	if _, err := c.RecordsByOwner(context.Background(), "owner"); err != nil {
		t.Errorf("stored chain must still decode: %v", err)
	}
}

func TestComputeHash_excludesHash(t *testing.T) {
	b := NewBlock("7b7d")
	before := b.ComputeHash()
	b.Hash = "anything"
	if b.ComputeHash() != before {
		t.Error("hash depends on the Hash field")
	}
	if b.ValidateSelf() {
		t.Error("ValidateSelf passed with a wrong stored hash")
	}
}
