package ledger_test

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"

	"github.com/jmerrifield20/starregistry/internal/ledger"
)

func TestNewBlock_unpositioned(t *testing.T) {
	b := ledger.NewBlock("7b7d")
	if b.Hash != "" || b.Height != 0 || b.PreviousHash != ledger.NoPreviousHash || b.Timestamp != 0 {
		t.Errorf("new block should be unpositioned, got %+v", b)
	}
	if b.Payload != "7b7d" {
		t.Errorf("Payload: got %q", b.Payload)
	}
}

func TestComputeHash_fieldOrder(t *testing.T) {
	b := &ledger.Block{Height: 3, Timestamp: 1700000000, PreviousHash: "ab", Payload: "7b7d"}
	sum := sha256.Sum256([]byte("3|1700000000|ab|7b7d"))
	if got, want := b.ComputeHash(), hex.EncodeToString(sum[:]); got != want {
		t.Errorf("ComputeHash: got %s, want %s", got, want)
	}
}

func TestGenesisMarker_json(t *testing.T) {
	out, err := json.Marshal(ledger.Genesis)
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `"Genesis Block"` {
		t.Errorf("got %s", out)
	}
}
