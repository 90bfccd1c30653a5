package main

import (
	"crypto/ed25519"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/jmerrifield20/starregistry/internal/ownership"
)

const testMessage = "addr:1700000000:starRegistry"

func TestLoadSigner_seed(t *testing.T) {
	seed := strings.Repeat("01", ed25519.SeedSize)
	s, err := loadSigner("", seed, "mainnet", true)
	if err != nil {
		t.Fatal(err)
	}

	account, err := ownership.ParseAccount(s.address)
	if err != nil {
		t.Fatalf("address %q does not parse: %v", s.address, err)
	}
	if !account.Test {
		t.Error("expected a test account")
	}

	sig, err := s.sign(testMessage)
	if err != nil {
		t.Fatal(err)
	}
	if err := (ownership.AccountChecker{}).CheckSignature(s.address, testMessage, sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}
}

func TestLoadSigner_wif(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatal(err)
	}
	wif, err := btcutil.NewWIF(priv, &chaincfg.TestNet3Params, true)
	if err != nil {
		t.Fatal(err)
	}

	s, err := loadSigner(wif.String(), "", "testnet3", false)
	if err != nil {
		t.Fatal(err)
	}
	sig, err := s.sign(testMessage)
	if err != nil {
		t.Fatal(err)
	}
	checker := ownership.NewBitcoinChecker(&chaincfg.TestNet3Params)
	if err := checker.CheckSignature(s.address, testMessage, sig); err != nil {
		t.Errorf("signature does not verify: %v", err)
	}

	if _, err := loadSigner(wif.String(), "", "mainnet", false); err == nil {
		t.Error("expected error for WIF on the wrong network")
	}
}

func TestLoadSigner_errors(t *testing.T) {
	cases := map[string]struct{ wif, seed string }{
		"no key":     {},
		"both keys":  {wif: "x", seed: "00"},
		"bad hex":    {seed: "zz"},
		"short seed": {seed: hex.EncodeToString([]byte{1, 2, 3})},
		"bad wif":    {wif: "not-a-wif"},
	}
	for name, tc := range cases {
		if _, err := loadSigner(tc.wif, tc.seed, "mainnet", false); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestStarFromFlags(t *testing.T) {
	submitStar, submitRA, submitDec, submitStory = "", "", "", ""
	if _, err := starFromFlags(); err == nil {
		t.Error("expected error with no star flags")
	}

	submitRA, submitStory = "16h 29m 1.0s", "hello"
	star, err := starFromFlags()
	if err != nil {
		t.Fatal(err)
	}
	if m := star.(map[string]string); m["ra"] != "16h 29m 1.0s" || m["story"] != "hello" {
		t.Errorf("unexpected star: %v", m)
	}

	submitStar = `{"name":"Vega"}`
	star, err = starFromFlags()
	if err != nil {
		t.Fatal(err)
	}
	if m := star.(map[string]any); m["name"] != "Vega" {
		t.Errorf("unexpected star: %v", m)
	}
	submitStar, submitRA, submitStory = "", "", ""
}
