package ownership

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// bitcoinMessageMagic prefixes every message before hashing, as in
// Bitcoin Core's signmessage / verifymessage.
const bitcoinMessageMagic = "Bitcoin Signed Message:\n"

const compactSigLen = 65

// header byte ranges of a compact signature
const (
	headerUncompressed = 27 // 27..30
	headerCompressed   = 31 // 31..34
	headerSegwitMax    = 42 // 35..38 P2SH-P2WPKH, 39..42 P2WPKH (bitcoinjs-message)
)

var errAddressMismatch = errors.New("signature does not match address")

// NetworkParams returns the chain parameters for a network name.
func NetworkParams(name string) (*chaincfg.Params, error) {
	switch strings.ToLower(name) {
	case "", "mainnet", "main":
		return &chaincfg.MainNetParams, nil
	case "testnet3", "testnet", "test":
		return &chaincfg.TestNet3Params, nil
	case "regtest", "regression":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	default:
		return nil, fmt.Errorf("unknown bitcoin network %q", name)
	}
}

// BitcoinChecker verifies Bitcoin signed-message signatures (base64 compact
// signatures with public key recovery) against P2PKH, P2SH-P2WPKH and P2WPKH
// addresses.
type BitcoinChecker struct {
	params *chaincfg.Params
}

// NewBitcoinChecker creates a checker for addresses on the given network.
func NewBitcoinChecker(params *chaincfg.Params) *BitcoinChecker {
	if params == nil {
		params = &chaincfg.MainNetParams
	}
	return &BitcoinChecker{params: params}
}

// Accepts reports whether address is a Bitcoin address on this checker's network.
func (b *BitcoinChecker) Accepts(address string) bool {
	addr, err := btcutil.DecodeAddress(address, b.params)
	return err == nil && addr.IsForNet(b.params)
}

// CheckSignature implements SignatureChecker.
func (b *BitcoinChecker) CheckSignature(address, message, signature string) error {
	addr, err := btcutil.DecodeAddress(address, b.params)
	if err != nil {
		return fmt.Errorf("decode address: %w", err)
	}
	if !addr.IsForNet(b.params) {
		return fmt.Errorf("address %s is not for network %s", address, b.params.Name)
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != compactSigLen {
		return fmt.Errorf("signature must be %d bytes, got %d", compactSigLen, len(sig))
	}
	if sig[0] < headerUncompressed || sig[0] > headerSegwitMax {
		return fmt.Errorf("invalid signature header byte %d", sig[0])
	}
	if sig[0] > headerCompressed+3 {
		// Segwit flags carry the same recovery id on a compressed key.
		sig = append([]byte(nil), sig...)
		sig[0] = headerCompressed + (sig[0]-headerUncompressed)&3
	}

	hash, err := bitcoinMessageHash(message)
	if err != nil {
		return err
	}
	pub, compressed, err := ecdsa.RecoverCompact(sig, hash)
	if err != nil {
		return fmt.Errorf("recover public key: %w", err)
	}

	var derived btcutil.Address
	switch addr.(type) {
	case *btcutil.AddressPubKeyHash:
		serialized := pub.SerializeUncompressed()
		if compressed {
			serialized = pub.SerializeCompressed()
		}
		derived, err = btcutil.NewAddressPubKeyHash(btcutil.Hash160(serialized), b.params)
	case *btcutil.AddressWitnessPubKeyHash:
		derived, err = btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(pub.SerializeCompressed()), b.params)
	case *btcutil.AddressScriptHash:
		// P2SH-wrapped P2WPKH: OP_0 <20-byte key hash>
		script := append([]byte{0x00, 0x14}, btcutil.Hash160(pub.SerializeCompressed())...)
		derived, err = btcutil.NewAddressScriptHash(script, b.params)
	default:
		return fmt.Errorf("unsupported address type %T", addr)
	}
	if err != nil {
		return fmt.Errorf("derive address: %w", err)
	}
	if derived.EncodeAddress() != addr.EncodeAddress() {
		return errAddressMismatch
	}
	return nil
}

// SignBitcoinMessage signs message with the key in wif and returns the base64
// compact signature that BitcoinChecker (and Bitcoin Core's verifymessage)
// accepts.
func SignBitcoinMessage(wif *btcutil.WIF, message string) (string, error) {
	hash, err := bitcoinMessageHash(message)
	if err != nil {
		return "", err
	}
	sig := ecdsa.SignCompact(wif.PrivKey, hash, wif.CompressPubKey)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// bitcoinMessageHash is sha256d(varstr(magic) || varstr(message)).
func bitcoinMessageHash(message string) ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarString(&buf, 0, bitcoinMessageMagic); err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	if err := wire.WriteVarString(&buf, 0, message); err != nil {
		return nil, fmt.Errorf("serialize message: %w", err)
	}
	return chainhash.DoubleHashB(buf.Bytes()), nil
}
