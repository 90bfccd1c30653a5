package ownership

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/sha3"
)

// Account key variant bits, counted from the LSB.
const (
	publicKeyCode    = 0x01
	testKeyCode      = 0x02
	algorithmShift   = 4
	algorithmEd25519 = 1

	checksumLength = 4
)

// Account parsing errors.
var (
	ErrNotAccount       = errors.New("not an account address")
	ErrChecksumMismatch = errors.New("account checksum mismatch")
)

// Account is an ed25519 public key encoded as
// base58(varint(keyVariant) || publicKey || sha3-256(...)[:4]).
type Account struct {
	Test      bool
	PublicKey ed25519.PublicKey
}

// NewAccount wraps an ed25519 public key.
func NewAccount(pub ed25519.PublicKey, test bool) *Account {
	return &Account{Test: test, PublicKey: pub}
}

// ParseAccount decodes a base58 account address.
func ParseAccount(s string) (*Account, error) {
	raw, err := base58.Decode(s)
	if err != nil || len(raw) == 0 {
		return nil, ErrNotAccount
	}

	variant, n := binary.Uvarint(raw)
	if n <= 0 || variant&publicKeyCode != publicKeyCode {
		return nil, ErrNotAccount
	}
	if variant>>algorithmShift != algorithmEd25519 {
		return nil, fmt.Errorf("%w: unsupported key algorithm %d", ErrNotAccount, variant>>algorithmShift)
	}

	keyLength := len(raw) - n - checksumLength
	if keyLength != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: key length %d", ErrNotAccount, keyLength)
	}

	checksumStart := len(raw) - checksumLength
	checksum := sha3.Sum256(raw[:checksumStart])
	if !bytes.Equal(checksum[:checksumLength], raw[checksumStart:]) {
		return nil, ErrChecksumMismatch
	}

	return &Account{
		Test:      variant&testKeyCode != 0,
		PublicKey: ed25519.PublicKey(bytes.Clone(raw[n:checksumStart])),
	}, nil
}

// String returns the base58 address.
func (a *Account) String() string {
	variant := uint64(algorithmEd25519<<algorithmShift | publicKeyCode)
	if a.Test {
		variant |= testKeyCode
	}
	buf := binary.AppendUvarint(nil, variant)
	buf = append(buf, a.PublicKey...)
	checksum := sha3.Sum256(buf)
	buf = append(buf, checksum[:checksumLength]...)
	return base58.Encode(buf)
}

// SignAccountMessage returns the hex ed25519 signature of message.
func SignAccountMessage(priv ed25519.PrivateKey, message string) string {
	return hex.EncodeToString(ed25519.Sign(priv, []byte(message)))
}

// AccountChecker verifies hex ed25519 signatures by account addresses.
type AccountChecker struct{}

// Accepts reports whether address parses as an account.
func (AccountChecker) Accepts(address string) bool {
	_, err := ParseAccount(address)
	return err == nil
}

// CheckSignature implements SignatureChecker.
func (AccountChecker) CheckSignature(address, message, signature string) error {
	account, err := ParseAccount(address)
	if err != nil {
		return err
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(sig))
	}
	if !ed25519.Verify(account.PublicKey, []byte(message), sig) {
		return errors.New("ed25519 signature verification failed")
	}
	return nil
}
