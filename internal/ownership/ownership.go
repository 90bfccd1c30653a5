// Package ownership implements the challenge/signature proof a submitter uses
// to show control of an address before the registry accepts a star.
//
// A challenge has the form "<address>:<issuedAtSeconds>:starRegistry". It is
// stateless: nothing is stored when it is issued, and freshness is only
// checked when the signed challenge comes back.
package ownership

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Scope is the tag that closes every challenge message.
const Scope = "starRegistry"

// DefaultMaxAge is how long an issued challenge stays valid.
const DefaultMaxAge = 300 * time.Second

// Verification failures. Verify wraps exactly one of these.
var (
	ErrMalformedChallenge = errors.New("malformed challenge")
	ErrExpiredChallenge   = errors.New("challenge expired")
	ErrInvalidSignature   = errors.New("invalid signature")
)

// SignatureChecker validates that signature over message was produced by the
// key behind address.
type SignatureChecker interface {
	CheckSignature(address, message, signature string) error
}

// Verifier issues challenges and verifies signed ones.
type Verifier struct {
	checker SignatureChecker
	maxAge  time.Duration
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMaxAge overrides DefaultMaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.maxAge = d
		}
	}
}

// WithClock replaces time.Now; used by tests.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier creates a Verifier that checks signatures with checker.
func NewVerifier(checker SignatureChecker, opts ...Option) *Verifier {
	v := &Verifier{
		checker: checker,
		maxAge:  DefaultMaxAge,
		now:     time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// MaxAge returns the freshness window.
func (v *Verifier) MaxAge() time.Duration { return v.maxAge }

// IssueChallenge returns a fresh challenge message for address.
func (v *Verifier) IssueChallenge(address string) string {
	return Challenge(address, v.now())
}

// Challenge formats the challenge message for address issued at t.
func Challenge(address string, t time.Time) string {
	return fmt.Sprintf("%s:%d:%s", address, t.Unix(), Scope)
}

// ParseChallenge splits a challenge into its address and issue time.
// The address is everything before the last two separators.
func ParseChallenge(message string) (address string, issuedAt int64, err error) {
	rest, scope, ok := cutLast(message, ":")
	if !ok || scope != Scope {
		return "", 0, fmt.Errorf("%w: missing %q scope tag", ErrMalformedChallenge, Scope)
	}
	address, ts, ok := cutLast(rest, ":")
	if !ok || address == "" {
		return "", 0, fmt.Errorf("%w: missing address or timestamp", ErrMalformedChallenge)
	}
	issuedAt, err = strconv.ParseInt(ts, 10, 64)
	if err != nil || issuedAt < 0 {
		return "", 0, fmt.Errorf("%w: bad timestamp %q", ErrMalformedChallenge, ts)
	}
	return address, issuedAt, nil
}

// Verify checks that message is a fresh challenge for address and that
// signature is a valid signature of message by address. Freshness is checked
// before the signature so expired challenges never reach the signature check.
func (v *Verifier) Verify(address, message, signature string) error {
	claimed, issuedAt, err := ParseChallenge(message)
	if err != nil {
		return err
	}
	if claimed != address {
		return fmt.Errorf("%w: challenge was issued for a different address", ErrMalformedChallenge)
	}

	now := v.now().Unix()
	if issuedAt > now {
		return fmt.Errorf("%w: challenge is dated in the future", ErrMalformedChallenge)
	}
	if time.Duration(now-issuedAt)*time.Second >= v.maxAge {
		return fmt.Errorf("%w: issued %ds ago, limit is %s", ErrExpiredChallenge, now-issuedAt, v.maxAge)
	}

	if err := v.checker.CheckSignature(address, message, signature); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	i := strings.LastIndex(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+len(sep):], true
}
