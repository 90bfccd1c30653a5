// Package codec encodes star records into the hex payloads stored in ledger
// blocks, and decodes them back.
//
// Payloads take part in block hashing, so every codec must be deterministic:
// the same logical value always encodes to the same payload. Two codecs are
// provided:
//   - JSON: hex of encoding/json output (sorted map keys). The default.
//   - CBOR: hex of RFC 8949 core deterministic CBOR.
package codec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedPayload is returned when a value cannot be encoded, or a payload
// does not correspond to any encoded value.
var ErrMalformedPayload = errors.New("malformed payload")

// Codec converts between structured values and block payloads.
type Codec interface {
	// Name is the configuration name of the codec ("json", "cbor").
	Name() string

	// Encode returns the payload for v.
	Encode(v any) (string, error)

	// Decode parses payload into v, which must be a pointer.
	Decode(payload string, v any) error
}

// ByName returns the codec registered under name. An empty name selects JSON.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", jsonName:
		return JSON{}, nil
	case cborName:
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("unknown payload codec %q", name)
	}
}

// unhex decodes a payload's hex layer.
func unhex(payload string) ([]byte, error) {
	if payload == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	raw, err := hex.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return raw, nil
}
