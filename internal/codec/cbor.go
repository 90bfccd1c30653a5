package codec

import (
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

const cborName = "cbor"

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error

	// Core deterministic encoding: sorted map keys, shortest integer and
	// float forms, no indefinite-length items.
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	// Records only carry string keys; decode untyped maps the way
	// encoding/json does so both codecs hand back the same shapes.
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// CBOR encodes payloads as hex of core deterministic CBOR.
type CBOR struct{}

// Name implements Codec.
func (CBOR) Name() string { return cborName }

// Encode implements Codec.
func (CBOR) Encode(v any) (string, error) {
	raw, err := cborEnc.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return hex.EncodeToString(raw), nil
}

// Decode implements Codec. cbor.Unmarshal already rejects trailing bytes.
func (CBOR) Decode(payload string, v any) error {
	raw, err := unhex(payload)
	if err != nil {
		return err
	}
	if err := cborDec.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}
