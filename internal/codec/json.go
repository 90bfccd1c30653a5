package codec

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

const jsonName = "json"

// JSON encodes payloads as hex(JSON), the format used by the original star
// notary service.
type JSON struct{}

// Name implements Codec.
func (JSON) Name() string { return jsonName }

// Encode implements Codec.
func (JSON) Encode(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return hex.EncodeToString(bytes.TrimSpace(buf.Bytes())), nil
}

// Decode implements Codec. Trailing data after the first JSON value is
// rejected.
func (JSON) Decode(payload string, v any) error {
	raw, err := unhex(payload)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON value", ErrMalformedPayload)
	}
	return nil
}
