package ownership

import "fmt"

// AddressChecker is a SignatureChecker that can tell whether it understands
// an address format.
type AddressChecker interface {
	SignatureChecker
	Accepts(address string) bool
}

// MultiChecker dispatches to the first checker that accepts the address.
type MultiChecker []AddressChecker

// CheckSignature implements SignatureChecker.
func (m MultiChecker) CheckSignature(address, message, signature string) error {
	for _, c := range m {
		if c.Accepts(address) {
			return c.CheckSignature(address, message, signature)
		}
	}
	return fmt.Errorf("unrecognized address format %q", address)
}
