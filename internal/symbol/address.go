package symbol

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base32"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // address format requires RIPEMD-160
	"golang.org/x/crypto/sha3"
)

// AddressSize is the decoded size of an address.
const AddressSize = 24

// ErrInvalidAddress is returned for malformed or mistyped addresses.
var ErrInvalidAddress = errors.New("invalid address")

// Address is a decoded Symbol address: network byte, 20-byte key hash, 3-byte checksum.
type Address [AddressSize]byte

var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// AddressFromPublicKey derives the address of pub on network.
func AddressFromPublicKey(network Network, pub ed25519.PublicKey) Address {
	keyHash := sha3.Sum256(pub)

	r := ripemd160.New()
	r.Write(keyHash[:])
	hashed := r.Sum(nil)

	var addr Address
	addr[0] = network.ID
	copy(addr[1:21], hashed)

	checksum := sha3.Sum256(addr[:21])
	copy(addr[21:], checksum[:3])
	return addr
}

// ParseAddress decodes the 39-character base32 form, with or without dashes,
// and verifies its checksum.
func ParseAddress(s string) (Address, error) {
	var addr Address
	s = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))

	raw, err := addressEncoding.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("%w: %q: %v", ErrInvalidAddress, s, err)
	}
	if len(raw) != AddressSize {
		return addr, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidAddress, s, len(raw))
	}
	copy(addr[:], raw)

	checksum := sha3.Sum256(addr[:21])
	if !bytes.Equal(checksum[:3], addr[21:]) {
		return Address{}, fmt.Errorf("%w: %q has a bad checksum", ErrInvalidAddress, s)
	}
	return addr, nil
}

// NetworkID returns the network byte.
func (a Address) NetworkID() byte { return a[0] }

// IsZero reports whether a is unset.
func (a Address) IsZero() bool { return a == Address{} }

// String returns the 39-character base32 form used by the REST API.
func (a Address) String() string {
	return addressEncoding.EncodeToString(a[:])
}

// MarshalJSON encodes the address as its base32 form.
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON accepts the base32 form or the 48-character hex form nodes return in entries.
func (a *Address) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if len(s) == 2*AddressSize {
		raw, err := decodeHex(s)
		if err != nil || len(raw) != AddressSize {
			return fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		copy(a[:], raw)
		return nil
	}
	parsed, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
