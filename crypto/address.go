package crypto

import (
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of an Address.
const AddressLength = 20

// Address identifies a participant, the round owner, or a consuming application.
// Derived as the last 20 bytes of Keccak-256 over the Ed25519 public key.
type Address [AddressLength]byte

// ErrInvalidAddress is returned when parsing a malformed address.
var ErrInvalidAddress = errors.New("invalid address")

// AddressFromPublicKey derives the address of a public key.
func AddressFromPublicKey(pk PublicKey) Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(pk)
	digest := h.Sum(nil)

	var addr Address
	copy(addr[:], digest[len(digest)-AddressLength:])
	return addr
}

// ParseAddress parses a hex address with an optional 0x prefix.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return addr, ErrInvalidAddress
	}
	if len(raw) != AddressLength {
		return addr, ErrInvalidAddress
	}
	copy(addr[:], raw)
	return addr, nil
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// String returns the 0x-prefixed hex encoding.
func (a Address) String() string {
	return "0x" + hex.EncodeToString(a[:])
}

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// EncryptionContext is the permission context a ciphertext is bound to:
// the account that owns the value and the application allowed to consume it.
type EncryptionContext struct {
	Owner    Address `json:"owner"`
	Consumer Address `json:"consumer"`
}

// Bytes returns the canonical encoding used for key derivation and AEAD data.
func (c EncryptionContext) Bytes() []byte {
	res := make([]byte, 0, 2*AddressLength)
	res = append(res, c.Owner[:]...)
	res = append(res, c.Consumer[:]...)
	return res
}
