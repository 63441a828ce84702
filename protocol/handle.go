package protocol

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// HandleLength is the byte length of a ciphertext handle.
const HandleLength = 32

// Handle is an opaque reference to a ciphertext held by the coprocessor.
type Handle [HandleLength]byte

// NewRandomHandle returns a fresh unpredictable handle.
func NewRandomHandle() (Handle, error) {
	var h Handle
	_, err := rand.Read(h[:])
	return h, err
}

// ParseHandle parses a hex handle with an optional 0x prefix.
func ParseHandle(s string) (Handle, error) {
	var h Handle
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil || len(raw) != HandleLength {
		return h, ErrInvalidHandle
	}
	copy(h[:], raw)
	return h, nil
}

// IsZero reports whether the handle is unset.
func (h Handle) IsZero() bool {
	return h == Handle{}
}

func (h Handle) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// MarshalText implements encoding.TextMarshaler.
func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// JobID correlates a decryption request with its eventual callback.
type JobID string
