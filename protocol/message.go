package protocol

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/flashbots/richest-revealer/crypto"
)

// Signed is an Ed25519-authenticated request or callback body. The signer's
// address is the caller identity. The signature covers the JSON object
// followed by the public key.
type Signed[T any] struct {
	PublicKey crypto.PublicKey `json:"public_key"`
	Signature crypto.Signature `json:"signature"`
	Object    *T               `json:"object"`
}

// NewSigned creates a signed message.
func NewSigned[T any](privkey crypto.PrivateKey, obj *T) (*Signed[T], error) {
	pubkey, err := privkey.PublicKey()
	if err != nil {
		return nil, err
	}

	serializedData, err := SerializeMessage(obj)
	if err != nil {
		return nil, err
	}

	signature, err := crypto.Sign(privkey, append(serializedData, pubkey...))
	if err != nil {
		return nil, err
	}

	return &Signed[T]{
		PublicKey: pubkey,
		Signature: signature,
		Object:    obj,
	}, nil
}

// Recover verifies the signature and returns the object and signer's public key.
func (s *Signed[T]) Recover() (*T, crypto.PublicKey, error) {
	if s.Object == nil {
		return nil, nil, errors.New("missing signed object")
	}

	serializedData, err := SerializeMessage(s.Object)
	if err != nil {
		return nil, nil, err
	}

	if !s.Signature.Verify(s.PublicKey, append(serializedData, s.PublicKey...)) {
		return nil, nil, errors.New("signature not valid")
	}

	return s.Object, s.PublicKey, nil
}

// WealthSubmission carries a participant's client-encrypted wealth.
// The ciphertext must be bound to the signer's address and the round contract.
type WealthSubmission struct {
	RoundID    string `json:"round_id"`
	Ciphertext []byte `json:"ciphertext"`
}

// ComputeRequest asks the round to run the encrypted comparison.
type ComputeRequest struct {
	RoundID string `json:"round_id"`
}

// DecryptionRequest asks the round to forward its result to the oracle.
type DecryptionRequest struct {
	RoundID string `json:"round_id"`
}

// DecryptionCallback is the oracle's answer for a decryption job.
type DecryptionCallback struct {
	JobID     JobID  `json:"job_id"`
	Plaintext uint64 `json:"plaintext"`
}

// UnmarshalMessage decodes a JSON message, such as a persisted round state.
func UnmarshalMessage[T any](data []byte) (*T, error) {
	var msg T
	err := json.Unmarshal(data, &msg)
	return &msg, err
}

// DecodeMessage decodes a JSON message from a request or response body.
func DecodeMessage[T any](reader io.Reader) (*T, error) {
	var msg T
	err := json.NewDecoder(reader).Decode(&msg)
	return &msg, err
}

// SerializeMessage serializes a message to JSON bytes.
func SerializeMessage[T any](msg *T) ([]byte, error) {
	return json.Marshal(msg)
}
