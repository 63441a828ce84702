package protocol

import (
	"context"

	"github.com/flashbots/richest-revealer/crypto"
)

// Coprocessor is the external confidential-computing capability the round
// relies on. Implementations keep every value encrypted; only handles cross
// the boundary.
type Coprocessor interface {
	// Ingest verifies a client-encrypted input bound to ectx and returns a
	// handle for it. Inputs never travel as plaintext. A ciphertext that is
	// malformed or bound to another context fails with ErrInvalidInput.
	Ingest(ctx context.Context, ciphertext []byte, ectx crypto.EncryptionContext) (Handle, error)

	// SelectMaxIndex performs an encrypted maximum reduction over handles in
	// the given order and returns a handle to the encrypted winning index.
	// Equal values resolve to the earliest index. All handles must be
	// consumable by consumer.
	SelectMaxIndex(ctx context.Context, consumer crypto.Address, handles []Handle) (Handle, error)

	// RequestDecryption schedules an asynchronous decryption of handle and
	// returns immediately. The plaintext arrives later as a Delivery. Only
	// handles produced by SelectMaxIndex may be decrypted.
	RequestDecryption(ctx context.Context, consumer crypto.Address, handle Handle) (JobID, error)
}

// Encryptor encrypts plaintext values on behalf of a caller. Only trusted
// tooling uses it; participants encrypt client-side.
type Encryptor interface {
	Encrypt(ctx context.Context, value uint64, ectx crypto.EncryptionContext) (Handle, error)
}

// Delivery is a decrypted value returned by the oracle for a job.
type Delivery struct {
	JobID     JobID  `json:"job_id"`
	Plaintext uint64 `json:"plaintext"`
}

// DeliveryFunc receives decrypted values from the oracle.
type DeliveryFunc func(ctx context.Context, delivery Delivery) error
