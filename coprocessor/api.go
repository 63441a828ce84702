package coprocessor

import (
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// Oracle service request bodies. Each is sent as a protocol.Signed envelope
// and Consumer must be the signer's address.

// InputRequest ingests a client-encrypted value.
type InputRequest struct {
	Ciphertext []byte         `json:"ciphertext"`
	Owner      crypto.Address `json:"owner"`
	Consumer   crypto.Address `json:"consumer"`
}

// EncryptRequest encrypts a plaintext value. Development only.
type EncryptRequest struct {
	Value    uint64         `json:"value"`
	Owner    crypto.Address `json:"owner"`
	Consumer crypto.Address `json:"consumer"`
}

// SelectMaxRequest runs the encrypted maximum selection.
type SelectMaxRequest struct {
	Consumer crypto.Address    `json:"consumer"`
	Handles  []protocol.Handle `json:"handles"`
}

// DecryptionJobRequest schedules a decryption delivered to CallbackURL.
type DecryptionJobRequest struct {
	Consumer    crypto.Address  `json:"consumer"`
	Handle      protocol.Handle `json:"handle"`
	CallbackURL string          `json:"callback_url"`
}

// HandleResponse carries a ciphertext handle.
type HandleResponse struct {
	Handle protocol.Handle `json:"handle"`
}

// JobResponse carries a decryption job identifier.
type JobResponse struct {
	JobID protocol.JobID `json:"job_id"`
}

// ErrorResponse is the JSON error body returned by the services.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
