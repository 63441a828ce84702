package services

import (
	"crypto/ecdh"
	"encoding/hex"
	"fmt"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// OracleRegistration is the oracle's self-description, served signed by its
// own key so that revealers can pin or attest it.
type OracleRegistration struct {
	PublicKey       string `json:"public_key"`
	ExchangeKey     string `json:"exchange_key"`
	HTTPEndpoint    string `json:"http_endpoint"`
	AttestationType string `json:"attestation_type,omitempty"`
	Attestation     []byte `json:"attestation,omitempty"`
}

// ParsePublicKey returns the parsed signing public key.
func (r *OracleRegistration) ParsePublicKey() (crypto.PublicKey, error) {
	return crypto.NewPublicKeyFromString(r.PublicKey)
}

// ParseExchangeKey returns the parsed ECDH public key.
func ParseExchangeKey(exchangeKey string) (*ecdh.PublicKey, error) {
	keyBytes, err := hex.DecodeString(exchangeKey)
	if err != nil {
		return nil, fmt.Errorf("invalid exchange key hex: %w", err)
	}
	return ecdh.P256().NewPublicKey(keyBytes)
}

// SubmitResponse confirms an accepted submission.
type SubmitResponse struct {
	Participant protocol.Participant `json:"participant"`
}

// ComputeResponse carries the encrypted winner index.
type ComputeResponse struct {
	EncryptedResult protocol.Handle `json:"encrypted_result"`
}

// DecryptionResponse carries the pending decryption job.
type DecryptionResponse struct {
	JobID protocol.JobID `json:"job_id"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type ParticipantsResponse struct {
	Participants []protocol.Participant `json:"participants"`
}

type CanRequestDecryptionResponse struct {
	CanRequestDecryption bool `json:"can_request_decryption"`
}

// RevealedResponse reports the reveal status. Index is set once revealed.
type RevealedResponse struct {
	Revealed bool    `json:"revealed"`
	Index    *uint64 `json:"index,omitempty"`
}

// EncryptedResultResponse carries the encrypted winner index once computed.
type EncryptedResultResponse struct {
	Computed bool             `json:"computed"`
	Handle   *protocol.Handle `json:"handle,omitempty"`
}

// OracleInfoResponse describes the oracle trusted for callbacks.
type OracleInfoResponse struct {
	PublicKey    string         `json:"public_key"`
	Address      crypto.Address `json:"address"`
	ExchangeKey  string         `json:"exchange_key"`
	HTTPEndpoint string         `json:"http_endpoint"`
	Attested     bool           `json:"attested"`
}
