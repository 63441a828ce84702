package testutil

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"fmt"
	"log/slog"
	"testing"

	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// =====================================
// Round Configuration
// =====================================

// RoundConfigOption is a function that modifies a RoundConfig
type RoundConfigOption func(*protocol.RoundConfig)

// WithRoundID sets the round identifier
func WithRoundID(id string) RoundConfigOption {
	return func(cfg *protocol.RoundConfig) {
		cfg.ID = id
	}
}

// WithCapacity sets the number of participants
func WithCapacity(capacity int) RoundConfigOption {
	return func(cfg *protocol.RoundConfig) {
		cfg.Capacity = capacity
	}
}

// WithOwner sets the round owner
func WithOwner(owner crypto.Address) RoundConfigOption {
	return func(cfg *protocol.RoundConfig) {
		cfg.Owner = owner
	}
}

// WithContract sets the consumer address inputs are bound to
func WithContract(contract crypto.Address) RoundConfigOption {
	return func(cfg *protocol.RoundConfig) {
		cfg.Contract = contract
	}
}

// NewTestRoundConfig creates a round configuration with default values
// that can be customized using options
func NewTestRoundConfig(options ...RoundConfigOption) *protocol.RoundConfig {
	cfg := &protocol.RoundConfig{
		ID:       "test-round",
		Capacity: protocol.DefaultCapacity,
		Owner:    GenerateTestAddress(0xaa),
		Contract: GenerateTestAddress(0xcc),
	}

	for _, option := range options {
		option(cfg)
	}

	return cfg
}

// =====================================
// Identities
// =====================================

// GenerateRandomBytes generates a slice of random bytes with the specified length
func GenerateRandomBytes(length int) ([]byte, error) {
	bytes := make([]byte, length)
	_, err := rand.Read(bytes)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// GenerateTestAddress returns a deterministic address ending in b
func GenerateTestAddress(b byte) crypto.Address {
	var a crypto.Address
	a[crypto.AddressLength-1] = b
	return a
}

// Participant is a signing identity taking part in a test round.
type Participant struct {
	PublicKey  crypto.PublicKey
	PrivateKey crypto.PrivateKey
}

// Address is the participant's round identity
func (p *Participant) Address() crypto.Address {
	return p.PublicKey.Address()
}

// GenerateTestParticipant creates a participant with a fresh key pair
func GenerateTestParticipant() (*Participant, error) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	return &Participant{PublicKey: pub, PrivateKey: priv}, nil
}

// GenerateTestParticipants creates count participants
func GenerateTestParticipants(count int) ([]*Participant, error) {
	participants := make([]*Participant, count)
	for i := range participants {
		p, err := GenerateTestParticipant()
		if err != nil {
			return nil, fmt.Errorf("participant %d: %w", i, err)
		}
		participants[i] = p
	}
	return participants, nil
}

// MustParticipants is GenerateTestParticipants failing the test on error
func MustParticipants(t testing.TB, count int) []*Participant {
	t.Helper()
	participants, err := GenerateTestParticipants(count)
	if err != nil {
		t.Fatalf("generating participants: %v", err)
	}
	return participants
}

// =====================================
// Submissions
// =====================================

// EncryptWealth encrypts value as participant p would for the round with
// the given contract address
func EncryptWealth(exchangeKey *ecdh.PublicKey, p *Participant, contract crypto.Address, value uint64) ([]byte, error) {
	msg, err := crypto.EncryptValue(exchangeKey, value, crypto.EncryptionContext{Owner: p.Address(), Consumer: contract})
	if err != nil {
		return nil, err
	}
	return msg.Bytes(), nil
}

// SignedSubmission builds the signed request body for /submit-wealth
func SignedSubmission(exchangeKey *ecdh.PublicKey, p *Participant, round *protocol.RoundConfig, value uint64) (*protocol.Signed[protocol.WealthSubmission], error) {
	ciphertext, err := EncryptWealth(exchangeKey, p, round.Contract, value)
	if err != nil {
		return nil, err
	}
	return protocol.NewSigned(p.PrivateKey, &protocol.WealthSubmission{RoundID: round.ID, Ciphertext: ciphertext})
}

// =====================================
// Coprocessor
// =====================================

// StartLocalCoprocessor creates a local coprocessor and runs its delivery
// worker until the test ends
func StartLocalCoprocessor(t testing.TB, cfg *coprocessor.LocalConfig) *coprocessor.Local {
	t.Helper()
	if cfg == nil {
		cfg = &coprocessor.LocalConfig{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	local, err := coprocessor.NewLocal(cfg)
	if err != nil {
		t.Fatalf("creating coprocessor: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go local.Run(ctx)
	return local
}
