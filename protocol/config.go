package protocol

import (
	"errors"

	"github.com/flashbots/richest-revealer/crypto"
)

// DefaultCapacity is the number of participants in a round.
const DefaultCapacity = 3

// RoundConfig provides the fixed parameters of a round.
type RoundConfig struct {
	// ID identifies the round in signed requests. Generated when empty.
	ID string `json:"id" yaml:"id"`

	// Capacity is the exact number of participants required to compute.
	Capacity int `json:"capacity" yaml:"capacity"`

	// Owner is the only identity allowed to compute and request decryption.
	Owner crypto.Address `json:"owner" yaml:"owner"`

	// Contract is the consumer address ciphertexts must be bound to.
	Contract crypto.Address `json:"contract" yaml:"contract"`
}

// DefaultRoundConfig returns a configuration with the default capacity.
func DefaultRoundConfig(owner, contract crypto.Address) *RoundConfig {
	return &RoundConfig{
		Capacity: DefaultCapacity,
		Owner:    owner,
		Contract: contract,
	}
}

// Validate checks the configuration.
func (c *RoundConfig) Validate() error {
	if c.Capacity < 2 {
		return errors.New("capacity must be at least 2")
	}
	if c.Owner.IsZero() {
		return errors.New("owner address is required")
	}
	if c.Contract.IsZero() {
		return errors.New("contract address is required")
	}
	return nil
}
