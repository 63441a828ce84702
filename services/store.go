package services

import (
	"context"
	"errors"
	"sync"

	"github.com/flashbots/richest-revealer/protocol"
)

// ErrRoundNotFound is returned by LoadRound for unknown rounds.
var ErrRoundNotFound = errors.New("round not found")

// RoundStore persists round records.
type RoundStore interface {
	SaveRound(ctx context.Context, state *protocol.RoundState) error
	LoadRound(ctx context.Context, id string) (*protocol.RoundState, error)

	// Ping reports whether the store is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// InMemoryStore implements RoundStore without a database.
type InMemoryStore struct {
	mu     sync.RWMutex
	rounds map[string]protocol.RoundState
}

// NewInMemoryStore creates an in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		rounds: make(map[string]protocol.RoundState),
	}
}

// SaveRound stores a copy of state.
func (s *InMemoryStore) SaveRound(_ context.Context, state *protocol.RoundState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rounds[state.ID] = state.Clone()
	return nil
}

// LoadRound returns a copy of the stored round.
func (s *InMemoryStore) LoadRound(_ context.Context, id string) (*protocol.RoundState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.rounds[id]
	if !ok {
		return nil, ErrRoundNotFound
	}
	c := state.Clone()
	return &c, nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
