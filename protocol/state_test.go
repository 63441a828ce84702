package protocol

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/stretchr/testify/require"
)

func addr(b byte) crypto.Address {
	var a crypto.Address
	a[19] = b
	return a
}

func handle(b byte) Handle {
	var h Handle
	h[0] = 0xff
	h[31] = b
	return h
}

var (
	testOwner    = addr(0xaa)
	testContract = addr(0xcc)
	testNow      = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newTestState(t *testing.T) *RoundState {
	cfg := DefaultRoundConfig(testOwner, testContract)
	cfg.ID = "round-1"
	s, err := NewRoundState(cfg, testNow)
	require.NoError(t, err)
	return s
}

func fillState(t *testing.T, s *RoundState) {
	for i := byte(1); i <= byte(s.Capacity); i++ {
		_, err := s.Submit(addr(i), handle(i), testNow)
		require.NoError(t, err)
	}
}

func TestRoundConfigValidate(t *testing.T) {
	require.NoError(t, DefaultRoundConfig(testOwner, testContract).Validate())

	cfg := DefaultRoundConfig(testOwner, testContract)
	cfg.Capacity = 1
	require.Error(t, cfg.Validate())

	require.Error(t, DefaultRoundConfig(crypto.Address{}, testContract).Validate())
	require.Error(t, DefaultRoundConfig(testOwner, crypto.Address{}).Validate())

	_, err := NewRoundState(DefaultRoundConfig(testOwner, testContract), testNow)
	require.Error(t, err, "round id is required")
}

func TestStateSubmit(t *testing.T) {
	s := newTestState(t)
	require.Equal(t, PhaseOpen, s.Phase)
	require.Zero(t, s.Count())

	p, err := s.Submit(addr(1), handle(1), testNow)
	require.NoError(t, err)
	require.Equal(t, 0, p.Index)
	require.True(t, s.HasSubmitted(addr(1)))
	require.False(t, s.HasSubmitted(addr(2)))

	_, err = s.Submit(addr(1), handle(9), testNow)
	require.ErrorIs(t, err, ErrDuplicateSubmission)
	require.Equal(t, 1, s.Count())

	_, err = s.Submit(addr(2), Handle{}, testNow)
	require.ErrorIs(t, err, ErrInvalidHandle)
	require.Equal(t, 1, s.Count())

	_, err = s.Submit(addr(2), handle(2), testNow)
	require.NoError(t, err)
	require.Equal(t, PhaseOpen, s.Phase)

	_, err = s.Submit(addr(3), handle(3), testNow)
	require.NoError(t, err)
	require.Equal(t, PhaseFull, s.Phase)

	_, err = s.Submit(addr(4), handle(4), testNow)
	require.ErrorIs(t, err, ErrCapacityExceeded)
	require.ErrorContains(t, err, "max 3 participants allowed")

	// Duplicate is reported before capacity.
	_, err = s.Submit(addr(1), handle(1), testNow)
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	// The owner is an ordinary submitter but the round is full.
	_, err = s.Submit(testOwner, handle(5), testNow)
	require.ErrorIs(t, err, ErrCapacityExceeded)

	require.Equal(t, 3, s.Count())
	for i, p := range s.Participants {
		require.Equal(t, i, p.Index)
		require.Equal(t, addr(byte(i+1)), p.Address)
		require.Equal(t, handle(byte(i+1)), p.Handle)
	}
}

func TestStateCompute(t *testing.T) {
	s := newTestState(t)

	require.ErrorIs(t, s.CheckCompute(addr(1)), ErrUnauthorized)

	err := s.CheckCompute(testOwner)
	require.ErrorIs(t, err, ErrInsufficientParticipants)
	require.ErrorContains(t, err, "3 participants required")

	_, err = s.Submit(addr(1), handle(1), testNow)
	require.NoError(t, err)
	require.ErrorIs(t, s.ApplyComputed(testOwner, handle(0x10), testNow), ErrInsufficientParticipants)
	require.Nil(t, s.Result)

	_, err = s.Submit(addr(2), handle(2), testNow)
	require.NoError(t, err)
	_, err = s.Submit(addr(3), handle(3), testNow)
	require.NoError(t, err)

	require.ErrorIs(t, s.ApplyComputed(addr(1), handle(0x10), testNow), ErrUnauthorized)
	require.ErrorIs(t, s.ApplyComputed(testOwner, Handle{}, testNow), ErrInvalidHandle)
	require.Equal(t, PhaseFull, s.Phase)

	require.NoError(t, s.ApplyComputed(testOwner, handle(0x10), testNow))
	require.Equal(t, PhaseComputed, s.Phase)
	require.Equal(t, handle(0x10), *s.Result)

	require.ErrorIs(t, s.ApplyComputed(testOwner, handle(0x11), testNow), ErrAlreadyComputed)
	require.Equal(t, handle(0x10), *s.Result)

	// Unauthorized takes precedence over the phase check.
	require.ErrorIs(t, s.CheckCompute(addr(2)), ErrUnauthorized)
}

func TestStateDecryption(t *testing.T) {
	s := newTestState(t)

	require.ErrorIs(t, s.CheckRequestDecryption(addr(1)), ErrUnauthorized)
	require.ErrorIs(t, s.CheckRequestDecryption(testOwner), ErrNotReady)

	fillState(t, s)
	require.ErrorIs(t, s.CheckRequestDecryption(testOwner), ErrNotReady)
	require.ErrorIs(t, s.ApplyCallback("job-1", 0, testNow), ErrUnknownJob)

	require.NoError(t, s.ApplyComputed(testOwner, handle(0x10), testNow))
	require.NoError(t, s.CheckRequestDecryption(testOwner))
	require.ErrorIs(t, s.ApplyCallback("job-1", 0, testNow), ErrUnknownJob)

	require.ErrorIs(t, s.ApplyDecryptionRequested(testOwner, "", testNow), ErrUnknownJob)
	require.NoError(t, s.ApplyDecryptionRequested(testOwner, "job-1", testNow))
	require.Equal(t, PhaseDecryptionRequested, s.Phase)
	require.ErrorIs(t, s.ApplyDecryptionRequested(testOwner, "job-2", testNow), ErrAlreadyRequested)
	require.Equal(t, JobID("job-1"), s.Job)

	require.Empty(t, s.RichestParticipants())

	require.ErrorIs(t, s.ApplyCallback("job-2", 1, testNow), ErrUnknownJob)
	require.ErrorIs(t, s.ApplyCallback("job-1", 3, testNow), ErrResultOutOfRange)
	require.Equal(t, PhaseDecryptionRequested, s.Phase)

	require.NoError(t, s.ApplyCallback("job-1", 1, testNow))
	require.Equal(t, PhaseRevealed, s.Phase)
	require.Equal(t, uint64(1), *s.Revealed)
	require.Equal(t, []Participant{{Address: addr(2), Handle: handle(2), Index: 1}}, s.RichestParticipants())

	// Replays are rejected once revealed.
	require.ErrorIs(t, s.ApplyCallback("job-1", 0, testNow), ErrUnknownJob)
	require.ErrorIs(t, s.CheckRequestDecryption(testOwner), ErrAlreadyRequested)
	require.Equal(t, uint64(1), *s.Revealed)
}

func TestStateCloneAndValidate(t *testing.T) {
	s := newTestState(t)
	fillState(t, s)
	require.NoError(t, s.ApplyComputed(testOwner, handle(0x10), testNow))
	require.NoError(t, s.Validate())

	c := s.Clone()
	c.Participants[0].Index = 7
	*c.Result = handle(0x20)
	require.Equal(t, 0, s.Participants[0].Index)
	require.Equal(t, handle(0x10), *s.Result)
	require.Error(t, c.Validate())

	bad := s.Clone()
	bad.Phase = PhaseRevealed
	require.Error(t, bad.Validate())

	bad = s.Clone()
	bad.Participants[1].Address = bad.Participants[0].Address
	require.Error(t, bad.Validate())

	bad = s.Clone()
	bad.Phase = PhaseOpen
	require.Error(t, bad.Validate())

	bad = s.Clone()
	bad.Result = nil
	require.Error(t, bad.Validate())
}

func TestErrorCode(t *testing.T) {
	require.Equal(t, "duplicate_submission", ErrorCode(ErrDuplicateSubmission))

	s := &RoundState{ID: "x", Capacity: 0}
	require.Equal(t, "capacity_exceeded", ErrorCode(s.CheckSubmit(addr(1))))

	require.Equal(t, "coprocessor_failure", ErrorCode(fmt.Errorf("%w: ingest: %w", ErrCoprocessor, errors.New("timeout"))))
	require.Equal(t, "internal", ErrorCode(errors.New("boom")))
}
