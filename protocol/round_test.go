package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/stretchr/testify/require"
)

// plainCoprocessor keeps values in the clear. Ciphertexts are encoded values.
type plainCoprocessor struct {
	mu      sync.Mutex
	values  map[Handle]uint64
	owners  map[Handle]crypto.Address
	jobs    map[JobID]uint64
	nextJob int
	fail    error
}

func newPlainCoprocessor() *plainCoprocessor {
	return &plainCoprocessor{
		values: make(map[Handle]uint64),
		owners: make(map[Handle]crypto.Address),
		jobs:   make(map[JobID]uint64),
	}
}

func (c *plainCoprocessor) store(value uint64) Handle {
	h, err := NewRandomHandle()
	if err != nil {
		panic(err)
	}
	c.values[h] = value
	return h
}

func (c *plainCoprocessor) Ingest(_ context.Context, ciphertext []byte, ectx crypto.EncryptionContext) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return Handle{}, c.fail
	}
	v, err := crypto.DecodeValue(ciphertext)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	h := c.store(v)
	c.owners[h] = ectx.Owner
	return h, nil
}

func (c *plainCoprocessor) SelectMaxIndex(_ context.Context, _ crypto.Address, handles []Handle) (Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return Handle{}, c.fail
	}
	best, bestIndex := uint64(0), uint64(0)
	for i, h := range handles {
		v, ok := c.values[h]
		if !ok {
			return Handle{}, ErrInvalidHandle
		}
		if i == 0 || v > best {
			best, bestIndex = v, uint64(i)
		}
	}
	return c.store(bestIndex), nil
}

func (c *plainCoprocessor) RequestDecryption(_ context.Context, _ crypto.Address, h Handle) (JobID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return "", c.fail
	}
	v, ok := c.values[h]
	if !ok {
		return "", ErrInvalidHandle
	}
	c.nextJob++
	job := JobID(fmt.Sprintf("job-%d", c.nextJob))
	c.jobs[job] = v
	return job, nil
}

func (c *plainCoprocessor) plaintext(job JobID) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jobs[job]
}

func newTestRound(t *testing.T) (*Round, *plainCoprocessor) {
	cp := newPlainCoprocessor()
	r, err := NewRound(DefaultRoundConfig(testOwner, testContract), cp)
	require.NoError(t, err)
	require.NotEmpty(t, r.ID())
	return r, cp
}

func submitValues(t *testing.T, r *Round, values ...uint64) {
	for i, v := range values {
		_, err := r.SubmitCiphertext(context.Background(), addr(byte(i+1)), crypto.EncodeValue(v))
		require.NoError(t, err)
	}
}

func revealRound(t *testing.T, r *Round, cp *plainCoprocessor) {
	ctx := context.Background()
	_, err := r.Compute(ctx, testOwner)
	require.NoError(t, err)
	job, err := r.RequestDecryption(ctx, testOwner)
	require.NoError(t, err)
	require.NoError(t, r.Deliver(ctx, Delivery{JobID: job, Plaintext: cp.plaintext(job)}))
}

func TestRoundRevealsRichest(t *testing.T) {
	r, cp := newTestRound(t)
	ctx := context.Background()

	submitValues(t, r, 10, 50, 30)
	require.Equal(t, 3, r.Count())
	require.Equal(t, PhaseFull, r.Phase())
	require.False(t, r.CanRequestDecryption())

	result, err := r.Compute(ctx, testOwner)
	require.NoError(t, err)
	encrypted, ok := r.EncryptedResult()
	require.True(t, ok)
	require.Equal(t, result, encrypted)
	require.True(t, r.CanRequestDecryption())
	require.False(t, r.IsRevealed())

	job, err := r.RequestDecryption(ctx, testOwner)
	require.NoError(t, err)
	require.False(t, r.CanRequestDecryption())
	require.Empty(t, r.RichestParticipants())

	require.NoError(t, r.OnDecryptionCallback(job, cp.plaintext(job)))
	require.True(t, r.IsRevealed())

	index, ok := r.RevealedResult()
	require.True(t, ok)
	require.Equal(t, uint64(1), index)

	richest := r.RichestParticipants()
	require.Len(t, richest, 1)
	require.Equal(t, addr(2), richest[0].Address)
}

func TestRoundTieResolvesToEarliest(t *testing.T) {
	r, cp := newTestRound(t)
	submitValues(t, r, 50, 50, 10)
	revealRound(t, r, cp)

	index, _ := r.RevealedResult()
	require.Equal(t, uint64(0), index)
	require.Equal(t, addr(1), r.RichestParticipants()[0].Address)

	r, cp = newTestRound(t)
	submitValues(t, r, 7, 7, 7)
	revealRound(t, r, cp)
	index, _ = r.RevealedResult()
	require.Equal(t, uint64(0), index)
}

func TestRoundLastIsRichest(t *testing.T) {
	r, cp := newTestRound(t)
	submitValues(t, r, 0, 1, 1<<63)
	revealRound(t, r, cp)
	require.Equal(t, addr(3), r.RichestParticipants()[0].Address)
}

func TestRoundSubmissionRules(t *testing.T) {
	r, _ := newTestRound(t)
	ctx := context.Background()

	_, err := r.SubmitCiphertext(ctx, addr(1), crypto.EncodeValue(1))
	require.NoError(t, err)
	_, err = r.SubmitCiphertext(ctx, addr(1), crypto.EncodeValue(2))
	require.ErrorIs(t, err, ErrDuplicateSubmission)

	// The owner may take part.
	p, err := r.SubmitCiphertext(ctx, testOwner, crypto.EncodeValue(3))
	require.NoError(t, err)
	require.Equal(t, 1, p.Index)

	_, err = r.SubmitCiphertext(ctx, addr(2), crypto.EncodeValue(4))
	require.NoError(t, err)

	_, err = r.SubmitCiphertext(ctx, addr(4), crypto.EncodeValue(5))
	require.ErrorIs(t, err, ErrCapacityExceeded)

	participants := r.Participants()
	require.Len(t, participants, 3)
	require.Equal(t, []crypto.Address{addr(1), testOwner, addr(2)},
		[]crypto.Address{participants[0].Address, participants[1].Address, participants[2].Address})

	got, ok := r.Participant(1)
	require.True(t, ok)
	require.Equal(t, testOwner, got.Address)
	_, ok = r.Participant(3)
	require.False(t, ok)
	_, ok = r.Participant(-1)
	require.False(t, ok)

	// Returned slices are copies.
	participants[0].Address = addr(9)
	got, _ = r.Participant(0)
	require.Equal(t, addr(1), got.Address)
}

func TestRoundOwnerOnly(t *testing.T) {
	r, _ := newTestRound(t)
	ctx := context.Background()

	_, err := r.Compute(ctx, addr(1))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.Compute(ctx, testOwner)
	require.ErrorIs(t, err, ErrInsufficientParticipants)

	submitValues(t, r, 1, 2, 3)

	_, err = r.Compute(ctx, addr(1))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = r.RequestDecryption(ctx, testOwner)
	require.ErrorIs(t, err, ErrNotReady)

	_, err = r.Compute(ctx, testOwner)
	require.NoError(t, err)
	_, err = r.Compute(ctx, testOwner)
	require.ErrorIs(t, err, ErrAlreadyComputed)

	_, err = r.RequestDecryption(ctx, addr(2))
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.RequestDecryption(ctx, testOwner)
	require.NoError(t, err)
	_, err = r.RequestDecryption(ctx, testOwner)
	require.ErrorIs(t, err, ErrAlreadyRequested)
}

func TestRoundCallbackValidation(t *testing.T) {
	r, cp := newTestRound(t)
	ctx := context.Background()
	submitValues(t, r, 5, 1, 2)

	require.ErrorIs(t, r.OnDecryptionCallback("job-1", 0), ErrUnknownJob)

	_, err := r.Compute(ctx, testOwner)
	require.NoError(t, err)
	job, err := r.RequestDecryption(ctx, testOwner)
	require.NoError(t, err)

	require.ErrorIs(t, r.OnDecryptionCallback("other", 0), ErrUnknownJob)
	require.ErrorIs(t, r.OnDecryptionCallback(job, 3), ErrResultOutOfRange)
	require.False(t, r.IsRevealed())

	require.NoError(t, r.OnDecryptionCallback(job, cp.plaintext(job)))
	require.ErrorIs(t, r.OnDecryptionCallback(job, 1), ErrUnknownJob)

	index, _ := r.RevealedResult()
	require.Equal(t, uint64(0), index)
}

func TestRoundRejectedInputIsNotACoprocessorFailure(t *testing.T) {
	r, _ := newTestRound(t)

	_, err := r.SubmitCiphertext(context.Background(), addr(1), []byte("short"))
	require.ErrorIs(t, err, ErrInvalidInput)
	require.NotErrorIs(t, err, ErrCoprocessor)
	require.Equal(t, "invalid_input", ErrorCode(err))
	require.Zero(t, r.Count())

	// The submitter may retry with a valid ciphertext.
	_, err = r.SubmitCiphertext(context.Background(), addr(1), crypto.EncodeValue(5))
	require.NoError(t, err)
}

func TestRoundCoprocessorFailureLeavesStateUnchanged(t *testing.T) {
	r, cp := newTestRound(t)
	ctx := context.Background()
	boom := errors.New("unavailable")

	cp.fail = boom
	_, err := r.SubmitCiphertext(ctx, addr(1), crypto.EncodeValue(1))
	require.ErrorIs(t, err, ErrCoprocessor)
	require.ErrorIs(t, err, boom)
	require.Zero(t, r.Count())
	cp.fail = nil

	submitValues(t, r, 1, 2, 3)
	before := r.Snapshot()

	cp.fail = boom
	_, err = r.Compute(ctx, testOwner)
	require.ErrorIs(t, err, ErrCoprocessor)
	require.Equal(t, before, r.Snapshot())

	cp.fail = nil
	_, err = r.Compute(ctx, testOwner)
	require.NoError(t, err)
	before = r.Snapshot()

	cp.fail = boom
	_, err = r.RequestDecryption(ctx, testOwner)
	require.ErrorIs(t, err, ErrCoprocessor)
	require.Equal(t, before, r.Snapshot())
	require.True(t, r.CanRequestDecryption())
}

func TestRoundTransitions(t *testing.T) {
	r, cp := newTestRound(t)

	var phases []Phase
	r.OnTransition(func(tr Transition) {
		require.Equal(t, tr.To, tr.State.Phase)
		// Listeners run outside the lock.
		require.Equal(t, tr.To, r.Phase())
		phases = append(phases, tr.To)
	})

	submitValues(t, r, 3, 2, 1)
	revealRound(t, r, cp)

	require.Equal(t, []Phase{PhaseOpen, PhaseOpen, PhaseFull, PhaseComputed, PhaseDecryptionRequested, PhaseRevealed}, phases)
}

func TestRoundSnapshotRestore(t *testing.T) {
	r, cp := newTestRound(t)
	ctx := context.Background()
	submitValues(t, r, 4, 9, 2)
	_, err := r.Compute(ctx, testOwner)
	require.NoError(t, err)
	job, err := r.RequestDecryption(ctx, testOwner)
	require.NoError(t, err)

	restored, err := RestoreRound(r.Snapshot(), cp)
	require.NoError(t, err)
	require.Equal(t, r.ID(), restored.ID())
	require.Equal(t, PhaseDecryptionRequested, restored.Phase())

	require.NoError(t, restored.OnDecryptionCallback(job, cp.plaintext(job)))
	require.Equal(t, addr(2), restored.RichestParticipants()[0].Address)

	// The original handle is independent of the restored one.
	require.False(t, r.IsRevealed())

	broken := r.Snapshot()
	broken.Job = ""
	_, err = RestoreRound(broken, cp)
	require.Error(t, err)
}

func TestRoundConcurrentSubmissions(t *testing.T) {
	cp := newPlainCoprocessor()
	cfg := DefaultRoundConfig(testOwner, testContract)
	cfg.Capacity = 5
	r, err := NewRound(cfg, cp)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var accepted, rejected sync.Map
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.SubmitCiphertext(context.Background(), addr(byte(i)), crypto.EncodeValue(uint64(i)))
			if err == nil {
				accepted.Store(i, true)
			} else {
				require.ErrorIs(t, err, ErrCapacityExceeded)
				rejected.Store(i, true)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, 5, r.Count())
	require.Equal(t, PhaseFull, r.Phase())
	for i, p := range r.Participants() {
		require.Equal(t, i, p.Index)
		_, ok := accepted.Load(int(p.Address[19]))
		require.True(t, ok)
	}
}
