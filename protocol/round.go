package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/google/uuid"
)

// Transition describes a successful state change.
type Transition struct {
	From  Phase
	To    Phase
	State RoundState
}

// TransitionListener is notified after each successful mutation.
type TransitionListener func(Transition)

// Round is the explicit handle owning one RoundState.
// All mutations are serialized, including the coprocessor calls they make.
type Round struct {
	mu          sync.Mutex
	state       *RoundState
	coprocessor Coprocessor
	listeners   []TransitionListener
	now         func() time.Time
}

// NewRound creates an open round. A round ID is generated if cfg has none.
func NewRound(cfg *RoundConfig, coprocessor Coprocessor) (*Round, error) {
	c := *cfg
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	state, err := NewRoundState(&c, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	return &Round{state: state, coprocessor: coprocessor, now: utcNow}, nil
}

// RestoreRound rebuilds a handle from a persisted record.
func RestoreRound(state RoundState, coprocessor Coprocessor) (*Round, error) {
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("invalid round record: %w", err)
	}
	s := state.Clone()
	return &Round{state: &s, coprocessor: coprocessor, now: utcNow}, nil
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// OnTransition registers a listener. Listeners run outside the round lock,
// in the goroutine that performed the mutation.
func (r *Round) OnTransition(listener TransitionListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

func (r *Round) notify(listeners []TransitionListener, t Transition) {
	for _, l := range listeners {
		l(t)
	}
}

// commit must be called with the lock held after a successful mutation.
func (r *Round) commit(from Phase) (Transition, []TransitionListener) {
	return Transition{From: from, To: r.state.Phase, State: r.state.Clone()}, r.listeners
}

// ID returns the round identifier.
func (r *Round) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.ID
}

// Submit appends an already ingested ciphertext handle for identity.
func (r *Round) Submit(identity crypto.Address, value Handle) (*Participant, error) {
	r.mu.Lock()
	from := r.state.Phase
	p, err := r.state.Submit(identity, value, r.now())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	t, listeners := r.commit(from)
	r.mu.Unlock()

	r.notify(listeners, t)
	return p, nil
}

// SubmitCiphertext ingests a client-encrypted value bound to identity and the
// round contract, then appends it. Ledger rules are checked before the
// coprocessor is contacted.
func (r *Round) SubmitCiphertext(ctx context.Context, identity crypto.Address, ciphertext []byte) (*Participant, error) {
	r.mu.Lock()
	if err := r.state.CheckSubmit(identity); err != nil {
		r.mu.Unlock()
		return nil, err
	}

	ectx := crypto.EncryptionContext{Owner: identity, Consumer: r.state.Contract}
	handle, err := r.coprocessor.Ingest(ctx, ciphertext, ectx)
	if errors.Is(err, ErrInvalidInput) {
		r.mu.Unlock()
		return nil, fmt.Errorf("ingest: %w", err)
	}
	if err != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: ingest: %w", ErrCoprocessor, err)
	}

	from := r.state.Phase
	p, err := r.state.Submit(identity, handle, r.now())
	if err != nil {
		r.mu.Unlock()
		return nil, err
	}
	t, listeners := r.commit(from)
	r.mu.Unlock()

	r.notify(listeners, t)
	return p, nil
}

// Compute runs the encrypted maximum selection over all submissions in
// arrival order and stores the encrypted winner index.
func (r *Round) Compute(ctx context.Context, caller crypto.Address) (Handle, error) {
	r.mu.Lock()
	if err := r.state.CheckCompute(caller); err != nil {
		r.mu.Unlock()
		return Handle{}, err
	}

	handles := make([]Handle, 0, r.state.Count())
	for _, p := range r.state.Participants {
		handles = append(handles, p.Handle)
	}

	result, err := r.coprocessor.SelectMaxIndex(ctx, r.state.Contract, handles)
	if err != nil {
		r.mu.Unlock()
		return Handle{}, fmt.Errorf("%w: select max: %w", ErrCoprocessor, err)
	}

	from := r.state.Phase
	if err := r.state.ApplyComputed(caller, result, r.now()); err != nil {
		r.mu.Unlock()
		return Handle{}, err
	}
	t, listeners := r.commit(from)
	r.mu.Unlock()

	r.notify(listeners, t)
	return result, nil
}

// RequestDecryption forwards the encrypted result to the oracle and returns
// the job identifier without waiting for the plaintext.
func (r *Round) RequestDecryption(ctx context.Context, caller crypto.Address) (JobID, error) {
	r.mu.Lock()
	if err := r.state.CheckRequestDecryption(caller); err != nil {
		r.mu.Unlock()
		return "", err
	}

	job, err := r.coprocessor.RequestDecryption(ctx, r.state.Contract, *r.state.Result)
	if err != nil {
		r.mu.Unlock()
		return "", fmt.Errorf("%w: request decryption: %w", ErrCoprocessor, err)
	}

	from := r.state.Phase
	if err := r.state.ApplyDecryptionRequested(caller, job, r.now()); err != nil {
		r.mu.Unlock()
		return "", err
	}
	t, listeners := r.commit(from)
	r.mu.Unlock()

	r.notify(listeners, t)
	return job, nil
}

// OnDecryptionCallback applies the oracle's plaintext for the pending job.
// Callers must have authenticated the oracle.
func (r *Round) OnDecryptionCallback(job JobID, plaintext uint64) error {
	r.mu.Lock()
	from := r.state.Phase
	if err := r.state.ApplyCallback(job, plaintext, r.now()); err != nil {
		r.mu.Unlock()
		return err
	}
	t, listeners := r.commit(from)
	r.mu.Unlock()

	r.notify(listeners, t)
	return nil
}

// Deliver adapts OnDecryptionCallback to a DeliveryFunc.
func (r *Round) Deliver(_ context.Context, d Delivery) error {
	return r.OnDecryptionCallback(d.JobID, d.Plaintext)
}

// Count returns the number of participants.
func (r *Round) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Count()
}

// Participants returns the participants in submission order.
func (r *Round) Participants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone().Participants
}

// Participant returns the participant at index.
func (r *Round) Participant(index int) (Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= r.state.Count() {
		return Participant{}, false
	}
	return r.state.Participants[index], true
}

// Phase returns the current phase.
func (r *Round) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Phase
}

// CanRequestDecryption reports whether a decryption request would be accepted
// from the owner.
func (r *Round) CanRequestDecryption() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Phase == PhaseComputed
}

// EncryptedResult returns the encrypted winner index once computed.
func (r *Round) EncryptedResult() (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Result == nil {
		return Handle{}, false
	}
	return *r.state.Result, true
}

// IsRevealed reports whether the oracle delivered the result.
func (r *Round) IsRevealed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Phase == PhaseRevealed
}

// RevealedResult returns the plaintext winner index once revealed.
func (r *Round) RevealedResult() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Revealed == nil {
		return 0, false
	}
	return *r.state.Revealed, true
}

// RichestParticipants returns the revealed winners, empty before the reveal.
func (r *Round) RichestParticipants() []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RichestParticipants()
}

// Snapshot returns a deep copy of the round record.
func (r *Round) Snapshot() RoundState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}
