package protocol

import (
	"fmt"
	"slices"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
)

// Participant is a submitter and its encrypted value. Immutable once created.
type Participant struct {
	Address crypto.Address `json:"address"`
	Handle  Handle         `json:"handle"`
	Index   int            `json:"index"`
}

// RoundState is the complete record of a round. Its methods are pure state
// transitions: they validate, then either fully apply or return an error
// without modifying anything. They never call the coprocessor.
type RoundState struct {
	ID           string         `json:"id"`
	Phase        Phase          `json:"phase"`
	Capacity     int            `json:"capacity"`
	Owner        crypto.Address `json:"owner"`
	Contract     crypto.Address `json:"contract"`
	Participants []Participant  `json:"participants"`

	// Result is the encrypted winner index, set from PhaseComputed.
	Result *Handle `json:"result,omitempty"`

	// Job is the pending decryption, set only in PhaseDecryptionRequested.
	Job JobID `json:"job,omitempty"`

	// Revealed is the plaintext winner index, set only in PhaseRevealed.
	Revealed *uint64 `json:"revealed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRoundState creates an open round from cfg.
func NewRoundState(cfg *RoundConfig, now time.Time) (*RoundState, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.ID == "" {
		return nil, fmt.Errorf("round id is required")
	}

	return &RoundState{
		ID:           cfg.ID,
		Phase:        PhaseOpen,
		Capacity:     cfg.Capacity,
		Owner:        cfg.Owner,
		Contract:     cfg.Contract,
		Participants: make([]Participant, 0, cfg.Capacity),
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Count returns the number of participants.
func (s *RoundState) Count() int {
	return len(s.Participants)
}

// HasSubmitted reports whether identity is already in the ledger.
func (s *RoundState) HasSubmitted(identity crypto.Address) bool {
	return slices.ContainsFunc(s.Participants, func(p Participant) bool {
		return p.Address == identity
	})
}

// CheckSubmit validates a submission by identity without applying it.
func (s *RoundState) CheckSubmit(identity crypto.Address) error {
	if s.HasSubmitted(identity) {
		return ErrDuplicateSubmission
	}
	if s.Count() >= s.Capacity {
		return fmt.Errorf("%w: max %d participants allowed", ErrCapacityExceeded, s.Capacity)
	}
	return nil
}

// Submit appends a participant. The round becomes full at capacity.
func (s *RoundState) Submit(identity crypto.Address, value Handle, now time.Time) (*Participant, error) {
	if value.IsZero() {
		return nil, ErrInvalidHandle
	}
	if err := s.CheckSubmit(identity); err != nil {
		return nil, err
	}

	p := Participant{Address: identity, Handle: value, Index: s.Count()}
	s.Participants = append(s.Participants, p)
	if s.Count() == s.Capacity {
		s.Phase = PhaseFull
	}
	s.UpdatedAt = now
	return &p, nil
}

// CheckCompute validates that caller may run the comparison now.
func (s *RoundState) CheckCompute(caller crypto.Address) error {
	if caller != s.Owner {
		return ErrUnauthorized
	}
	if s.Phase >= PhaseComputed {
		return ErrAlreadyComputed
	}
	if s.Count() != s.Capacity {
		return fmt.Errorf("%w: %d participants required", ErrInsufficientParticipants, s.Capacity)
	}
	return nil
}

// ApplyComputed stores the encrypted result of the comparison.
func (s *RoundState) ApplyComputed(caller crypto.Address, result Handle, now time.Time) error {
	if err := s.CheckCompute(caller); err != nil {
		return err
	}
	if result.IsZero() {
		return ErrInvalidHandle
	}

	s.Result = &result
	s.Phase = PhaseComputed
	s.UpdatedAt = now
	return nil
}

// CheckRequestDecryption validates that caller may request a reveal now.
func (s *RoundState) CheckRequestDecryption(caller crypto.Address) error {
	if caller != s.Owner {
		return ErrUnauthorized
	}
	if s.Phase < PhaseComputed {
		return ErrNotReady
	}
	if s.Phase >= PhaseDecryptionRequested {
		return ErrAlreadyRequested
	}
	return nil
}

// ApplyDecryptionRequested records the pending decryption job.
func (s *RoundState) ApplyDecryptionRequested(caller crypto.Address, job JobID, now time.Time) error {
	if err := s.CheckRequestDecryption(caller); err != nil {
		return err
	}
	if job == "" {
		return ErrUnknownJob
	}

	s.Job = job
	s.Phase = PhaseDecryptionRequested
	s.UpdatedAt = now
	return nil
}

// ApplyCallback reveals the plaintext index delivered for the pending job.
func (s *RoundState) ApplyCallback(job JobID, plaintext uint64, now time.Time) error {
	if s.Phase != PhaseDecryptionRequested || s.Job == "" || job != s.Job {
		return ErrUnknownJob
	}
	if plaintext >= uint64(s.Count()) {
		return fmt.Errorf("%w: %d", ErrResultOutOfRange, plaintext)
	}

	revealed := plaintext
	s.Revealed = &revealed
	s.Job = ""
	s.Phase = PhaseRevealed
	s.UpdatedAt = now
	return nil
}

// RichestParticipants returns the revealed winners, empty before the reveal.
// With the earliest-index tie break there is exactly one winner.
func (s *RoundState) RichestParticipants() []Participant {
	if s.Phase != PhaseRevealed || s.Revealed == nil {
		return []Participant{}
	}
	return []Participant{s.Participants[*s.Revealed]}
}

// Clone returns a deep copy.
func (s *RoundState) Clone() RoundState {
	c := *s
	c.Participants = slices.Clone(s.Participants)
	if s.Result != nil {
		r := *s.Result
		c.Result = &r
	}
	if s.Revealed != nil {
		v := *s.Revealed
		c.Revealed = &v
	}
	return c
}

// Validate checks the internal consistency of a restored record.
func (s *RoundState) Validate() error {
	switch {
	case s.ID == "":
		return fmt.Errorf("round id is required")
	case s.Capacity < 2:
		return fmt.Errorf("invalid capacity %d", s.Capacity)
	case s.Count() > s.Capacity:
		return fmt.Errorf("%d participants exceed capacity %d", s.Count(), s.Capacity)
	case s.Phase < PhaseOpen || s.Phase > PhaseRevealed:
		return fmt.Errorf("invalid phase %d", int(s.Phase))
	case s.Phase == PhaseOpen && s.Count() == s.Capacity:
		return fmt.Errorf("open round already holds %d participants", s.Count())
	case s.Phase >= PhaseFull && s.Count() != s.Capacity:
		return fmt.Errorf("phase %s with %d of %d participants", s.Phase, s.Count(), s.Capacity)
	case s.Phase >= PhaseComputed && s.Result == nil:
		return fmt.Errorf("phase %s without result", s.Phase)
	case s.Phase == PhaseDecryptionRequested && s.Job == "":
		return fmt.Errorf("phase %s without job", s.Phase)
	case s.Phase == PhaseRevealed && (s.Revealed == nil || *s.Revealed >= uint64(s.Count())):
		return fmt.Errorf("phase %s without valid revealed index", s.Phase)
	}

	seen := make(map[crypto.Address]struct{}, s.Count())
	for i, p := range s.Participants {
		if p.Index != i {
			return fmt.Errorf("participant %d has index %d", i, p.Index)
		}
		if _, dup := seen[p.Address]; dup {
			return fmt.Errorf("duplicate participant %s", p.Address)
		}
		seen[p.Address] = struct{}{}
	}
	return nil
}
