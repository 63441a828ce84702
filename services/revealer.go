package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/flashbots/richest-revealer/metrics"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/go-chi/chi/v5"
)

// RevealerConfig configures a RevealerService.
type RevealerConfig struct {
	// Round holds the round parameters. Its ID selects the persisted record.
	Round *protocol.RoundConfig

	// Coprocessor runs the encrypted operations.
	Coprocessor protocol.Coprocessor

	// Oracle is the only signer accepted on /decryption-callback.
	// When nil, results can only be delivered in process through Deliver.
	Oracle *TrustedOracle

	// Store persists the round after every transition. Defaults to memory.
	Store RoundStore

	Metrics *metrics.RoundMetrics
	Log     *slog.Logger
}

// RevealerService exposes a round over HTTP.
type RevealerService struct {
	round   *protocol.Round
	oracle  *TrustedOracle
	store   RoundStore
	metrics *metrics.RoundMetrics
	log     *slog.Logger

	persistMu sync.Mutex
	persisted progress
}

// progress orders round records. Every transition either adds a participant
// or advances the phase.
type progress struct {
	phase protocol.Phase
	count int
}

func progressOf(state *protocol.RoundState) progress {
	return progress{phase: state.Phase, count: state.Count()}
}

func (p progress) before(o progress) bool {
	return p.phase < o.phase || (p.phase == o.phase && p.count < o.count)
}

// NewRevealerService restores the configured round from the store or opens
// a new one.
func NewRevealerService(ctx context.Context, cfg *RevealerConfig) (*RevealerService, error) {
	if cfg.Coprocessor == nil {
		return nil, errors.New("coprocessor is required")
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	store := cfg.Store
	if store == nil {
		store = NewInMemoryStore()
	}

	round, restored, err := openRound(ctx, store, cfg.Round, cfg.Coprocessor)
	if err != nil {
		return nil, err
	}

	s := &RevealerService{
		round:   round,
		oracle:  cfg.Oracle,
		store:   store,
		metrics: cfg.Metrics,
		log:     log.With("round", round.ID()),
	}

	snapshot := round.Snapshot()
	if !restored {
		if err := store.SaveRound(ctx, &snapshot); err != nil {
			return nil, fmt.Errorf("saving new round: %w", err)
		}
	}
	s.persisted = progressOf(&snapshot)
	s.metrics.ObserveState(&snapshot)
	s.log.Info("round ready", "phase", snapshot.Phase, "participants", snapshot.Count(), "restored", restored)

	round.OnTransition(s.onTransition)
	return s, nil
}

func openRound(ctx context.Context, store RoundStore, cfg *protocol.RoundConfig, cp protocol.Coprocessor) (*protocol.Round, bool, error) {
	if cfg.ID != "" {
		state, err := store.LoadRound(ctx, cfg.ID)
		switch {
		case err == nil:
			if state.Owner != cfg.Owner || state.Contract != cfg.Contract || state.Capacity != cfg.Capacity {
				return nil, false, fmt.Errorf("persisted round %s does not match configuration", cfg.ID)
			}
			round, err := protocol.RestoreRound(*state, cp)
			return round, true, err
		case !errors.Is(err, ErrRoundNotFound):
			return nil, false, fmt.Errorf("loading round %s: %w", cfg.ID, err)
		}
	}

	round, err := protocol.NewRound(cfg, cp)
	return round, false, err
}

func (s *RevealerService) onTransition(t protocol.Transition) {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	// Listeners run outside the round lock and may arrive out of order.
	p := progressOf(&t.State)
	if p.before(s.persisted) {
		return
	}
	s.persisted = p

	if err := s.store.SaveRound(context.Background(), &t.State); err != nil {
		s.log.Error("failed to persist round", "phase", t.To, "err", err)
	}
	s.metrics.ObserveState(&t.State)

	if t.From != t.To {
		s.log.Info("round phase changed", "from", t.From, "to", t.To)
	}
}

// Round returns the underlying round.
func (s *RevealerService) Round() *protocol.Round {
	return s.round
}

// Deliver accepts an in-process oracle delivery.
func (s *RevealerService) Deliver(ctx context.Context, d protocol.Delivery) error {
	err := s.round.Deliver(ctx, d)
	s.metrics.Callback(err)
	return err
}

// RegisterRoutes registers HTTP routes for the revealer.
func (s *RevealerService) RegisterRoutes(r chi.Router) {
	r.Post("/submit-wealth", s.handleSubmitWealth)
	r.Post("/compute-richest", s.handleComputeRichest)
	r.Post("/request-decryption", s.handleRequestDecryption)
	r.Post("/decryption-callback", s.handleDecryptionCallback)

	r.Get("/participants/count", s.handleParticipantCount)
	r.Get("/participants", s.handleParticipants)
	r.Get("/participants/{index}", s.handleParticipant)
	r.Get("/can-request-decryption", s.handleCanRequestDecryption)
	r.Get("/result/revealed", s.handleRevealed)
	r.Get("/result/richest", s.handleRichest)
	r.Get("/result/encrypted", s.handleEncryptedResult)
	r.Get("/round", s.handleRound)
	r.Get("/oracle", s.handleOracle)
}

// decodeSigned decodes and verifies a signed request body, writing the error
// response itself on failure.
func decodeSigned[T any](w http.ResponseWriter, r *http.Request) (*T, *protocol.Signed[T], bool) {
	signed, err := protocol.DecodeMessage[protocol.Signed[T]](r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
		return nil, nil, false
	}

	obj, _, err := signed.Recover()
	if err != nil {
		writeError(w, http.StatusForbidden, codeForbidden, fmt.Errorf("invalid signature: %w", err).Error())
		return nil, nil, false
	}
	return obj, signed, true
}

func (s *RevealerService) checkRoundID(w http.ResponseWriter, id string) bool {
	if id != s.round.ID() {
		writeError(w, http.StatusBadRequest, codeBadRequest, fmt.Sprintf("unknown round %q", id))
		return false
	}
	return true
}

func (s *RevealerService) handleSubmitWealth(w http.ResponseWriter, r *http.Request) {
	req, signed, ok := decodeSigned[protocol.WealthSubmission](w, r)
	if !ok || !s.checkRoundID(w, req.RoundID) {
		return
	}
	submitter := signed.PublicKey.Address()

	start := time.Now()
	p, err := s.round.SubmitCiphertext(r.Context(), submitter, req.Ciphertext)
	s.metrics.ObserveLatency("submit", start)
	s.metrics.Submission(err)
	if err != nil {
		s.log.Debug("submission rejected", "submitter", submitter, "err", err)
		writeRoundError(w, err)
		return
	}

	s.log.Info("wealth submitted", "submitter", submitter, "index", p.Index)
	writeJSON(w, &SubmitResponse{Participant: *p})
}

func (s *RevealerService) handleComputeRichest(w http.ResponseWriter, r *http.Request) {
	req, signed, ok := decodeSigned[protocol.ComputeRequest](w, r)
	if !ok || !s.checkRoundID(w, req.RoundID) {
		return
	}

	start := time.Now()
	result, err := s.round.Compute(r.Context(), signed.PublicKey.Address())
	s.metrics.ObserveLatency("compute", start)
	s.metrics.Computation(err)
	if err != nil {
		writeRoundError(w, err)
		return
	}

	writeJSON(w, &ComputeResponse{EncryptedResult: result})
}

func (s *RevealerService) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	req, signed, ok := decodeSigned[protocol.DecryptionRequest](w, r)
	if !ok || !s.checkRoundID(w, req.RoundID) {
		return
	}

	start := time.Now()
	job, err := s.round.RequestDecryption(r.Context(), signed.PublicKey.Address())
	s.metrics.ObserveLatency("request_decryption", start)
	s.metrics.DecryptionRequest(err)
	if err != nil {
		writeRoundError(w, err)
		return
	}

	s.log.Info("decryption requested", "job", job)
	writeJSON(w, &DecryptionResponse{JobID: job})
}

func (s *RevealerService) handleDecryptionCallback(w http.ResponseWriter, r *http.Request) {
	req, signed, ok := decodeSigned[protocol.DecryptionCallback](w, r)
	if !ok {
		return
	}

	if s.oracle == nil || !signed.PublicKey.Equal(s.oracle.PublicKey) {
		s.log.Warn("callback from untrusted signer", "signer", signed.PublicKey.Address())
		writeError(w, http.StatusForbidden, codeForbidden, "callback not signed by the trusted oracle")
		return
	}

	err := s.round.OnDecryptionCallback(req.JobID, req.Plaintext)
	s.metrics.Callback(err)
	if err != nil {
		s.log.Warn("callback rejected", "job", req.JobID, "err", err)
		writeRoundError(w, err)
		return
	}

	s.log.Info("result revealed", "job", req.JobID, "index", req.Plaintext)
	w.WriteHeader(http.StatusOK)
}

func (s *RevealerService) handleParticipantCount(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &CountResponse{Count: s.round.Count()})
}

func (s *RevealerService) handleParticipants(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &ParticipantsResponse{Participants: s.round.Participants()})
}

func (s *RevealerService) handleParticipant(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid index")
		return
	}

	p, ok := s.round.Participant(index)
	if !ok {
		writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("no participant at index %d", index))
		return
	}
	writeJSON(w, &p)
}

func (s *RevealerService) handleCanRequestDecryption(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &CanRequestDecryptionResponse{CanRequestDecryption: s.round.CanRequestDecryption()})
}

func (s *RevealerService) handleRevealed(w http.ResponseWriter, r *http.Request) {
	index, ok := s.round.RevealedResult()
	resp := &RevealedResponse{Revealed: ok}
	if ok {
		resp.Index = &index
	}
	writeJSON(w, resp)
}

func (s *RevealerService) handleRichest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, &ParticipantsResponse{Participants: s.round.RichestParticipants()})
}

func (s *RevealerService) handleEncryptedResult(w http.ResponseWriter, r *http.Request) {
	h, ok := s.round.EncryptedResult()
	resp := &EncryptedResultResponse{Computed: ok}
	if ok {
		resp.Handle = &h
	}
	writeJSON(w, resp)
}

func (s *RevealerService) handleRound(w http.ResponseWriter, r *http.Request) {
	snapshot := s.round.Snapshot()
	writeJSON(w, &snapshot)
}

func (s *RevealerService) handleOracle(w http.ResponseWriter, r *http.Request) {
	if s.oracle == nil {
		writeError(w, http.StatusNotFound, codeNotFound, "no oracle configured")
		return
	}
	writeJSON(w, s.oracle.Info())
}
