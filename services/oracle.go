package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/metrics"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/go-chi/chi/v5"
)

// OracleConfig configures an OracleService.
type OracleConfig struct {
	// HTTPEndpoint is the advertised address, bound into the attestation.
	HTTPEndpoint string

	SigningKey  crypto.PrivateKey
	Coprocessor *coprocessor.Local

	// AttestationProvider attests the registration. Nil serves none.
	AttestationProvider TEEProvider

	// AllowEncrypt enables the plaintext /encrypt endpoint. Development only.
	AllowEncrypt bool

	// DeliveryAttempts bounds callback retries. Defaults to 5.
	DeliveryAttempts int

	// RetryBackoff is the delay before the first retry, doubled each time.
	// Defaults to 500ms.
	RetryBackoff time.Duration

	Metrics *metrics.RoundMetrics
	Log     *slog.Logger
}

// OracleService exposes a local coprocessor over HTTP and posts decryption
// results to the requesting revealer.
type OracleService struct {
	config       *OracleConfig
	coprocessor  *coprocessor.Local
	signingKey   crypto.PrivateKey
	registration *protocol.Signed[OracleRegistration]
	httpClient   *http.Client
	log          *slog.Logger
}

// NewOracleService signs and attests the oracle registration.
func NewOracleService(cfg *OracleConfig) (*OracleService, error) {
	if cfg.Coprocessor == nil {
		return nil, errors.New("coprocessor is required")
	}

	pubKey, err := cfg.SigningKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	reg := &OracleRegistration{
		PublicKey:    pubKey.String(),
		ExchangeKey:  hex.EncodeToString(cfg.Coprocessor.ExchangePublicKey().Bytes()),
		HTTPEndpoint: cfg.HTTPEndpoint,
	}
	if cfg.AttestationProvider != nil {
		reg.AttestationType = cfg.AttestationProvider.AttestationType()
	}

	reg.Attestation, err = AttestRegistration(cfg.AttestationProvider, reg)
	if err != nil {
		return nil, fmt.Errorf("could not attest registration: %w", err)
	}

	signed, err := protocol.NewSigned(cfg.SigningKey, reg)
	if err != nil {
		return nil, fmt.Errorf("failed to sign registration: %w", err)
	}

	c := *cfg
	if c.DeliveryAttempts <= 0 {
		c.DeliveryAttempts = 5
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	log := c.Log
	if log == nil {
		log = slog.Default()
	}

	return &OracleService{
		config:       &c,
		coprocessor:  cfg.Coprocessor,
		signingKey:   cfg.SigningKey,
		registration: signed,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		log:          log.With("component", "oracle"),
	}, nil
}

// Registration returns the signed registration.
func (s *OracleService) Registration() *protocol.Signed[OracleRegistration] {
	return s.registration
}

// Run processes decryption jobs until ctx is cancelled.
func (s *OracleService) Run(ctx context.Context) {
	s.coprocessor.Run(ctx)
}

// RegisterRoutes registers HTTP routes for the oracle.
func (s *OracleService) RegisterRoutes(r chi.Router) {
	r.Get("/registration", s.handleRegistration)
	r.Post("/input", s.handleInput)
	r.Post("/select-max", s.handleSelectMax)
	r.Post("/request-decryption", s.handleRequestDecryption)
	if s.config.AllowEncrypt {
		r.Post("/encrypt", s.handleEncrypt)
	}
}

// decodeConsumerRequest decodes a signed oracle request whose consumer must
// be the signer.
func decodeConsumerRequest[T any](w http.ResponseWriter, r *http.Request, consumer func(*T) crypto.Address) (*T, bool) {
	req, signed, ok := decodeSigned[T](w, r)
	if !ok {
		return nil, false
	}
	if signed.PublicKey.Address() != consumer(req) {
		writeError(w, http.StatusForbidden, codeForbidden, "consumer does not match signer")
		return nil, false
	}
	return req, true
}

func coprocessorStatus(err error) int {
	switch {
	case errors.Is(err, coprocessor.ErrUnknownHandle):
		return http.StatusNotFound
	case errors.Is(err, coprocessor.ErrHandleNotAllowed),
		errors.Is(err, coprocessor.ErrHandleNotDecryptable):
		return http.StatusForbidden
	}
	return http.StatusBadRequest
}

func writeCoprocessorError(w http.ResponseWriter, err error) {
	status := coprocessorStatus(err)
	code := codeBadRequest
	switch status {
	case http.StatusNotFound:
		code = codeNotFound
	case http.StatusForbidden:
		code = codeForbidden
	}
	writeError(w, status, code, err.Error())
}

func (s *OracleService) handleRegistration(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.registration)
}

func (s *OracleService) handleInput(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConsumerRequest(w, r, func(req *coprocessor.InputRequest) crypto.Address { return req.Consumer })
	if !ok {
		return
	}

	h, err := s.coprocessor.Ingest(r.Context(), req.Ciphertext, crypto.EncryptionContext{Owner: req.Owner, Consumer: req.Consumer})
	if errors.Is(err, protocol.ErrInvalidInput) {
		writeError(w, http.StatusBadRequest, protocol.ErrorCode(err), err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, &coprocessor.HandleResponse{Handle: h})
}

func (s *OracleService) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConsumerRequest(w, r, func(req *coprocessor.EncryptRequest) crypto.Address { return req.Consumer })
	if !ok {
		return
	}

	h, err := s.coprocessor.Encrypt(r.Context(), req.Value, crypto.EncryptionContext{Owner: req.Owner, Consumer: req.Consumer})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}
	writeJSON(w, &coprocessor.HandleResponse{Handle: h})
}

func (s *OracleService) handleSelectMax(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConsumerRequest(w, r, func(req *coprocessor.SelectMaxRequest) crypto.Address { return req.Consumer })
	if !ok {
		return
	}

	h, err := s.coprocessor.SelectMaxIndex(r.Context(), req.Consumer, req.Handles)
	if err != nil {
		writeCoprocessorError(w, err)
		return
	}
	writeJSON(w, &coprocessor.HandleResponse{Handle: h})
}

func (s *OracleService) handleRequestDecryption(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeConsumerRequest(w, r, func(req *coprocessor.DecryptionJobRequest) crypto.Address { return req.Consumer })
	if !ok {
		return
	}

	callback, err := url.Parse(req.CallbackURL)
	if err != nil || (callback.Scheme != "http" && callback.Scheme != "https") || callback.Host == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid callback url")
		return
	}

	job, err := s.coprocessor.RequestDecryptionTo(r.Context(), req.Consumer, req.Handle, s.deliverTo(callback.String()))
	if err != nil {
		writeCoprocessorError(w, err)
		return
	}

	s.log.Info("decryption scheduled", "job", job, "consumer", req.Consumer)
	writeJSON(w, &coprocessor.JobResponse{JobID: job})
}

// errPermanent marks deliveries the receiver rejected.
var errPermanent = errors.New("delivery rejected")

// deliverTo posts signed results to callbackURL, retrying transport and
// server errors with exponential backoff.
func (s *OracleService) deliverTo(callbackURL string) protocol.DeliveryFunc {
	return func(ctx context.Context, d protocol.Delivery) error {
		signed, err := protocol.NewSigned(s.signingKey, &protocol.DecryptionCallback{JobID: d.JobID, Plaintext: d.Plaintext})
		if err != nil {
			return err
		}
		body, err := json.Marshal(signed)
		if err != nil {
			return err
		}

		backoff := s.config.RetryBackoff
		for attempt := 1; ; attempt++ {
			err = s.postCallback(ctx, callbackURL, body)
			if err == nil || errors.Is(err, errPermanent) || attempt >= s.config.DeliveryAttempts {
				break
			}

			s.log.Warn("callback delivery failed, retrying", "job", d.JobID, "attempt", attempt, "err", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		s.config.Metrics.Delivery(err)
		return err
	}
}

func (s *OracleService) postCallback(ctx context.Context, callbackURL string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("callback returned status %d", resp.StatusCode)
	default:
		var errResp coprocessor.ErrorResponse
		json.NewDecoder(resp.Body).Decode(&errResp)
		return fmt.Errorf("%w: status %d: %s", errPermanent, resp.StatusCode, errResp.Error)
	}
}
