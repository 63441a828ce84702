package coprocessor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// BaseURL is the oracle service endpoint.
	BaseURL string

	// CallbackURL is where the oracle posts decryption results.
	CallbackURL string

	// SigningKey authenticates requests. Its address is the consumer.
	SigningKey crypto.PrivateKey

	// Timeout bounds each request. Defaults to 10 seconds.
	Timeout time.Duration
}

// HTTPClient implements protocol.Coprocessor and protocol.Encryptor against
// a remote oracle service.
type HTTPClient struct {
	baseURL     string
	callbackURL string
	signingKey  crypto.PrivateKey
	consumer    crypto.Address
	httpClient  *http.Client
}

// NewHTTPClient creates a client for the oracle at cfg.BaseURL.
func NewHTTPClient(cfg *HTTPClientConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("oracle url is required")
	}

	pubkey, err := cfg.SigningKey.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("invalid signing key: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		callbackURL: cfg.CallbackURL,
		signingKey:  cfg.SigningKey,
		consumer:    pubkey.Address(),
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// Consumer returns the address requests are made for.
func (c *HTTPClient) Consumer() crypto.Address {
	return c.consumer
}

// Ingest implements protocol.Coprocessor. The oracle answers 400 for
// ciphertexts it rejects.
func (c *HTTPClient) Ingest(ctx context.Context, ciphertext []byte, ectx crypto.EncryptionContext) (protocol.Handle, error) {
	var resp HandleResponse
	err := postSigned(ctx, c, "/input", &InputRequest{
		Ciphertext: ciphertext,
		Owner:      ectx.Owner,
		Consumer:   ectx.Consumer,
	}, &resp)

	var se *StatusError
	if errors.As(err, &se) && se.StatusCode == http.StatusBadRequest {
		return protocol.Handle{}, fmt.Errorf("%w: %w", protocol.ErrInvalidInput, err)
	}
	return resp.Handle, err
}

// Encrypt implements protocol.Encryptor.
func (c *HTTPClient) Encrypt(ctx context.Context, value uint64, ectx crypto.EncryptionContext) (protocol.Handle, error) {
	var resp HandleResponse
	err := postSigned(ctx, c, "/encrypt", &EncryptRequest{
		Value:    value,
		Owner:    ectx.Owner,
		Consumer: ectx.Consumer,
	}, &resp)
	return resp.Handle, err
}

// SelectMaxIndex implements protocol.Coprocessor.
func (c *HTTPClient) SelectMaxIndex(ctx context.Context, consumer crypto.Address, handles []protocol.Handle) (protocol.Handle, error) {
	var resp HandleResponse
	err := postSigned(ctx, c, "/select-max", &SelectMaxRequest{
		Consumer: consumer,
		Handles:  handles,
	}, &resp)
	return resp.Handle, err
}

// RequestDecryption implements protocol.Coprocessor. The result is posted
// to the configured callback URL.
func (c *HTTPClient) RequestDecryption(ctx context.Context, consumer crypto.Address, handle protocol.Handle) (protocol.JobID, error) {
	if c.callbackURL == "" {
		return "", ErrNoDelivery
	}

	var resp JobResponse
	err := postSigned(ctx, c, "/request-decryption", &DecryptionJobRequest{
		Consumer:    consumer,
		Handle:      handle,
		CallbackURL: c.callbackURL,
	}, &resp)
	if err == nil && resp.JobID == "" {
		err = errors.New("oracle returned empty job id")
	}
	return resp.JobID, err
}

func postSigned[Req any, Resp any](ctx context.Context, c *HTTPClient, path string, req *Req, resp *Resp) error {
	signed, err := protocol.NewSigned(c.signingKey, req)
	if err != nil {
		return fmt.Errorf("failed to sign request: %w", err)
	}

	body, err := json.Marshal(signed)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("oracle request %s failed: %w", path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		se := &StatusError{Path: path, StatusCode: httpResp.StatusCode}
		var errResp ErrorResponse
		if json.NewDecoder(httpResp.Body).Decode(&errResp) == nil {
			se.Message = errResp.Error
		}
		return se
	}

	return json.NewDecoder(httpResp.Body).Decode(resp)
}

// StatusError is a non-200 answer from the oracle.
type StatusError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("oracle %s returned status %d: %s", e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("oracle %s returned status %d", e.Path, e.StatusCode)
}
