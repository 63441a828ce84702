package services

import (
	"bytes"
	"context"
	"crypto/ecdh"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// APIError is a non-200 answer from a revealer.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("revealer returned status %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("revealer returned status %d: %s", e.StatusCode, e.Message)
}

// RevealerClient talks to a revealer on behalf of one signing key.
type RevealerClient struct {
	baseURL    string
	signingKey crypto.PrivateKey
	address    crypto.Address
	httpClient *http.Client
}

// NewRevealerClient creates a client for the revealer at baseURL. The
// signing key may be nil for read-only use.
func NewRevealerClient(baseURL string, signingKey crypto.PrivateKey) (*RevealerClient, error) {
	c := &RevealerClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		signingKey: signingKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	if signingKey != nil {
		pub, err := signingKey.PublicKey()
		if err != nil {
			return nil, fmt.Errorf("invalid signing key: %w", err)
		}
		c.address = pub.Address()
	}
	return c, nil
}

// Address is the identity requests are signed as.
func (c *RevealerClient) Address() crypto.Address {
	return c.address
}

func (c *RevealerClient) Round(ctx context.Context) (*protocol.RoundState, error) {
	var state protocol.RoundState
	return &state, c.get(ctx, "/round", &state)
}

// Oracle returns the oracle the revealer trusts.
func (c *RevealerClient) Oracle(ctx context.Context) (*OracleInfoResponse, error) {
	var info OracleInfoResponse
	return &info, c.get(ctx, "/oracle", &info)
}

func (c *RevealerClient) Revealed(ctx context.Context) (*RevealedResponse, error) {
	var resp RevealedResponse
	return &resp, c.get(ctx, "/result/revealed", &resp)
}

func (c *RevealerClient) Richest(ctx context.Context) ([]protocol.Participant, error) {
	var resp ParticipantsResponse
	if err := c.get(ctx, "/result/richest", &resp); err != nil {
		return nil, err
	}
	return resp.Participants, nil
}

// SubmitWealth encrypts value to exchangeKey, bound to this client's address
// and the round contract, and submits it.
func (c *RevealerClient) SubmitWealth(ctx context.Context, exchangeKey *ecdh.PublicKey, value uint64) (*protocol.Participant, error) {
	round, err := c.Round(ctx)
	if err != nil {
		return nil, err
	}

	msg, err := crypto.EncryptValue(exchangeKey, value, crypto.EncryptionContext{Owner: c.address, Consumer: round.Contract})
	if err != nil {
		return nil, fmt.Errorf("encrypting wealth: %w", err)
	}

	var resp SubmitResponse
	err = postSignedTo(ctx, c, "/submit-wealth", &protocol.WealthSubmission{RoundID: round.ID, Ciphertext: msg.Bytes()}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp.Participant, nil
}

func (c *RevealerClient) Compute(ctx context.Context, roundID string) (protocol.Handle, error) {
	var resp ComputeResponse
	err := postSignedTo(ctx, c, "/compute-richest", &protocol.ComputeRequest{RoundID: roundID}, &resp)
	return resp.EncryptedResult, err
}

func (c *RevealerClient) RequestDecryption(ctx context.Context, roundID string) (protocol.JobID, error) {
	var resp DecryptionResponse
	err := postSignedTo(ctx, c, "/request-decryption", &protocol.DecryptionRequest{RoundID: roundID}, &resp)
	return resp.JobID, err
}

// WaitRevealed polls until the result is revealed or ctx is done.
func (c *RevealerClient) WaitRevealed(ctx context.Context, interval time.Duration) (uint64, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		resp, err := c.Revealed(ctx)
		if err != nil {
			return 0, err
		}
		if resp.Revealed && resp.Index != nil {
			return *resp.Index, nil
		}

		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

func postSignedTo[Req any, Resp any](ctx context.Context, c *RevealerClient, path string, req *Req, resp *Resp) error {
	if c.signingKey == nil {
		return errors.New("signing key required")
	}
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
	return c.do(httpReq, resp)
}

func (c *RevealerClient) get(ctx context.Context, path string, resp any) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(httpReq, resp)
}

func (c *RevealerClient) do(req *http.Request, resp any) error {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revealer request %s failed: %w", req.URL.Path, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		apiErr := &APIError{StatusCode: httpResp.StatusCode}
		var errResp coprocessor.ErrorResponse
		if json.NewDecoder(httpResp.Body).Decode(&errResp) == nil {
			apiErr.Code = errResp.Code
			apiErr.Message = errResp.Error
		}
		return apiErr
	}

	return json.NewDecoder(httpResp.Body).Decode(resp)
}
