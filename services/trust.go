package services

import (
	"context"
	"crypto/ecdh"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
)

// TEEProvider abstracts attestation generation and verification.
type TEEProvider interface {
	AttestationType() string
	Attest(reportData [64]byte) ([]byte, error)
	Verify(attestationReport []byte, expectedReportData [64]byte) (map[int][]byte, error)
}

// Measurements maps register indices to measurement values.
type Measurements map[int][]byte

// ReportDataForOracle binds the oracle's exchange key, endpoint and signing
// key into attestation report data.
func ReportDataForOracle(exchangeKey string, httpEndpoint string, pubKey crypto.PublicKey) [64]byte {
	hash := sha256.New()
	hash.Write([]byte(exchangeKey))
	hash.Write([]byte(httpEndpoint))
	hash.Write(pubKey.Bytes())

	var reportData [64]byte
	copy(reportData[:], hash.Sum(nil))
	return reportData
}

// AttestRegistration generates attestation evidence for reg.
func AttestRegistration(provider TEEProvider, reg *OracleRegistration) ([]byte, error) {
	if provider == nil {
		return nil, nil
	}
	pubKey, err := reg.ParsePublicKey()
	if err != nil {
		return nil, err
	}
	return provider.Attest(ReportDataForOracle(reg.ExchangeKey, reg.HTTPEndpoint, pubKey))
}

// VerifyRegistration checks the registration signature and, when provider is
// set, its attestation and measurements.
func VerifyRegistration(source MeasurementSource, provider TEEProvider, signed *protocol.Signed[OracleRegistration]) (*OracleRegistration, Measurements, error) {
	reg, signer, err := signed.Recover()
	if err != nil {
		return nil, nil, err
	}

	pubKey, err := reg.ParsePublicKey()
	if err != nil {
		return nil, nil, fmt.Errorf("invalid public key: %w", err)
	}
	if !signer.Equal(pubKey) {
		return nil, nil, errors.New("signer does not match claimed public key")
	}

	if provider == nil {
		return reg, nil, nil
	}
	if len(reg.Attestation) == 0 {
		return nil, nil, errors.New("no attestation data")
	}

	measurements, err := provider.Verify(reg.Attestation, ReportDataForOracle(reg.ExchangeKey, reg.HTTPEndpoint, pubKey))
	if err != nil {
		return nil, nil, fmt.Errorf("could not verify attestation: %w", err)
	}

	if source != nil {
		builds, err := source.AllowedBuilds()
		if err != nil {
			return nil, nil, fmt.Errorf("could not fetch allowed builds: %w", err)
		}
		if _, err := builds.Match(measurements); err != nil {
			return nil, nil, fmt.Errorf("attestation is not allowed: %w", err)
		}
	}

	return reg, Measurements(measurements), nil
}

// FetchRegistration retrieves the signed registration from an oracle.
func FetchRegistration(ctx context.Context, client *http.Client, oracleURL string) (*protocol.Signed[OracleRegistration], error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimSuffix(oracleURL, "/")+"/registration", nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching oracle registration: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oracle registration returned status %d", resp.StatusCode)
	}

	signed, err := protocol.DecodeMessage[protocol.Signed[OracleRegistration]](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding oracle registration: %w", err)
	}
	return signed, nil
}

// TrustedOracle is an oracle whose key the revealer accepts callbacks from.
type TrustedOracle struct {
	PublicKey    crypto.PublicKey
	ExchangeKey  *ecdh.PublicKey
	HTTPEndpoint string
	Measurements Measurements
	Attested     bool
}

// Info returns the public description served by the revealer.
func (o *TrustedOracle) Info() *OracleInfoResponse {
	info := &OracleInfoResponse{
		PublicKey:    o.PublicKey.String(),
		Address:      o.PublicKey.Address(),
		HTTPEndpoint: o.HTTPEndpoint,
		Attested:     o.Attested,
	}
	if o.ExchangeKey != nil {
		info.ExchangeKey = hex.EncodeToString(o.ExchangeKey.Bytes())
	}
	return info
}

// OracleTrustConfig selects how the oracle is trusted.
type OracleTrustConfig struct {
	// URL is the oracle service endpoint.
	URL string

	// PinnedPublicKey, when set, replaces attestation: the registration
	// must be signed by this key.
	PinnedPublicKey crypto.PublicKey

	AttestationProvider TEEProvider
	MeasurementSource   MeasurementSource

	HTTPClient *http.Client
}

// ResolveOracle fetches and verifies the oracle registration.
func ResolveOracle(ctx context.Context, cfg *OracleTrustConfig) (*TrustedOracle, error) {
	if cfg.PinnedPublicKey == nil && cfg.AttestationProvider == nil {
		return nil, errors.New("oracle trust requires a pinned key or an attestation provider")
	}

	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	signed, err := FetchRegistration(ctx, client, cfg.URL)
	if err != nil {
		return nil, err
	}

	provider := cfg.AttestationProvider
	if cfg.PinnedPublicKey != nil {
		provider = nil
	}

	reg, measurements, err := VerifyRegistration(cfg.MeasurementSource, provider, signed)
	if err != nil {
		return nil, err
	}

	pubKey, err := reg.ParsePublicKey()
	if err != nil {
		return nil, err
	}
	if cfg.PinnedPublicKey != nil && !pubKey.Equal(cfg.PinnedPublicKey) {
		return nil, fmt.Errorf("oracle key %s does not match pinned key", pubKey)
	}

	exchangeKey, err := ParseExchangeKey(reg.ExchangeKey)
	if err != nil {
		return nil, err
	}

	return &TrustedOracle{
		PublicKey:    pubKey,
		ExchangeKey:  exchangeKey,
		HTTPEndpoint: reg.HTTPEndpoint,
		Measurements: measurements,
		Attested:     provider != nil,
	}, nil
}
