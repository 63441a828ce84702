package services

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/richest-revealer/protocol"
)

var (
	ErrNoOracleBuilds         = errors.New("no oracle builds published")
	ErrMeasurementsNotAllowed = errors.New("measurements do not match any oracle build")
)

// MeasurementSource supplies the oracle builds a revealer accepts.
type MeasurementSource interface {
	AllowedBuilds() (OracleBuilds, error)
}

// OracleBuild is one released oracle image. Registers maps TDX register
// indices (MRTD, RTMR0..) to their expected hex values:
//
//	{"measurement_id": "richest-oracle-v0.1.0-tdx",
//	 "measurements": {"0": {"expected": "<mrtd>"}, "1": {"expected": "<rtmr0>"}}}
type OracleBuild struct {
	ID        string                   `json:"measurement_id"`
	Registers map[int]ExpectedRegister `json:"measurements"`
}

type ExpectedRegister struct {
	Expected string `json:"expected"`
}

// Decode returns the expected register values as bytes.
func (b *OracleBuild) Decode() (Measurements, error) {
	out := make(Measurements, len(b.Registers))
	for idx, reg := range b.Registers {
		val, err := hex.DecodeString(reg.Expected)
		if err != nil {
			return nil, fmt.Errorf("build %s register %d: %w", b.ID, idx, err)
		}
		out[idx] = val
	}
	return out, nil
}

// Matches reports whether every register of the build is present in actual
// with the expected value. Registers the build does not pin are ignored.
func (b *OracleBuild) Matches(actual Measurements) bool {
	expected, err := b.Decode()
	if err != nil {
		return false
	}
	for idx, want := range expected {
		got, ok := actual[idx]
		if !ok || !bytes.Equal(got, want) {
			return false
		}
	}
	return true
}

// OracleBuilds is an allowlist of builds. It is itself a static
// MeasurementSource.
type OracleBuilds []OracleBuild

func (bs OracleBuilds) AllowedBuilds() (OracleBuilds, error) {
	return bs, nil
}

// Match returns the first build whose registers all match actual.
func (bs OracleBuilds) Match(actual Measurements) (*OracleBuild, error) {
	for i := range bs {
		if bs[i].Matches(actual) {
			return &bs[i], nil
		}
	}
	return nil, ErrMeasurementsNotAllowed
}

// DummyBuilds accepts the fixed registers reported by tdx.DummyProvider.
// Development only.
func DummyBuilds() OracleBuilds {
	registers := make(map[int]ExpectedRegister, 5)
	for i := 0; i < 5; i++ {
		registers[i] = ExpectedRegister{Expected: hex.EncodeToString([]byte{byte(i)})}
	}
	return OracleBuilds{{ID: "dummy-attestation", Registers: registers}}
}

// DefaultBuildsCacheTTL is how long a fetched allowlist is reused.
const DefaultBuildsCacheTTL = time.Hour

// PublishedBuilds fetches the allowlist from a release URL.
type PublishedBuilds struct {
	URL        string
	HTTPClient *http.Client
	CacheTTL   time.Duration

	mu        sync.Mutex
	builds    OracleBuilds
	expiresAt time.Time
}

func NewPublishedBuilds(url string) *PublishedBuilds {
	return &PublishedBuilds{
		URL:        url,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		CacheTTL:   DefaultBuildsCacheTTL,
	}
}

// AllowedBuilds returns the cached list, refetching once it expires. An
// empty list is an error.
func (p *PublishedBuilds) AllowedBuilds() (OracleBuilds, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.builds != nil && time.Now().Before(p.expiresAt) {
		return p.builds, nil
	}

	builds, err := p.fetch()
	if err != nil {
		return nil, err
	}
	if len(builds) == 0 {
		return nil, ErrNoOracleBuilds
	}

	p.builds = builds
	p.expiresAt = time.Now().Add(p.CacheTTL)
	return builds, nil
}

func (p *PublishedBuilds) fetch() (OracleBuilds, error) {
	resp, err := p.HTTPClient.Get(p.URL)
	if err != nil {
		return nil, fmt.Errorf("fetching oracle builds: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("oracle builds returned %d: %s", resp.StatusCode, body)
	}

	builds, err := protocol.DecodeMessage[OracleBuilds](resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decoding oracle builds: %w", err)
	}
	return *builds, nil
}
