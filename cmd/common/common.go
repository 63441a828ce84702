// Package common provides shared utilities for the richest-revealer commands.
//
// This package contains helpers used by the revealer and oracle binaries:
//
//   - YAML configuration with defaults
//   - Key loading and generation for Ed25519 signing and ECDH exchange keys
//   - TEE provider, measurement source and round store factories
package common

import (
	"crypto/ecdh"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flashbots/richest-revealer/api/httpserver"
	rrcommon "github.com/flashbots/richest-revealer/common"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/flashbots/richest-revealer/services"
	"github.com/flashbots/richest-revealer/tdx"
	"gopkg.in/yaml.v3"
)

// Config is the configuration file shared by the revealer and oracle
// commands. Sections a command does not use are ignored.
type Config struct {
	HTTP   HTTPConfig   `yaml:"http"`
	Log    LogConfig    `yaml:"log"`
	Round  RoundConfig  `yaml:"round"`
	Oracle OracleConfig `yaml:"oracle"`
	Store  StoreConfig  `yaml:"store"`
	Keys   KeysConfig   `yaml:"keys"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	MetricsAddr  string        `yaml:"metrics_addr"`
	Pprof        bool          `yaml:"pprof"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	DrainTime    time.Duration `yaml:"drain_time"`
	ShutdownTime time.Duration `yaml:"shutdown_time"`
	CORSOrigins  []string      `yaml:"cors_origins"`
}

type LogConfig struct {
	Debug bool `yaml:"debug"`
	JSON  bool `yaml:"json"`
}

// RoundConfig describes the round a revealer serves. Addresses are hex.
type RoundConfig struct {
	ID       string `yaml:"id"`
	Capacity int    `yaml:"capacity"`
	Owner    string `yaml:"owner"`

	// Contract defaults to the address of the revealer signing key.
	Contract string `yaml:"contract"`
}

type OracleConfig struct {
	// URL is where the revealer reaches the oracle.
	URL string `yaml:"url"`

	// CallbackURL is the revealer's /decryption-callback as seen by the oracle.
	CallbackURL string `yaml:"callback_url"`

	// PinnedPublicKey trusts the oracle by key instead of attestation.
	PinnedPublicKey string `yaml:"pinned_public_key"`

	// HTTPEndpoint is the address the oracle advertises in its registration.
	HTTPEndpoint string `yaml:"http_endpoint"`

	UseTDX          bool          `yaml:"use_tdx"`
	TDXRemoteURL    string        `yaml:"tdx_remote_url"`
	MeasurementsURL string        `yaml:"measurements_url"`
	DeliveryDelay   time.Duration `yaml:"delivery_delay"`
	AllowEncrypt    bool          `yaml:"allow_encrypt"`
}

type StoreConfig struct {
	// Driver is "memory" or "postgres".
	Driver   string                  `yaml:"driver"`
	Postgres services.PostgresConfig `yaml:"postgres"`
}

type KeysConfig struct {
	SigningKey  string `yaml:"signing_key"`
	ExchangeKey string `yaml:"exchange_key"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			ShutdownTime: 10 * time.Second,
		},
		Round: RoundConfig{
			Capacity: protocol.DefaultCapacity,
		},
		Store: StoreConfig{
			Driver: "memory",
			Postgres: services.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				User:     "postgres",
				Database: "richest",
			},
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Logger builds the process logger for service.
func (c *Config) Logger(service string) *slog.Logger {
	return rrcommon.SetupLogger(&rrcommon.LoggingOpts{
		Debug:   c.Log.Debug,
		JSON:    c.Log.JSON,
		Service: service,
		Version: rrcommon.Version,
	})
}

// HTTPServerConfig converts the http section for httpserver.New.
func (c *Config) HTTPServerConfig(log *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		Log:                      log,
		ListenAddr:               c.HTTP.Addr,
		MetricsAddr:              c.HTTP.MetricsAddr,
		EnablePprof:              c.HTTP.Pprof,
		CORSOrigins:              c.HTTP.CORSOrigins,
		DrainDuration:            c.HTTP.DrainTime,
		GracefulShutdownDuration: c.HTTP.ShutdownTime,
		ReadTimeout:              c.HTTP.ReadTimeout,
		WriteTimeout:             c.HTTP.WriteTimeout,
	}
}

// ProtocolRoundConfig parses the round section. An empty contract resolves
// to defaultContract.
func (c *Config) ProtocolRoundConfig(defaultContract crypto.Address) (*protocol.RoundConfig, error) {
	if c.Round.Owner == "" {
		return nil, errors.New("round.owner is required")
	}
	owner, err := crypto.ParseAddress(c.Round.Owner)
	if err != nil {
		return nil, fmt.Errorf("round.owner: %w", err)
	}

	contract := defaultContract
	if c.Round.Contract != "" {
		contract, err = crypto.ParseAddress(c.Round.Contract)
		if err != nil {
			return nil, fmt.Errorf("round.contract: %w", err)
		}
	}

	cfg := &protocol.RoundConfig{
		ID:       c.Round.ID,
		Capacity: c.Round.Capacity,
		Owner:    owner,
		Contract: contract,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrGenerateSigningKey loads an Ed25519 private key from a hex string,
// or generates a new key pair if hexKey is empty.
func LoadOrGenerateSigningKey(hexKey string) (crypto.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		key := crypto.NewPrivateKeyFromBytes(keyBytes)
		if _, err := key.PublicKey(); err != nil {
			return nil, err
		}
		return key, nil
	}
	_, privKey, err := crypto.GenerateKeyPair()
	return privKey, err
}

// LoadOrGenerateExchangeKey loads an ECDH P-256 private key from a hex string,
// or generates a new key if hexKey is empty.
func LoadOrGenerateExchangeKey(hexKey string) (*ecdh.PrivateKey, error) {
	if hexKey != "" {
		keyBytes, err := hex.DecodeString(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return ecdh.P256().NewPrivateKey(keyBytes)
	}
	return ecdh.P256().GenerateKey(rand.Reader)
}

// NewAttestationProvider creates a TEE provider based on configuration.
// Returns TDXProvider or RemoteDCAPProvider when UseTDX is set,
// otherwise returns DummyProvider for testing.
func NewAttestationProvider(cfg *OracleConfig) services.TEEProvider {
	if cfg.UseTDX {
		if cfg.TDXRemoteURL != "" {
			return &tdx.RemoteDCAPProvider{URL: cfg.TDXRemoteURL, Timeout: 30 * time.Second}
		}
		return &tdx.TDXProvider{}
	}
	return &tdx.DummyProvider{}
}

// NewMeasurementSource returns the published oracle builds at
// measurementsURL, or nil to skip the measurement check.
func NewMeasurementSource(measurementsURL string) services.MeasurementSource {
	if measurementsURL == "" {
		return nil
	}
	return services.NewPublishedBuilds(measurementsURL)
}

// NewStore opens the configured round store.
func NewStore(cfg *StoreConfig) (services.RoundStore, error) {
	switch cfg.Driver {
	case "", "memory":
		return services.NewInMemoryStore(), nil
	case "postgres":
		return services.NewPostgresStore(&cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
