package common

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/protocol"
	"github.com/flashbots/richest-revealer/services"
	"github.com/flashbots/richest-revealer/tdx"
	"github.com/stretchr/testify/require"
)

const testConfig = `
http:
  addr: ":9000"
  read_timeout: 5s
  cors_origins: ["http://localhost:3000"]
log:
  json: true
round:
  id: "round-7"
  capacity: 4
  owner: "0x00000000000000000000000000000000000000aa"
oracle:
  url: "http://oracle:8081"
  delivery_delay: 250ms
store:
  driver: postgres
  postgres:
    host: db
    password: secret
`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(testConfig))
	require.NoError(t, err)

	require.Equal(t, ":9000", cfg.HTTP.Addr)
	require.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout)
	require.Equal(t, 15*time.Second, cfg.HTTP.WriteTimeout, "unset values keep defaults")
	require.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.CORSOrigins)
	require.True(t, cfg.Log.JSON)
	require.Equal(t, "round-7", cfg.Round.ID)
	require.Equal(t, 4, cfg.Round.Capacity)
	require.Equal(t, 250*time.Millisecond, cfg.Oracle.DeliveryDelay)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "db", cfg.Store.Postgres.Host)
	require.Equal(t, 5432, cfg.Store.Postgres.Port)
	require.Equal(t, "secret", cfg.Store.Postgres.Password)

	srvCfg := cfg.HTTPServerConfig(nil)
	require.Equal(t, ":9000", srvCfg.ListenAddr)
	require.Equal(t, cfg.HTTP.CORSOrigins, srvCfg.CORSOrigins)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "round-7", cfg.Round.ID)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseConfig([]byte("http: [not, a, map]"))
	require.Error(t, err)
}

func TestProtocolRoundConfig(t *testing.T) {
	var signer crypto.Address
	signer[19] = 0xcc

	cfg := DefaultConfig()
	_, err := cfg.ProtocolRoundConfig(signer)
	require.Error(t, err, "owner is required")

	cfg.Round.Owner = "0x00000000000000000000000000000000000000aa"
	roundCfg, err := cfg.ProtocolRoundConfig(signer)
	require.NoError(t, err)
	require.Equal(t, protocol.DefaultCapacity, roundCfg.Capacity)
	require.Equal(t, signer, roundCfg.Contract, "contract defaults to the signing address")
	require.Equal(t, byte(0xaa), roundCfg.Owner[19])

	cfg.Round.Contract = "0x00000000000000000000000000000000000000dd"
	roundCfg, err = cfg.ProtocolRoundConfig(signer)
	require.NoError(t, err)
	require.Equal(t, byte(0xdd), roundCfg.Contract[19])

	cfg.Round.Contract = "0x1234"
	_, err = cfg.ProtocolRoundConfig(signer)
	require.ErrorIs(t, err, crypto.ErrInvalidAddress)

	cfg.Round.Contract = ""
	cfg.Round.Capacity = 1
	_, err = cfg.ProtocolRoundConfig(signer)
	require.Error(t, err)
}

func TestLoadOrGenerateKeys(t *testing.T) {
	generated, err := LoadOrGenerateSigningKey("")
	require.NoError(t, err)

	loaded, err := LoadOrGenerateSigningKey(hex.EncodeToString(generated.Bytes()))
	require.NoError(t, err)
	require.Equal(t, generated, loaded)

	_, err = LoadOrGenerateSigningKey("zz")
	require.Error(t, err)
	_, err = LoadOrGenerateSigningKey("abcd")
	require.Error(t, err, "short keys are rejected")

	exchange, err := LoadOrGenerateExchangeKey("")
	require.NoError(t, err)
	reloaded, err := LoadOrGenerateExchangeKey(hex.EncodeToString(exchange.Bytes()))
	require.NoError(t, err)
	require.True(t, exchange.Equal(reloaded))
}

func TestFactories(t *testing.T) {
	require.IsType(t, &tdx.DummyProvider{}, NewAttestationProvider(&OracleConfig{}))
	require.IsType(t, &tdx.TDXProvider{}, NewAttestationProvider(&OracleConfig{UseTDX: true}))
	require.IsType(t, &tdx.RemoteDCAPProvider{}, NewAttestationProvider(&OracleConfig{UseTDX: true, TDXRemoteURL: "http://dcap"}))

	require.Nil(t, NewMeasurementSource(""))
	require.NotNil(t, NewMeasurementSource("http://measurements"))

	store, err := NewStore(&StoreConfig{Driver: "memory"})
	require.NoError(t, err)
	require.IsType(t, &services.InMemoryStore{}, store)

	_, err = NewStore(&StoreConfig{Driver: "sqlite"})
	require.Error(t, err)
}
