// Command revealer runs the round coordinator.
//
// It verifies the oracle (by attestation or a pinned key), restores or opens
// the configured round and serves the revealer HTTP API. The address of the
// signing key is the round's contract address unless round.contract is set,
// and is the consumer the oracle releases results to.
//
// # Configuration File
//
//	http:
//	  addr: ":8080"
//	  metrics_addr: ":9090"
//	round:
//	  id: "round-1"
//	  capacity: 3
//	  owner: "0x..."
//	oracle:
//	  url: "http://localhost:8081"
//	  callback_url: "http://localhost:8080/decryption-callback"
//	  pinned_public_key: ""   # Hex, skips attestation when set
//	  measurements_url: ""
//	store:
//	  driver: "memory"        # memory or postgres
//	keys:
//	  signing_key: ""         # Hex-encoded, generates if empty
//
// # Usage
//
//	go run ./cmd/revealer --config=revealer.yaml
//	go run ./cmd/revealer --owner=0x... --oracle=http://localhost:8081
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/richest-revealer/api/httpserver"
	"github.com/flashbots/richest-revealer/cmd/common"
	rrcommon "github.com/flashbots/richest-revealer/common"
	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/metrics"
	"github.com/flashbots/richest-revealer/services"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		addr            = flag.String("addr", ":8080", "HTTP listen address")
		metricsAddr     = flag.String("metrics-addr", "", "Prometheus metrics listen address")
		roundID         = flag.String("round-id", "", "Round identifier (generated if empty)")
		owner           = flag.String("owner", "", "Round owner address")
		capacity        = flag.Int("capacity", 0, "Number of participants")
		oracleURL       = flag.String("oracle", "", "Oracle service URL")
		callbackURL     = flag.String("callback-url", "", "Public URL of this revealer's /decryption-callback")
		oraclePubKey    = flag.String("oracle-pubkey", "", "Pin the oracle signing key (hex) instead of verifying attestation")
		measurementsURL = flag.String("measurements-url", "", "URL for allowed oracle measurements")
		useTDX          = flag.Bool("tdx", false, "Require TDX attestation from the oracle")
		storeDriver     = flag.String("store", "", "Round store: memory or postgres")
		signingKeyHex   = flag.String("signing-key", "", "Ed25519 signing key (hex, generates if empty)")
		logJSON         = flag.Bool("log-json", false, "Log in JSON format")
		logDebug        = flag.Bool("log-debug", false, "Enable debug logging")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = common.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if isFlagSet("addr") {
		cfg.HTTP.Addr = *addr
	}
	if *metricsAddr != "" {
		cfg.HTTP.MetricsAddr = *metricsAddr
	}
	if *roundID != "" {
		cfg.Round.ID = *roundID
	}
	if *owner != "" {
		cfg.Round.Owner = *owner
	}
	if *capacity != 0 {
		cfg.Round.Capacity = *capacity
	}
	if *oracleURL != "" {
		cfg.Oracle.URL = *oracleURL
	}
	if *callbackURL != "" {
		cfg.Oracle.CallbackURL = *callbackURL
	}
	if *oraclePubKey != "" {
		cfg.Oracle.PinnedPublicKey = *oraclePubKey
	}
	if *measurementsURL != "" {
		cfg.Oracle.MeasurementsURL = *measurementsURL
	}
	if *useTDX {
		cfg.Oracle.UseTDX = true
	}
	if *storeDriver != "" {
		cfg.Store.Driver = *storeDriver
	}
	if *signingKeyHex != "" {
		cfg.Keys.SigningKey = *signingKeyHex
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *logDebug {
		cfg.Log.Debug = true
	}

	if cfg.Oracle.URL == "" {
		fmt.Println("Configuration error: oracle url is required (via --oracle or config file)")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		cancel()
	}()

	if err := run(ctx, cfg); err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config) error {
	log := cfg.Logger("revealer")

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.Keys.SigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	pubKey, _ := signingKey.PublicKey()
	fmt.Printf("Revealer public key: %s\n", pubKey.String())
	fmt.Printf("Revealer address: %s\n", pubKey.Address())

	roundCfg, err := cfg.ProtocolRoundConfig(pubKey.Address())
	if err != nil {
		return fmt.Errorf("round config: %w", err)
	}
	if roundCfg.Contract != pubKey.Address() {
		log.Warn("round contract differs from the signing address, the oracle will refuse to serve it",
			"contract", roundCfg.Contract, "address", pubKey.Address())
	}

	oracle, err := resolveOracle(ctx, cfg)
	if err != nil {
		return fmt.Errorf("oracle trust: %w", err)
	}
	log.Info("oracle trusted", "publicKey", oracle.PublicKey.String(), "attested", oracle.Attested)

	cp, err := coprocessor.NewHTTPClient(&coprocessor.HTTPClientConfig{
		BaseURL:     cfg.Oracle.URL,
		CallbackURL: cfg.Oracle.CallbackURL,
		SigningKey:  signingKey,
	})
	if err != nil {
		return fmt.Errorf("oracle client: %w", err)
	}

	store, err := common.NewStore(&cfg.Store)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.Close()

	registry := prometheus.NewRegistry()
	revealer, err := services.NewRevealerService(ctx, &services.RevealerConfig{
		Round:       roundCfg,
		Coprocessor: cp,
		Oracle:      oracle,
		Store:       store,
		Metrics:     metrics.NewRoundMetrics(registry, rrcommon.MetricsNamespace),
		Log:         log,
	})
	if err != nil {
		return fmt.Errorf("create revealer: %w", err)
	}

	srvCfg := cfg.HTTPServerConfig(log)
	srvCfg.MetricsRegistry = registry
	srvCfg.ReadyCheck = store.Ping
	srv, err := httpserver.New(srvCfg, revealer)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	fmt.Printf("Round %s listening on %s\n", revealer.Round().ID(), cfg.HTTP.Addr)
	srv.RunInBackground()

	<-ctx.Done()

	fmt.Println("Shutting down revealer...")
	srv.Shutdown()
	return nil
}

func resolveOracle(ctx context.Context, cfg *common.Config) (*services.TrustedOracle, error) {
	trust := &services.OracleTrustConfig{
		URL:        cfg.Oracle.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}

	if cfg.Oracle.PinnedPublicKey != "" {
		pinned, err := crypto.NewPublicKeyFromString(cfg.Oracle.PinnedPublicKey)
		if err != nil {
			return nil, fmt.Errorf("pinned public key: %w", err)
		}
		trust.PinnedPublicKey = pinned
	} else {
		trust.AttestationProvider = common.NewAttestationProvider(&cfg.Oracle)
		trust.MeasurementSource = common.NewMeasurementSource(cfg.Oracle.MeasurementsURL)
	}

	return services.ResolveOracle(ctx, trust)
}
