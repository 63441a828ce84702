// Command oracle runs the confidential coprocessor service.
//
// The oracle holds the exchange key that participants encrypt their wealth
// to, evaluates comparisons for revealers and posts decrypted results to
// their callback URLs. Its signed registration at GET /registration binds
// the exchange key, the advertised endpoint and the signing key into the
// TEE attestation.
//
// # Configuration File
//
//	http:
//	  addr: ":8081"
//	oracle:
//	  http_endpoint: "http://localhost:8081"
//	  use_tdx: false
//	  tdx_remote_url: ""
//	  delivery_delay: "0s"
//	  allow_encrypt: false    # Development only
//	keys:
//	  signing_key: ""         # Hex-encoded, generates if empty
//	  exchange_key: ""        # Hex-encoded, generates if empty
//
// # Usage
//
//	go run ./cmd/oracle --config=oracle.yaml
//	go run ./cmd/oracle --addr=:8081 --endpoint=http://localhost:8081
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/flashbots/richest-revealer/api/httpserver"
	"github.com/flashbots/richest-revealer/cmd/common"
	rrcommon "github.com/flashbots/richest-revealer/common"
	"github.com/flashbots/richest-revealer/coprocessor"
	"github.com/flashbots/richest-revealer/metrics"
	"github.com/flashbots/richest-revealer/services"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	var (
		configPath     = flag.String("config", "", "Path to YAML config file")
		addr           = flag.String("addr", ":8081", "HTTP listen address")
		metricsAddr    = flag.String("metrics-addr", "", "Prometheus metrics listen address")
		endpoint       = flag.String("endpoint", "", "Advertised HTTP endpoint (defaults to http://localhost<addr>)")
		useTDX         = flag.Bool("tdx", false, "Use real TDX attestation")
		remoteTDXURL   = flag.String("tdx-url", "", "Remote TDX attestation service URL")
		allowEncrypt   = flag.Bool("allow-encrypt", false, "Enable the plaintext /encrypt endpoint (development only)")
		signingKeyHex  = flag.String("signing-key", "", "Ed25519 signing key (hex, generates if empty)")
		exchangeKeyHex = flag.String("exchange-key", "", "ECDH P-256 exchange key (hex, generates if empty)")
		logJSON        = flag.Bool("log-json", false, "Log in JSON format")
		logDebug       = flag.Bool("log-debug", false, "Enable debug logging")
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
	cfg.HTTP.Addr = *addr
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
	if *endpoint != "" {
		cfg.Oracle.HTTPEndpoint = *endpoint
	}
	if cfg.Oracle.HTTPEndpoint == "" {
		cfg.Oracle.HTTPEndpoint = "http://localhost" + cfg.HTTP.Addr
	}
	if *useTDX {
		cfg.Oracle.UseTDX = true
	}
	if *remoteTDXURL != "" {
		cfg.Oracle.TDXRemoteURL = *remoteTDXURL
	}
	if *allowEncrypt {
		cfg.Oracle.AllowEncrypt = true
	}
	if *signingKeyHex != "" {
		cfg.Keys.SigningKey = *signingKeyHex
	}
	if *exchangeKeyHex != "" {
		cfg.Keys.ExchangeKey = *exchangeKeyHex
	}
	if *logJSON {
		cfg.Log.JSON = true
	}
	if *logDebug {
		cfg.Log.Debug = true
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
	log := cfg.Logger("oracle")

	signingKey, err := common.LoadOrGenerateSigningKey(cfg.Keys.SigningKey)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	exchangeKey, err := common.LoadOrGenerateExchangeKey(cfg.Keys.ExchangeKey)
	if err != nil {
		return fmt.Errorf("exchange key: %w", err)
	}

	pubKey, _ := signingKey.PublicKey()
	fmt.Printf("Oracle public key: %s\n", pubKey.String())
	fmt.Printf("Exchange public key: %s\n", hex.EncodeToString(exchangeKey.PublicKey().Bytes()))

	cp, err := coprocessor.NewLocal(&coprocessor.LocalConfig{
		ExchangeKey:   exchangeKey,
		DeliveryDelay: cfg.Oracle.DeliveryDelay,
		Log:           log,
	})
	if err != nil {
		return fmt.Errorf("create coprocessor: %w", err)
	}

	registry := prometheus.NewRegistry()
	oracle, err := services.NewOracleService(&services.OracleConfig{
		HTTPEndpoint:        cfg.Oracle.HTTPEndpoint,
		SigningKey:          signingKey,
		Coprocessor:         cp,
		AttestationProvider: common.NewAttestationProvider(&cfg.Oracle),
		AllowEncrypt:        cfg.Oracle.AllowEncrypt,
		Metrics:             metrics.NewRoundMetrics(registry, rrcommon.MetricsNamespace),
		Log:                 log,
	})
	if err != nil {
		return fmt.Errorf("create oracle: %w", err)
	}
	if cfg.Oracle.AllowEncrypt {
		log.Warn("plaintext /encrypt endpoint enabled")
	}

	srvCfg := cfg.HTTPServerConfig(log)
	srvCfg.MetricsRegistry = registry
	srv, err := httpserver.New(srvCfg, oracle)
	if err != nil {
		return fmt.Errorf("create http server: %w", err)
	}

	go oracle.Run(ctx)

	fmt.Printf("Oracle listening on %s (advertised as %s)\n", cfg.HTTP.Addr, cfg.Oracle.HTTPEndpoint)
	srv.RunInBackground()

	<-ctx.Done()

	fmt.Println("Shutting down oracle...")
	srv.Shutdown()
	return nil
}
