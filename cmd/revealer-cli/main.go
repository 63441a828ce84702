// Command revealer-cli interacts with a running revealer.
//
// # Commands
//
// keygen: Generate an Ed25519 signing key and print its address.
//
//	revealer-cli keygen
//
// submit: Encrypt a wealth value to the oracle and submit it.
//
//	revealer-cli submit -r http://localhost:8080 --key=<hex> --value=1000
//	revealer-cli submit -r http://localhost:8080 --key=<hex> --value=1000 --oracle=http://localhost:8081
//
// compute, request-decryption: Owner operations.
//
//	revealer-cli compute -r http://localhost:8080 --key=<owner hex>
//	revealer-cli request-decryption -r http://localhost:8080 --key=<owner hex>
//
// status, wait: Inspect the round, or block until the result is revealed.
//
//	revealer-cli status -r http://localhost:8080
//	revealer-cli wait -r http://localhost:8080 --timeout=2m
package main

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/richest-revealer/cmd/common"
	"github.com/flashbots/richest-revealer/crypto"
	"github.com/flashbots/richest-revealer/services"
	"github.com/spf13/cobra"
)

type globalOptions struct {
	revealerURL string
	keyHex      string
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:          "revealer-cli",
		Short:        "CLI for the confidential richest-participant revealer",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.revealerURL, "revealer", "r", "http://localhost:8080", "Revealer URL")
	cmd.PersistentFlags().StringVar(&opts.keyHex, "key", os.Getenv("REVEALER_KEY"), "Ed25519 signing key (hex), defaults to $REVEALER_KEY")

	cmd.AddCommand(
		newKeygenCmd(),
		newSubmitCmd(opts),
		newComputeCmd(opts),
		newRequestDecryptionCmd(opts),
		newStatusCmd(opts),
		newWaitCmd(opts),
	)
	return cmd
}

func (o *globalOptions) client(signed bool) (*services.RevealerClient, error) {
	if !signed {
		return services.NewRevealerClient(o.revealerURL, nil)
	}
	if o.keyHex == "" {
		return nil, errors.New("--key is required")
	}
	key, err := common.LoadOrGenerateSigningKey(o.keyHex)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return services.NewRevealerClient(o.revealerURL, key)
}

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing key",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := crypto.GenerateKeyPair()
			if err != nil {
				return err
			}
			fmt.Printf("Signing key: %s\n", hex.EncodeToString(priv.Bytes()))
			fmt.Printf("Public key:  %s\n", pub.String())
			fmt.Printf("Address:     %s\n", pub.Address())
			return nil
		},
	}
}

func newSubmitCmd(opts *globalOptions) *cobra.Command {
	var (
		value           uint64
		oracleURL       string
		measurementsURL string
		useTDX          bool
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Encrypt and submit a wealth value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := opts.client(true)
			if err != nil {
				return err
			}

			info, err := client.Oracle(ctx)
			if err != nil {
				return fmt.Errorf("fetching oracle: %w", err)
			}

			var exchangeKey *ecdh.PublicKey
			if oracleURL != "" {
				// Verify the oracle ourselves rather than trusting the revealer's copy.
				oracleCfg := &common.OracleConfig{UseTDX: useTDX}
				trusted, err := services.ResolveOracle(ctx, &services.OracleTrustConfig{
					URL:                 oracleURL,
					AttestationProvider: common.NewAttestationProvider(oracleCfg),
					MeasurementSource:   common.NewMeasurementSource(measurementsURL),
				})
				if err != nil {
					return fmt.Errorf("verifying oracle: %w", err)
				}
				if trusted.PublicKey.String() != info.PublicKey {
					return fmt.Errorf("revealer trusts oracle %s, verified oracle is %s", info.PublicKey, trusted.PublicKey)
				}
				exchangeKey = trusted.ExchangeKey
			} else {
				if !info.Attested {
					fmt.Fprintln(os.Stderr, "Warning: oracle is pinned by the revealer, not attested")
				}
				exchangeKey, err = services.ParseExchangeKey(info.ExchangeKey)
				if err != nil {
					return err
				}
			}

			p, err := client.SubmitWealth(ctx, exchangeKey, value)
			if err != nil {
				return err
			}
			fmt.Printf("Submitted as participant %d (%s)\n", p.Index, p.Address)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&value, "value", 0, "Wealth value to submit")
	cmd.Flags().StringVar(&oracleURL, "oracle", "", "Verify the oracle at this URL before encrypting")
	cmd.Flags().StringVar(&measurementsURL, "measurements-url", "", "URL for allowed oracle measurements")
	cmd.Flags().BoolVar(&useTDX, "tdx", false, "Require TDX attestation from the oracle")
	cmd.MarkFlagRequired("value")
	return cmd
}

func newComputeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compute",
		Short: "Compute the encrypted richest index (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			round, err := client.Round(ctx)
			if err != nil {
				return err
			}
			result, err := client.Compute(ctx, round.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Encrypted result: %s\n", result)
			return nil
		},
	}
}

func newRequestDecryptionCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "request-decryption",
		Short: "Request decryption of the result (owner only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := opts.client(true)
			if err != nil {
				return err
			}
			round, err := client.Round(ctx)
			if err != nil {
				return err
			}
			job, err := client.RequestDecryption(ctx, round.ID)
			if err != nil {
				return err
			}
			fmt.Printf("Decryption job: %s\n", job)
			return nil
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the round state",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(false)
			if err != nil {
				return err
			}
			round, err := client.Round(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("Round:        %s\n", round.ID)
			fmt.Printf("Phase:        %s\n", round.Phase)
			fmt.Printf("Owner:        %s\n", round.Owner)
			fmt.Printf("Contract:     %s\n", round.Contract)
			fmt.Printf("Participants: %d/%d\n", round.Count(), round.Capacity)
			for _, p := range round.Participants {
				fmt.Printf("  [%d] %s\n", p.Index, p.Address)
			}
			if round.Revealed != nil {
				fmt.Printf("Richest:      participant %d\n", *round.Revealed)
			}
			return nil
		},
	}
}

func newWaitCmd(opts *globalOptions) *cobra.Command {
	var (
		timeout  time.Duration
		interval time.Duration
	)

	cmd := &cobra.Command{
		Use:   "wait",
		Short: "Wait until the richest participant is revealed",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := opts.client(false)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			index, err := client.WaitRevealed(ctx, interval)
			if err != nil {
				return err
			}
			richest, err := client.Richest(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Richest participant: %d\n", index)
			for _, p := range richest {
				fmt.Printf("  %s\n", p.Address)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Polling interval")
	return cmd
}
