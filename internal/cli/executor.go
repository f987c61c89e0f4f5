package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ppiankov/sanctum/internal/attest"
	"github.com/ppiankov/sanctum/internal/events"
	"github.com/ppiankov/sanctum/internal/executor"
	"github.com/ppiankov/sanctum/internal/ledger"
	"github.com/ppiankov/sanctum/internal/split"
	"github.com/ppiankov/sanctum/internal/store"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// executorCmd represents the executor command
var executorCmd = &cobra.Command{
	Use:   "executor",
	Short: "Run the spend-capable executor",
	Long: `Run the executor role: accept attested approval signals over HTTP,
split approved contributions by the golden ratio, and broadcast the two
transfer legs with an inscription receipt on the primary leg.

Interrupted splits are resumed from the journal on startup. Requires:
  executor.spending_key            spend authority for the source address
  executor.source_address          address holding the contributions
  executor.primary_address         golden-ratio primary recipient
  executor.secondary_address       golden-ratio secondary recipient
  executor.attestation_public_key  the verifier's public key`,
	RunE: runExecutor,
}

func init() {
	rootCmd.AddCommand(executorCmd)
}

func runExecutor(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	for name, value := range map[string]string{
		"executor.source_address":         cfg.Executor.SourceAddress,
		"executor.primary_address":        cfg.Executor.PrimaryAddress,
		"executor.secondary_address":      cfg.Executor.SecondaryAddress,
		"executor.attestation_public_key": cfg.Executor.AttestationPublicKey,
	} {
		if value == "" {
			return fmt.Errorf("%s is required", name)
		}
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	attVerifier, err := attest.NewVerifier(cfg.Executor.IssuerID, cfg.Executor.AttestationPublicKey, cfg.Executor.StalenessWindow)
	if err != nil {
		return err
	}

	fee, err := decimal.NewFromString(cfg.Split.NetworkFee)
	if err != nil {
		return fmt.Errorf("parse split.network_fee: %w", err)
	}
	dust, err := decimal.NewFromString(cfg.Split.DustFloor)
	if err != nil {
		return fmt.Errorf("parse split.dust_floor: %w", err)
	}
	splitter := split.NewSplitter(fee, dust)

	splitStore, err := store.New(cfg.Store)
	if err != nil {
		return err
	}
	defer func() { _ = splitStore.Close() }()

	publisher := events.New(cfg.Events)
	defer func() { _ = publisher.Close() }()

	ledgerClient := ledger.NewClient(cfg.Ledger)

	e, err := executor.New(cfg.Executor, splitter, splitStore, ledgerClient, publisher, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := e.ImportCredential(ctx); err != nil {
		return err
	}
	if err := e.Resume(ctx); err != nil {
		return err
	}

	log.Info("executor starting",
		zap.String("listen", cfg.Executor.ListenAddr),
		zap.String("store", cfg.Store.Driver),
		zap.String("minAmount", e.MinAmount().String()))

	server := executor.NewServer(e, attVerifier, log)
	err = server.ListenAndServe(ctx, cfg.Executor.ListenAddr)
	if errors.Is(err, context.Canceled) {
		log.Info("executor stopped")
		return nil
	}
	return err
}
