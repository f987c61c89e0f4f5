package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/ppiankov/sanctum/internal/attest"
	"github.com/ppiankov/sanctum/internal/cache"
	"github.com/ppiankov/sanctum/internal/corpus"
	"github.com/ppiankov/sanctum/internal/embed"
	"github.com/ppiankov/sanctum/internal/ledger"
	"github.com/ppiankov/sanctum/internal/match"
	"github.com/ppiankov/sanctum/internal/model"
	"github.com/ppiankov/sanctum/internal/verifier"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// verifierCmd represents the verifier command
var verifierCmd = &cobra.Command{
	Use:   "verifier",
	Short: "Run the observe-only verifier",
	Long: `Run the verifier role: watch the configured address through a
viewing key, score each submission memo against the reference corpus,
and deliver attested approval signals to the executor.

This role cannot move funds. It requires:
  verifier.viewing_key       read access to the watched address
  verifier.watch_address     the address to watch
  verifier.attestation_seed  signing seed (see 'sanctum config keygen')
  corpus.cid                 content id of the reference corpus`,
	RunE: runVerifier,
}

func init() {
	rootCmd.AddCommand(verifierCmd)
}

func runVerifier(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Verifier.WatchAddress == "" {
		return fmt.Errorf("verifier.watch_address is required")
	}
	if cfg.Corpus.CID == "" {
		return fmt.Errorf("corpus.cid is required")
	}
	if cfg.Verifier.AttestationSeed == "" {
		return fmt.Errorf("verifier.attestation_seed is required (run 'sanctum config keygen')")
	}

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	signer, err := attest.NewSigner(cfg.Verifier.IssuerID, cfg.Verifier.AttestationSeed)
	if err != nil {
		return err
	}

	provider, err := embed.NewProvider(embed.ConfigFromModel(cfg.Embedding))
	if err != nil {
		return err
	}

	docCache := newDocCache(cfg.Corpus)
	corpusStore := corpus.NewStore(cfg.Corpus.Gateway, cfg.Corpus.CID, 30*time.Second, docCache)
	matcher := match.NewMatcher(provider, cache.NewMemoryCache(time.Hour, 10*time.Minute))
	ledgerClient := ledger.NewClient(cfg.Ledger)

	v := verifier.New(cfg.Verifier, cfg.Match.Threshold, ledgerClient, corpusStore, matcher, signer, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("verifier starting",
		zap.String("watch", cfg.Verifier.WatchAddress),
		zap.String("executor", cfg.Verifier.ExecutorURL),
		zap.Duration("poll", cfg.Verifier.PollInterval),
		zap.String("embedding", provider.Name()))

	err = v.Start(ctx)
	if errors.Is(err, context.Canceled) {
		stats := v.Stats()
		log.Info("verifier stopped",
			zap.Int64("seen", stats.Seen),
			zap.Int64("matched", stats.Matched),
			zap.Int64("rejected", stats.Rejected),
			zap.Int64("signals", stats.SignalsSent),
			zap.Int64("failures", stats.Failures))
		return nil
	}
	return err
}

// newDocCache picks the corpus document cache: layered when a disk
// directory is configured, memory-only otherwise.
func newDocCache(cfg model.CorpusConfig) cache.Cache {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	if cfg.CacheDir != "" {
		return cache.NewLayeredCache(ttl, cfg.CacheDir, 24*time.Hour)
	}
	return cache.NewMemoryCache(ttl, 10*time.Minute)
}
