// Package verifier is the observe-only role. It watches one address
// through a viewing key, scores each submission memo against the
// corpus, and delivers an attested approval signal to the executor.
// It holds no spending credential and never touches funds.
package verifier

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ppiankov/sanctum/internal/attest"
	"github.com/ppiankov/sanctum/internal/ledger"
	"github.com/ppiankov/sanctum/internal/match"
	"github.com/ppiankov/sanctum/internal/memo"
	"github.com/ppiankov/sanctum/internal/model"
	"github.com/ppiankov/sanctum/internal/sched"
	"go.uber.org/zap"
)

// LedgerReader is the read-only slice of the node client the verifier
// needs.
type LedgerReader interface {
	ImportViewingKey(ctx context.Context, key, rescan string) (ledger.AddressInfo, error)
	ListIncoming(ctx context.Context, address string, minConf int) ([]model.Contribution, error)
}

// CorpusSource serves the reference acts.
type CorpusSource interface {
	Load(ctx context.Context) error
	Act(id int) (model.Act, bool)
	Acts() []model.Act
	Version() string
}

// Stats is a snapshot of the monitor counters.
type Stats struct {
	Seen        int64 `json:"seen"`
	Skipped     int64 `json:"skipped"`
	Matched     int64 `json:"matched"`
	Rejected    int64 `json:"rejected"`
	SignalsSent int64 `json:"signalsSent"`
	Failures    int64 `json:"failures"`
}

// Verifier polls for contributions and emits approval signals.
type Verifier struct {
	cfg        model.VerifierConfig
	threshold  float64
	ledger     LedgerReader
	corpus     CorpusSource
	matcher    *match.Matcher
	signer     *attest.Signer
	httpClient *http.Client
	log        *zap.Logger

	mu        sync.Mutex
	processed map[string]struct{}
	stats     Stats
}

// New wires a verifier. threshold <= 0 falls back to the protocol
// default.
func New(cfg model.VerifierConfig, threshold float64, ledgerClient LedgerReader, corpusSource CorpusSource, matcher *match.Matcher, signer *attest.Signer, log *zap.Logger) *Verifier {
	if threshold <= 0 {
		threshold = match.DefaultThreshold
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{
		cfg:        cfg,
		threshold:  threshold,
		ledger:     ledgerClient,
		corpus:     corpusSource,
		matcher:    matcher,
		signer:     signer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
		processed:  make(map[string]struct{}),
	}
}

// Start imports the viewing key, loads the corpus, and polls until ctx
// is cancelled.
func (v *Verifier) Start(ctx context.Context) error {
	if v.cfg.ViewingKey != "" {
		info, err := v.ledger.ImportViewingKey(ctx, v.cfg.ViewingKey, ledger.RescanWhenKeyIsNew)
		if err != nil {
			return fmt.Errorf("import viewing key: %w", err)
		}
		v.log.Info("viewing key imported", zap.String("address", info.Address))
	}

	if err := v.corpus.Load(ctx); err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}
	v.log.Info("corpus loaded",
		zap.String("version", v.corpus.Version()),
		zap.Int("acts", len(v.corpus.Acts())))

	poller := sched.NewPoller(v.cfg.PollInterval, v.Cycle, func(err error) {
		v.log.Error("poll cycle failed", zap.Error(err))
	})
	return poller.Run(ctx)
}

// Cycle runs one polling pass: list incoming notes, evaluate the ones
// that reached the confirmation threshold, deliver signals. Errors on a
// single contribution are isolated; only a listing failure aborts the
// cycle.
func (v *Verifier) Cycle(ctx context.Context) error {
	contributions, err := v.ledger.ListIncoming(ctx, v.cfg.WatchAddress, 0)
	if err != nil {
		return fmt.Errorf("list incoming: %w", err)
	}

	for i := range contributions {
		c := &contributions[i]
		if v.isProcessed(c.OriginRef) {
			continue
		}
		if c.Change {
			v.markProcessed(c.OriginRef)
			continue
		}
		if !memo.LooksLikeSubmission(c.Memo) {
			v.log.Debug("not a submission", zap.String("origin", c.OriginRef))
			v.markProcessed(c.OriginRef)
			v.count(func(s *Stats) { s.Skipped++ })
			continue
		}
		if c.Confirmations < v.cfg.MinConfirmations {
			// Leave it for a later cycle.
			continue
		}

		v.count(func(s *Stats) { s.Seen++ })
		if err := v.process(ctx, c); err != nil {
			v.count(func(s *Stats) { s.Failures++ })
			v.log.Error("process contribution failed",
				zap.String("origin", c.OriginRef),
				zap.Bool("transient", model.IsTransient(err)),
				zap.Error(err))
			if !model.IsTransient(err) {
				v.markProcessed(c.OriginRef)
			}
			continue
		}
		v.markProcessed(c.OriginRef)
	}
	return nil
}

func (v *Verifier) process(ctx context.Context, c *model.Contribution) error {
	signal, err := v.evaluate(ctx, c)
	if err != nil {
		return err
	}

	if err := v.deliver(ctx, signal); err != nil {
		return err
	}

	v.count(func(s *Stats) {
		s.SignalsSent++
		if signal.Verified {
			s.Matched++
		} else {
			s.Rejected++
		}
	})
	v.log.Info("signal delivered",
		zap.String("origin", signal.OriginRef),
		zap.Int("act", signal.ActID),
		zap.Bool("verified", signal.Verified),
		zap.Float64("confidence", signal.Confidence))
	return nil
}

// evaluate scores a contribution's memo and builds the signal. An
// explicitly tagged act is compared one-to-one; free text goes through
// the best-match scan. An unknown act tag also falls back to the scan.
func (v *Verifier) evaluate(ctx context.Context, c *model.Contribution) (*model.ApprovalSignal, error) {
	parsed := memo.Parse(c.Memo)
	if err := memo.ValidateText(parsed.Text); err != nil {
		v.log.Debug("invalid submission text",
			zap.String("origin", c.OriginRef), zap.Error(err))
		return v.signal(c, parsed.Text, 0, 0), nil
	}

	actID := 0
	confidence := 0.0
	if parsed.Explicit {
		if act, ok := v.corpus.Act(parsed.ActID); ok {
			score, err := v.matcher.Compare(ctx, parsed.Text, act.CanonicalText)
			if err != nil {
				return nil, model.Transient(fmt.Errorf("compare: %w", err))
			}
			actID, confidence = act.ID, score
		} else {
			v.log.Warn("memo names unknown act",
				zap.String("origin", c.OriginRef), zap.Int("act", parsed.ActID))
		}
	}
	if actID == 0 {
		best, err := v.matcher.FindBestMatch(ctx, parsed.Text, v.corpus.Acts())
		if err != nil {
			return nil, model.Transient(fmt.Errorf("best match: %w", err))
		}
		actID, confidence = best.ActID, best.Confidence
	}

	return v.signal(c, parsed.Text, actID, confidence), nil
}

func (v *Verifier) signal(c *model.Contribution, text string, actID int, confidence float64) *model.ApprovalSignal {
	sum := sha256.Sum256([]byte(text))
	return &model.ApprovalSignal{
		OriginRef:  c.OriginRef,
		Amount:     c.Amount,
		ActID:      actID,
		Verified:   confidence >= v.threshold,
		Confidence: confidence,
		Timestamp:  time.Now().Unix(),
		ProofHash:  hex.EncodeToString(sum[:]),
	}
}

// deliver posts the signal to the executor with a fresh attestation.
func (v *Verifier) deliver(ctx context.Context, signal *model.ApprovalSignal) error {
	body, err := json.Marshal(signal)
	if err != nil {
		return fmt.Errorf("marshal signal: %w", err)
	}
	token, err := v.signer.Sign(body)
	if err != nil {
		return fmt.Errorf("sign signal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		v.cfg.ExecutorURL+"/verify", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create delivery request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(attest.Header, token)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return model.Transient(fmt.Errorf("deliver signal: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("executor rejected attestation: %w", model.ErrAttestationInvalid)
	default:
		return model.Transient(fmt.Errorf("deliver signal: unexpected status %d", resp.StatusCode))
	}
}

// Stats returns a snapshot of the monitor counters.
func (v *Verifier) Stats() Stats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

func (v *Verifier) count(update func(*Stats)) {
	v.mu.Lock()
	update(&v.stats)
	v.mu.Unlock()
}

func (v *Verifier) isProcessed(originRef string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.processed[originRef]
	return ok
}

func (v *Verifier) markProcessed(originRef string) {
	v.mu.Lock()
	v.processed[originRef] = struct{}{}
	v.mu.Unlock()
}
