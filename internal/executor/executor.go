// Package executor is the spend-capable role. It accepts attested
// approval signals, performs the golden-ratio split as two transfer
// legs, and journals every step so a crash between legs resumes instead
// of double spending. It never evaluates submissions itself; the
// attestation is its only ground for moving funds.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ppiankov/sanctum/internal/events"
	"github.com/ppiankov/sanctum/internal/inscription"
	"github.com/ppiankov/sanctum/internal/ledger"
	"github.com/ppiankov/sanctum/internal/model"
	"github.com/ppiankov/sanctum/internal/split"
	"github.com/ppiankov/sanctum/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// memoPrefix marks the inscription carried on the primary leg.
const memoPrefix = "SANCTUARY:"

// LedgerSpender is the spend-side slice of the node client.
type LedgerSpender interface {
	ImportSpendingKey(ctx context.Context, key, rescan string) (ledger.AddressInfo, error)
	SendMany(ctx context.Context, from string, outputs []ledger.Output) (string, error)
	OperationStatus(ctx context.Context, opid string) (ledger.OperationState, error)
	AwaitOperation(ctx context.Context, opid string, timeout time.Duration) (string, error)
}

// Decision is the executor's answer to one signal delivery.
type Decision struct {
	Approved bool               `json:"success"`
	Reason   string             `json:"reason,omitempty"`
	Record   *model.SplitRecord `json:"result,omitempty"`
}

// Executor performs splits.
type Executor struct {
	cfg       model.ExecutorConfig
	splitter  *split.Splitter
	store     store.SplitStore
	ledger    LedgerSpender
	publisher events.Publisher
	log       *zap.Logger
	minAmount decimal.Decimal

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New wires an executor. The minimum accepted amount is the configured
// override when set, otherwise derived from the splitter's economics.
func New(cfg model.ExecutorConfig, splitter *split.Splitter, splitStore store.SplitStore, ledgerClient LedgerSpender, publisher events.Publisher, log *zap.Logger) (*Executor, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	minAmount := splitter.MinimumViable()
	if cfg.MinAmount != "" {
		override, err := decimal.NewFromString(cfg.MinAmount)
		if err != nil {
			return nil, fmt.Errorf("parse min_amount: %w", err)
		}
		if override.Cmp(minAmount) < 0 {
			return nil, fmt.Errorf("min_amount %s is below the viable floor %s", override, minAmount)
		}
		minAmount = override
	}

	return &Executor{
		cfg:       cfg,
		splitter:  splitter,
		store:     splitStore,
		ledger:    ledgerClient,
		publisher: publisher,
		log:       log,
		minAmount: minAmount,
		locks:     make(map[string]*sync.Mutex),
	}, nil
}

// MinAmount returns the smallest contribution the executor will split.
func (e *Executor) MinAmount() decimal.Decimal { return e.minAmount }

// ImportCredential loads the spending key into the node wallet.
func (e *Executor) ImportCredential(ctx context.Context) error {
	if e.cfg.SpendingKey == "" {
		return nil
	}
	info, err := e.ledger.ImportSpendingKey(ctx, e.cfg.SpendingKey, ledger.RescanWhenKeyIsNew)
	if err != nil {
		return fmt.Errorf("import spending key: %w", err)
	}
	e.log.Info("spending key imported", zap.String("address", info.Address))
	return nil
}

// OnSignal handles one approval signal. At most one split ever happens
// per origin ref: replays return the existing record, and an interrupted
// split is resumed rather than restarted.
func (e *Executor) OnSignal(ctx context.Context, signal *model.ApprovalSignal) (*Decision, error) {
	lock := e.lockFor(signal.OriginRef)
	lock.Lock()
	defer lock.Unlock()

	existing, err := e.store.Get(ctx, signal.OriginRef)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("load record: %w", err)
	}
	if existing != nil {
		if !existing.Completed() {
			if err := e.execute(ctx, existing); err != nil {
				return nil, err
			}
		}
		e.log.Info("replayed signal, returning existing split",
			zap.String("origin", signal.OriginRef))
		return &Decision{Approved: true, Record: existing}, nil
	}

	if !signal.Verified {
		return &Decision{Reason: "submission did not verify"}, nil
	}
	if e.cfg.StalenessWindow > 0 {
		age := time.Since(time.Unix(signal.Timestamp, 0))
		if age > e.cfg.StalenessWindow {
			return &Decision{Reason: fmt.Sprintf("signal issued %s ago, window is %s", age.Round(time.Second), e.cfg.StalenessWindow)}, nil
		}
	}
	if signal.Amount.Cmp(e.minAmount) < 0 {
		e.log.Info("contribution below minimum",
			zap.String("origin", signal.OriginRef),
			zap.String("amount", signal.Amount.String()),
			zap.String("minimum", e.minAmount.String()))
		return &Decision{Reason: fmt.Sprintf("amount %s below minimum %s: %v", signal.Amount, e.minAmount, model.ErrBelowMinimum)}, nil
	}

	record, err := e.prepare(signal)
	if err != nil {
		return nil, err
	}
	if err := e.store.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("journal split: %w", err)
	}
	if err := e.execute(ctx, record); err != nil {
		return nil, err
	}
	return &Decision{Approved: true, Record: record}, nil
}

// Record returns the split record for an origin ref.
func (e *Executor) Record(ctx context.Context, originRef string) (*model.SplitRecord, error) {
	return e.store.Get(ctx, originRef)
}

// Resume finishes splits interrupted by a crash. Called once on startup
// before the server accepts new signals.
func (e *Executor) Resume(ctx context.Context) error {
	incomplete, err := e.store.ListIncomplete(ctx)
	if err != nil {
		return fmt.Errorf("list incomplete splits: %w", err)
	}
	for _, record := range incomplete {
		lock := e.lockFor(record.OriginRef)
		lock.Lock()
		err := e.execute(ctx, record)
		lock.Unlock()
		if err != nil {
			e.log.Error("resume failed",
				zap.String("origin", record.OriginRef), zap.Error(err))
			continue
		}
		e.log.Info("resumed interrupted split",
			zap.String("origin", record.OriginRef))
	}
	return nil
}

// prepare computes the split and the inscription for a fresh signal.
func (e *Executor) prepare(signal *model.ApprovalSignal) (*model.SplitRecord, error) {
	result, err := e.splitter.Split(signal.Amount)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", signal.Amount, err)
	}

	data := &inscription.Data{
		ActID:     signal.ActID,
		ProofHash: signal.ProofHash,
		OriginRef: signal.OriginRef,
		Amount:    result.Primary,
		Timestamp: time.Unix(signal.Timestamp, 0).UTC(),
	}
	if ok, problems := inscription.Validate(data); !ok {
		return nil, fmt.Errorf("inscription invalid: %v", problems)
	}

	return &model.SplitRecord{
		OriginRef:       signal.OriginRef,
		ActID:           signal.ActID,
		ProofHash:       signal.ProofHash,
		PrimaryAmount:   result.Primary,
		SecondaryAmount: result.Secondary,
		Remainder:       result.Remainder,
		Inscription:     inscription.EncodeText(data),
		Status:          model.SplitPending,
		CreatedAt:       time.Now(),
	}, nil
}

// execute drives a record to completion from whatever leg it is parked
// at. Each leg is awaited and journaled before the next begins.
func (e *Executor) execute(ctx context.Context, record *model.SplitRecord) error {
	if record.Status == model.SplitPending {
		txRef, err := e.transfer(ctx, record, &record.PrimaryOpRef, e.cfg.PrimaryAddress, record.PrimaryAmount, memoPrefix+record.Inscription)
		if err != nil {
			return fmt.Errorf("primary leg for %s: %w", record.OriginRef, err)
		}
		record.PrimaryTxRef = txRef
		record.Status = model.SplitPrimarySent
		if err := e.store.Put(ctx, record); err != nil {
			return fmt.Errorf("journal primary leg: %w", err)
		}
		e.log.Info("primary leg landed",
			zap.String("origin", record.OriginRef),
			zap.String("tx", txRef),
			zap.String("amount", record.PrimaryAmount.String()))
	}

	if record.Status == model.SplitPrimarySent {
		txRef, err := e.transfer(ctx, record, &record.SecondaryOpRef, e.cfg.SecondaryAddress, record.SecondaryAmount, "")
		if err != nil {
			return fmt.Errorf("secondary leg for %s: %w", record.OriginRef, err)
		}
		record.SecondaryTxRef = txRef
		record.Status = model.SplitCompleted
		record.CompletedAt = time.Now()
		if err := e.store.Put(ctx, record); err != nil {
			return fmt.Errorf("journal secondary leg: %w", err)
		}
		e.log.Info("split completed",
			zap.String("origin", record.OriginRef),
			zap.String("tx", txRef),
			zap.String("remainder", record.Remainder.String()))

		if err := e.publisher.PublishSplitCompleted(ctx, record); err != nil {
			e.log.Warn("publish completion event failed",
				zap.String("origin", record.OriginRef), zap.Error(err))
		}
	}
	return nil
}

// transfer lands one leg at most once. A journaled operation ref from an
// earlier attempt is resolved against the node before anything is sent:
// a landed or still-running operation is adopted, never rebroadcast. The
// operation ref is journaled the moment the node accepts a new send, so
// an await timeout or crash leaves the ref behind for the next attempt.
func (e *Executor) transfer(ctx context.Context, record *model.SplitRecord, opRef *string, to string, amount decimal.Decimal, memoText string) (string, error) {
	timeout := e.cfg.OperationTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	if *opRef != "" {
		state, err := e.ledger.OperationStatus(ctx, *opRef)
		if err != nil {
			return "", err
		}
		switch state.Status {
		case ledger.OpStatusSuccess:
			return state.TxID, nil
		case ledger.OpStatusQueued, ledger.OpStatusExecuting:
			return e.ledger.AwaitOperation(ctx, *opRef, timeout)
		}
		// Failed or unknown: the node did not execute the send under
		// this id, so a fresh broadcast is the only way forward.
		e.log.Warn("prior broadcast did not land, re-sending",
			zap.String("origin", record.OriginRef),
			zap.String("opid", *opRef),
			zap.String("status", state.Status))
	}

	opid, err := e.ledger.SendMany(ctx, e.cfg.SourceAddress, []ledger.Output{
		{Address: to, Amount: amount, Memo: memoText},
	})
	if err != nil {
		return "", err
	}
	*opRef = opid
	if err := e.store.Put(ctx, record); err != nil {
		return "", fmt.Errorf("journal broadcast %s: %w", opid, err)
	}
	return e.ledger.AwaitOperation(ctx, opid, timeout)
}

func (e *Executor) lockFor(originRef string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.locks[originRef]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[originRef] = lock
	}
	return lock
}
