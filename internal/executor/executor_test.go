package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/sanctum/internal/ledger"
	"github.com/ppiankov/sanctum/internal/model"
	"github.com/ppiankov/sanctum/internal/split"
	"github.com/ppiankov/sanctum/internal/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testProofHash = "aabbccddeeff00112233445566778899aabbccddeeff00112233445566778899"

type sendCall struct {
	To     string
	Amount decimal.Decimal
	Memo   string
}

type fakeSpender struct {
	mu            sync.Mutex
	sends         []sendCall
	ops           map[string]string // opid -> txid of landed operations
	failFrom      int               // fail sends once len(sends) reaches this; 0 disables
	awaitTimeouts int               // next N AwaitOperation calls time out
	counter       int
}

func (f *fakeSpender) ImportSpendingKey(context.Context, string, string) (ledger.AddressInfo, error) {
	return ledger.AddressInfo{Address: "zs1source"}, nil
}

func (f *fakeSpender) SendMany(_ context.Context, _ string, outputs []ledger.Output) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFrom > 0 && len(f.sends) >= f.failFrom {
		return "", model.Transient(errors.New("node unavailable"))
	}
	f.sends = append(f.sends, sendCall{
		To:     outputs[0].Address,
		Amount: outputs[0].Amount,
		Memo:   outputs[0].Memo,
	})
	f.counter++
	opid := fmt.Sprintf("op-%d", f.counter)
	if f.ops == nil {
		f.ops = make(map[string]string)
	}
	// The broadcast lands on the node even if the caller never learns.
	f.ops[opid] = "tx-" + opid
	return opid, nil
}

func (f *fakeSpender) OperationStatus(_ context.Context, opid string) (ledger.OperationState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if txid, ok := f.ops[opid]; ok {
		return ledger.OperationState{Status: ledger.OpStatusSuccess, TxID: txid}, nil
	}
	return ledger.OperationState{Status: ledger.OpStatusUnknown}, nil
}

func (f *fakeSpender) AwaitOperation(_ context.Context, opid string, _ time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.awaitTimeouts > 0 {
		f.awaitTimeouts--
		return "", model.Transient(fmt.Errorf("operation %s still pending", opid))
	}
	if txid, ok := f.ops[opid]; ok {
		return txid, nil
	}
	return "", model.Transient(fmt.Errorf("operation %s still pending", opid))
}

func (f *fakeSpender) sent() []sendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sendCall, len(f.sends))
	copy(out, f.sends)
	return out
}

type fakePublisher struct {
	mu        sync.Mutex
	published []string
}

func (f *fakePublisher) PublishSplitCompleted(_ context.Context, record *model.SplitRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, record.OriginRef)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func testConfig() model.ExecutorConfig {
	return model.ExecutorConfig{
		SourceAddress:    "zs1source",
		PrimaryAddress:   "t1primary",
		SecondaryAddress: "zs1secondary",
		StalenessWindow:  5 * time.Minute,
		OperationTimeout: time.Second,
	}
}

func newTestExecutor(t *testing.T, spender *fakeSpender) (*Executor, *store.MemoryStore, *fakePublisher) {
	t.Helper()
	splitter := split.NewSplitter(
		decimal.RequireFromString("0.0001"),
		decimal.RequireFromString("0.00000546"))
	memStore := store.NewMemoryStore()
	publisher := &fakePublisher{}

	e, err := New(testConfig(), splitter, memStore, spender, publisher, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e, memStore, publisher
}

func verifiedSignal(ref, amount string) *model.ApprovalSignal {
	return &model.ApprovalSignal{
		OriginRef:  ref,
		Amount:     decimal.RequireFromString(amount),
		ActID:      3,
		Verified:   true,
		Confidence: 0.91,
		Timestamp:  time.Now().Unix(),
		ProofHash:  testProofHash,
	}
}

func TestOnSignal_PerformsSplit(t *testing.T) {
	spender := &fakeSpender{}
	e, _, publisher := newTestExecutor(t, spender)

	signal := verifiedSignal("aa11", "1.0")
	decision, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if !decision.Approved {
		t.Fatalf("decision = %+v, want approved", decision)
	}
	record := decision.Record
	if !record.Completed() {
		t.Errorf("record status = %s", record.Status)
	}
	if !record.PrimaryAmount.Equal(decimal.RequireFromString("0.61791038")) {
		t.Errorf("primary = %s", record.PrimaryAmount)
	}
	if !record.SecondaryAmount.Equal(decimal.RequireFromString("0.38188961")) {
		t.Errorf("secondary = %s", record.SecondaryAmount)
	}

	sends := spender.sent()
	if len(sends) != 2 {
		t.Fatalf("got %d sends, want 2", len(sends))
	}
	if sends[0].To != "t1primary" || !strings.HasPrefix(sends[0].Memo, "SANCTUARY:STS|v01|ACT:3") {
		t.Errorf("primary leg = %+v", sends[0])
	}
	// The receipt carries the signal's own issuance time.
	if !strings.HasSuffix(record.Inscription, fmt.Sprintf("|T:%d", signal.Timestamp)) {
		t.Errorf("inscription timestamp missing or wrong: %s", record.Inscription)
	}
	if sends[1].To != "zs1secondary" || sends[1].Memo != "" {
		t.Errorf("secondary leg = %+v", sends[1])
	}

	if len(publisher.published) != 1 || publisher.published[0] != "aa11" {
		t.Errorf("published = %v", publisher.published)
	}
}

func TestOnSignal_ReplayReturnsExistingSplit(t *testing.T) {
	spender := &fakeSpender{}
	e, _, _ := newTestExecutor(t, spender)
	signal := verifiedSignal("aa11", "1.0")

	first, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("first OnSignal failed: %v", err)
	}
	second, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("replayed OnSignal failed: %v", err)
	}

	if !second.Approved || second.Record.PrimaryTxRef != first.Record.PrimaryTxRef {
		t.Errorf("replay returned a different record: %+v", second.Record)
	}
	if len(spender.sent()) != 2 {
		t.Errorf("replay broadcast again: %d sends", len(spender.sent()))
	}
}

func TestOnSignal_TimeoutThenReplayAdoptsBroadcast(t *testing.T) {
	// The primary broadcast lands on the node but the await times out
	// before the caller learns the txid.
	spender := &fakeSpender{awaitTimeouts: 1}
	e, memStore, _ := newTestExecutor(t, spender)
	signal := verifiedSignal("aa11", "1.0")

	_, err := e.OnSignal(context.Background(), signal)
	if err == nil {
		t.Fatal("OnSignal succeeded despite await timeout")
	}
	if !model.IsTransient(err) {
		t.Errorf("timeout error not transient: %v", err)
	}

	parked, err := memStore.Get(context.Background(), "aa11")
	if err != nil {
		t.Fatalf("no journal after broadcast: %v", err)
	}
	if parked.Status != model.SplitPending || parked.PrimaryOpRef == "" || parked.PrimaryTxRef != "" {
		t.Fatalf("parked record = %+v", parked)
	}

	decision, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("replayed OnSignal failed: %v", err)
	}
	if !decision.Approved || !decision.Record.Completed() {
		t.Fatalf("replay decision = %+v", decision)
	}
	if decision.Record.PrimaryTxRef != "tx-op-1" {
		t.Errorf("primary tx = %q, want the one already landed", decision.Record.PrimaryTxRef)
	}

	sends := spender.sent()
	if len(sends) != 2 {
		t.Fatalf("got %d sends, want 2 (primary must not rebroadcast)", len(sends))
	}
}

func TestOnSignal_ConcurrentDuplicates(t *testing.T) {
	spender := &fakeSpender{}
	e, _, _ := newTestExecutor(t, spender)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.OnSignal(context.Background(), verifiedSignal("aa11", "1.0")); err != nil {
				t.Errorf("OnSignal failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(spender.sent()) != 2 {
		t.Errorf("duplicate signals caused %d sends, want 2", len(spender.sent()))
	}
}

func TestOnSignal_UnverifiedRejected(t *testing.T) {
	spender := &fakeSpender{}
	e, memStore, _ := newTestExecutor(t, spender)

	signal := verifiedSignal("aa11", "1.0")
	signal.Verified = false
	signal.Confidence = 0.4

	decision, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if decision.Approved {
		t.Error("unverified signal approved")
	}
	if len(spender.sent()) != 0 {
		t.Error("unverified signal moved funds")
	}
	if _, err := memStore.Get(context.Background(), "aa11"); !errors.Is(err, model.ErrNotFound) {
		t.Error("unverified signal left a record")
	}
}

func TestOnSignal_BelowMinimum(t *testing.T) {
	spender := &fakeSpender{}
	e, _, _ := newTestExecutor(t, spender)

	decision, err := e.OnSignal(context.Background(), verifiedSignal("aa11", "0.0001"))
	if err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if decision.Approved {
		t.Error("dust contribution approved")
	}
	if !strings.Contains(decision.Reason, "below minimum") {
		t.Errorf("reason = %q", decision.Reason)
	}
	if len(spender.sent()) != 0 {
		t.Error("dust contribution moved funds")
	}
}

func TestOnSignal_StaleSignalRejected(t *testing.T) {
	spender := &fakeSpender{}
	e, _, _ := newTestExecutor(t, spender)

	signal := verifiedSignal("aa11", "1.0")
	signal.Timestamp = time.Now().Add(-10 * time.Minute).Unix()

	decision, err := e.OnSignal(context.Background(), signal)
	if err != nil {
		t.Fatalf("OnSignal failed: %v", err)
	}
	if decision.Approved {
		t.Error("stale signal approved")
	}
	if len(spender.sent()) != 0 {
		t.Error("stale signal moved funds")
	}
}

func TestResume_FinishesInterruptedSplit(t *testing.T) {
	spender := &fakeSpender{failFrom: 1} // primary lands, secondary fails
	e, memStore, publisher := newTestExecutor(t, spender)

	_, err := e.OnSignal(context.Background(), verifiedSignal("aa11", "1.0"))
	if err == nil {
		t.Fatal("OnSignal succeeded despite secondary leg failure")
	}

	parked, err := memStore.Get(context.Background(), "aa11")
	if err != nil {
		t.Fatalf("no journal after primary leg: %v", err)
	}
	if parked.Status != model.SplitPrimarySent || parked.PrimaryTxRef == "" {
		t.Fatalf("parked record = %+v", parked)
	}

	spender.mu.Lock()
	spender.failFrom = 0
	spender.mu.Unlock()

	if err := e.Resume(context.Background()); err != nil {
		t.Fatalf("Resume failed: %v", err)
	}

	record, err := memStore.Get(context.Background(), "aa11")
	if err != nil {
		t.Fatalf("Get after resume failed: %v", err)
	}
	if !record.Completed() || record.SecondaryTxRef == "" {
		t.Errorf("record after resume = %+v", record)
	}

	sends := spender.sent()
	if len(sends) != 2 {
		t.Fatalf("got %d sends, want 2 (primary must not rebroadcast)", len(sends))
	}
	if sends[1].To != "zs1secondary" {
		t.Errorf("resumed leg went to %s", sends[1].To)
	}
	if len(publisher.published) != 1 {
		t.Errorf("published = %v", publisher.published)
	}
}

func TestNew_MinAmountOverride(t *testing.T) {
	splitter := split.NewSplitter(
		decimal.RequireFromString("0.0001"),
		decimal.RequireFromString("0.00000546"))

	cfg := testConfig()
	cfg.MinAmount = "0.01"
	e, err := New(cfg, splitter, store.NewMemoryStore(), &fakeSpender{}, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if !e.MinAmount().Equal(decimal.RequireFromString("0.01")) {
		t.Errorf("min amount = %s", e.MinAmount())
	}

	cfg.MinAmount = "0.00000001" // below the viable floor
	if _, err := New(cfg, splitter, store.NewMemoryStore(), &fakeSpender{}, nil, zap.NewNop()); err == nil {
		t.Error("sub-viable override accepted")
	}
}
