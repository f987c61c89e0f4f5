package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Contribution is a confidential transfer observed on a monitored address.
// It is created by the ledger client when a note is detected and is never
// mutated afterwards; both roles reference it by OriginRef only.
type Contribution struct {
	OriginRef     string          // transaction id on the ledger
	Amount        decimal.Decimal // 8-decimal fixed point
	Memo          string          // attached note, UTF-8, up to 512 bytes
	Confirmations int
	BlockHeight   int
	Change        bool // change outputs are never submissions
}

// Act is one reference unit in the corpus: a canonical text plus the
// address that receives contributions for it.
type Act struct {
	ID            int    `json:"id"`
	Title         string `json:"title,omitempty"`
	CanonicalText string `json:"canonical_text"`
	Address       string `json:"address,omitempty"`
}

// Corpus is the content-addressed reference document, loaded once per
// process lifetime.
type Corpus struct {
	Version   string `json:"version"`
	Acts      []Act  `json:"acts"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ApprovalSignal is the verifier's attested claim that a contribution
// carried a qualifying text. Emitted exactly once per contribution that
// reaches the confirmation threshold.
type ApprovalSignal struct {
	OriginRef  string          `json:"originRef"`
	Amount     decimal.Decimal `json:"amount"`
	ActID      int             `json:"actId"`
	Verified   bool            `json:"verified"`
	Confidence float64         `json:"confidence"`
	Timestamp  int64           `json:"timestamp"` // unix seconds
	ProofHash  string          `json:"proofHash"` // hex SHA-256 of the submitted text
}

// SplitStatus tracks how far a split has progressed. The two transfer
// legs are independent broadcasts, so a record can be durably parked
// between them and resumed after a crash.
type SplitStatus string

const (
	SplitPending     SplitStatus = "pending"
	SplitPrimarySent SplitStatus = "primary_sent"
	SplitCompleted   SplitStatus = "completed"
)

// SplitRecord is the executor's durable account of one split. Exactly one
// record ever exists per OriginRef. The operation refs journal each
// broadcast the moment the node accepts it, so a retry can resolve the
// prior operation instead of re-sending the leg.
type SplitRecord struct {
	OriginRef       string          `json:"originRef"`
	ActID           int             `json:"actId"`
	ProofHash       string          `json:"proofHash"`
	PrimaryAmount   decimal.Decimal `json:"primaryAmount"`
	SecondaryAmount decimal.Decimal `json:"secondaryAmount"`
	Remainder       decimal.Decimal `json:"remainder"`
	Inscription     string          `json:"inscription"` // text form carried on the primary leg
	PrimaryOpRef    string          `json:"primaryOpRef,omitempty"`
	PrimaryTxRef    string          `json:"primaryTxRef,omitempty"`
	SecondaryOpRef  string          `json:"secondaryOpRef,omitempty"`
	SecondaryTxRef  string          `json:"secondaryTxRef,omitempty"`
	Status          SplitStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	CompletedAt     time.Time       `json:"completedAt,omitempty"`
}

// Completed reports whether both legs have landed.
func (r *SplitRecord) Completed() bool {
	return r.Status == SplitCompleted
}
