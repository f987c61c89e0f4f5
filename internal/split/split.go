// Package split implements the golden-ratio division of a contribution
// into a primary (transparent) and secondary (shielded) share.
//
// The ratio is the reciprocal of the golden ratio, a compile-time
// constant, so every split is derivable and auditable without external
// parameters:
//
//	phi = (1 + sqrt(5)) / 2
//	1/phi     = 0.6180339887... (primary)
//	1 - 1/phi = 0.3819660112... (secondary)
//
// All arithmetic is 8-decimal fixed point. Shares are floored to the
// ledger's minimal unit; the flooring loss is reported as a remainder and
// never spent.
package split

import (
	"fmt"

	"github.com/ppiankov/sanctum/internal/model"
	"github.com/shopspring/decimal"
)

// Precision is the ledger's fixed-point scale (minimal unit = 1e-8).
const Precision = 8

var (
	// Ratio is 1/phi to more digits than the 8-decimal scale can observe.
	Ratio = decimal.RequireFromString("0.6180339887498949")

	// Complement is 1 - 1/phi.
	Complement = decimal.RequireFromString("0.3819660112501051")

	two     = decimal.NewFromInt(2)
	epsilon = decimal.RequireFromString("0.00001")
)

// Result is the outcome of one split. PrimaryAmount + SecondaryAmount +
// Remainder always equals TotalInput - NetworkFee exactly.
type Result struct {
	Primary    decimal.Decimal
	Secondary  decimal.Decimal
	Remainder  decimal.Decimal
	TotalInput decimal.Decimal
	NetworkFee decimal.Decimal // total reserved for both transfer legs
}

// Splitter computes golden-ratio splits for a fixed fee reservation and
// dust floor. It holds no state beyond those two parameters.
type Splitter struct {
	reservedFee decimal.Decimal // per transfer leg
	dustFloor   decimal.Decimal
}

// NewSplitter creates a splitter. reservedFee is the estimated network
// fee per transfer leg; dustFloor is the smallest output the ledger
// accepts.
func NewSplitter(reservedFee, dustFloor decimal.Decimal) *Splitter {
	return &Splitter{reservedFee: reservedFee, dustFloor: dustFloor}
}

// Split divides amount into the two shares. It fails with
// model.ErrAmountTooSmall when the amount cannot cover both fees or when
// either share would fall below the dust floor.
func (s *Splitter) Split(amount decimal.Decimal) (*Result, error) {
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount %s is not positive", model.ErrAmountTooSmall, amount)
	}

	totalFees := s.reservedFee.Mul(two)
	distributable := amount.Sub(totalFees)
	if distributable.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %s after fees %s", model.ErrAmountTooSmall, amount, totalFees)
	}

	// Floor both shares to the minimal unit; the loss becomes the remainder.
	primary := distributable.Mul(Ratio).Truncate(Precision)
	secondary := distributable.Mul(Complement).Truncate(Precision)
	remainder := distributable.Sub(primary).Sub(secondary)

	if primary.Cmp(s.dustFloor) < 0 {
		return nil, fmt.Errorf("%w: primary share %s below dust floor %s", model.ErrAmountTooSmall, primary, s.dustFloor)
	}
	if secondary.Cmp(s.dustFloor) < 0 {
		return nil, fmt.Errorf("%w: secondary share %s below dust floor %s", model.ErrAmountTooSmall, secondary, s.dustFloor)
	}

	return &Result{
		Primary:    primary,
		Secondary:  secondary,
		Remainder:  remainder,
		TotalInput: amount,
		NetworkFee: totalFees,
	}, nil
}

// Verify recomputes the expected shares from the total input and checks
// the observed shares are within fee-plus-rounding tolerance. It is a
// self-check on already-computed results, not a gate.
func (s *Splitter) Verify(r *Result) bool {
	expectedPrimary := r.TotalInput.Mul(Ratio)
	expectedSecondary := r.TotalInput.Mul(Complement)
	tolerance := s.reservedFee.Mul(two).Add(epsilon)

	return r.Primary.Sub(expectedPrimary).Abs().Cmp(tolerance) < 0 &&
		r.Secondary.Sub(expectedSecondary).Abs().Cmp(tolerance) < 0
}

// MinimumViable returns the smallest amount for which both fees and both
// dust floors are satisfiable. Amounts below this must be rejected before
// a split is ever scheduled.
func (s *Splitter) MinimumViable() decimal.Decimal {
	totalFees := s.reservedFee.Mul(two)

	// Covering both dust floors outright.
	fromDust := totalFees.Add(s.dustFloor.Mul(two))

	// The secondary share is the smaller one; work backwards from the
	// dust floor through its ratio.
	fromSecondary := s.dustFloor.Div(Complement).Add(totalFees)

	return decimal.Max(fromDust, fromSecondary).Truncate(Precision).Add(decimal.New(1, -Precision))
}

// Format renders a result for logs and query responses.
func Format(r *Result) string {
	pct := func(share decimal.Decimal) string {
		if r.TotalInput.Sign() == 0 {
			return "0.00"
		}
		return share.Div(r.TotalInput).Mul(decimal.NewFromInt(100)).StringFixed(2)
	}
	return fmt.Sprintf("input=%s primary=%s (%s%%) secondary=%s (%s%%) network=%s remainder=%s",
		r.TotalInput.StringFixed(Precision),
		r.Primary.StringFixed(Precision), pct(r.Primary),
		r.Secondary.StringFixed(Precision), pct(r.Secondary),
		r.NetworkFee.StringFixed(Precision),
		r.Remainder.StringFixed(Precision))
}
