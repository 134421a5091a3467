/*
Package compensation implements the deferred-compensation split engine.

PURPOSE:
  A sprint's contract value is split three ways: an upfront payment at
  signing, an equity allocation, and a deferred cash amount paid later when
  milestones are hit. This package computes that split, tracks the
  milestones and their payout multipliers, and round-trips the whole
  worksheet through CSV.

KEY CONCEPTS IN THIS FILE (plan.go):
  - Plan: immutable calculator inputs (total value + two fractions)
  - Breakdown: derived fractions and amounts, recomputed on every call
  - Guardrails: min/max bounds enforced by clamping, never rejection

THE SPLIT:
  remaining = 1 - upfront
  equity    = remaining * equitySplit
  deferred  = remaining * (1 - equitySplit)

  upfront + equity + deferred == 1, so the three amounts always add up to
  the total project value exactly (decimal arithmetic, no division).

USAGE:
  plan := compensation.NewPlan().
      WithTotalProjectValue(decimal.NewFromInt(10000)).
      WithUpfrontFraction(decimal.RequireFromString("0.4")).
      WithEquitySplitFraction(decimal.RequireFromString("0.5"))

  b := plan.Compute()
  // b.UpfrontAmount = 4000, b.EquityAmount = 1500, b.DeferredAmount = 1500

SEE ALSO:
  - milestone.go: Milestone ledger and payouts
  - outcome.go: Milestone miss outcome metadata
  - csv.go: CSV export/import
  - snapshot.go: Persistence shape
*/
package compensation

import (
	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/generic"
)

// =============================================================================
// GUARDRAILS
// =============================================================================

var (
	UpfrontMin = decimal.RequireFromString("0.20")
	UpfrontMax = decimal.RequireFromString("1.00")

	// At least 20% of the non-upfront remainder stays deferred.
	EquityMin = decimal.RequireFromString("0.00")
	EquityMax = decimal.RequireFromString("0.80")
)

// ClampUpfront bounds v to [UpfrontMin, UpfrontMax].
func ClampUpfront(v decimal.Decimal) decimal.Decimal {
	return generic.Clamp(v, UpfrontMin, UpfrontMax)
}

// ClampEquitySplit bounds v to [EquityMin, EquityMax].
func ClampEquitySplit(v decimal.Decimal) decimal.Decimal {
	return generic.Clamp(v, EquityMin, EquityMax)
}

// =============================================================================
// PLAN
// =============================================================================

// Plan holds the calculator inputs. The zero value is usable: its fractions
// read back clamped to the guardrails.
type Plan struct {
	totalProjectValue   decimal.Decimal
	upfrontFraction     decimal.Decimal
	equitySplitFraction decimal.Decimal
	missOutcome         MissOutcome
}

// NewPlan returns the calculator's starting position: nothing entered yet,
// half upfront, the remainder split evenly between equity and deferred.
func NewPlan() Plan {
	return Plan{
		totalProjectValue:   decimal.Zero,
		upfrontFraction:     decimal.RequireFromString("0.50"),
		equitySplitFraction: decimal.RequireFromString("0.50"),
		missOutcome:         DefaultMissOutcome,
	}
}

func (p Plan) TotalProjectValue() decimal.Decimal   { return p.totalProjectValue }
func (p Plan) UpfrontFraction() decimal.Decimal     { return ClampUpfront(p.upfrontFraction) }
func (p Plan) EquitySplitFraction() decimal.Decimal { return ClampEquitySplit(p.equitySplitFraction) }

func (p Plan) MissOutcome() MissOutcome {
	if !p.missOutcome.IsValid() {
		return DefaultMissOutcome
	}
	return p.missOutcome
}

// WithTotalProjectValue floors negative values to zero.
func (p Plan) WithTotalProjectValue(v decimal.Decimal) Plan {
	if v.IsNegative() {
		v = decimal.Zero
	}
	p.totalProjectValue = v
	return p
}

// WithTotalProjectValueFloat floors negative and non-finite values to zero.
func (p Plan) WithTotalProjectValueFloat(v float64) Plan {
	d, ok := generic.DecimalFromFloat(v)
	if !ok {
		d = decimal.Zero
	}
	return p.WithTotalProjectValue(d)
}

func (p Plan) WithUpfrontFraction(v decimal.Decimal) Plan {
	p.upfrontFraction = ClampUpfront(v)
	return p
}

// WithUpfrontFractionFloat clamps; NaN falls to the lower guardrail and
// infinities to the nearest bound.
func (p Plan) WithUpfrontFractionFloat(v float64) Plan {
	return p.WithUpfrontFraction(fractionFromFloat(v, UpfrontMin, UpfrontMax))
}

func (p Plan) WithEquitySplitFraction(v decimal.Decimal) Plan {
	p.equitySplitFraction = ClampEquitySplit(v)
	return p
}

func (p Plan) WithEquitySplitFractionFloat(v float64) Plan {
	return p.WithEquitySplitFraction(fractionFromFloat(v, EquityMin, EquityMax))
}

// WithMissOutcome ignores unknown outcomes.
func (p Plan) WithMissOutcome(o MissOutcome) Plan {
	if o.IsValid() {
		p.missOutcome = o
	}
	return p
}

func fractionFromFloat(v float64, lo, hi decimal.Decimal) decimal.Decimal {
	if d, ok := generic.DecimalFromFloat(v); ok {
		return d
	}
	if v > 0 {
		return hi
	}
	return lo
}

// =============================================================================
// BREAKDOWN
// =============================================================================

// Breakdown is the derived split. All values are raw decimals; currency and
// percent formatting belong to the caller.
type Breakdown struct {
	TotalProjectValue decimal.Decimal

	RemainingFraction decimal.Decimal
	UpfrontFraction   decimal.Decimal
	EquityFraction    decimal.Decimal
	DeferredFraction  decimal.Decimal

	UpfrontAmount  decimal.Decimal
	EquityAmount   decimal.Decimal
	DeferredAmount decimal.Decimal
}

// Compute derives the split. It does not mutate p and is cheap enough to call
// on every input event.
func (p Plan) Compute() Breakdown {
	total := p.TotalProjectValue()
	upfront := p.UpfrontFraction()
	split := p.EquitySplitFraction()

	remaining := generic.One.Sub(upfront)
	equity := remaining.Mul(split)
	deferred := remaining.Mul(generic.One.Sub(split))

	return Breakdown{
		TotalProjectValue: total,
		RemainingFraction: remaining,
		UpfrontFraction:   upfront,
		EquityFraction:    equity,
		DeferredFraction:  deferred,
		UpfrontAmount:     upfront.Mul(total),
		EquityAmount:      equity.Mul(total),
		DeferredAmount:    deferred.Mul(total),
	}
}

// Sum returns upfront + equity + deferred, which equals TotalProjectValue.
func (b Breakdown) Sum() decimal.Decimal {
	return b.UpfrontAmount.Add(b.EquityAmount).Add(b.DeferredAmount)
}
