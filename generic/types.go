/*
Package generic provides the primitives shared by the sprint engine packages.

PURPOSE:
  Domain-agnostic types used by both the compensation calculator and the
  sprint schedule model: calendar dates, inclusive periods, decimal helpers
  for money and fractions, and the error taxonomy.

KEY CONCEPTS IN THIS FILE (types.go):
  - Decimal helpers: float64 input is converted once at the edge, all
    arithmetic after that is exact decimal.Decimal
  - Clamp: guardrail bounds are enforced by clamping, not rejection
  - Percent: whole-percent rendering used by exports

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal so amounts partition the total exactly
  2. Values, not errors: out-of-range numbers are clamped or floored
  3. No I/O: nothing in this package logs, stores or sends

SEE ALSO:
  - time.go: TimePoint and date parsing
  - period.go: Inclusive date ranges and business-day counting
  - errors.go: Sentinel and structured errors
*/
package generic

import (
	"math"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type SprintID string
type MilestoneID string

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

var (
	Hundred = decimal.NewFromInt(100)
	One     = decimal.NewFromInt(1)
)

// DecimalFromFloat converts f, reporting false for NaN and infinities, which
// decimal cannot represent.
func DecimalFromFloat(f float64) (decimal.Decimal, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero, false
	}
	return decimal.NewFromFloat(f), true
}

// MustParseDecimal returns zero for unparseable input.
func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi decimal.Decimal) decimal.Decimal {
	if v.LessThan(lo) {
		return lo
	}
	if v.GreaterThan(hi) {
		return hi
	}
	return v
}

// Percent renders a fraction as a whole percent, rounding half away from zero.
func Percent(fraction decimal.Decimal) int64 {
	return fraction.Mul(Hundred).Round(0).IntPart()
}

// ApproxEqual compares with an absolute tolerance.
func ApproxEqual(a, b, tolerance decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}
