package compensation

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/generic"
)

// =============================================================================
// MILESTONE
// =============================================================================

// Milestone is one row of the ledger. Multiplier is invalid (Valid == false)
// when the user typed something that is not a number, or an import carried a
// placeholder; such rows have no payout.
type Milestone struct {
	ID         generic.MilestoneID
	Summary    string
	Multiplier decimal.NullDecimal
	Date       string
}

// MilestoneInput is what a user submits to add a milestone.
type MilestoneInput struct {
	Summary    string
	Multiplier decimal.Decimal
	Date       string
}

// Field names accepted by Ledger.UpdateField.
type Field string

const (
	FieldSummary    Field = "summary"
	FieldMultiplier Field = "multiplier"
	FieldDate       Field = "date"
)

// ValidateMilestoneInput applies the rules for adding or persisting a
// milestone.
func ValidateMilestoneInput(in MilestoneInput) error {
	if strings.TrimSpace(in.Summary) == "" {
		return generic.NewValidationError(string(FieldSummary), "summary required")
	}
	if !in.Multiplier.IsPositive() {
		return generic.NewValidationError(string(FieldMultiplier), "multiplier must be > 0")
	}
	if _, ok := generic.ParseDate(in.Date); !ok {
		return generic.NewValidationError(string(FieldDate), "valid date required")
	}
	return nil
}

// Validate re-checks a stored milestone against the add rules. Inline edits
// are not validated, so this runs on the save path.
func (m Milestone) Validate() error {
	if !m.Multiplier.Valid {
		return generic.NewValidationError(string(FieldMultiplier), "multiplier must be > 0")
	}
	return ValidateMilestoneInput(MilestoneInput{
		Summary:    m.Summary,
		Multiplier: m.Multiplier.Decimal,
		Date:       m.Date,
	})
}

// =============================================================================
// PAYOUT
// =============================================================================

type Payout struct {
	DeferredPayout decimal.Decimal
	EquityPayout   decimal.Decimal
	TotalCost      decimal.Decimal
}

// PayoutFor prices a milestone against the current breakdown. It reports
// false when the multiplier is not a number.
func PayoutFor(m Milestone, b Breakdown) (Payout, bool) {
	if !m.Multiplier.Valid {
		return Payout{}, false
	}
	mult := m.Multiplier.Decimal
	deferred := b.DeferredAmount.Mul(mult)
	equity := b.EquityAmount.Mul(mult)
	return Payout{
		DeferredPayout: deferred,
		EquityPayout:   equity,
		TotalCost:      b.UpfrontAmount.Add(equity).Add(deferred),
	}, true
}

// =============================================================================
// LEDGER
// =============================================================================

// Ledger is the ordered milestone list of a plan. Order is insertion order and
// is never sorted.
type Ledger struct {
	milestones []Milestone
	newID      func() generic.MilestoneID
}

func NewLedger() *Ledger {
	return &Ledger{newID: newMilestoneID}
}

// NewLedgerFrom wraps already-stored milestones, keeping their ids and order.
func NewLedgerFrom(milestones []Milestone) *Ledger {
	l := NewLedger()
	l.milestones = append([]Milestone(nil), milestones...)
	return l
}

// newMilestoneID returns a UUIDv7, which is ordered by creation time.
func newMilestoneID() generic.MilestoneID {
	return generic.MilestoneID(uuid.Must(uuid.NewV7()).String())
}

// Add validates the input and appends a new milestone.
func (l *Ledger) Add(in MilestoneInput) (Milestone, error) {
	if err := ValidateMilestoneInput(in); err != nil {
		return Milestone{}, err
	}
	m := Milestone{
		ID:         l.newID(),
		Summary:    strings.TrimSpace(in.Summary),
		Multiplier: decimal.NewNullDecimal(in.Multiplier),
		Date:       strings.TrimSpace(in.Date),
	}
	l.milestones = append(l.milestones, m)
	return m, nil
}

// Remove deletes by id. An unknown id is a no-op.
func (l *Ledger) Remove(id generic.MilestoneID) {
	for i, m := range l.milestones {
		if m.ID == id {
			l.milestones = append(l.milestones[:i], l.milestones[i+1:]...)
			return
		}
	}
}

// UpdateField stores value as typed, without validation. A multiplier that
// does not parse is kept as "no number". It reports whether the id and field
// were found.
func (l *Ledger) UpdateField(id generic.MilestoneID, field Field, value string) bool {
	for i := range l.milestones {
		if l.milestones[i].ID != id {
			continue
		}
		switch field {
		case FieldSummary:
			l.milestones[i].Summary = value
		case FieldDate:
			l.milestones[i].Date = value
		case FieldMultiplier:
			d, err := decimal.NewFromString(strings.TrimSpace(value))
			l.milestones[i].Multiplier = decimal.NullDecimal{Decimal: d, Valid: err == nil}
		default:
			return false
		}
		return true
	}
	return false
}

// Milestones returns a copy in display order.
func (l *Ledger) Milestones() []Milestone {
	return append([]Milestone(nil), l.milestones...)
}

func (l *Ledger) Len() int { return len(l.milestones) }

// Get looks up a milestone by id.
func (l *Ledger) Get(id generic.MilestoneID) (Milestone, bool) {
	for _, m := range l.milestones {
		if m.ID == id {
			return m, true
		}
	}
	return Milestone{}, false
}

// TotalMultiplier sums the positive multipliers. Zero, negative and missing
// multipliers from legacy imports are skipped.
func (l *Ledger) TotalMultiplier() decimal.Decimal {
	total := decimal.Zero
	for _, m := range l.milestones {
		if m.Multiplier.Valid && m.Multiplier.Decimal.IsPositive() {
			total = total.Add(m.Multiplier.Decimal)
		}
	}
	return total
}

// Validate checks every milestone and returns the first failure.
func (l *Ledger) Validate() error {
	for _, m := range l.milestones {
		if err := m.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// MilestonePayout pairs a milestone with its price. Available is false when
// the multiplier is not a number.
type MilestonePayout struct {
	Milestone Milestone
	Payout    Payout
	Available bool
}

// Payouts prices every milestone against b, in ledger order.
func (l *Ledger) Payouts(b Breakdown) []MilestonePayout {
	out := make([]MilestonePayout, 0, len(l.milestones))
	for _, m := range l.milestones {
		p, ok := PayoutFor(m, b)
		out = append(out, MilestonePayout{Milestone: m, Payout: p, Available: ok})
	}
	return out
}
