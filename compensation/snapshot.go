package compensation

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/generic"
)

// =============================================================================
// SNAPSHOT - The shape handed to persistence and email
// =============================================================================

// Snapshot is the serialisable form of a saved plan. Numbers are plain JSON
// numbers; the calculator works in decimals and converts at this boundary.
type Snapshot struct {
	SprintID string          `json:"sprintId"`
	Inputs   SnapshotInputs  `json:"inputs"`
	Outputs  SnapshotOutputs `json:"outputs"`
	Label    *string         `json:"label"`
}

type SnapshotInputs struct {
	TotalProjectValue    float64             `json:"totalProjectValue"`
	UpfrontFraction      float64             `json:"upfrontFraction"`
	EquitySplitFraction  float64             `json:"equitySplitFraction"`
	Milestones           []SnapshotMilestone `json:"milestones"`
	MilestoneMissOutcome MissOutcome         `json:"milestoneMissOutcome"`
}

// SnapshotMilestone carries a nil Multiplier for rows whose multiplier is not
// a number.
type SnapshotMilestone struct {
	ID         string   `json:"id"`
	Summary    string   `json:"summary"`
	Multiplier *float64 `json:"multiplier"`
	Date       string   `json:"date"`
}

type SnapshotOutputs struct {
	UpfrontAmount        float64 `json:"upfrontAmount"`
	EquityAmount         float64 `json:"equityAmount"`
	DeferredAmount       float64 `json:"deferredAmount"`
	MilestoneBonusAmount float64 `json:"milestoneBonusAmount"`
	TotalProjectValue    float64 `json:"totalProjectValue"`
}

// MilestoneBonusAmount is the deferred base paid once per unit of multiplier
// across every milestone.
func MilestoneBonusAmount(b Breakdown, l *Ledger) decimal.Decimal {
	return b.DeferredAmount.Mul(l.TotalMultiplier())
}

// NewSnapshot captures s for the given sprint. An empty label is stored as
// null.
func NewSnapshot(sprintID, label string, s State) Snapshot {
	b := s.Plan.Compute()
	ledger := NewLedgerFrom(s.Milestones)

	milestones := make([]SnapshotMilestone, 0, len(s.Milestones))
	for _, m := range s.Milestones {
		sm := SnapshotMilestone{ID: string(m.ID), Summary: m.Summary, Date: m.Date}
		if m.Multiplier.Valid {
			f := m.Multiplier.Decimal.InexactFloat64()
			sm.Multiplier = &f
		}
		milestones = append(milestones, sm)
	}

	snap := Snapshot{
		SprintID: sprintID,
		Inputs: SnapshotInputs{
			TotalProjectValue:    b.TotalProjectValue.InexactFloat64(),
			UpfrontFraction:      b.UpfrontFraction.InexactFloat64(),
			EquitySplitFraction:  s.Plan.EquitySplitFraction().InexactFloat64(),
			Milestones:           milestones,
			MilestoneMissOutcome: s.Plan.MissOutcome(),
		},
		Outputs: SnapshotOutputs{
			UpfrontAmount:        b.UpfrontAmount.InexactFloat64(),
			EquityAmount:         b.EquityAmount.InexactFloat64(),
			DeferredAmount:       b.DeferredAmount.InexactFloat64(),
			MilestoneBonusAmount: MilestoneBonusAmount(b, ledger).InexactFloat64(),
			TotalProjectValue:    b.TotalProjectValue.InexactFloat64(),
		},
	}
	if label = strings.TrimSpace(label); label != "" {
		snap.Label = &label
	}
	return snap
}

// State rebuilds the calculator from the stored inputs. Outputs are ignored;
// they are always recomputed.
func (s Snapshot) State() State {
	plan := NewPlan().
		WithTotalProjectValueFloat(s.Inputs.TotalProjectValue).
		WithUpfrontFractionFloat(s.Inputs.UpfrontFraction).
		WithEquitySplitFractionFloat(s.Inputs.EquitySplitFraction).
		WithMissOutcome(s.Inputs.MilestoneMissOutcome)

	milestones := make([]Milestone, 0, len(s.Inputs.Milestones))
	for _, sm := range s.Inputs.Milestones {
		m := Milestone{
			ID:      generic.MilestoneID(sm.ID),
			Summary: sm.Summary,
			Date:    sm.Date,
		}
		if sm.Multiplier != nil {
			if d, ok := generic.DecimalFromFloat(*sm.Multiplier); ok {
				m.Multiplier = decimal.NewNullDecimal(d)
			}
		}
		if m.ID == "" {
			m.ID = newMilestoneID()
		}
		milestones = append(milestones, m)
	}

	return State{Plan: plan, Milestones: milestones, SelectedSprint: s.SprintID}
}

// SnapshotField is one label/value line of the flattened snapshot.
type SnapshotField struct {
	Label string
	Value string
}

// Fields flattens the snapshot into display lines, in export order.
func (s Snapshot) Fields() []SnapshotField {
	st := s.State()
	b := st.Plan.Compute()

	fields := []SnapshotField{
		{LabelSelectedSprint, s.SprintID},
		{LabelTotalProjectValue, FormatCurrency(b.TotalProjectValue)},
		{LabelUpfrontPercent, FormatPercent(b.UpfrontFraction)},
		{LabelUpfrontAmount, FormatCurrency(b.UpfrontAmount)},
		{LabelEquityPercent, FormatPercent(b.EquityFraction)},
		{LabelEquityAmount, FormatCurrency(b.EquityAmount)},
		{LabelDeferredPercent, FormatPercent(b.DeferredFraction)},
		{LabelDeferredAmount, FormatCurrency(b.DeferredAmount)},
		{LabelMissOutcome, st.Plan.MissOutcome().Label()},
	}
	if s.Label != nil {
		fields = append([]SnapshotField{{"Label", *s.Label}}, fields...)
	}

	for i, m := range st.Milestones {
		value := Placeholder
		if p, ok := PayoutFor(m, b); ok {
			value = fmt.Sprintf("%s on %s, x%s, total cost %s",
				m.Summary, m.Date, m.Multiplier.Decimal.String(), FormatCurrency(p.TotalCost))
		}
		fields = append(fields, SnapshotField{Label: fmt.Sprintf("Milestone %d", i+1), Value: value})
	}
	return fields
}
