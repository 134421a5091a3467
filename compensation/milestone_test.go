package compensation_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/generic"
)

func launch(multiplier string) compensation.MilestoneInput {
	return compensation.MilestoneInput{Summary: "Launch", Multiplier: dec(multiplier), Date: "2025-01-01"}
}

// =============================================================================
// ADD / VALIDATION TESTS
// =============================================================================

func TestLedger_Add_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		in      compensation.MilestoneInput
		field   string
		message string
	}{
		{"empty summary", compensation.MilestoneInput{Summary: "", Multiplier: dec("1"), Date: "2025-01-01"}, "summary", "summary required"},
		{"whitespace summary", compensation.MilestoneInput{Summary: "   ", Multiplier: dec("1"), Date: "2025-01-01"}, "summary", "summary required"},
		{"zero multiplier", launch("0"), "multiplier", "multiplier must be > 0"},
		{"negative multiplier", launch("-2"), "multiplier", "multiplier must be > 0"},
		{"bad date", compensation.MilestoneInput{Summary: "Launch", Multiplier: dec("2"), Date: "not-a-date"}, "date", "valid date required"},
		{"empty date", compensation.MilestoneInput{Summary: "Launch", Multiplier: dec("2"), Date: ""}, "date", "valid date required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := compensation.NewLedger()
			_, err := l.Add(tt.in)

			require.Error(t, err)
			assert.True(t, errors.Is(err, generic.ErrValidation))
			var ve *generic.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
			assert.Equal(t, tt.message, ve.Message)
			assert.Equal(t, 0, l.Len(), "rejected milestone must not be stored")
		})
	}
}

func TestLedger_Add_AppendsInInsertionOrder(t *testing.T) {
	l := compensation.NewLedger()

	late, err := l.Add(compensation.MilestoneInput{Summary: "Series A", Multiplier: dec("3"), Date: "2026-06-01"})
	require.NoError(t, err)
	early, err := l.Add(compensation.MilestoneInput{Summary: "Beta", Multiplier: dec("1.5"), Date: "01/15/2025"})
	require.NoError(t, err)

	got := l.Milestones()
	require.Len(t, got, 2)
	assert.Equal(t, late.ID, got[0].ID, "no date sort")
	assert.Equal(t, early.ID, got[1].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
	assert.NotEmpty(t, got[0].ID)
}

func TestLedger_Remove(t *testing.T) {
	l := compensation.NewLedger()
	a, _ := l.Add(launch("1"))
	b, _ := l.Add(launch("2"))

	l.Remove("does-not-exist")
	assert.Equal(t, 2, l.Len())

	l.Remove(a.ID)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, b.ID, l.Milestones()[0].ID)
}

func TestLedger_UpdateField_IsPermissive(t *testing.T) {
	l := compensation.NewLedger()
	m, err := l.Add(launch("2"))
	require.NoError(t, err)

	// WHEN: The user clears fields mid-edit
	assert.True(t, l.UpdateField(m.ID, compensation.FieldSummary, ""))
	assert.True(t, l.UpdateField(m.ID, compensation.FieldMultiplier, ""))
	assert.True(t, l.UpdateField(m.ID, compensation.FieldDate, "next week"))

	// THEN: Values are stored as typed
	got, ok := l.Get(m.ID)
	require.True(t, ok)
	assert.Equal(t, "", got.Summary)
	assert.False(t, got.Multiplier.Valid)
	assert.Equal(t, "next week", got.Date)

	// AND: The save path catches it
	assert.ErrorIs(t, l.Validate(), generic.ErrValidation)

	// Unknown ids and fields are reported
	assert.False(t, l.UpdateField("missing", compensation.FieldSummary, "x"))
	assert.False(t, l.UpdateField(m.ID, compensation.Field("colour"), "x"))
}

// =============================================================================
// TOTAL MULTIPLIER / PAYOUT TESTS
// =============================================================================

func TestLedger_TotalMultiplier_SkipsNonPositive(t *testing.T) {
	l := compensation.NewLedgerFrom([]compensation.Milestone{
		{ID: "a", Summary: "A", Multiplier: decimal.NewNullDecimal(dec("2")), Date: "2025-01-01"},
		{ID: "b", Summary: "B", Multiplier: decimal.NewNullDecimal(dec("0")), Date: "2025-01-01"},
		{ID: "c", Summary: "C", Multiplier: decimal.NewNullDecimal(dec("-1")), Date: "2025-01-01"},
		{ID: "d", Summary: "D", Date: "2025-01-01"},
		{ID: "e", Summary: "E", Multiplier: decimal.NewNullDecimal(dec("1.25")), Date: "2025-01-01"},
	})

	assertDecimal(t, "3.25", l.TotalMultiplier())
}

func TestPayoutFor_Example(t *testing.T) {
	// GIVEN: 4000 / 1500 / 1500 and a 2x milestone
	b := examplePlan().Compute()
	l := compensation.NewLedger()
	m, err := l.Add(launch("2"))
	require.NoError(t, err)

	// WHEN
	p, ok := compensation.PayoutFor(m, b)

	// THEN
	require.True(t, ok)
	assertDecimal(t, "3000", p.DeferredPayout)
	assertDecimal(t, "3000", p.EquityPayout)
	assertDecimal(t, "10000", p.TotalCost)
}

func TestPayoutFor_MissingMultiplier(t *testing.T) {
	m := compensation.Milestone{ID: "x", Summary: "Imported", Date: "2025-01-01"}
	_, ok := compensation.PayoutFor(m, examplePlan().Compute())
	assert.False(t, ok)
}

func TestPayoutFor_ZeroMultiplier(t *testing.T) {
	m := compensation.Milestone{ID: "x", Summary: "Legacy", Multiplier: decimal.NewNullDecimal(decimal.Zero)}
	p, ok := compensation.PayoutFor(m, examplePlan().Compute())

	require.True(t, ok)
	assert.True(t, p.DeferredPayout.IsZero())
	assert.True(t, p.EquityPayout.IsZero())
	assertDecimal(t, "4000", p.TotalCost)
}

func TestLedger_Payouts_FollowsCurrentPlan(t *testing.T) {
	l := compensation.NewLedger()
	_, err := l.Add(launch("1"))
	require.NoError(t, err)

	before := l.Payouts(examplePlan().Compute())
	after := l.Payouts(examplePlan().WithTotalProjectValue(dec("20000")).Compute())

	require.Len(t, before, 1)
	require.Len(t, after, 1)
	assertDecimal(t, "1500", before[0].Payout.DeferredPayout)
	assertDecimal(t, "3000", after[0].Payout.DeferredPayout)
	assert.True(t, after[0].Available)
}
