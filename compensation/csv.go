package compensation

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/warp/sprint-engine/generic"
)

// =============================================================================
// CSV LAYOUT
// =============================================================================
//
//   Field,Value
//   Total Project Value,"$10,000.00"
//   Upfront Percent,40%
//   ...
//   Selected Sprint,<sprint>
//   <blank>
//   Milestones,Summary,Date,Multiplier,Upfront,Equity,Deferred Payout,Total Project Cost
//   ,Launch,2025-03-01,2,"$4,000.00","$3,000.00","$3,000.00","$10,000.00"
//
// The first column of milestone rows is always empty.

const (
	LabelTotalProjectValue = "Total Project Value"
	LabelUpfrontPercent    = "Upfront Percent"
	LabelUpfrontAmount     = "Upfront Amount"
	LabelEquityPercent     = "Equity Percent"
	LabelEquityAmount      = "Equity Amount"
	LabelDeferredPercent   = "Deferred Percent"
	LabelDeferredAmount    = "Deferred Amount"
	LabelMissOutcome       = "Milestone Miss Outcome"
	LabelSelectedSprint    = "Selected Sprint"
)

var milestoneHeader = []string{
	"Milestones", "Summary", "Date", "Multiplier",
	"Upfront", "Equity", "Deferred Payout", "Total Project Cost",
}

// Placeholder is written for cells that have no value.
const Placeholder = "—"

// legacyPlaceholder is an em dash that was UTF-8 encoded and then decoded as
// Windows-1252 by an older exporter. It is only ever read, never written.
const legacyPlaceholder = "â€”"

func isPlaceholder(s string) bool {
	return s == Placeholder || s == legacyPlaceholder
}

// State is everything a CSV export captures.
type State struct {
	Plan           Plan
	Milestones     []Milestone
	SelectedSprint string
}

// =============================================================================
// EXPORT
// =============================================================================

// ExportCSV writes s in the two-region worksheet layout.
func ExportCSV(w io.Writer, s State) error {
	b := s.Plan.Compute()
	cw := csv.NewWriter(w)

	rows := [][]string{
		{"Field", "Value"},
		{LabelTotalProjectValue, FormatCurrency(b.TotalProjectValue)},
		{LabelUpfrontPercent, FormatPercent(b.UpfrontFraction)},
		{LabelUpfrontAmount, FormatCurrency(b.UpfrontAmount)},
		{LabelEquityPercent, FormatPercent(b.EquityFraction)},
		{LabelEquityAmount, FormatCurrency(b.EquityAmount)},
		{LabelDeferredPercent, FormatPercent(b.DeferredFraction)},
		{LabelDeferredAmount, FormatCurrency(b.DeferredAmount)},
		{LabelMissOutcome, s.Plan.MissOutcome().Label()},
		{LabelSelectedSprint, s.SelectedSprint},
		{},
		milestoneHeader,
	}

	for _, m := range s.Milestones {
		multiplier := Placeholder
		if m.Multiplier.Valid {
			multiplier = m.Multiplier.Decimal.String()
		}
		summary := m.Summary
		if strings.TrimSpace(summary) == "" {
			summary = Placeholder
		}
		row := []string{"", summary, m.Date, multiplier, FormatCurrency(b.UpfrontAmount)}
		if p, ok := PayoutFor(m, b); ok {
			row = append(row,
				FormatCurrency(p.EquityPayout),
				FormatCurrency(p.DeferredPayout),
				FormatCurrency(p.TotalCost),
			)
		} else {
			row = append(row, Placeholder, Placeholder, Placeholder)
		}
		rows = append(rows, row)
	}

	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// FormatCurrency renders a dollar amount with thousands separators and cents.
// It works on the decimal digits, so amounts beyond float64 and int64 range
// keep their exact value.
func FormatCurrency(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}
	fixed := d.StringFixed(2)
	cents := fixed[len(fixed)-2:]
	return "$" + sign + humanize.BigComma(d.Truncate(0).BigInt()) + "." + cents
}

// FormatPercent renders a fraction as a whole percent, e.g. "40%".
func FormatPercent(fraction decimal.Decimal) string {
	return fmt.Sprintf("%d%%", generic.Percent(fraction))
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportResult is the outcome of a best-effort import.
type ImportResult struct {
	State State

	// Applied lists the field labels that parsed and were applied.
	Applied []string

	MilestonesImported int
}

// ImportCSV reads a previously exported worksheet on top of base. Any field
// that fails to parse or falls outside the guardrails leaves base's value in
// place. Only an unreadable source or a file with nothing recognisable is an
// error.
func ImportCSV(r io.Reader, base State) (ImportResult, error) {
	result := ImportResult{State: base}

	data, err := io.ReadAll(r)
	if err != nil {
		return result, fmt.Errorf("%w: %v", generic.ErrUnreadableImport, err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(data)) == 0 {
		return result, generic.ErrEmptyImport
	}

	fields, milestoneRows, sawTable := splitRegions(readRecords(data))
	if len(fields) == 0 && !sawTable {
		return result, generic.ErrEmptyImport
	}

	plan := base.Plan
	applied := func(label string) { result.Applied = append(result.Applied, label) }

	if v, ok := fields[LabelTotalProjectValue]; ok {
		if d, ok := parseCurrency(v); ok && d.IsPositive() {
			plan = plan.WithTotalProjectValue(d)
			applied(LabelTotalProjectValue)
		}
	}

	if v, ok := fields[LabelUpfrontPercent]; ok {
		if f, ok := parsePercent(v); ok && inRange(f, UpfrontMin, UpfrontMax) {
			plan = plan.WithUpfrontFraction(f)
			applied(LabelUpfrontPercent)
		}
	}

	eqRaw, hasEq := fields[LabelEquityPercent]
	defRaw, hasDef := fields[LabelDeferredPercent]
	if hasEq && hasDef {
		eq, okEq := parsePercent(eqRaw)
		def, okDef := parsePercent(defRaw)
		if okEq && okDef && eq.Add(def).IsPositive() {
			split := eq.Div(eq.Add(def))
			if inRange(split, EquityMin, EquityMax) {
				plan = plan.WithEquitySplitFraction(split)
				applied(LabelEquityPercent)
			}
		}
	}

	if v, ok := fields[LabelMissOutcome]; ok {
		if o, ok := ParseMissOutcome(v); ok {
			plan = plan.WithMissOutcome(o)
			applied(LabelMissOutcome)
		}
	}

	if v, ok := fields[LabelSelectedSprint]; ok && v != "" && !isPlaceholder(v) {
		result.State.SelectedSprint = v
		applied(LabelSelectedSprint)
	}

	ledger := NewLedger()
	for _, row := range milestoneRows {
		if m, ok := parseMilestoneRow(row); ok {
			m.ID = ledger.newID()
			ledger.milestones = append(ledger.milestones, m)
		}
	}
	if ledger.Len() > 0 {
		result.State.Milestones = ledger.Milestones()
		result.MilestonesImported = ledger.Len()
	}

	result.State.Plan = plan
	return result, nil
}

// readRecords parses the whole blob with a quote-aware reader. When the file
// is malformed it falls back to parsing each line on its own so one bad line
// does not sink the rest.
func readRecords(data []byte) [][]string {
	if records, err := newReader(bytes.NewReader(data)).ReadAll(); err == nil {
		return records
	}

	var records [][]string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := newReader(strings.NewReader(line)).Read()
		if err != nil {
			rec = strings.Split(line, ",")
		}
		records = append(records, rec)
	}
	return records
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	return cr
}

// splitRegions separates key/value rows from the milestone table rows.
func splitRegions(records [][]string) (map[string]string, [][]string, bool) {
	fields := make(map[string]string)
	var rows [][]string
	inTable := false

	for _, rec := range records {
		if inTable {
			if !isBlankRecord(rec) {
				rows = append(rows, rec)
			}
			continue
		}
		if isMilestoneHeader(rec) {
			inTable = true
			continue
		}
		if len(rec) < 2 {
			continue
		}
		key := strings.TrimSpace(rec[0])
		if key == "" {
			continue
		}
		value := rec[1]
		if len(rec) > 2 && isCurrencyLabel(key) {
			// A hand-typed $10,000 without quotes spills into extra cells.
			value = strings.Join(rec[1:], ",")
		}
		fields[key] = strings.TrimSpace(value)
	}
	return fields, rows, inTable
}

func isCurrencyLabel(key string) bool {
	switch key {
	case LabelTotalProjectValue, LabelUpfrontAmount, LabelEquityAmount, LabelDeferredAmount:
		return true
	}
	return false
}

func isMilestoneHeader(rec []string) bool {
	line := strings.ToLower(strings.Join(rec, ","))
	return strings.Contains(line, "milestones") && strings.Contains(line, "summary")
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parseMilestoneRow(rec []string) (Milestone, bool) {
	if len(rec) < 4 {
		return Milestone{}, false
	}
	summary := strings.TrimSpace(rec[1])
	if summary == "" || isPlaceholder(summary) {
		return Milestone{}, false
	}
	mult, err := decimal.NewFromString(strings.TrimSpace(rec[3]))
	if err != nil || !mult.IsPositive() {
		return Milestone{}, false
	}
	return Milestone{
		Summary:    summary,
		Multiplier: decimal.NewNullDecimal(mult),
		Date:       strings.TrimSpace(rec[2]),
	}, true
}

func parseCurrency(s string) (decimal.Decimal, bool) {
	s = strings.NewReplacer("$", "", ",", "", " ", "").Replace(s)
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func parsePercent(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d.Div(generic.Hundred), true
}

func inRange(v, lo, hi decimal.Decimal) bool {
	return v.GreaterThanOrEqual(lo) && v.LessThanOrEqual(hi)
}

// IsImportError reports whether err came from ImportCSV rejecting the whole
// file.
func IsImportError(err error) bool {
	return errors.Is(err, generic.ErrEmptyImport) || errors.Is(err, generic.ErrUnreadableImport)
}
