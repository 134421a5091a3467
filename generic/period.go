package generic

// =============================================================================
// PERIOD - Inclusive calendar range
// =============================================================================

// Period is the inclusive range [Start, End]. A period whose End is before its
// Start is empty rather than invalid.
type Period struct {
	Start TimePoint
	End   TimePoint
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// IsEmpty reports whether End falls before Start.
func (p Period) IsEmpty() bool {
	return p.End.Before(p.Start)
}

// Days returns all days in the period as a slice of TimePoints.
func (p Period) Days() []TimePoint {
	var days []TimePoint
	current := p.Start
	for current.BeforeOrEqual(p.End) {
		days = append(days, current)
		current = current.AddDays(1)
	}
	return days
}

// BusinessDays counts the Monday-Friday days in the period, walking it one
// calendar day at a time.
func (p Period) BusinessDays() int {
	return p.BusinessDaysUpTo(-1)
}

// BusinessDaysUpTo is BusinessDays that stops walking once limit business
// days have been seen. A negative limit counts the whole period.
func (p Period) BusinessDaysUpTo(limit int) int {
	n := 0
	for d := p.Start; d.BeforeOrEqual(p.End); d = d.AddDays(1) {
		if !d.IsWorkday() {
			continue
		}
		n++
		if limit >= 0 && n >= limit {
			return n
		}
	}
	return n
}

// String returns a string representation of the period.
func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}
