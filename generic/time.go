package generic

import (
	"strings"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date used for sprint scheduling
// =============================================================================

// TimePoint is a calendar day. Time-of-day is dropped on construction so two
// points on the same date always compare equal.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// TimePointOf keeps the calendar date of t as seen in t's own location.
func TimePointOf(t time.Time) TimePoint {
	return NewTimePoint(t.Year(), t.Month(), t.Day())
}

func Today() TimePoint {
	return TimePointOf(time.Now())
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// Properties
func (tp TimePoint) Weekday() time.Weekday { return tp.Time.Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

// IsWorkday reports Monday through Friday. There is no holiday calendar.
func (tp TimePoint) IsWorkday() bool {
	wd := tp.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (tp TimePoint) String() string { return tp.Time.Format(DateLayout) }

// =============================================================================
// DATE PARSING
// =============================================================================

// DateLayout is the canonical wire format for dates.
const DateLayout = "2006-01-02"

var dateLayouts = []string{
	DateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"Jan 2, 2006",
	"January 2, 2006",
}

// ParseDate accepts the date shapes a browser date input, a spreadsheet or a
// hand-typed form produce. It reports false when none match.
func ParseDate(s string) (TimePoint, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return TimePoint{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return TimePointOf(t), true
		}
	}
	return TimePoint{}, false
}

// MustParseDate is for tests and fixtures.
func MustParseDate(s string) TimePoint {
	tp, ok := ParseDate(s)
	if !ok {
		panic("generic: invalid date " + s)
	}
	return tp
}

func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}
