/*
Package sprint models client sprints, their schedule window and daily updates.

PURPOSE:
  A sprint is a fixed-length engagement measured in business weeks. Each
  business day the team posts a daily update tagged with the sprint day it
  belongs to. This package defines those records and suggests which sprint
  day "today" is.

KEY CONCEPTS IN THIS FILE (schedule.go):
  - Window: start date + length in weeks (5 business days each)
  - BusinessDay: 1-based business-day index of a date within a sprint

BUSINESS DAYS:
  Monday through Friday count; Saturday and Sunday do not. There is no
  holiday calendar: a sprint that spans a public holiday still counts it.

  The suggested day is only a default for the daily-update form. The user
  can always pick another day.

SEE ALSO:
  - generic/period.go: Day-by-day business-day counting
  - update.go: Daily update validation
*/
package sprint

import (
	"time"

	"github.com/warp/sprint-engine/generic"
)

// DaysPerWeek is the number of business days in a sprint week.
const DaysPerWeek = 5

// Window is the schedule of a sprint. StartDate is nil until the sprint is
// scheduled.
type Window struct {
	StartDate *generic.TimePoint
	Weeks     int
}

// TotalDays is the sprint length in business days.
func (w Window) TotalDays() int {
	return w.Weeks * DaysPerWeek
}

// DefaultSprintDay suggests the sprint day for an update written at now.
func (w Window) DefaultSprintDay(now time.Time) int {
	return BusinessDay(w.StartDate, generic.TimePointOf(now), w.TotalDays())
}

// BusinessDay counts the business days from start through now, both
// inclusive, and clamps the count to [1, totalDays]. A missing start, a now
// before start, or a degenerate totalDays all yield 1.
func BusinessDay(start *generic.TimePoint, now generic.TimePoint, totalDays int) int {
	if start == nil || totalDays < 1 {
		return 1
	}
	count := generic.Period{Start: *start, End: now}.BusinessDaysUpTo(totalDays)
	if count > totalDays {
		count = totalDays
	}
	if count < 1 {
		count = 1
	}
	return count
}
