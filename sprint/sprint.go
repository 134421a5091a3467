package sprint

import (
	"strings"
	"time"

	"github.com/warp/sprint-engine/generic"
)

// DefaultWeeks is the standard two-week engagement.
const DefaultWeeks = 2

// Sprint is a client engagement.
type Sprint struct {
	ID         generic.SprintID
	Title      string
	ClientName string
	StartDate  *time.Time
	Weeks      int
	CreatedAt  time.Time
}

// Window returns the sprint's schedule.
func (s Sprint) Window() Window {
	w := Window{Weeks: s.Weeks}
	if s.StartDate != nil {
		tp := generic.TimePointOf(*s.StartDate)
		w.StartDate = &tp
	}
	return w
}

// Validate checks the fields a sprint needs before it is stored.
func (s Sprint) Validate() error {
	if strings.TrimSpace(string(s.ID)) == "" {
		return generic.NewValidationError("id", "id required")
	}
	if strings.TrimSpace(s.Title) == "" {
		return generic.NewValidationError("title", "title required")
	}
	if s.Weeks < 1 {
		return generic.NewValidationError("weeks", "weeks must be >= 1")
	}
	return nil
}
