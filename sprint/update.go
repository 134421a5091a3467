package sprint

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/warp/sprint-engine/generic"
)

// Link is a labelled URL attached to a daily update.
type Link struct {
	URL   string `json:"url"`
	Label string `json:"label"`
}

// Attachment points at a file already uploaded to blob storage. The upload
// itself happens elsewhere.
type Attachment struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	ContentType string `json:"content_type,omitempty"`
	Size        int64  `json:"size,omitempty"`
}

// DailyUpdate is one day's progress note for a sprint.
type DailyUpdate struct {
	ID          string
	SprintID    generic.SprintID
	SprintDay   int
	Frame       *string
	Body        string
	Links       []Link
	Attachments []Attachment
	CreatedAt   time.Time
}

// Validate checks the update against the sprint length.
func (u DailyUpdate) Validate(totalDays int) error {
	if totalDays < 1 {
		totalDays = 1
	}
	if u.SprintDay < 1 || u.SprintDay > totalDays {
		return generic.NewValidationError("sprint_day", fmt.Sprintf("sprint day must be between 1 and %d", totalDays))
	}
	if strings.TrimSpace(u.Body) == "" {
		return generic.NewValidationError("body", "body required")
	}
	for _, l := range u.Links {
		if !isHTTPURL(l.URL) {
			return generic.NewValidationError("links", "link url must be http(s)")
		}
	}
	for _, a := range u.Attachments {
		if strings.TrimSpace(a.Name) == "" || !isHTTPURL(a.URL) {
			return generic.NewValidationError("attachments", "attachment needs a name and url")
		}
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
