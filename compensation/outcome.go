package compensation

import "strings"

// MissOutcome describes what happens to the deferred and equity amounts if no
// milestone is hit. It is shown to people; Compute never applies it.
type MissOutcome string

const (
	MissForgiven    MissOutcome = "forgiven"
	MissReduced50   MissOutcome = "reduced-50"
	MissReduced20   MissOutcome = "reduced-20"
	MissStillOwed   MissOutcome = "still-owed"
	MissRenegotiate MissOutcome = "renegotiate"
)

const DefaultMissOutcome = MissStillOwed

// MissOutcomes lists every outcome in display order.
var MissOutcomes = []MissOutcome{
	MissForgiven,
	MissReduced50,
	MissReduced20,
	MissStillOwed,
	MissRenegotiate,
}

var missOutcomeLabels = map[MissOutcome]string{
	MissForgiven:    "Forgiven",
	MissReduced50:   "Reduced to 50%",
	MissReduced20:   "Reduced to 20%",
	MissStillOwed:   "Still owed",
	MissRenegotiate: "Renegotiate",
}

func (o MissOutcome) IsValid() bool {
	_, ok := missOutcomeLabels[o]
	return ok
}

// Label is the human text written to exports and emails.
func (o MissOutcome) Label() string {
	if l, ok := missOutcomeLabels[o]; ok {
		return l
	}
	return string(o)
}

// ParseMissOutcome matches either a label or an enum value, ignoring case and
// surrounding space.
func ParseMissOutcome(s string) (MissOutcome, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", false
	}
	for o, label := range missOutcomeLabels {
		if s == strings.ToLower(label) || s == string(o) {
			return o, true
		}
	}
	return "", false
}
