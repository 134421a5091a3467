/*
Package notify sends compensation snapshots to people by email.

PURPOSE:
  The calculator can email the current plan to a client or a partner. This
  package parses the free-text recipient box, renders the snapshot into a
  plain-text message and hands it to a Mailer. Delivery (SMTP, a provider
  API) sits behind the Mailer interface.

RECIPIENTS:
  The recipient box accepts addresses separated by commas, semicolons or
  whitespace. Every address must parse; the first bad one is reported.

SEE ALSO:
  - compensation/snapshot.go: Snapshot.Fields supplies the message lines
  - api/handlers.go: EmailCompensation endpoint
*/
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/warp/sprint-engine/compensation"
	"github.com/warp/sprint-engine/generic"
	"go.uber.org/zap"
)

var recipientSeparators = regexp.MustCompile(`[,;\s]+`)

// ParseRecipients splits, trims and validates a recipient list.
func ParseRecipients(s string) ([]string, error) {
	var out []string
	for _, part := range recipientSeparators.Split(s, -1) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		addr, err := mail.ParseAddress(part)
		if err != nil {
			return nil, &generic.RecipientError{Address: part, Reason: "not an email address"}
		}
		out = append(out, addr.Address)
	}
	if len(out) == 0 {
		return nil, &generic.RecipientError{Reason: "at least one recipient required"}
	}
	return out, nil
}

// Message is a plain-text email.
type Message struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Mailer delivers messages.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewSnapshotMessage renders a snapshot as a label: value list.
func NewSnapshotMessage(from string, to []string, snap compensation.Snapshot) Message {
	subject := "Compensation plan"
	if snap.SprintID != "" {
		subject = fmt.Sprintf("Compensation plan for %s", snap.SprintID)
	}
	if snap.Label != nil {
		subject += " (" + *snap.Label + ")"
	}

	var b strings.Builder
	for _, f := range snap.Fields() {
		fmt.Fprintf(&b, "%s: %s\n", f.Label, f.Value)
	}

	return Message{From: from, To: to, Subject: subject, Body: b.String()}
}

// LogMailer records messages in the log instead of delivering them. It is the
// default when no delivery transport is configured.
type LogMailer struct {
	Logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogMailer{Logger: logger}
}

func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.Logger.Info("email queued",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}
