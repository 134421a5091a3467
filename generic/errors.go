/*
errors.go - Centralized error types for the sprint engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages return these as values; the api package maps them to
  HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - Milestone, sprint and daily-update input rules
  2. Import errors - A CSV file that could not be read at all
  3. Lookup errors - Missing sprints

  Out-of-range fractions are NOT errors. They are clamped.

USAGE:
  if errors.Is(err, generic.ErrValidation) {
      var ve *generic.ValidationError
      errors.As(err, &ve)
      // ve.Field, ve.Message
  }

SEE ALSO:
  - compensation/milestone.go: Milestone validation
  - compensation/csv.go: Import errors
  - api/handlers.go: Status mapping
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrSprintNotFound is returned when a referenced sprint doesn't exist.
	ErrSprintNotFound = errors.New("sprint not found")

	// ErrEmptyImport is returned when a CSV import contains nothing the
	// importer recognises.
	ErrEmptyImport = errors.New("import file is empty or unrecognised")

	// ErrUnreadableImport is returned when the import source cannot be read.
	ErrUnreadableImport = errors.New("import file could not be read")

	// ErrInvalidRecipients is returned when an email recipient list is empty
	// or contains a malformed address.
	ErrInvalidRecipients = errors.New("invalid recipients")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the rejected field and the user-facing message.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// RecipientError reports the first address that failed to parse.
type RecipientError struct {
	Address string
	Reason  string
}

func (e *RecipientError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("invalid recipients: %s", e.Reason)
	}
	return fmt.Sprintf("invalid recipient %q: %s", e.Address, e.Reason)
}

func (e *RecipientError) Unwrap() error {
	return ErrInvalidRecipients
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrEmptyImport) ||
		errors.Is(err, ErrInvalidRecipients)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSprintNotFound)
}
