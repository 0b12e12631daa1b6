package quotations

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates no quotation matches the given id or token.
	ErrNotFound = errors.New("quotation not found")
	// ErrConflict indicates a quotation_number or access_token collision.
	ErrConflict = errors.New("quotation conflicts with an existing record")
	// ErrInvalidTransition is the base error for workflow-precondition
	// violations. Callers must re-fetch current state before retrying.
	ErrInvalidTransition = errors.New("operation not allowed in current status")

	// ErrLockedForEditing is returned when editing a quotation that has been
	// approved or sent; the amend-and-send operation is the only edit path.
	ErrLockedForEditing = fmt.Errorf("%w: quotation is locked for editing, use amend and send", ErrInvalidTransition)
	// ErrAlreadyApproved is returned when approving an already approved or
	// sent quotation.
	ErrAlreadyApproved = fmt.Errorf("%w: quotation has already been approved", ErrInvalidTransition)
	// ErrNotReady is returned for customer actions on a quotation that has
	// not been sent.
	ErrNotReady = fmt.Errorf("%w: quotation is not ready for a customer response", ErrInvalidTransition)
	// ErrAlreadyResponded is returned when the customer has already responded
	// to the current sent version.
	ErrAlreadyResponded = fmt.Errorf("%w: a response has already been recorded for this quotation", ErrInvalidTransition)
)

// transitionError reports a generic precondition failure for op from status.
func transitionError(op Operation, status Status) error {
	return fmt.Errorf("%w: cannot %s a %s quotation", ErrInvalidTransition, strings.ReplaceAll(string(op), "_", " "), status)
}

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
