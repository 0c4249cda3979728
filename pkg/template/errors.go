// Package template holds the deterministic chat-message grammar: strict
// parsers for doctor and scheduler replies and renderers for every outbound
// body the bot posts. Parsers are pure functions and never touch storage.
package template

import "fmt"

// Parse failure reasons. These are stable identifiers quoted back to the
// chat room, not free-form text.
const (
	ReasonEmptyMessage     = "empty_message"
	ReasonUnknownField     = "unknown_field"
	ReasonDuplicateField   = "duplicate_field"
	ReasonInvalidCaseLine  = "invalid_case_line"
	ReasonCaseIDMismatch   = "case_id_mismatch"
	ReasonInvalidDecision  = "invalid_decision_value"
	ReasonInvalidSupport   = "invalid_support_flag_value"
	ReasonSupportForDeny   = "invalid_support_flag_for_decision"
	ReasonInvalidStatus    = "invalid_status_value"
	ReasonInvalidConfirmed = "invalid_confirmed_datetime"
)

// MissingFieldReason builds the missing_<field>_line reason for a required
// template line.
func MissingFieldReason(field string) string {
	return fmt.Sprintf("missing_%s_line", field)
}

// ParseError is a typed template-grammar violation. Reason is one of the
// Reason* constants or a MissingFieldReason value.
type ParseError struct {
	Reason string
	Detail string
}

func (e *ParseError) Error() string {
	if e.Detail == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func parseErr(reason, detail string) *ParseError {
	return &ParseError{Reason: reason, Detail: detail}
}
