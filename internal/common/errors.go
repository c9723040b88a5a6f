// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Batch errors. ErrSourceUnavailable is fatal for a whole run: nothing
	// can proceed without rules or transactions. Retry policy belongs to the
	// caller, not the engine.
	ErrSourceUnavailable   = errors.New("source unavailable")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNoTransactions      = errors.New("no transactions in scope")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError indicates a malformed rule: invalid regex, empty pattern,
// or a missing required field for its type. Raised at rule-authoring time;
// the engine also re-validates fetched rules and skips offenders for the run.
type ValidationError struct {
	Err    error
	RuleID int64
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("rule %d failed validation: %v", e.RuleID, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError wraps a rule validation failure.
func NewValidationError(ruleID int64, err error) error {
	return &ValidationError{RuleID: ruleID, Err: err}
}

// EvaluationError indicates a matcher failed at evaluation time. Non-fatal:
// the offending rule is skipped for that transaction and evaluation continues
// with the next rule in priority order.
type EvaluationError struct {
	Err           error
	TransactionID string
	RuleID        int64
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("rule %d failed evaluating transaction %s: %v", e.RuleID, e.TransactionID, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error { return e.Err }

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{UserMessage: userMessage, Err: err}
}
