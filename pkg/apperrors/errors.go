package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLastAdmin          = errors.New("cannot remove last admin")
)

// ValidationError carries the hard failures and soft warnings produced when a
// draft is checked before approval. Missing fields block the operation,
// warnings are surfaced to the reviewer but do not.
type ValidationError struct {
	Missing  []string
	Warnings []string
}

func (e *ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: missing %s", strings.Join(e.Missing, ", "))
}

// DependencyError marks a degraded external dependency. Callers treat it as
// non-fatal and continue with whatever results remain.
type DependencyError struct {
	Op    string
	Cause error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency degraded during %s: %v", e.Op, e.Cause)
}

func (e *DependencyError) Unwrap() error {
	return e.Cause
}

// TransactionError wraps a failure inside a multi-statement write whose
// transaction has been rolled back.
type TransactionError struct {
	Op    string
	Cause error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction failed during %s: %v", e.Op, e.Cause)
}

func (e *TransactionError) Unwrap() error {
	return e.Cause
}

// UnresolvableReferenceError reports a draft child record that names a parent
// the draft does not contain.
type UnresolvableReferenceError struct {
	Procedure string
	Provider  string
}

func (e *UnresolvableReferenceError) Error() string {
	return fmt.Sprintf("procedure %q references unknown provider %q", e.Procedure, e.Provider)
}
