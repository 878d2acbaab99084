package domain

import (
	"fmt"
	"strings"
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// ValidationError reports required fields missing from an entity. It is
// surfaced to the caller as a field list and never retried.
type ValidationError struct {
	Missing []string
}

func (e ValidationError) Error() string {
	if len(e.Missing) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

func (e ValidationError) Is(target error) bool {
	_, ok := target.(ValidationError)
	if ok {
		return true
	}
	_, ok = target.(*ValidationError)
	return ok
}

var ErrValidation = ValidationError{}

// TransientError marks a leaf-client failure that is safe to retry
// because every forward action is idempotent.
type TransientError struct {
	Op  string
	Err error
}

func (e TransientError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transient failure in %s", e.Op)
	}
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e TransientError) Unwrap() error { return e.Err }

func (e TransientError) Is(target error) bool {
	_, ok := target.(TransientError)
	if ok {
		return true
	}
	_, ok = target.(*TransientError)
	return ok
}

var ErrTransient = TransientError{}

// CompensationError reports that a rollback action itself failed. The
// stores are left in a state that requires manual reconciliation, so
// this is always surfaced, never swallowed.
type CompensationError struct {
	Step string
	Err  error
}

func (e CompensationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("compensation for %s failed", e.Step)
	}
	return fmt.Sprintf("compensation for %s failed: %v", e.Step, e.Err)
}

func (e CompensationError) Unwrap() error { return e.Err }

func (e CompensationError) Is(target error) bool {
	_, ok := target.(CompensationError)
	if ok {
		return true
	}
	_, ok = target.(*CompensationError)
	return ok
}

var ErrCompensation = CompensationError{}

// InvariantError marks a programming-level defect, e.g. deleting an
// asset ref not owned by any field. Fails fast.
type InvariantError struct {
	Msg string
}

func (e InvariantError) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Msg)
}

func (e InvariantError) Is(target error) bool {
	_, ok := target.(InvariantError)
	if ok {
		return true
	}
	_, ok = target.(*InvariantError)
	return ok
}

var ErrInvariant = InvariantError{}

// ConflictError reports that another operation already holds the
// per-entity serialization lock.
type ConflictError struct {
	Resource string
}

func (e ConflictError) Error() string {
	if e.Resource == "" {
		return "operation already in progress"
	}
	return fmt.Sprintf("operation already in progress on %s", e.Resource)
}

func (e ConflictError) Is(target error) bool {
	_, ok := target.(ConflictError)
	if ok {
		return true
	}
	_, ok = target.(*ConflictError)
	return ok
}

var ErrConflict = ConflictError{}

// ForbiddenError reports that the session's role does not permit the
// requested operation.
type ForbiddenError struct {
	Role string
}

func (e ForbiddenError) Error() string {
	if e.Role == "" {
		return "operation not permitted"
	}
	return fmt.Sprintf("operation not permitted for role %s", e.Role)
}

func (e ForbiddenError) Is(target error) bool {
	_, ok := target.(ForbiddenError)
	if ok {
		return true
	}
	_, ok = target.(*ForbiddenError)
	return ok
}

var ErrForbidden = ForbiddenError{}
