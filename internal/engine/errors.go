package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"sprintbook/internal/repo"
)

// Machine-readable error kinds.
const (
	KindSlotConflict = "slot_conflict"
	KindCapExceeded  = "cap_exceeded"
	KindNotFound     = "not_found"
	KindValidation   = "validation_failed"
	KindTransient    = "transient"
	KindInternal     = "internal"
)

// SlotConflictError means another tribe holds one of the requested sprints.
// The caller must refresh availability and propose again.
type SlotConflictError struct {
	Sprints []int
}

func (e *SlotConflictError) Error() string {
	parts := make([]string, len(e.Sprints))
	for i, s := range e.Sprints {
		parts[i] = strconv.Itoa(s)
	}
	return fmt.Sprintf("sprint %s already taken by another tribe", strings.Join(parts, ", "))
}

// Details lists the conflicting sprints one per line.
func (e *SlotConflictError) Details() []string {
	out := make([]string, len(e.Sprints))
	for i, s := range e.Sprints {
		out[i] = fmt.Sprintf("S%d", s)
	}
	return out
}

// CapExceededError means the tribe's total after the change would pass its cap.
type CapExceededError struct {
	Cap       int
	Requested int
}

func (e *CapExceededError) Error() string {
	return fmt.Sprintf("you've exceeded max allowed number of sprints (%d).", e.Cap)
}

type ValidationError struct {
	Message string
	Details []string
}

func (e *ValidationError) Error() string { return e.Message }

func validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// TransientError wraps a storage failure that is safe to retry from a fresh
// snapshot.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return "transient storage error: " + e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// Kind classifies err for transport.
func Kind(err error) string {
	var (
		conflict   *SlotConflictError
		capErr     *CapExceededError
		validation *ValidationError
		transient  *TransientError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &conflict):
		return KindSlotConflict
	case errors.As(err, &capErr):
		return KindCapExceeded
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &transient):
		return KindTransient
	case errors.Is(err, repo.ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// storageErr marks retryable storage failures as transient.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var transient *TransientError
	if errors.As(err, &transient) {
		return err
	}
	if repo.IsRetryable(err) {
		return &TransientError{Err: fmt.Errorf("%s: %w", op, err)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
