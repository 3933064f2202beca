package models

import (
	"errors"
	"fmt"
)

// Error classes. Typed errors below wrap one of these so callers can use errors.Is.
var (
	ErrMissingField         = errors.New("missing field")
	ErrInvalidConstraint    = errors.New("invalid constraint")
	ErrNotFound             = errors.New("not found")
	ErrInvalidTransition    = errors.New("invalid transition")
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// FieldError indicates a job specification was rejected before it was stored
type FieldError struct {
	Kind    error // ErrMissingField or ErrInvalidConstraint
	Field   string
	Message string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Field, e.Message)
}

func (e *FieldError) Unwrap() error {
	return e.Kind
}

// NotFoundError indicates no job exists with the given id
type NotFoundError struct {
	JobID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job not found: %s", e.JobID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransitionError indicates the job's lifecycle does not allow the request
type TransitionError struct {
	JobID string
	From  JobStatus
	To    JobStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("job %s cannot move from %s to %s", e.JobID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
