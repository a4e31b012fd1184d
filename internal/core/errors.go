package core

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a resource does not exist or is soft-deleted.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError reports that a guarded status transition lost: the resource
// exists but its current status is outside the transition's guard set.
type ConflictError struct {
	Resource string
	ID       string
	Status   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s is in status %s, operation not allowed", e.Resource, e.ID, e.Status)
}

// InUseError reports that a resource is referenced by a live dependent and
// cannot be deleted or replaced.
type InUseError struct {
	Resource string
	ID       string
	Detail   string
}

func (e *InUseError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s is in use: %s", e.Resource, e.ID, e.Detail)
	}
	return fmt.Sprintf("%s %s is in use", e.Resource, e.ID)
}

// ValidationError reports malformed or inconsistent input.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// WaitTimeoutError reports that a backend operation did not reach a terminal
// state within its retry budget.
type WaitTimeoutError struct {
	Resource string
	ID       string
	Budget   string
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("%s %s did not become ready within %s", e.Resource, e.ID, e.Budget)
}

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

func IsInUse(err error) bool {
	var iu *InUseError
	return errors.As(err, &iu)
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
