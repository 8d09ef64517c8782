package models

import "fmt"

// ConflictError signals that an operation collides with an active job on the
// same plan (starting a second pipeline, editing a section mid-run, deleting
// a plan with a live job).
type ConflictError struct {
	PlanID string
	JobID  string
}

func (e *ConflictError) Error() string {
	if e.JobID != "" {
		return fmt.Sprintf("plan %s already has active job %s", e.PlanID, e.JobID)
	}
	return fmt.Sprintf("plan %s has an active job", e.PlanID)
}

// NotFoundError signals an unknown plan, job, section or question id.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// NewNotFound builds a NotFoundError for the given entity kind and id.
func NewNotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidStateError signals an operation that is not valid for the entity's
// current status, e.g. cancelling a terminal job.
type InvalidStateError struct {
	Op     string
	State  string
	Detail string
}

func (e *InvalidStateError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("cannot %s in state %s: %s", e.Op, e.State, e.Detail)
	}
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}
