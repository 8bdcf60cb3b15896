package playbook

import (
	"errors"
	"fmt"
)

// ErrConcurrentModification is returned when a progress record changed
// between read and conditional write.
var ErrConcurrentModification = errors.New("progress was modified concurrently")

// TemplateNotFoundError is returned when no template has the requested id.
type TemplateNotFoundError struct {
	PlaybookID string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("playbook template not found: %s", e.PlaybookID)
}

// ProgressNotFoundError is returned when an operation needs an existing
// progress record. Either ID or Key identifies the lookup.
type ProgressNotFoundError struct {
	ID  string
	Key Key
}

func (e *ProgressNotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("progress not found: %s", e.ID)
	}
	return fmt.Sprintf("progress not found for user %s in organization %s on playbook %s",
		e.Key.UserID, e.Key.OrganizationID, e.Key.PlaybookID)
}

// StepNotFoundError is returned when a step id is not part of the template.
type StepNotFoundError struct {
	PlaybookID string
	StepID     string
}

func (e *StepNotFoundError) Error() string {
	return fmt.Sprintf("step %s not found in playbook %s", e.StepID, e.PlaybookID)
}

// InvalidTransitionError is returned when a lifecycle transition is not
// allowed from the current status.
type InvalidTransitionError struct {
	From   Status
	Action string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a journey that is %s", e.Action, e.From)
}

// IsNotFound reports whether err is any of the not-found errors.
func IsNotFound(err error) bool {
	var (
		tnf *TemplateNotFoundError
		pnf *ProgressNotFoundError
		snf *StepNotFoundError
	)
	return errors.As(err, &tnf) || errors.As(err, &pnf) || errors.As(err, &snf)
}
