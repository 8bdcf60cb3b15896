package playbook

import (
	"context"
	"time"
)

// StepResponse is an append-only audit row for a manual step submission.
type StepResponse struct {
	ID             string
	ProgressID     string
	StepID         string
	UserID         string
	OrganizationID string
	ResponseData   map[string]any
	SubmittedAt    time.Time
}

// TemplateStore provides read access to playbook templates.
type TemplateStore interface {
	// Get returns the template with the given id.
	// Returns TemplateNotFoundError if no template matches.
	Get(ctx context.Context, id string) (*Template, error)

	// List returns every template, ordered by id.
	List(ctx context.Context) ([]*Template, error)
}

// ProgressRepository defines the persistence interface for Progress entities.
type ProgressRepository interface {
	// FindByKey retrieves the journey for a (user, organization, playbook) triple.
	// Returns ProgressNotFoundError if none exists.
	FindByKey(ctx context.Context, key Key) (*Progress, error)

	// FindByID retrieves a journey by its identifier.
	// Returns ProgressNotFoundError if none exists.
	FindByID(ctx context.Context, id string) (*Progress, error)

	// ListByOwner returns every journey of a user within an organization,
	// newest first.
	ListByOwner(ctx context.Context, userID, organizationID string) ([]*Progress, error)

	// Create persists a new journey and assigns its ID and initial version.
	Create(ctx context.Context, progress *Progress) error

	// Save writes an existing journey if its stored version still equals
	// progress.Version(), then increments the version.
	// Returns ErrConcurrentModification when the stored version moved on.
	Save(ctx context.Context, progress *Progress) error
}

// StepResponseRepository stores the audit trail of manual step submissions.
type StepResponseRepository interface {
	// Append stores a new response and assigns its ID.
	Append(ctx context.Context, response *StepResponse) error

	// ListByProgress returns the responses of a journey, oldest first.
	ListByProgress(ctx context.Context, progressID string) ([]*StepResponse, error)
}
