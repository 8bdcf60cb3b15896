package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// progressRepository implements playbook.ProgressRepository over a record store.
type progressRepository struct {
	store recordstore.Store
}

// NewProgressRepository creates a progress repository.
func NewProgressRepository(store recordstore.Store) playbook.ProgressRepository {
	return &progressRepository{store: store}
}

// Ensure progressRepository implements playbook.ProgressRepository.
var _ playbook.ProgressRepository = (*progressRepository)(nil)

// FindByKey retrieves the journey for a triple. If a lost first-start race
// left duplicates, the oldest record wins.
func (r *progressRepository) FindByKey(ctx context.Context, key playbook.Key) (*playbook.Progress, error) {
	rec, err := r.store.SelectOne(ctx, ProgressTable, recordstore.Filter{
		"user_id":         key.UserID,
		"organization_id": key.OrganizationID,
		"playbook_id":     key.PlaybookID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find progress by key: %w", err)
	}
	if rec == nil {
		return nil, &playbook.ProgressNotFoundError{Key: key}
	}
	return progressModelFromRecord(rec).toDomain(), nil
}

// FindByID retrieves a journey by id.
func (r *progressRepository) FindByID(ctx context.Context, id string) (*playbook.Progress, error) {
	rec, err := r.store.SelectOne(ctx, ProgressTable, recordstore.Filter{recordstore.FieldID: id})
	if err != nil {
		return nil, fmt.Errorf("failed to find progress by id: %w", err)
	}
	if rec == nil {
		return nil, &playbook.ProgressNotFoundError{ID: id}
	}
	return progressModelFromRecord(rec).toDomain(), nil
}

// ListByOwner returns a user's journeys within an organization, newest first.
func (r *progressRepository) ListByOwner(ctx context.Context, userID, organizationID string) ([]*playbook.Progress, error) {
	recs, err := r.store.SelectMany(ctx, ProgressTable,
		recordstore.Filter{"user_id": userID, "organization_id": organizationID},
		recordstore.OrderBy{Field: recordstore.FieldCreatedAt, Desc: true},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list progress: %w", err)
	}
	out := make([]*playbook.Progress, 0, len(recs))
	for _, rec := range recs {
		out = append(out, progressModelFromRecord(rec).toDomain())
	}
	return out, nil
}

// Create inserts a new journey at version 1 and refreshes progress from the
// stored record.
func (r *progressRepository) Create(ctx context.Context, progress *playbook.Progress) error {
	model := toProgressModel(progress)
	model.Version = 1

	rec, err := r.store.Insert(ctx, ProgressTable, model.toRecord())
	if err != nil {
		return fmt.Errorf("failed to insert progress: %w", err)
	}
	*progress = *progressModelFromRecord(rec).toDomain()
	return nil
}

// Save writes progress conditionally on its version and refreshes it from
// the stored record.
func (r *progressRepository) Save(ctx context.Context, progress *playbook.Progress) error {
	if progress.ID() == "" {
		return fmt.Errorf("failed to save progress: missing id")
	}
	model := toProgressModel(progress)
	expected := model.Version
	model.Version = expected + 1

	rec, err := r.store.Update(ctx, ProgressTable,
		recordstore.Filter{recordstore.FieldID: progress.ID(), "version": expected},
		model.toRecord(),
	)
	if errors.Is(err, recordstore.ErrNoMatch) {
		current, findErr := r.store.SelectOne(ctx, ProgressTable, recordstore.Filter{recordstore.FieldID: progress.ID()})
		if findErr != nil {
			return fmt.Errorf("failed to save progress: %w", findErr)
		}
		if current == nil {
			return &playbook.ProgressNotFoundError{ID: progress.ID()}
		}
		return fmt.Errorf("failed to save progress %s at version %d: %w", progress.ID(), expected, playbook.ErrConcurrentModification)
	}
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	*progress = *progressModelFromRecord(rec).toDomain()
	return nil
}
