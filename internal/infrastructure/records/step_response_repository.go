package records

import (
	"context"
	"fmt"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// stepResponseRepository implements playbook.StepResponseRepository.
type stepResponseRepository struct {
	store recordstore.Store
}

// NewStepResponseRepository creates an append-only step response repository.
func NewStepResponseRepository(store recordstore.Store) playbook.StepResponseRepository {
	return &stepResponseRepository{store: store}
}

var _ playbook.StepResponseRepository = (*stepResponseRepository)(nil)

// Append stores a response and sets its ID.
func (r *stepResponseRepository) Append(ctx context.Context, response *playbook.StepResponse) error {
	rec, err := r.store.Insert(ctx, StepResponsesTable, toStepResponseRecord(response))
	if err != nil {
		return fmt.Errorf("failed to insert step response: %w", err)
	}
	response.ID = rec.ID()
	return nil
}

// ListByProgress returns the responses of a journey in submission order.
func (r *stepResponseRepository) ListByProgress(ctx context.Context, progressID string) ([]*playbook.StepResponse, error) {
	recs, err := r.store.SelectMany(ctx, StepResponsesTable,
		recordstore.Filter{"progress_id": progressID},
		recordstore.OrderBy{Field: "submitted_at"},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list step responses: %w", err)
	}
	out := make([]*playbook.StepResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, stepResponseFromRecord(rec))
	}
	return out, nil
}
