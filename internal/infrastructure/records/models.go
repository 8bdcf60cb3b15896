// Package records persists journeys and step responses through the generic
// record store.
package records

import (
	"time"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

// Tables owned by this package.
const (
	ProgressTable      = "playbook_progress"
	StepResponsesTable = "playbook_step_responses"
)

// progressModel is the stored shape of a journey. Timestamps are RFC 3339
// strings; nil pointers are stored as null.
type progressModel struct {
	ID             string
	UserID         string
	OrganizationID string
	PlaybookID     string
	Status         string
	Percentage     int
	StepResponses  map[string]stepStateModel
	Metadata       map[string]any
	Version        int
	CreatedAt      time.Time
	UpdatedAt      time.Time
	StartedAt      *time.Time
	PausedAt       *time.Time
	CompletedAt    *time.Time
}

type stepStateModel struct {
	Status        string
	CompletedAt   *time.Time
	AutoCompleted bool
	ResponseData  map[string]any
}

// toProgressModel converts a domain Progress entity to its stored model.
func toProgressModel(p *playbook.Progress) *progressModel {
	m := &progressModel{
		ID:             p.ID(),
		UserID:         p.UserID(),
		OrganizationID: p.OrganizationID(),
		PlaybookID:     p.PlaybookID(),
		Status:         string(p.Status()),
		Percentage:     p.Percentage(),
		StepResponses:  make(map[string]stepStateModel),
		Metadata:       p.Metadata(),
		Version:        p.Version(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
		StartedAt:      p.StartedAt(),
		PausedAt:       p.PausedAt(),
		CompletedAt:    p.CompletedAt(),
	}
	for id, s := range p.Steps() {
		m.StepResponses[id] = stepStateModel{
			Status:        string(s.Status),
			CompletedAt:   s.CompletedAt,
			AutoCompleted: s.AutoCompleted,
			ResponseData:  s.ResponseData,
		}
	}
	return m
}

// toRecord renders the mutable fields. id, created_at and updated_at belong
// to the store.
func (m *progressModel) toRecord() recordstore.Record {
	steps := make(map[string]any, len(m.StepResponses))
	for id, s := range m.StepResponses {
		entry := map[string]any{
			"status":         s.Status,
			"completed_at":   formatTimePtr(s.CompletedAt),
			"auto_completed": s.AutoCompleted,
		}
		if s.ResponseData != nil {
			entry["response_data"] = s.ResponseData
		}
		steps[id] = entry
	}
	return recordstore.Record{
		"user_id":             m.UserID,
		"organization_id":     m.OrganizationID,
		"playbook_id":         m.PlaybookID,
		"status":              m.Status,
		"progress_percentage": m.Percentage,
		"step_responses":      steps,
		"metadata":            m.Metadata,
		"version":             m.Version,
		"started_at":          formatTimePtr(m.StartedAt),
		"paused_at":           formatTimePtr(m.PausedAt),
		"completed_at":        formatTimePtr(m.CompletedAt),
	}
}

// progressModelFromRecord parses a stored record.
func progressModelFromRecord(rec recordstore.Record) *progressModel {
	pct, _ := rec.Int("progress_percentage")
	version, _ := rec.Int("version")
	m := &progressModel{
		ID:             rec.ID(),
		UserID:         rec.String("user_id"),
		OrganizationID: rec.String("organization_id"),
		PlaybookID:     rec.String("playbook_id"),
		Status:         rec.String("status"),
		Percentage:     pct,
		StepResponses:  make(map[string]stepStateModel),
		Metadata:       rec.Map("metadata"),
		Version:        version,
		CreatedAt:      rec.Time(recordstore.FieldCreatedAt),
		UpdatedAt:      rec.Time(recordstore.FieldUpdatedAt),
		StartedAt:      rec.TimePtr("started_at"),
		PausedAt:       rec.TimePtr("paused_at"),
		CompletedAt:    rec.TimePtr("completed_at"),
	}
	for id, raw := range rec.Map("step_responses") {
		entry, ok := recordstore.AsRecord(raw)
		if !ok {
			continue
		}
		m.StepResponses[id] = stepStateModel{
			Status:        entry.String("status"),
			CompletedAt:   entry.TimePtr("completed_at"),
			AutoCompleted: entry.Bool("auto_completed"),
			ResponseData:  entry.Map("response_data"),
		}
	}
	return m
}

// toDomain converts the stored model back to a Progress entity.
func (m *progressModel) toDomain() *playbook.Progress {
	steps := make(map[string]playbook.StepState, len(m.StepResponses))
	for id, s := range m.StepResponses {
		steps[id] = playbook.StepState{
			Status:        playbook.StepStatus(s.Status),
			CompletedAt:   s.CompletedAt,
			AutoCompleted: s.AutoCompleted,
			ResponseData:  s.ResponseData,
		}
	}
	return playbook.ReconstituteProgress(
		m.ID,
		playbook.Key{UserID: m.UserID, OrganizationID: m.OrganizationID, PlaybookID: m.PlaybookID},
		playbook.Status(m.Status),
		m.Percentage,
		steps,
		m.Metadata,
		m.Version,
		m.CreatedAt, m.UpdatedAt,
		m.StartedAt, m.PausedAt, m.CompletedAt,
	)
}

// toStepResponseRecord converts an audit row to its stored shape.
func toStepResponseRecord(r *playbook.StepResponse) recordstore.Record {
	return recordstore.Record{
		"progress_id":     r.ProgressID,
		"step_id":         r.StepID,
		"user_id":         r.UserID,
		"organization_id": r.OrganizationID,
		"response_data":   r.ResponseData,
		"submitted_at":    recordstore.FormatTime(r.SubmittedAt),
	}
}

func stepResponseFromRecord(rec recordstore.Record) *playbook.StepResponse {
	return &playbook.StepResponse{
		ID:             rec.ID(),
		ProgressID:     rec.String("progress_id"),
		StepID:         rec.String("step_id"),
		UserID:         rec.String("user_id"),
		OrganizationID: rec.String("organization_id"),
		ResponseData:   rec.Map("response_data"),
		SubmittedAt:    rec.Time("submitted_at"),
	}
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return recordstore.FormatTime(*t)
}
