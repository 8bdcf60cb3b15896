package presentation

import (
	"time"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/playbook"
)

// TemplateDTO represents a playbook template for presentation
type TemplateDTO struct {
	ID                string    `json:"id"`
	Name              string    `json:"name"`
	Description       string    `json:"description,omitempty"`
	Category          string    `json:"category"`
	Version           string    `json:"version,omitempty"`
	EstimatedDuration string    `json:"estimated_duration,omitempty"`
	RequiredSteps     int       `json:"required_steps"`
	Steps             []StepDTO `json:"steps"`
}

// StepDTO represents a template step
type StepDTO struct {
	ID                string         `json:"id"`
	Title             string         `json:"title"`
	Description       string         `json:"description,omitempty"`
	StepType          string         `json:"step_type"`
	Required          bool           `json:"required"`
	Order             int            `json:"order"`
	EstimatedDuration string         `json:"estimated_duration,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// ProgressDTO represents a journey
type ProgressDTO struct {
	ID             string                  `json:"id"`
	UserID         string                  `json:"user_id"`
	OrganizationID string                  `json:"organization_id"`
	PlaybookID     string                  `json:"playbook_id"`
	Status         string                  `json:"status"`
	Percentage     int                     `json:"progress_percentage"`
	Version        int                     `json:"version"`
	StepResponses  map[string]StepStateDTO `json:"step_responses"`
	Metadata       map[string]any          `json:"metadata,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
	StartedAt      *time.Time              `json:"started_at,omitempty"`
	PausedAt       *time.Time              `json:"paused_at,omitempty"`
	CompletedAt    *time.Time              `json:"completed_at,omitempty"`
}

// StepStateDTO represents the state of one step within a journey
type StepStateDTO struct {
	Status        string         `json:"status"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	AutoCompleted bool           `json:"auto_completed"`
	ResponseData  map[string]any `json:"response_data,omitempty"`
}

// StepResponseDTO represents one audit row
type StepResponseDTO struct {
	ID             string         `json:"id"`
	ProgressID     string         `json:"progress_id"`
	StepID         string         `json:"step_id"`
	UserID         string         `json:"user_id"`
	OrganizationID string         `json:"organization_id"`
	ResponseData   map[string]any `json:"response_data,omitempty"`
	SubmittedAt    time.Time      `json:"submitted_at"`
}

// StatusDTO is the step completion status of a journey
type StatusDTO struct {
	PlaybookID        string          `json:"playbook_id"`
	ProgressID        string          `json:"progress_id,omitempty"`
	Status            string          `json:"status"`
	Percentage        int             `json:"progress_percentage"`
	CompletedCount    int             `json:"completed_count"`
	TotalCount        int             `json:"total_count"`
	RequiredCount     int             `json:"required_count"`
	RequiredCompleted int             `json:"required_completed"`
	Steps             []StepStatusDTO `json:"steps"`
}

// StepStatusDTO is one row of StatusDTO
type StepStatusDTO struct {
	StepDTO
	Status            string     `json:"status"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	AutoCompleted     bool       `json:"auto_completed"`
	WouldAutoComplete bool       `json:"would_auto_complete"`
	Verification      string     `json:"verification,omitempty"`
	Criteria          []string   `json:"criteria,omitempty"`
}

// EventDTO is a progress event as streamed to clients
type EventDTO struct {
	Type           string    `json:"type"`
	ProgressID     string    `json:"progress_id"`
	UserID         string    `json:"user_id"`
	OrganizationID string    `json:"organization_id"`
	PlaybookID     string    `json:"playbook_id"`
	Status         string    `json:"status"`
	Percentage     int       `json:"progress_percentage"`
	StepIDs        []string  `json:"step_ids,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

func durationString(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return d.String()
}

// FromStep converts a template step to a DTO
func FromStep(s playbook.Step) StepDTO {
	return StepDTO{
		ID:                s.ID,
		Title:             s.Title,
		Description:       s.Description,
		StepType:          string(s.StepType),
		Required:          s.IsRequired,
		Order:             s.Order,
		EstimatedDuration: durationString(s.EstimatedDuration),
		Metadata:          s.Metadata,
	}
}

// FromTemplate converts a template to a DTO
func FromTemplate(t *playbook.Template) TemplateDTO {
	steps := make([]StepDTO, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = FromStep(s)
	}
	return TemplateDTO{
		ID:                t.ID,
		Name:              t.Name,
		Description:       t.Description,
		Category:          string(t.Category),
		Version:           t.Version,
		EstimatedDuration: durationString(t.EstimatedDuration()),
		RequiredSteps:     t.RequiredCount(),
		Steps:             steps,
	}
}

// FromTemplates converts a slice of templates to DTOs
func FromTemplates(ts []*playbook.Template) []TemplateDTO {
	dtos := make([]TemplateDTO, len(ts))
	for i, t := range ts {
		dtos[i] = FromTemplate(t)
	}
	return dtos
}

// FromProgress converts a journey to a DTO
func FromProgress(p *playbook.Progress) ProgressDTO {
	steps := make(map[string]StepStateDTO)
	for id, s := range p.Steps() {
		steps[id] = StepStateDTO{
			Status:        string(s.Status),
			CompletedAt:   s.CompletedAt,
			AutoCompleted: s.AutoCompleted,
			ResponseData:  s.ResponseData,
		}
	}
	return ProgressDTO{
		ID:             p.ID(),
		UserID:         p.UserID(),
		OrganizationID: p.OrganizationID(),
		PlaybookID:     p.PlaybookID(),
		Status:         p.Status().String(),
		Percentage:     p.Percentage(),
		Version:        p.Version(),
		StepResponses:  steps,
		Metadata:       p.Metadata(),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
		StartedAt:      p.StartedAt(),
		PausedAt:       p.PausedAt(),
		CompletedAt:    p.CompletedAt(),
	}
}

// FromProgressList converts a slice of journeys to DTOs
func FromProgressList(ps []*playbook.Progress) []ProgressDTO {
	dtos := make([]ProgressDTO, len(ps))
	for i, p := range ps {
		dtos[i] = FromProgress(p)
	}
	return dtos
}

// FromStepResponses converts audit rows to DTOs
func FromStepResponses(rs []*playbook.StepResponse) []StepResponseDTO {
	dtos := make([]StepResponseDTO, len(rs))
	for i, r := range rs {
		dtos[i] = StepResponseDTO{
			ID:             r.ID,
			ProgressID:     r.ProgressID,
			StepID:         r.StepID,
			UserID:         r.UserID,
			OrganizationID: r.OrganizationID,
			ResponseData:   r.ResponseData,
			SubmittedAt:    r.SubmittedAt,
		}
	}
	return dtos
}

// FromStatusReport converts a status report to a DTO
func FromStatusReport(r *engine.StatusReport) StatusDTO {
	dto := StatusDTO{
		PlaybookID:        r.Template.ID,
		Status:            r.Status.String(),
		Percentage:        r.Percentage,
		CompletedCount:    r.CompletedCount,
		TotalCount:        r.TotalCount,
		RequiredCount:     r.RequiredCount,
		RequiredCompleted: r.RequiredCompleted,
		Steps:             make([]StepStatusDTO, len(r.Steps)),
	}
	if r.Progress != nil {
		dto.ProgressID = r.Progress.ID()
	}
	for i, s := range r.Steps {
		dto.Steps[i] = StepStatusDTO{
			StepDTO:           FromStep(s.Step),
			Status:            string(s.Status),
			CompletedAt:       s.CompletedAt,
			AutoCompleted:     s.AutoCompleted,
			WouldAutoComplete: s.WouldAutoComplete,
			Verification:      string(s.Outcome),
			Criteria:          s.Criteria,
		}
	}
	return dto
}

// FromEvent converts a published progress event to a DTO
func FromEvent(eventType string, e engine.ProgressEvent, at time.Time) EventDTO {
	return EventDTO{
		Type:           eventType,
		ProgressID:     e.ProgressID,
		UserID:         e.UserID,
		OrganizationID: e.OrganizationID,
		PlaybookID:     e.PlaybookID,
		Status:         e.Status.String(),
		Percentage:     e.Percentage,
		StepIDs:        e.StepIDs,
		Timestamp:      at,
	}
}
