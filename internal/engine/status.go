package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/tracing"
	"github.com/zjrosen/playbook/internal/verification"
)

// StepReport describes one template step for display.
type StepReport struct {
	Step          playbook.Step
	Status        playbook.StepStatus
	CompletedAt   *time.Time
	AutoCompleted bool
	// WouldAutoComplete reports whether a pending step's records already
	// satisfy its rule. Always false for completed steps.
	WouldAutoComplete bool
	// Outcome is the rule lookup result for pending steps, empty otherwise.
	Outcome  verification.Outcome
	Criteria []string
}

// StatusReport is a read-only projection of a journey over its template.
type StatusReport struct {
	Template *playbook.Template
	// Progress is nil when the journey has not been started.
	Progress          *playbook.Progress
	Steps             []StepReport
	CompletedCount    int
	TotalCount        int
	RequiredCount     int
	RequiredCompleted int
	Percentage        int
	Status            playbook.Status
}

// GetStepCompletionStatus reports every step of the template with its current
// state, and for pending steps whether they would auto-complete right now.
// It never writes. A journey that was never started reports all steps pending.
func (e *Engine) GetStepCompletionStatus(ctx context.Context, key playbook.Key) (_ *StatusReport, err error) {
	ctx, span, end := e.begin(ctx, OpStatus, keyAttrs(key)...)
	defer func() { end(err) }()

	tpl, err := e.templates.Get(ctx, key.PlaybookID)
	if err != nil {
		return nil, err
	}

	progress, err := e.progress.FindByKey(ctx, key)
	var notFound *playbook.ProgressNotFoundError
	switch {
	case errors.As(err, &notFound):
		progress = nil
	case err != nil:
		return nil, err
	default:
		span.SetAttributes(attribute.String(tracing.AttrProgressID, progress.ID()))
	}

	var pending []playbook.Step
	for _, step := range tpl.Steps {
		if progress == nil || !progress.IsStepCompleted(step.ID) {
			pending = append(pending, step)
		}
	}
	outcomes := make(map[string]verification.Outcome, len(pending))
	for _, o := range e.verifySteps(ctx, key, pending) {
		outcomes[o.step.ID] = o.outcome
	}

	report := &StatusReport{
		Template:      tpl,
		Progress:      progress,
		Steps:         make([]StepReport, 0, len(tpl.Steps)),
		TotalCount:    len(tpl.Steps),
		RequiredCount: tpl.RequiredCount(),
		Status:        playbook.StatusNotStarted,
	}
	for _, step := range tpl.Steps {
		sr := StepReport{
			Step:     step,
			Status:   playbook.StepPending,
			Criteria: e.verifier.Criteria(step.StepType),
		}
		if progress != nil {
			state := progress.StepState(step.ID)
			sr.Status = state.Status
			sr.CompletedAt = state.CompletedAt
			sr.AutoCompleted = state.AutoCompleted
		}
		if sr.Status == playbook.StepCompleted {
			report.CompletedCount++
			if step.IsRequired {
				report.RequiredCompleted++
			}
		} else {
			sr.Outcome = outcomes[step.ID]
			sr.WouldAutoComplete = sr.Outcome.Satisfied()
		}
		report.Steps = append(report.Steps, sr)
	}

	if progress != nil {
		report.Percentage = progress.Percentage()
		report.Status = progress.Status()
	}
	return report, nil
}
