package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/pubsub"
	"github.com/zjrosen/playbook/internal/tracing"
	"github.com/zjrosen/playbook/internal/verification"
)

// Operation names used for spans and metrics.
const (
	OpStart    = "start"
	OpCheck    = "check"
	OpComplete = "complete"
	OpPause    = "pause"
	OpResume   = "resume"
	OpStatus   = "status"
)

func keyAttrs(key playbook.Key) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(tracing.AttrUserID, key.UserID),
		attribute.String(tracing.AttrOrganizationID, key.OrganizationID),
		attribute.String(tracing.AttrPlaybookID, key.PlaybookID),
	}
}

// begin starts a span and returns a func that records the outcome.
func (e *Engine) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span, func(error)) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanPrefixEngine+op, attrs...)
	return ctx, span, func(err error) {
		e.metrics.ObserveOperation(op, time.Since(start), err)
		tracing.End(span, err)
	}
}

// StartPlaybook returns the journey for key, creating a not-started one if
// none exists yet. Starting twice returns the existing record unchanged.
func (e *Engine) StartPlaybook(ctx context.Context, key playbook.Key, metadata map[string]any) (_ *playbook.Progress, err error) {
	ctx, _, end := e.begin(ctx, OpStart, keyAttrs(key)...)
	defer func() { end(err) }()

	if _, err := e.templates.Get(ctx, key.PlaybookID); err != nil {
		return nil, err
	}

	existing, err := e.progress.FindByKey(ctx, key)
	if err == nil {
		return existing, nil
	}
	var notFound *playbook.ProgressNotFoundError
	if !errors.As(err, &notFound) {
		return nil, err
	}

	progress := playbook.NewProgress(key, metadata, e.now())
	if err := e.progress.Create(ctx, progress); err != nil {
		return nil, err
	}
	log.Info(log.CatEngine, "journey started",
		"progressID", progress.ID(), "playbookID", key.PlaybookID, "userID", key.UserID)
	e.publish(pubsub.JourneyStartedEvent, progress, nil)
	return progress, nil
}

// CheckAndUpdateStepCompletion verifies every pending step and marks the
// satisfied ones auto-completed. The record is written only if something
// changed.
func (e *Engine) CheckAndUpdateStepCompletion(ctx context.Context, key playbook.Key) (_ *playbook.Progress, err error) {
	ctx, span, end := e.begin(ctx, OpCheck, keyAttrs(key)...)
	defer func() { end(err) }()

	progress, err := e.progress.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String(tracing.AttrProgressID, progress.ID()))

	tpl, err := e.templates.Get(ctx, key.PlaybookID)
	if err != nil {
		return nil, err
	}

	return e.recompute(ctx, span, progress, tpl, "", nil)
}

// CompletePlaybookItem records a manual submission for a step. The audit row
// is always appended; the step is then completed through the same
// verification pass as CheckAndUpdateStepCompletion, falling back to a
// direct manual completion when verification does not confirm it.
func (e *Engine) CompletePlaybookItem(ctx context.Context, progressID, stepID string, responseData map[string]any) (_ *playbook.Progress, err error) {
	ctx, span, end := e.begin(ctx, OpComplete,
		attribute.String(tracing.AttrProgressID, progressID),
		attribute.String(tracing.AttrStepID, stepID))
	defer func() { end(err) }()

	progress, err := e.progress.FindByID(ctx, progressID)
	if err != nil {
		return nil, err
	}
	tpl, err := e.templates.Get(ctx, progress.PlaybookID())
	if err != nil {
		return nil, err
	}
	if _, ok := tpl.Step(stepID); !ok {
		return nil, &playbook.StepNotFoundError{PlaybookID: tpl.ID, StepID: stepID}
	}

	if err := e.responses.Append(ctx, &playbook.StepResponse{
		ProgressID:     progress.ID(),
		StepID:         stepID,
		UserID:         progress.UserID(),
		OrganizationID: progress.OrganizationID(),
		ResponseData:   responseData,
		SubmittedAt:    e.now(),
	}); err != nil {
		return nil, err
	}

	return e.recompute(ctx, span, progress, tpl, stepID, responseData)
}

// recompute runs the verification pass over the pending steps, records
// manualStep (when set) as a manual completion, derives percentage and
// status, and persists once.
func (e *Engine) recompute(
	ctx context.Context,
	span trace.Span,
	progress *playbook.Progress,
	tpl *playbook.Template,
	manualStep string,
	responseData map[string]any,
) (*playbook.Progress, error) {
	if progress.IsCompleted() {
		return progress, nil
	}
	before := progress.Status()
	now := e.now()

	outcomes := e.verifyPending(ctx, progress, tpl)

	var autoIDs, manualIDs []string
	for _, o := range outcomes {
		// The submitted step is recorded as a manual completion below.
		if !o.outcome.Satisfied() || o.step.ID == manualStep {
			continue
		}
		if progress.CompleteStep(o.step.ID, true, nil, now) {
			autoIDs = append(autoIDs, o.step.ID)
		}
	}
	if manualStep != "" && progress.CompleteStep(manualStep, false, responseData, now) {
		manualIDs = append(manualIDs, manualStep)
	}

	recomputed := progress.Recompute(tpl, now)
	if len(autoIDs) == 0 && len(manualIDs) == 0 && !recomputed {
		return progress, nil
	}

	if err := e.progress.Save(ctx, progress); err != nil {
		if errors.Is(err, playbook.ErrConcurrentModification) {
			e.metrics.IncConflict()
			span.AddEvent(tracing.EventSaveConflict)
		}
		return nil, fmt.Errorf("failed to save progress %s: %w", progress.ID(), err)
	}

	e.metrics.AddStepsCompleted("auto", len(autoIDs))
	e.metrics.AddStepsCompleted("manual", len(manualIDs))
	span.SetAttributes(
		attribute.Int(tracing.AttrNewlyCompleted, len(autoIDs)+len(manualIDs)),
		attribute.Int(tracing.AttrPercentage, progress.Percentage()),
		attribute.String(tracing.AttrStatus, progress.Status().String()),
	)

	completed := append(autoIDs, manualIDs...)
	if len(completed) > 0 {
		log.Info(log.CatEngine, "steps completed",
			"progressID", progress.ID(), "auto", len(autoIDs), "manual", len(manualIDs),
			"percentage", progress.Percentage())
		e.publish(pubsub.StepCompletedEvent, progress, completed)
	}
	if before != playbook.StatusCompleted && progress.IsCompleted() {
		span.AddEvent(tracing.EventJourneyCompleted)
		log.Info(log.CatEngine, "journey completed", "progressID", progress.ID(), "playbookID", progress.PlaybookID())
		e.metrics.IncJourneyCompleted(progress.PlaybookID())
		e.publish(pubsub.JourneyCompletedEvent, progress, nil)
		e.runHooks(ctx, progress)
	}
	return progress, nil
}

type stepOutcome struct {
	step    playbook.Step
	outcome verification.Outcome
}

// verifyPending checks every template step not yet completed, in parallel,
// and returns once every lookup finished. Results keep template order.
func (e *Engine) verifyPending(ctx context.Context, progress *playbook.Progress, tpl *playbook.Template) []stepOutcome {
	var pending []playbook.Step
	for _, step := range tpl.Steps {
		if !progress.IsStepCompleted(step.ID) {
			pending = append(pending, step)
		}
	}
	return e.verifySteps(ctx, progress.Key(), pending)
}

func (e *Engine) verifySteps(ctx context.Context, key playbook.Key, steps []playbook.Step) []stepOutcome {
	results := make([]stepOutcome, len(steps))
	var g errgroup.Group
	g.SetLimit(e.parallelism)
	for i, step := range steps {
		g.Go(func() error {
			ctx, span := tracing.Start(ctx, e.tracer, tracing.SpanPrefixVerify+string(step.StepType),
				attribute.String(tracing.AttrStepID, step.ID),
				attribute.String(tracing.AttrStepType, string(step.StepType)))
			outcome := e.verifier.Check(ctx, verification.Subject{
				UserID:         key.UserID,
				OrganizationID: key.OrganizationID,
				PlaybookID:     key.PlaybookID,
				StepID:         step.ID,
				StepType:       step.StepType,
				Metadata:       step.Metadata,
			})
			span.SetAttributes(attribute.String(tracing.AttrOutcome, string(outcome)))
			span.End()

			e.metrics.IncVerification(string(step.StepType), string(outcome))
			results[i] = stepOutcome{step: step, outcome: outcome}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Pause moves an in-progress journey to paused.
func (e *Engine) Pause(ctx context.Context, key playbook.Key) (*playbook.Progress, error) {
	return e.transition(ctx, OpPause, key, (*playbook.Progress).Pause, pubsub.JourneyPausedEvent)
}

// Resume moves a paused journey back to in progress.
func (e *Engine) Resume(ctx context.Context, key playbook.Key) (*playbook.Progress, error) {
	return e.transition(ctx, OpResume, key, (*playbook.Progress).Resume, pubsub.JourneyResumedEvent)
}

func (e *Engine) transition(
	ctx context.Context,
	op string,
	key playbook.Key,
	apply func(*playbook.Progress, time.Time) error,
	event pubsub.EventType,
) (_ *playbook.Progress, err error) {
	ctx, _, end := e.begin(ctx, op, keyAttrs(key)...)
	defer func() { end(err) }()

	progress, err := e.progress.FindByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := apply(progress, e.now()); err != nil {
		return nil, err
	}
	if err := e.progress.Save(ctx, progress); err != nil {
		if errors.Is(err, playbook.ErrConcurrentModification) {
			e.metrics.IncConflict()
		}
		return nil, fmt.Errorf("failed to save progress %s: %w", progress.ID(), err)
	}
	log.Info(log.CatEngine, "journey "+op+"d", "progressID", progress.ID())
	e.publish(event, progress, nil)
	return progress, nil
}

// GetProgress returns the journey for key.
func (e *Engine) GetProgress(ctx context.Context, key playbook.Key) (*playbook.Progress, error) {
	return e.progress.FindByKey(ctx, key)
}

// GetProgressByID returns the journey with id.
func (e *Engine) GetProgressByID(ctx context.Context, id string) (*playbook.Progress, error) {
	return e.progress.FindByID(ctx, id)
}

// ListProgress returns every journey of a user in an organization, newest first.
func (e *Engine) ListProgress(ctx context.Context, userID, organizationID string) ([]*playbook.Progress, error) {
	return e.progress.ListByOwner(ctx, userID, organizationID)
}

// ListStepResponses returns the audit trail of a journey, oldest first.
func (e *Engine) ListStepResponses(ctx context.Context, progressID string) ([]*playbook.StepResponse, error) {
	if _, err := e.progress.FindByID(ctx, progressID); err != nil {
		return nil, err
	}
	return e.responses.ListByProgress(ctx, progressID)
}

// ListTemplates returns every known template.
func (e *Engine) ListTemplates(ctx context.Context) ([]*playbook.Template, error) {
	return e.templates.List(ctx)
}

// GetTemplate returns the template with id.
func (e *Engine) GetTemplate(ctx context.Context, id string) (*playbook.Template, error) {
	return e.templates.Get(ctx, id)
}
