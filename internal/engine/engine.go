// Package engine keeps journey progress consistent with template structure
// and verification results.
//
// Every operation is request scoped: sequential reads, parallel rule lookups,
// then at most one conditional write of the progress record. The engine holds
// no journey state between calls.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/metrics"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/pubsub"
	"github.com/zjrosen/playbook/internal/verification"
)

// DefaultParallelism bounds concurrent rule lookups per operation.
const DefaultParallelism = 4

// Verifier decides whether a step is already satisfied by external records.
// *verification.Registry implements it.
type Verifier interface {
	Check(ctx context.Context, s verification.Subject) verification.Outcome
	Criteria(stepType playbook.StepType) []string
}

// CompletionHook runs once when a journey first reaches completed.
type CompletionHook interface {
	OnJourneyCompleted(ctx context.Context, progress *playbook.Progress) error
}

// CompletionHookFunc adapts a function into a CompletionHook.
type CompletionHookFunc func(ctx context.Context, progress *playbook.Progress) error

func (f CompletionHookFunc) OnJourneyCompleted(ctx context.Context, progress *playbook.Progress) error {
	return f(ctx, progress)
}

// ProgressEvent is published whenever a journey changes.
type ProgressEvent struct {
	ProgressID     string
	UserID         string
	OrganizationID string
	PlaybookID     string
	Status         playbook.Status
	Percentage     int
	// StepIDs lists the steps completed by the operation, if any.
	StepIDs []string
}

// Config holds the engine's collaborators.
type Config struct {
	// Templates is required.
	Templates playbook.TemplateStore
	// Progress is required.
	Progress playbook.ProgressRepository
	// Responses is required.
	Responses playbook.StepResponseRepository
	// Verifier is required.
	Verifier Verifier

	// Broker receives progress events. A private broker is created if nil.
	Broker *pubsub.Broker[ProgressEvent]
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Tracer may be nil.
	Tracer trace.Tracer
	// Clock defaults to time.Now.
	Clock func() time.Time
	// Parallelism bounds concurrent rule lookups. Defaults to DefaultParallelism.
	Parallelism int
	// Hooks run after a journey completes.
	Hooks []CompletionHook
}

// Validate checks that all required collaborators are provided.
func (c *Config) Validate() error {
	if c.Templates == nil {
		return errors.New("template store is required")
	}
	if c.Progress == nil {
		return errors.New("progress repository is required")
	}
	if c.Responses == nil {
		return errors.New("step response repository is required")
	}
	if c.Verifier == nil {
		return errors.New("verifier is required")
	}
	return nil
}

// Engine implements the journey operations.
type Engine struct {
	templates   playbook.TemplateStore
	progress    playbook.ProgressRepository
	responses   playbook.StepResponseRepository
	verifier    Verifier
	broker      *pubsub.Broker[ProgressEvent]
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	clock       func() time.Time
	parallelism int

	hooksMu sync.RWMutex
	hooks   []CompletionHook
}

// New creates an Engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	broker := cfg.Broker
	if broker == nil {
		broker = pubsub.NewBroker[ProgressEvent]()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	parallelism := cfg.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	return &Engine{
		templates:   cfg.Templates,
		progress:    cfg.Progress,
		responses:   cfg.Responses,
		verifier:    cfg.Verifier,
		broker:      broker,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		clock:       clock,
		parallelism: parallelism,
		hooks:       append([]CompletionHook(nil), cfg.Hooks...),
	}, nil
}

// AddHook registers a completion hook.
func (e *Engine) AddHook(h CompletionHook) {
	e.hooksMu.Lock()
	defer e.hooksMu.Unlock()
	e.hooks = append(e.hooks, h)
}

// Subscribe returns a channel of progress events until ctx is done.
func (e *Engine) Subscribe(ctx context.Context) <-chan pubsub.Event[ProgressEvent] {
	return e.broker.Subscribe(ctx)
}

// Templates returns the template store the engine reads from.
func (e *Engine) Templates() playbook.TemplateStore {
	return e.templates
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) publish(t pubsub.EventType, p *playbook.Progress, stepIDs []string) {
	e.broker.Publish(t, ProgressEvent{
		ProgressID:     p.ID(),
		UserID:         p.UserID(),
		OrganizationID: p.OrganizationID(),
		PlaybookID:     p.PlaybookID(),
		Status:         p.Status(),
		Percentage:     p.Percentage(),
		StepIDs:        stepIDs,
	})
}

func (e *Engine) runHooks(ctx context.Context, p *playbook.Progress) {
	e.hooksMu.RLock()
	hooks := append([]CompletionHook(nil), e.hooks...)
	e.hooksMu.RUnlock()

	for _, h := range hooks {
		if err := h.OnJourneyCompleted(ctx, p.Clone()); err != nil {
			log.ErrorErr(log.CatEngine, "completion hook failed", err,
				"progressID", p.ID(), "playbookID", p.PlaybookID())
		}
	}
}
