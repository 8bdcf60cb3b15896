// Package onboarding specializes the journey engine for the single template
// new users go through first.
package onboarding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/log"
	"github.com/zjrosen/playbook/internal/playbook"
)

// ErrNoOnboardingTemplate is returned when no template has the onboarding category.
var ErrNoOnboardingTemplate = errors.New("no onboarding template found")

// AmbiguousOnboardingError is returned when several templates have the
// onboarding category and none is pinned.
type AmbiguousOnboardingError struct {
	TemplateIDs []string
}

func (e *AmbiguousOnboardingError) Error() string {
	return fmt.Sprintf("several onboarding templates found (%s); pin one with onboarding.template_id",
		strings.Join(e.TemplateIDs, ", "))
}

// NotOnboardingTemplateError is returned when the pinned template exists but
// belongs to another category.
type NotOnboardingTemplateError struct {
	TemplateID string
	Category   playbook.Category
}

func (e *NotOnboardingTemplateError) Error() string {
	return fmt.Sprintf("template %s has category %s, not onboarding", e.TemplateID, e.Category)
}

// Hook runs once when a user finishes onboarding.
type Hook interface {
	HandleOnboardingCompletion(ctx context.Context, progress *playbook.Progress) error
}

// NopHook does nothing.
type NopHook struct{}

func (NopHook) HandleOnboardingCompletion(context.Context, *playbook.Progress) error { return nil }

// Engine is the subset of *engine.Engine the service delegates to.
type Engine interface {
	StartPlaybook(ctx context.Context, key playbook.Key, metadata map[string]any) (*playbook.Progress, error)
	CheckAndUpdateStepCompletion(ctx context.Context, key playbook.Key) (*playbook.Progress, error)
	CompletePlaybookItem(ctx context.Context, progressID, stepID string, responseData map[string]any) (*playbook.Progress, error)
	GetStepCompletionStatus(ctx context.Context, key playbook.Key) (*engine.StatusReport, error)
	GetProgress(ctx context.Context, key playbook.Key) (*playbook.Progress, error)
	ListTemplates(ctx context.Context) ([]*playbook.Template, error)
	GetTemplate(ctx context.Context, id string) (*playbook.Template, error)
	AddHook(h engine.CompletionHook)
}

var _ Engine = (*engine.Engine)(nil)

// Config holds the service dependencies.
type Config struct {
	// Engine is required.
	Engine Engine
	// TemplateID pins the onboarding template. Optional.
	TemplateID string
	// Hook defaults to NopHook.
	Hook Hook
}

// Service resolves the onboarding template and delegates to the engine.
type Service struct {
	engine     Engine
	templateID string
	hook       Hook
}

// New creates a Service and registers its completion hook with the engine.
func New(cfg Config) (*Service, error) {
	if cfg.Engine == nil {
		return nil, errors.New("engine is required")
	}
	hook := cfg.Hook
	if hook == nil {
		hook = NopHook{}
	}
	s := &Service{engine: cfg.Engine, templateID: cfg.TemplateID, hook: hook}
	cfg.Engine.AddHook(engine.CompletionHookFunc(s.onJourneyCompleted))
	return s, nil
}

// Template returns the onboarding template. Resolution happens on every call
// so catalog reloads are picked up.
func (s *Service) Template(ctx context.Context) (*playbook.Template, error) {
	if s.templateID != "" {
		tpl, err := s.engine.GetTemplate(ctx, s.templateID)
		if err != nil {
			return nil, err
		}
		if tpl.Category != playbook.CategoryOnboarding {
			return nil, &NotOnboardingTemplateError{TemplateID: tpl.ID, Category: tpl.Category}
		}
		return tpl, nil
	}

	all, err := s.engine.ListTemplates(ctx)
	if err != nil {
		return nil, err
	}
	var found []*playbook.Template
	for _, tpl := range all {
		if tpl.Category == playbook.CategoryOnboarding {
			found = append(found, tpl)
		}
	}
	switch len(found) {
	case 0:
		return nil, ErrNoOnboardingTemplate
	case 1:
		return found[0], nil
	}
	ids := make([]string, len(found))
	for i, tpl := range found {
		ids[i] = tpl.ID
	}
	return nil, &AmbiguousOnboardingError{TemplateIDs: ids}
}

func (s *Service) key(ctx context.Context, userID, organizationID string) (playbook.Key, error) {
	tpl, err := s.Template(ctx)
	if err != nil {
		return playbook.Key{}, err
	}
	return playbook.Key{UserID: userID, OrganizationID: organizationID, PlaybookID: tpl.ID}, nil
}

// Start begins onboarding for the user, or returns the existing journey.
func (s *Service) Start(ctx context.Context, userID, organizationID string, metadata map[string]any) (*playbook.Progress, error) {
	key, err := s.key(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.engine.StartPlaybook(ctx, key, metadata)
}

// CompleteStep submits a step of the user's onboarding journey.
func (s *Service) CompleteStep(ctx context.Context, userID, organizationID, stepID string, responseData map[string]any) (*playbook.Progress, error) {
	progress, err := s.Progress(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.engine.CompletePlaybookItem(ctx, progress.ID(), stepID, responseData)
}

// Check auto-completes onboarding steps already satisfied by records.
func (s *Service) Check(ctx context.Context, userID, organizationID string) (*playbook.Progress, error) {
	key, err := s.key(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.engine.CheckAndUpdateStepCompletion(ctx, key)
}

// Status reports every onboarding step for display.
func (s *Service) Status(ctx context.Context, userID, organizationID string) (*engine.StatusReport, error) {
	key, err := s.key(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.engine.GetStepCompletionStatus(ctx, key)
}

// Progress returns the user's onboarding journey.
func (s *Service) Progress(ctx context.Context, userID, organizationID string) (*playbook.Progress, error) {
	key, err := s.key(ctx, userID, organizationID)
	if err != nil {
		return nil, err
	}
	return s.engine.GetProgress(ctx, key)
}

// IsComplete reports whether the user finished onboarding. A journey that
// was never started is not complete.
func (s *Service) IsComplete(ctx context.Context, userID, organizationID string) (bool, error) {
	progress, err := s.Progress(ctx, userID, organizationID)
	var notFound *playbook.ProgressNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return progress.IsCompleted(), nil
}

func (s *Service) onJourneyCompleted(ctx context.Context, progress *playbook.Progress) error {
	tpl, err := s.Template(ctx)
	if err != nil {
		log.Debug(log.CatOnboarding, "skipping completion hook", "playbookID", progress.PlaybookID(), "reason", err.Error())
		return nil
	}
	if progress.PlaybookID() != tpl.ID {
		return nil
	}
	log.Info(log.CatOnboarding, "onboarding completed",
		"userID", progress.UserID(), "organizationID", progress.OrganizationID(), "progressID", progress.ID())
	if err := s.hook.HandleOnboardingCompletion(ctx, progress); err != nil {
		return fmt.Errorf("onboarding completion hook: %w", err)
	}
	return nil
}
