package onboarding_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/infrastructure/records"
	"github.com/zjrosen/playbook/internal/onboarding"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/templates"
	"github.com/zjrosen/playbook/internal/verification"
)

type mockHook struct {
	mock.Mock
}

func (m *mockHook) HandleOnboardingCompletion(ctx context.Context, progress *playbook.Progress) error {
	args := m.Called(ctx, progress)
	return args.Error(0)
}

func formTemplate(id string, category playbook.Category, stepIDs ...string) *playbook.Template {
	tpl := &playbook.Template{ID: id, Name: id, Category: category}
	for i, sid := range stepIDs {
		tpl.Steps = append(tpl.Steps, playbook.Step{
			ID: sid, Title: sid, StepType: verification.StepTypeForm, IsRequired: true, Order: i + 1,
		})
	}
	return tpl
}

func newEngine(t *testing.T, tpls ...*playbook.Template) *engine.Engine {
	t.Helper()
	catalog, err := templates.NewCatalogFromTemplates(tpls...)
	require.NoError(t, err)
	store := recordstore.NewMemory()
	e, err := engine.New(engine.Config{
		Templates: catalog,
		Progress:  records.NewProgressRepository(store),
		Responses: records.NewStepResponseRepository(store),
		Verifier:  verification.NewDefaultRegistry(store),
	})
	require.NoError(t, err)
	return e
}

func TestNew_RequiresEngine(t *testing.T) {
	_, err := onboarding.New(onboarding.Config{})
	require.Error(t, err)
}

func TestTemplate_Resolution(t *testing.T) {
	ctx := context.Background()
	welcome := formTemplate("welcome", playbook.CategoryOnboarding, "hello")
	second := formTemplate("welcome-v2", playbook.CategoryOnboarding, "hi")
	finance := formTemplate("finance", playbook.CategoryBusiness, "ledger")

	t.Run("single", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, welcome, finance)})
		require.NoError(t, err)
		tpl, err := svc.Template(ctx)
		require.NoError(t, err)
		require.Equal(t, "welcome", tpl.ID)
	})

	t.Run("none", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, finance)})
		require.NoError(t, err)
		_, err = svc.Template(ctx)
		require.ErrorIs(t, err, onboarding.ErrNoOnboardingTemplate)
	})

	t.Run("ambiguous", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, welcome, second)})
		require.NoError(t, err)
		_, err = svc.Template(ctx)
		var amb *onboarding.AmbiguousOnboardingError
		require.ErrorAs(t, err, &amb)
		require.Equal(t, []string{"welcome", "welcome-v2"}, amb.TemplateIDs)
	})

	t.Run("pinned", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, welcome, second), TemplateID: "welcome-v2"})
		require.NoError(t, err)
		tpl, err := svc.Template(ctx)
		require.NoError(t, err)
		require.Equal(t, "welcome-v2", tpl.ID)
	})

	t.Run("pinned to other category", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, welcome, finance), TemplateID: "finance"})
		require.NoError(t, err)
		_, err = svc.Template(ctx)
		var wrong *onboarding.NotOnboardingTemplateError
		require.ErrorAs(t, err, &wrong)
		require.Equal(t, playbook.CategoryBusiness, wrong.Category)
	})

	t.Run("pinned missing", func(t *testing.T) {
		svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, welcome), TemplateID: "gone"})
		require.NoError(t, err)
		_, err = svc.Template(ctx)
		var tnf *playbook.TemplateNotFoundError
		require.ErrorAs(t, err, &tnf)
	})
}

func TestOnboardingFlow(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t,
		formTemplate("welcome", playbook.CategoryOnboarding, "hello", "profile"),
		formTemplate("finance", playbook.CategoryBusiness, "ledger"),
	)
	hook := &mockHook{}
	hook.On("HandleOnboardingCompletion", mock.Anything, mock.MatchedBy(func(p *playbook.Progress) bool {
		return p.PlaybookID() == "welcome" && p.IsCompleted()
	})).Return(nil).Once()

	svc, err := onboarding.New(onboarding.Config{Engine: e, Hook: hook})
	require.NoError(t, err)

	done, err := svc.IsComplete(ctx, "u1", "o1")
	require.NoError(t, err)
	require.False(t, done)

	_, err = svc.CompleteStep(ctx, "u1", "o1", "hello", nil)
	require.True(t, playbook.IsNotFound(err))

	p, err := svc.Start(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	require.Equal(t, "welcome", p.PlaybookID())

	p, err = svc.CompleteStep(ctx, "u1", "o1", "hello", map[string]any{"ok": true})
	require.NoError(t, err)
	require.Equal(t, 50, p.Percentage())

	report, err := svc.Status(ctx, "u1", "o1")
	require.NoError(t, err)
	require.Equal(t, 1, report.CompletedCount)

	p, err = svc.Check(ctx, "u1", "o1")
	require.NoError(t, err)
	require.Equal(t, 50, p.Percentage())

	// Completing another template does not count as onboarding.
	other, err := e.StartPlaybook(ctx, playbook.Key{UserID: "u1", OrganizationID: "o1", PlaybookID: "finance"}, nil)
	require.NoError(t, err)
	_, err = e.CompletePlaybookItem(ctx, other.ID(), "ledger", nil)
	require.NoError(t, err)
	hook.AssertNotCalled(t, "HandleOnboardingCompletion", mock.Anything, mock.Anything)

	p, err = svc.CompleteStep(ctx, "u1", "o1", "profile", nil)
	require.NoError(t, err)
	require.True(t, p.IsCompleted())

	done, err = svc.IsComplete(ctx, "u1", "o1")
	require.NoError(t, err)
	require.True(t, done)
	hook.AssertExpectations(t)
}

func TestOnboardingHookFailureDoesNotFailCompletion(t *testing.T) {
	ctx := context.Background()
	e := newEngine(t, formTemplate("welcome", playbook.CategoryOnboarding, "hello"))
	hook := &mockHook{}
	hook.On("HandleOnboardingCompletion", mock.Anything, mock.Anything).Return(errors.New("provisioning down")).Once()

	svc, err := onboarding.New(onboarding.Config{Engine: e, Hook: hook})
	require.NoError(t, err)

	_, err = svc.Start(ctx, "u1", "o1", nil)
	require.NoError(t, err)
	p, err := svc.CompleteStep(ctx, "u1", "o1", "hello", nil)
	require.NoError(t, err)
	require.True(t, p.IsCompleted())
	hook.AssertExpectations(t)
}

func TestOperationsFailWithoutTemplate(t *testing.T) {
	ctx := context.Background()
	svc, err := onboarding.New(onboarding.Config{Engine: newEngine(t, formTemplate("finance", playbook.CategoryBusiness, "x"))})
	require.NoError(t, err)

	_, err = svc.Start(ctx, "u1", "o1", nil)
	require.ErrorIs(t, err, onboarding.ErrNoOnboardingTemplate)
	_, err = svc.Check(ctx, "u1", "o1")
	require.ErrorIs(t, err, onboarding.ErrNoOnboardingTemplate)
	_, err = svc.Status(ctx, "u1", "o1")
	require.ErrorIs(t, err, onboarding.ErrNoOnboardingTemplate)
	_, err = svc.IsComplete(ctx, "u1", "o1")
	require.ErrorIs(t, err, onboarding.ErrNoOnboardingTemplate)
}
