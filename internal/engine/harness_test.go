package engine_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/engine"
	"github.com/zjrosen/playbook/internal/infrastructure/records"
	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/templates"
	"github.com/zjrosen/playbook/internal/testutil"
	"github.com/zjrosen/playbook/internal/verification"
)

const legacyTemplate = `
id: legacy-flow
name: Legacy Flow
category: operational
steps:
  - {id: intro, title: Intro, step_type: form, required: true, order: 1}
  - {id: old-step, title: Old step, step_type: legacy_unmapped, order: 2}
`

type harness struct {
	store     *recordstore.Memory
	registry  *verification.Registry
	progress  playbook.ProgressRepository
	responses playbook.StepResponseRepository
	engine    *engine.Engine
}

func newHarness(t *testing.T, opts ...func(*engine.Config)) *harness {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "legacy.yaml"), []byte(legacyTemplate), 0o600))
	catalog, err := templates.NewCatalog(templates.CatalogFS(), dir)
	require.NoError(t, err)

	store := recordstore.NewMemory()
	h := &harness{
		store:     store,
		registry:  verification.NewDefaultRegistry(store),
		progress:  records.NewProgressRepository(store),
		responses: records.NewStepResponseRepository(store),
	}
	cfg := engine.Config{
		Templates: catalog,
		Progress:  h.progress,
		Responses: h.responses,
		Verifier:  h.registry,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	h.engine, err = engine.New(cfg)
	require.NoError(t, err)
	return h
}

func onboardingKey() playbook.Key {
	return playbook.Key{UserID: "u1", OrganizationID: "o1", PlaybookID: "onboarding-v1"}
}

func (h *harness) insert(t *testing.T, table string, rec recordstore.Record) {
	t.Helper()
	_, err := h.store.Insert(context.Background(), table, rec)
	require.NoError(t, err)
}

// seedIdentity makes core-identity-priorities verifiable for o1.
func (h *harness) seedIdentity(t *testing.T) {
	testutil.NewBuilder(t, h.store).WithIdentity("o1").Build()
}

// seedAll makes every onboarding-v1 step verifiable for u1 in o1.
func (h *harness) seedAll(t *testing.T) {
	testutil.NewBuilder(t, h.store).WithCompleteOnboarding("o1", "u1").Build()
}

func requireInvariants(t *testing.T, p *playbook.Progress, tpl *playbook.Template) {
	t.Helper()
	completed := p.CompletedCount(tpl)
	require.Equal(t, playbook.Percentage(completed, len(tpl.Steps)), p.Percentage())
	require.Equal(t, p.Percentage() == 100, p.Status() == playbook.StatusCompleted)
	require.Equal(t, completed == 0, p.Status() == playbook.StatusNotStarted)
}
