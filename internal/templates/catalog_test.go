package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/playbook"
)

func TestCatalog_BuiltInTemplates(t *testing.T) {
	c, err := NewCatalog(CatalogFS(), "")
	require.NoError(t, err)

	all, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "cash-flow-foundations", all[0].ID)
	require.Equal(t, "onboarding-v1", all[1].ID)

	onboarding, err := c.Get(context.Background(), "onboarding-v1")
	require.NoError(t, err)
	require.Equal(t, playbook.CategoryOnboarding, onboarding.Category)
	require.Len(t, onboarding.Steps, 5)
	require.Equal(t, 3, onboarding.RequiredCount())
	require.Equal(t, "welcome-introduction", onboarding.Steps[0].ID)
	require.Equal(t, "core-identity-priorities", onboarding.Steps[1].ID)
	require.Equal(t, playbook.StepType("identity_setup"), onboarding.Steps[1].StepType)
	require.Equal(t, time.Hour, onboarding.EstimatedDuration())

	origin, ok := c.Origin("onboarding-v1")
	require.True(t, ok)
	require.Equal(t, OriginEmbedded, origin)
}

func TestCatalog_GetNotFound(t *testing.T) {
	c, err := NewCatalog(CatalogFS(), "")
	require.NoError(t, err)

	_, err = c.Get(context.Background(), "nope")
	var tnf *playbook.TemplateNotFoundError
	require.ErrorAs(t, err, &tnf)
	require.Equal(t, "nope", tnf.PlaybookID)
}

func TestCatalog_UserOverlayOverridesAndReloads(t *testing.T) {
	dir := t.TempDir()
	override := `
id: onboarding-v1
name: Short Onboarding
category: onboarding
steps:
  - {id: welcome-introduction, step_type: form, order: 1}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "onboarding.yaml"), []byte(override), 0o600))

	c, err := NewCatalog(CatalogFS(), dir)
	require.NoError(t, err)
	require.Equal(t, dir, c.UserDir())

	tpl, err := c.Get(context.Background(), "onboarding-v1")
	require.NoError(t, err)
	require.Equal(t, "Short Onboarding", tpl.Name)
	require.Len(t, tpl.Steps, 1)
	origin, _ := c.Origin("onboarding-v1")
	require.Equal(t, OriginUser, origin)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(twoStepYAML), 0o600))
	require.NoError(t, c.Reload())

	_, err = c.Get(context.Background(), "two-step")
	require.NoError(t, err)
	all, err := c.List(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestCatalog_ReloadValidatedKeepsPreviousOnRejection(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	c, err := NewCatalog(CatalogFS(), dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "extra.yaml"), []byte(twoStepYAML), 0o600))
	rejected := errors.New("unmapped step type")
	var seen []string
	err = c.ReloadValidated(func(all []*playbook.Template) error {
		for _, tpl := range all {
			seen = append(seen, tpl.ID)
		}
		return rejected
	})
	require.ErrorIs(t, err, rejected)
	require.Equal(t, []string{"cash-flow-foundations", "onboarding-v1", "two-step"}, seen)

	_, err = c.Get(ctx, "two-step")
	require.True(t, playbook.IsNotFound(err), "rejected reload keeps the previous catalog")

	require.NoError(t, c.ReloadValidated(func([]*playbook.Template) error { return nil }))
	_, err = c.Get(ctx, "two-step")
	require.NoError(t, err)
}

func TestNewCatalogFromTemplates(t *testing.T) {
	tpl := &playbook.Template{
		ID:       "t",
		Category: playbook.CategoryBusiness,
		Steps: []playbook.Step{
			{ID: "b", StepType: "form", Order: 2},
			{ID: "a", StepType: "form", Order: 1},
		},
	}
	c, err := NewCatalogFromTemplates(tpl)
	require.NoError(t, err)

	got, err := c.Get(context.Background(), "t")
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got.StepIDs())

	_, err = NewCatalogFromTemplates(tpl, tpl)
	require.ErrorContains(t, err, "duplicate template id")

	_, err = NewCatalogFromTemplates(&playbook.Template{ID: "empty", Category: playbook.CategoryBusiness})
	require.Error(t, err)
}
