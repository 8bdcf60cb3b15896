package templates

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
)

func TestRecordSource_PutGetList(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemory()
	src := NewRecordSource(store)

	tpl, err := ParseTemplate([]byte(twoStepYAML))
	require.NoError(t, err)
	require.NoError(t, src.Put(ctx, tpl))

	got, err := src.Get(ctx, "two-step")
	require.NoError(t, err)
	require.Equal(t, tpl.StepIDs(), got.StepIDs())
	require.Equal(t, tpl.Steps[1].EstimatedDuration, got.Steps[1].EstimatedDuration)
	require.Equal(t, "expenses", got.Steps[0].Metadata["table"])

	tpl.Name = "Renamed"
	require.NoError(t, src.Put(ctx, tpl))
	require.Equal(t, 1, store.Count(RecordsTable), "put replaces the existing record")

	all, err := src.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "Renamed", all[0].Name)
}

func TestRecordSource_GetNotFound(t *testing.T) {
	src := NewRecordSource(recordstore.NewMemory())

	_, err := src.Get(context.Background(), "missing")
	var tnf *playbook.TemplateNotFoundError
	require.ErrorAs(t, err, &tnf)
}

func TestRecordSource_StoreFailure(t *testing.T) {
	store := recordstore.NewMemory()
	boom := errors.New("connection refused")
	store.FailTable(RecordsTable, boom)
	src := NewRecordSource(store)

	_, err := src.Get(context.Background(), "any")
	require.ErrorIs(t, err, boom)
	require.False(t, playbook.IsNotFound(err))
}

func TestRecordSource_InvalidRecord(t *testing.T) {
	ctx := context.Background()
	store := recordstore.NewMemory()
	_, err := store.Insert(ctx, RecordsTable, recordstore.Record{
		"template_id": "broken",
		"category":    "business",
	})
	require.NoError(t, err)

	_, err = NewRecordSource(store).Get(ctx, "broken")
	require.ErrorContains(t, err, "invalid template record")
}

func TestRecordSource_Seed(t *testing.T) {
	ctx := context.Background()
	catalog, err := NewCatalog(CatalogFS(), "")
	require.NoError(t, err)

	src := NewRecordSource(recordstore.NewMemory())
	n, err := src.Seed(ctx, catalog)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	n, err = src.Seed(ctx, catalog)
	require.NoError(t, err)
	require.Zero(t, n, "seeding is idempotent")

	onboarding, err := src.Get(ctx, "onboarding-v1")
	require.NoError(t, err)
	require.Len(t, onboarding.Steps, 5)
	require.Equal(t, 3, onboarding.RequiredCount())
}

func TestRecordSource_SyncWritesChangedTemplates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), []byte(twoStepYAML), 0o600))
	catalog, err := NewCatalog(CatalogFS(), dir)
	require.NoError(t, err)

	src := NewRecordSource(recordstore.NewMemory())
	n, err := src.Seed(ctx, catalog)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	n, err = src.Sync(ctx, catalog)
	require.NoError(t, err)
	require.Zero(t, n, "unchanged templates are not rewritten")

	edited := strings.Replace(twoStepYAML, "name: Two Step", "name: Two Step Edited", 1)
	require.NotEqual(t, twoStepYAML, edited)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "two.yaml"), []byte(edited), 0o600))
	require.NoError(t, catalog.Reload())

	n, err = src.Seed(ctx, catalog)
	require.NoError(t, err)
	require.Zero(t, n, "seed leaves existing ids alone")

	n, err = src.Sync(ctx, catalog)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got, err := src.Get(ctx, "two-step")
	require.NoError(t, err)
	require.Equal(t, "Two Step Edited", got.Name)
}
