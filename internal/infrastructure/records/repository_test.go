package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/playbook"
	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/testutil"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func backends(t *testing.T, fn func(t *testing.T, store recordstore.Store)) {
	testutil.Backends(t, fn)
}

func testKey() playbook.Key {
	return playbook.Key{UserID: "u1", OrganizationID: "o1", PlaybookID: "onboarding-v1"}
}

func TestProgressRepository_CreateAndFind(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewProgressRepository(store)
		ctx := context.Background()

		p := playbook.NewProgress(testKey(), map[string]any{"source": "signup"}, t0)
		require.NoError(t, repo.Create(ctx, p))
		require.NotEmpty(t, p.ID(), "Create should assign an id")
		require.Equal(t, 1, p.Version())

		byKey, err := repo.FindByKey(ctx, testKey())
		require.NoError(t, err)
		require.Equal(t, p.ID(), byKey.ID())
		require.Equal(t, playbook.StatusNotStarted, byKey.Status())
		require.Equal(t, "signup", byKey.Metadata()["source"])

		byID, err := repo.FindByID(ctx, p.ID())
		require.NoError(t, err)
		require.Equal(t, byKey, byID)
		require.Equal(t, p, byID, "Create refreshes the entity from the stored record")
	})
}

func TestProgressRepository_NotFound(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewProgressRepository(store)
		ctx := context.Background()

		_, err := repo.FindByKey(ctx, testKey())
		var pnf *playbook.ProgressNotFoundError
		require.True(t, errors.As(err, &pnf))
		require.Equal(t, testKey(), pnf.Key)

		_, err = repo.FindByID(ctx, "missing")
		require.True(t, errors.As(err, &pnf))
		require.Equal(t, "missing", pnf.ID)
	})
}

func TestProgressRepository_SaveRoundTripsSteps(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewProgressRepository(store)
		ctx := context.Background()
		tmpl := &playbook.Template{ID: "onboarding-v1", Category: playbook.CategoryOnboarding, Steps: []playbook.Step{
			{ID: "welcome", StepType: "form", Order: 1},
			{ID: "identity", StepType: "identity_setup", Order: 2},
		}}

		p := playbook.NewProgress(testKey(), nil, t0)
		require.NoError(t, repo.Create(ctx, p))

		p.CompleteStep("welcome", false, map[string]any{"goal": "grow"}, t0.Add(time.Minute))
		p.CompleteStep("identity", true, nil, t0.Add(2*time.Minute))
		require.True(t, p.Recompute(tmpl, t0.Add(2*time.Minute)))
		require.NoError(t, repo.Save(ctx, p))
		require.Equal(t, 2, p.Version())

		loaded, err := repo.FindByID(ctx, p.ID())
		require.NoError(t, err)
		require.Equal(t, playbook.StatusCompleted, loaded.Status())
		require.Equal(t, 100, loaded.Percentage())
		require.NotNil(t, loaded.CompletedAt())
		require.True(t, t0.Add(2*time.Minute).Equal(*loaded.CompletedAt()))

		welcome := loaded.StepState("welcome")
		require.Equal(t, playbook.StepCompleted, welcome.Status)
		require.False(t, welcome.AutoCompleted)
		require.Equal(t, "grow", welcome.ResponseData["goal"])
		require.True(t, t0.Add(time.Minute).Equal(*welcome.CompletedAt))

		identity := loaded.StepState("identity")
		require.True(t, identity.AutoCompleted)
		require.Nil(t, identity.ResponseData)
	})
}

func TestProgressRepository_SaveDetectsConcurrentModification(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewProgressRepository(store)
		ctx := context.Background()

		p := playbook.NewProgress(testKey(), nil, t0)
		require.NoError(t, repo.Create(ctx, p))

		first, err := repo.FindByID(ctx, p.ID())
		require.NoError(t, err)
		second, err := repo.FindByID(ctx, p.ID())
		require.NoError(t, err)

		first.CompleteStep("welcome", false, nil, t0)
		require.NoError(t, repo.Save(ctx, first))

		second.CompleteStep("identity", true, nil, t0)
		err = repo.Save(ctx, second)
		require.ErrorIs(t, err, playbook.ErrConcurrentModification)

		loaded, err := repo.FindByID(ctx, p.ID())
		require.NoError(t, err)
		require.True(t, loaded.IsStepCompleted("welcome"))
		require.False(t, loaded.IsStepCompleted("identity"), "losing write must not be applied")
	})
}

func TestProgressRepository_SaveMissing(t *testing.T) {
	repo := NewProgressRepository(recordstore.NewMemory())
	p := playbook.ReconstituteProgress("ghost", testKey(), playbook.StatusInProgress, 0, nil, nil, 1, t0, t0, nil, nil, nil)

	err := repo.Save(context.Background(), p)
	var pnf *playbook.ProgressNotFoundError
	require.True(t, errors.As(err, &pnf))

	err = repo.Save(context.Background(), playbook.NewProgress(testKey(), nil, t0))
	require.Error(t, err, "saving an uncreated journey fails")
}

func TestProgressRepository_ListByOwner(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewProgressRepository(store)
		ctx := context.Background()

		for _, key := range []playbook.Key{
			{UserID: "u1", OrganizationID: "o1", PlaybookID: "a"},
			{UserID: "u1", OrganizationID: "o1", PlaybookID: "b"},
			{UserID: "u1", OrganizationID: "o2", PlaybookID: "a"},
			{UserID: "u2", OrganizationID: "o1", PlaybookID: "a"},
		} {
			require.NoError(t, repo.Create(ctx, playbook.NewProgress(key, nil, t0)))
		}

		list, err := repo.ListByOwner(ctx, "u1", "o1")
		require.NoError(t, err)
		require.Len(t, list, 2)
		ids := []string{list[0].PlaybookID(), list[1].PlaybookID()}
		require.ElementsMatch(t, []string{"a", "b"}, ids)
	})
}

func TestProgressRepository_StoreFailure(t *testing.T) {
	store := recordstore.NewMemory()
	store.FailTable(ProgressTable, errors.New("network down"))
	repo := NewProgressRepository(store)

	_, err := repo.FindByKey(context.Background(), testKey())
	require.Error(t, err)
	var pnf *playbook.ProgressNotFoundError
	require.False(t, errors.As(err, &pnf), "transport errors are not absence")
}

func TestStepResponseRepository(t *testing.T) {
	backends(t, func(t *testing.T, store recordstore.Store) {
		repo := NewStepResponseRepository(store)
		ctx := context.Background()

		for i, step := range []string{"welcome", "welcome", "identity"} {
			resp := &playbook.StepResponse{
				ProgressID:     "p1",
				StepID:         step,
				UserID:         "u1",
				OrganizationID: "o1",
				ResponseData:   map[string]any{"attempt": i},
				SubmittedAt:    t0.Add(time.Duration(i) * time.Minute),
			}
			require.NoError(t, repo.Append(ctx, resp))
			require.NotEmpty(t, resp.ID)
		}
		require.NoError(t, repo.Append(ctx, &playbook.StepResponse{ProgressID: "p2", StepID: "x", SubmittedAt: t0}))

		list, err := repo.ListByProgress(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, list, 3)
		require.Equal(t, "welcome", list[0].StepID)
		require.Equal(t, "identity", list[2].StepID)
		require.True(t, t0.Add(2*time.Minute).Equal(list[2].SubmittedAt))
		require.Equal(t, 1.0, list[1].ResponseData["attempt"])
	})
}
