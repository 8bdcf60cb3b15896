// Package storetest holds the behavioural contract every recordstore.Store
// implementation must satisfy.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/recordstore"
)

// Run exercises store against the recordstore contract. newStore must return
// an empty store.
func Run(t *testing.T, newStore func(t *testing.T) recordstore.Store) {
	t.Helper()

	t.Run("InsertAssignsReservedFields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec, err := store.Insert(ctx, "team_members", recordstore.Record{
			"organization_id": "org-1",
			"name":            "Ada",
		})
		require.NoError(t, err)
		require.NotEmpty(t, rec.ID(), "store must assign an id")
		require.False(t, rec.Time(recordstore.FieldCreatedAt).IsZero(), "created_at must be set")
		require.False(t, rec.Time(recordstore.FieldUpdatedAt).IsZero(), "updated_at must be set")
		require.Equal(t, "Ada", rec.String("name"))
	})

	t.Run("SelectOneAbsentReturnsNil", func(t *testing.T) {
		store := newStore(t)

		rec, err := store.SelectOne(context.Background(), "business_identity", recordstore.Filter{"organization_id": "missing"})
		require.NoError(t, err, "absence is not an error")
		require.Nil(t, rec)
	})

	t.Run("SelectFiltersByEquality", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, r := range []recordstore.Record{
			{"organization_id": "org-1", "status": "active", "priority": 1},
			{"organization_id": "org-1", "status": "inactive", "priority": 2},
			{"organization_id": "org-2", "status": "active", "priority": 3},
		} {
			_, err := store.Insert(ctx, "integrations", r)
			require.NoError(t, err)
		}

		active, err := store.SelectMany(ctx, "integrations", recordstore.Filter{"organization_id": "org-1", "status": "active"})
		require.NoError(t, err)
		require.Len(t, active, 1)
		n, ok := active[0].Int("priority")
		require.True(t, ok)
		require.Equal(t, 1, n)

		byNumber, err := store.SelectMany(ctx, "integrations", recordstore.Filter{"priority": 3})
		require.NoError(t, err)
		require.Len(t, byNumber, 1)
		require.Equal(t, "org-2", byNumber[0].String("organization_id"))

		all, err := store.SelectMany(ctx, "integrations", nil)
		require.NoError(t, err)
		require.Len(t, all, 3)
	})

	t.Run("SelectFiltersOnBool", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "flags", recordstore.Record{"name": "a", "enabled": true})
		require.NoError(t, err)
		_, err = store.Insert(ctx, "flags", recordstore.Record{"name": "b", "enabled": false})
		require.NoError(t, err)

		got, err := store.SelectMany(ctx, "flags", recordstore.Filter{"enabled": true})
		require.NoError(t, err)
		require.Len(t, got, 1)
		require.Equal(t, "a", got[0].String("name"))
	})

	t.Run("SelectManyOrdersResults", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, order := range []int{2, 3, 1} {
			_, err := store.Insert(ctx, "steps", recordstore.Record{"order": order})
			require.NoError(t, err)
		}

		asc, err := store.SelectMany(ctx, "steps", nil, recordstore.OrderBy{Field: "order"})
		require.NoError(t, err)
		require.Len(t, asc, 3)
		for i, want := range []int{1, 2, 3} {
			got, _ := asc[i].Int("order")
			require.Equal(t, want, got, "ascending position %d", i)
		}

		desc, err := store.SelectMany(ctx, "steps", nil, recordstore.OrderBy{Field: "order", Desc: true})
		require.NoError(t, err)
		first, _ := desc[0].Int("order")
		require.Equal(t, 3, first)
	})

	t.Run("SelectManyDefaultsToInsertionOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, name := range []string{"c", "a", "b"} {
			_, err := store.Insert(ctx, "names", recordstore.Record{"name": name})
			require.NoError(t, err)
		}

		got, err := store.SelectMany(ctx, "names", nil)
		require.NoError(t, err)
		require.Len(t, got, 3)
		require.Equal(t, "c", got[0].String("name"))
		require.Equal(t, "a", got[1].String("name"))
		require.Equal(t, "b", got[2].String("name"))
	})

	t.Run("NestedValuesRoundTrip", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, "revenue_models", recordstore.Record{
			"organization_id": "org-1",
			"streams": []any{
				map[string]any{"name": "subscriptions", "amount": 1200.5},
			},
		})
		require.NoError(t, err)

		rec, err := store.SelectOne(ctx, "revenue_models", recordstore.Filter{"organization_id": "org-1"})
		require.NoError(t, err)
		require.NotNil(t, rec)

		streams := rec.List("streams")
		require.Len(t, streams, 1)
		stream, ok := recordstore.AsRecord(streams[0])
		require.True(t, ok)
		amount, ok := stream.Float("amount")
		require.True(t, ok)
		require.InDelta(t, 1200.5, amount, 0.0001)
	})

	t.Run("UpdateSingleMatch", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec, err := store.Insert(ctx, "playbook_progress", recordstore.Record{"status": "in_progress", "version": 1})
		require.NoError(t, err)

		updated, err := store.Update(ctx, "playbook_progress",
			recordstore.Filter{"id": rec.ID(), "version": 1},
			recordstore.Record{"status": "completed", "version": 2, "id": "ignored"},
		)
		require.NoError(t, err)
		require.Equal(t, rec.ID(), updated.ID(), "id must not be patched")
		require.Equal(t, "completed", updated.String("status"))

		again, err := store.SelectOne(ctx, "playbook_progress", recordstore.Filter{"id": rec.ID()})
		require.NoError(t, err)
		v, _ := again.Int("version")
		require.Equal(t, 2, v)
		require.Equal(t, rec.String(recordstore.FieldCreatedAt), again.String(recordstore.FieldCreatedAt))
	})

	t.Run("UpdateNoMatch", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec, err := store.Insert(ctx, "playbook_progress", recordstore.Record{"version": 2})
		require.NoError(t, err)

		_, err = store.Update(ctx, "playbook_progress",
			recordstore.Filter{"id": rec.ID(), "version": 1},
			recordstore.Record{"version": 3},
		)
		require.ErrorIs(t, err, recordstore.ErrNoMatch, "stale version must not match")
	})

	t.Run("UpdateAmbiguous", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for i := 0; i < 2; i++ {
			_, err := store.Insert(ctx, "team_members", recordstore.Record{"organization_id": "org-1"})
			require.NoError(t, err)
		}

		_, err := store.Update(ctx, "team_members",
			recordstore.Filter{"organization_id": "org-1"},
			recordstore.Record{"role": "owner"},
		)
		require.ErrorIs(t, err, recordstore.ErrAmbiguousUpdate)

		rows, err := store.SelectMany(ctx, "team_members", recordstore.Filter{"role": "owner"})
		require.NoError(t, err)
		require.Empty(t, rows, "ambiguous update must not touch any record")
	})

	t.Run("RejectsInvalidNames", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.SelectMany(ctx, "bad table", nil)
		require.ErrorIs(t, err, recordstore.ErrInvalidName)

		_, err = store.SelectOne(ctx, "records", recordstore.Filter{"a') OR 1=1 --": "x"})
		require.ErrorIs(t, err, recordstore.ErrInvalidName)

		_, err = store.Insert(ctx, "records", recordstore.Record{"bad-field": 1})
		require.ErrorIs(t, err, recordstore.ErrInvalidName)
	})
}
