package sqlite

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/playbook/internal/recordstore"
	"github.com/zjrosen/playbook/internal/recordstore/storetest"
)

func TestRecordStore_Contract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) recordstore.Store {
		return setupTestDB(t).RecordStore()
	})
}

func TestRecordStore_CollectionsAreIsolated(t *testing.T) {
	store := setupTestDB(t).RecordStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, "team_members", recordstore.Record{"organization_id": "org-1"})
	require.NoError(t, err)

	rows, err := store.SelectMany(ctx, "knowledge_articles", recordstore.Filter{"organization_id": "org-1"})
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestRecordStore_NullFilter(t *testing.T) {
	store := setupTestDB(t).RecordStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, "playbook_progress", recordstore.Record{"status": "paused", "paused_at": "2025-01-01T00:00:00Z"})
	require.NoError(t, err)
	_, err = store.Insert(ctx, "playbook_progress", recordstore.Record{"status": "in_progress", "paused_at": nil})
	require.NoError(t, err)

	rows, err := store.SelectMany(ctx, "playbook_progress", recordstore.Filter{"paused_at": nil})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "in_progress", rows[0].String("status"))
}

type statusName string

func TestRecordStore_NamedStringFilter(t *testing.T) {
	store := setupTestDB(t).RecordStore()
	ctx := context.Background()

	_, err := store.Insert(ctx, "playbook_progress", recordstore.Record{"status": "completed"})
	require.NoError(t, err)

	rec, err := store.SelectOne(ctx, "playbook_progress", recordstore.Filter{"status": statusName("completed")})
	require.NoError(t, err)
	require.NotNil(t, rec)
}

func TestRecordStore_UnsupportedFilterValue(t *testing.T) {
	store := setupTestDB(t).RecordStore()

	_, err := store.SelectOne(context.Background(), "notes", recordstore.Filter{"tags": []string{"a"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported filter value")
}

// TestRecordStore_ConcurrentConditionalUpdates verifies that exactly one of
// several racing version-conditioned updates wins.
func TestRecordStore_ConcurrentConditionalUpdates(t *testing.T) {
	store := setupTestDB(t).RecordStore()
	ctx := context.Background()

	rec, err := store.Insert(ctx, "playbook_progress", recordstore.Record{"version": 1})
	require.NoError(t, err)

	const writers = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Update(ctx, "playbook_progress",
				recordstore.Filter{"id": rec.ID(), "version": 1},
				recordstore.Record{"version": 2, "writer": i},
			)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, recordstore.ErrNoMatch)
		}(i)
	}
	wg.Wait()

	require.Equal(t, 1, wins, "exactly one conditional update should succeed")
}
