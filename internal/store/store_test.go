package store_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/internal/store"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "writersync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func markSynced(t *testing.T, s *store.Store, itemType string, localID int64, remoteID string) {
	t.Helper()

	item, err := s.Get(context.Background(), itemType, localID)
	require.NoError(t, err)
	require.NotNil(t, item)
	require.NoError(t, s.MarkSynced(context.Background(), localID, itemType, remoteID, item.UpdatedAt))
}

func TestOpen_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "writersync.db")

	s, err := store.Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, s.CreateNote(ctx, &store.Note{Title: "a"}))
	require.NoError(t, s.Close())

	s, err = store.Open(ctx, path)
	require.NoError(t, err)
	defer s.Close()

	notes, err := s.Notes(ctx)
	require.NoError(t, err)
	assert.Len(t, notes, 1)
	assert.Equal(t, path, s.Path())
}

func TestCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	checkpoint, err := s.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, libsync.CheckpointSentinel, checkpoint)

	require.NoError(t, s.SetCheckpoint(ctx, "2024-03-01T10:00:00Z"))
	require.NoError(t, s.SetCheckpoint(ctx, "2024-03-02T10:00:00Z"))

	checkpoint, err = s.Checkpoint(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-02T10:00:00Z", checkpoint)
}

func TestPendingItems(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "title", Body: "body", CategoryID: "c1"}
	require.NoError(t, s.CreateNote(ctx, &n))
	c, err := s.CreateCategory(ctx, "work")
	require.NoError(t, err)

	// Never pushed, deleted locally: nothing to tell the server.
	gone := store.Note{Title: "gone"}
	require.NoError(t, s.CreateNote(ctx, &gone))
	require.NoError(t, s.DeleteNote(ctx, gone.ID))

	entries, err := s.PendingItems(ctx, libsync.ItemTypeNote)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, n.ID, entries[0].LocalID)
	assert.Equal(t, libsync.ItemTypeNote, entries[0].Type)
	assert.Equal(t, map[string]any{"title": "title", "body": "body", "is_encrypted": false, "category_id": "c1"}, entries[0].Payload)
	assert.Equal(t, engine.StatusPending, entries[0].Status)
	assert.Empty(t, entries[0].RemoteID)
	assert.False(t, entries[0].UpdatedAt.IsZero())

	categories, err := s.PendingItems(ctx, libsync.ItemTypeCategory)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, c.ID, categories[0].LocalID)
	assert.Equal(t, "work", categories[0].String("name"))

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, err = s.PendingItems(ctx, "tag")
	assert.Error(t, err)
}

func TestMarkSynced(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "a"}
	require.NoError(t, s.CreateNote(ctx, &n))
	markSynced(t, s, libsync.ItemTypeNote, n.ID, "r1")

	item, err := s.FindByRemoteID(ctx, "r1", libsync.ItemTypeNote)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Equal(t, n.ID, item.LocalID)
	assert.Equal(t, engine.StatusSynced, item.Status)

	pending, err := s.PendingItems(ctx, libsync.ItemTypeNote)
	require.NoError(t, err)
	assert.Empty(t, pending)

	// A synced tombstone is pushed.
	require.NoError(t, s.DeleteNote(ctx, n.ID))
	pending, err = s.PendingItems(ctx, libsync.ItemTypeNote)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].Deleted)

	require.NoError(t, s.MarkConflict(ctx, n.ID, libsync.ItemTypeNote))
	item, err = s.Get(ctx, libsync.ItemTypeNote, n.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusConflict, item.Status)
}

func TestMarkSynced_EditedAfterPush(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "a", Body: "first"}
	require.NoError(t, s.CreateNote(ctx, &n))
	pushed, err := s.Get(ctx, libsync.ItemTypeNote, n.ID)
	require.NoError(t, err)

	n.Body = "second"
	require.NoError(t, s.UpdateNote(ctx, n))
	require.NoError(t, s.MarkSynced(ctx, n.ID, libsync.ItemTypeNote, "r1", pushed.UpdatedAt))

	got, err := s.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Body)
	assert.Equal(t, "r1", got.RemoteID)
	assert.Equal(t, engine.StatusPending, got.Status)

	count, err := s.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLive_SubsecondOrder(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	base := time.Date(2024, 3, 1, 10, 0, 5, 0, time.UTC)
	for i, ts := range []time.Time{base.Add(120 * time.Millisecond), base.Add(100 * time.Millisecond)} {
		_, err := s.UpsertFromRemote(ctx, engine.Item{
			RemoteID:  fmt.Sprintf("r%d", i),
			Type:      libsync.ItemTypeNote,
			Payload:   map[string]any{"title": fmt.Sprint(i), "body": "", "is_encrypted": false},
			CreatedAt: base,
			UpdatedAt: ts,
		})
		require.NoError(t, err)
	}

	live, err := s.Live(ctx, libsync.ItemTypeNote)
	require.NoError(t, err)
	require.Len(t, live, 2)
	assert.Equal(t, "r0", live[0].RemoteID)
	assert.Equal(t, "r1", live[1].RemoteID)
}

func TestUpsertFromRemote(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	item := engine.Item{
		RemoteID:  "r1",
		Type:      libsync.ItemTypeNote,
		Payload:   map[string]any{"title": "a", "body": "b", "is_encrypted": true},
		CreatedAt: created,
		UpdatedAt: created,
	}

	id, err := s.UpsertFromRemote(ctx, item)
	require.NoError(t, err)
	assert.NotZero(t, id)

	item.Payload = map[string]any{"title": "a2", "body": "b2", "is_encrypted": false, "category_id": "c1"}
	item.UpdatedAt = updated
	again, err := s.UpsertFromRemote(ctx, item)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	all, err := s.All(ctx, libsync.ItemTypeNote)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "a2", all[0].String("title"))
	assert.Equal(t, "c1", all[0].String("category_id"))
	assert.Equal(t, engine.StatusSynced, all[0].Status)
	assert.True(t, all[0].CreatedAt.Equal(created))
	assert.True(t, all[0].UpdatedAt.Equal(updated))

	_, err = s.UpsertFromRemote(ctx, engine.Item{Type: libsync.ItemTypeNote})
	assert.Error(t, err)
}

func TestDeleteByRemoteID(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	id, err := s.UpsertFromRemote(ctx, engine.Item{
		RemoteID:  "c1",
		Type:      libsync.ItemTypeCategory,
		Payload:   map[string]any{"name": "work"},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
	require.NoError(t, err)

	require.NoError(t, s.DeleteByRemoteID(ctx, "c1", libsync.ItemTypeCategory))
	require.NoError(t, s.DeleteByRemoteID(ctx, "unknown", libsync.ItemTypeCategory))

	item, err := s.Get(ctx, libsync.ItemTypeCategory, id)
	require.NoError(t, err)
	assert.True(t, item.Deleted)

	categories, err := s.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, categories)

	all, err := s.All(ctx, libsync.ItemTypeCategory)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "a", Body: "b"}
	require.NoError(t, s.CreateNote(ctx, &n))

	item, err := s.Get(ctx, libsync.ItemTypeNote, n.ID)
	require.NoError(t, err)

	item.Payload["body"] = "c"
	item.Status = engine.StatusSynced
	item.RemoteID = "r1"
	require.NoError(t, s.Update(ctx, *item))

	got, err := s.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "c", got.Body)
	assert.Equal(t, "r1", got.RemoteID)
	assert.Equal(t, engine.StatusSynced, got.Status)

	item.LocalID = 42
	assert.ErrorIs(t, s.Update(ctx, *item), libsync.ErrNotFound)

	missing, err := s.Get(ctx, libsync.ItemTypeNote, 42)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestNotes(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "a", Body: "b"}
	require.NoError(t, s.CreateNote(ctx, &n))
	markSynced(t, s, libsync.ItemTypeNote, n.ID, "r1")

	n.Body = "edited"
	require.NoError(t, s.UpdateNote(ctx, n))

	got, err := s.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "edited", got.Body)
	assert.Equal(t, engine.StatusPending, got.Status)

	// Edits never clear a conflict.
	require.NoError(t, s.MarkConflict(ctx, n.ID, libsync.ItemTypeNote))
	require.NoError(t, s.UpdateNote(ctx, n))
	got, err = s.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusConflict, got.Status)

	require.NoError(t, s.DeleteNote(ctx, n.ID))
	_, err = s.Note(ctx, n.ID)
	assert.ErrorIs(t, err, libsync.ErrNotFound)
	assert.ErrorIs(t, s.UpdateNote(ctx, n), libsync.ErrNotFound)
	assert.ErrorIs(t, s.DeleteNote(ctx, n.ID), libsync.ErrNotFound)
}

func TestCategories(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	c, err := s.CreateCategory(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, "work", c.Name)
	markSynced(t, s, libsync.ItemTypeCategory, c.ID, "c1")

	for _, ref := range []string{"work", "c1"} {
		got, err := s.Category(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
	}

	require.NoError(t, s.RenameCategory(ctx, c.ID, "job"))
	got, err := s.Category(ctx, "job")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPending, got.Status)

	require.NoError(t, s.DeleteCategory(ctx, c.ID))
	_, err = s.Category(ctx, "job")
	assert.ErrorIs(t, err, libsync.ErrNotFound)
}

func TestConflicts(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	conflict := engine.Conflict{
		ItemType:   libsync.ItemTypeNote,
		LocalID:    1,
		Local:      engine.Snapshot{ID: "r1", Data: map[string]any{"body": "mine"}, UpdatedAt: "2024-03-01T10:00:00Z"},
		Server:     engine.Snapshot{ID: "r1", Data: map[string]any{"body": "theirs"}, UpdatedAt: "2024-03-01T11:00:00Z"},
		DetectedAt: 1709290800000,
	}
	require.NoError(t, s.AddConflict(ctx, conflict))

	conflict.Server.Data["body"] = "newer"
	require.NoError(t, s.AddConflict(ctx, conflict))

	conflicts, err := s.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, conflict, conflicts[0])

	found, err := s.FindConflict(ctx, libsync.ItemTypeNote, 1)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "newer", found.Server.Data["body"])

	missing, err := s.FindConflict(ctx, libsync.ItemTypeCategory, 1)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, s.DeleteConflict(ctx, libsync.ItemTypeNote, 1))
	conflicts, err = s.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestResolver(t *testing.T) {
	ctx := context.Background()
	s := open(t)

	n := store.Note{Title: "a", Body: "mine"}
	require.NoError(t, s.CreateNote(ctx, &n))
	markSynced(t, s, libsync.ItemTypeNote, n.ID, "r1")
	require.NoError(t, s.MarkConflict(ctx, n.ID, libsync.ItemTypeNote))
	require.NoError(t, s.AddConflict(ctx, engine.Conflict{
		ItemType: libsync.ItemTypeNote,
		LocalID:  n.ID,
		Local:    engine.Snapshot{ID: "r1", Data: n.Payload(), UpdatedAt: "2024-03-01T10:00:00Z"},
		Server:   engine.Snapshot{ID: "r1", Data: map[string]any{"title": "a", "body": "theirs", "is_encrypted": false}, UpdatedAt: "2024-03-01T11:00:00Z"},
	}))

	require.NoError(t, engine.NewResolver(s).Resolve(ctx, libsync.ItemTypeNote, n.ID, engine.KeepServer))

	got, err := s.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "theirs", got.Body)
	assert.Equal(t, engine.StatusSynced, got.Status)
	assert.Equal(t, "2024-03-01T11:00:00.000000000Z", libsync.FormatTime(got.UpdatedAt))

	conflicts, err := s.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}
