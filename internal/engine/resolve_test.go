package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflicting(t *testing.T, m *memory, itemType string, local, server map[string]any) int64 {
	t.Helper()

	id := m.add(engine.Item{Type: itemType, RemoteID: "r1", Payload: local, CreatedAt: t0, UpdatedAt: t1, Status: engine.StatusConflict})
	err := m.AddConflict(context.Background(), engine.Conflict{
		ItemType:   itemType,
		LocalID:    id,
		Local:      engine.Snapshot{ID: "r1", Data: local, UpdatedAt: libsync.FormatTime(t1)},
		Server:     engine.Snapshot{ID: "r1", Data: server, UpdatedAt: libsync.FormatTime(t2)},
		DetectedAt: libsync.UnixMillisecond(t2),
	})
	require.NoError(t, err)
	return id
}

func TestParseResolution(t *testing.T) {
	for _, s := range []string{"local", "server", "merge"} {
		r, err := engine.ParseResolution(s)
		assert.NoError(t, err)
		assert.Equal(t, engine.Resolution(s), r)
	}

	_, err := engine.ParseResolution("both")
	assert.Error(t, err)
}

func TestResolve_KeepLocal(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	id := conflicting(t, m, libsync.ItemTypeNote, note("a", "mine"), note("a", "theirs"))

	require.NoError(t, engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeNote, id, engine.KeepLocal))

	item := m.get(libsync.ItemTypeNote, id)
	assert.Equal(t, engine.StatusPending, item.Status)
	assert.Equal(t, "mine", item.String("body"))
	assert.True(t, item.UpdatedAt.After(t1))

	c, err := m.FindConflict(ctx, libsync.ItemTypeNote, id)
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestResolve_KeepServer(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	id := conflicting(t, m, libsync.ItemTypeCategory, map[string]any{"name": "mine"}, map[string]any{"name": "theirs"})

	require.NoError(t, engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeCategory, id, engine.KeepServer))

	item := m.get(libsync.ItemTypeCategory, id)
	assert.Equal(t, engine.StatusSynced, item.Status)
	assert.Equal(t, "theirs", item.String("name"))
	assert.True(t, item.UpdatedAt.Equal(t2))
	assert.Equal(t, "r1", item.RemoteID)

	conflicts, err := m.Conflicts(ctx)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestResolve_KeepServerWithoutServerVersion(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	id := conflicting(t, m, libsync.ItemTypeNote, note("a", "mine"), nil)

	err := engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeNote, id, engine.KeepServer)
	assert.Error(t, err)

	c, err := m.FindConflict(ctx, libsync.ItemTypeNote, id)
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestResolve_Merge(t *testing.T) {
	ctx := context.Background()
	m := newMemory()
	id := conflicting(t, m, libsync.ItemTypeNote, note("local title", "mine"), note("server title", "theirs"))

	before := time.Now()
	require.NoError(t, engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeNote, id, engine.Merge))

	item := m.get(libsync.ItemTypeNote, id)
	assert.Equal(t, engine.StatusPending, item.Status)
	assert.Equal(t, "local title", item.String("title"))
	assert.Equal(t, "=== LOCAL VERSION ===\nmine\n\n=== SERVER VERSION ===\ntheirs\n\n=== END OF CONFLICT ===\n", item.String("body"))
	assert.False(t, item.UpdatedAt.Before(before.UTC().Truncate(time.Second)))
}

func TestResolve_MergeRefused(t *testing.T) {
	ctx := context.Background()
	m := newMemory()

	category := conflicting(t, m, libsync.ItemTypeCategory, map[string]any{"name": "a"}, map[string]any{"name": "b"})
	err := engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeCategory, category, engine.Merge)
	assert.ErrorIs(t, err, engine.ErrMergeUnsupported)

	locked := note("a", "ciphertext")
	locked["is_encrypted"] = true
	id := conflicting(t, m, libsync.ItemTypeNote, locked, note("a", "theirs"))
	err = engine.NewResolver(m).Resolve(ctx, libsync.ItemTypeNote, id, engine.Merge)
	assert.ErrorIs(t, err, engine.ErrMergeUnsupported)
	assert.Equal(t, engine.StatusConflict, m.get(libsync.ItemTypeNote, id).Status)
}

func TestResolve_NoConflict(t *testing.T) {
	m := newMemory()
	id := m.add(engine.Item{Type: libsync.ItemTypeNote, Payload: note("a", "b"), Status: engine.StatusSynced})

	err := engine.NewResolver(m).Resolve(context.Background(), libsync.ItemTypeNote, id, engine.KeepLocal)
	assert.ErrorIs(t, err, libsync.ErrNotFound)
}
