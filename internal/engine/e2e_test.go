package engine_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/internal/server"
	"github.com/mdouchement/writersync/internal/store"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type device struct {
	client  libsync.Client
	store   *store.Store
	session *engine.Session
	engine  *engine.Engine
}

func newDevice(t *testing.T, endpoint string) *device {
	t.Helper()

	client, err := libsync.NewDefaultClient(endpoint)
	require.NoError(t, err)

	s, err := store.Open(context.Background(), filepath.Join(t.TempDir(), "writersync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	session, err := engine.NewSession(8)
	require.NoError(t, err)

	return &device{
		client:  client,
		store:   s,
		session: session,
		engine:  engine.New(client, s, s, session),
	}
}

func (d *device) sync(t *testing.T) engine.Result {
	t.Helper()

	result, err := d.engine.Sync(context.Background())
	require.NoError(t, err)
	return result
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()

	db, err := database.StormOpen(filepath.Join(t.TempDir(), "server.db"), "")
	require.NoError(t, err)
	defer db.Close()

	ts := httptest.NewServer(server.EchoEngine(server.IOC{
		Version:    "test",
		Database:   db,
		SigningKey: []byte("secret"),
		TokenTTL:   time.Hour,
	}))
	defer ts.Close()

	const (
		email    = "george.abitbol@nowhere.lan"
		password = "password42"
		secret   = "Correct-Horse-Battery-42"
	)

	//
	// Device A registers and sets up the bulk key.
	//

	a := newDevice(t, ts.URL)
	_, err = a.client.Register(ctx, email, password)
	require.NoError(t, err)

	mk, err := a.client.MasterKey(ctx)
	require.NoError(t, err)
	assert.False(t, mk.Exists)

	key, err := libsync.GenerateBulkKey()
	require.NoError(t, err)
	wrapped, err := libsync.WrapBulkKey(key, []byte(secret))
	require.NoError(t, err)
	require.NoError(t, a.client.UploadMasterKey(ctx, wrapped))
	require.NoError(t, a.session.Unlock(key))

	assert.ErrorIs(t, a.client.UploadMasterKey(ctx, wrapped), libsync.ErrAlreadyExists)

	//
	// Device B logs in and unwraps the same key.
	//

	b := newDevice(t, ts.URL)
	_, err = b.client.Login(ctx, email, password)
	require.NoError(t, err)

	mk, err = b.client.MasterKey(ctx)
	require.NoError(t, err)
	require.True(t, mk.Exists)
	assert.ErrorIs(t, b.session.UnlockWithPassword(*mk.EncryptedMasterKey, []byte("wrong")), libsync.ErrDecryption)
	require.NoError(t, b.session.UnlockWithPassword(*mk.EncryptedMasterKey, []byte(secret)))

	//
	// Create on A, push, pull on B.
	//

	c, err := a.store.CreateCategory(ctx, "work")
	require.NoError(t, err)
	n := store.Note{Title: "groceries", Body: "milk"}
	require.NoError(t, a.store.CreateNote(ctx, &n))

	// Pushed then pulled back.
	result := a.sync(t)
	assert.Equal(t, 2, result.EntriesSynced)
	assert.Equal(t, 2, result.CategoriesSynced)

	n, err = a.store.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusSynced, n.Status)
	assert.NotEmpty(t, n.RemoteID)

	c, err = a.store.Category(ctx, "work")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusSynced, c.Status)

	result = b.sync(t)
	assert.Equal(t, 1, result.EntriesSynced)
	assert.Equal(t, 1, result.CategoriesSynced)

	notes, err := b.store.Notes(ctx)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, n.RemoteID, notes[0].RemoteID)
	assert.Equal(t, "milk", notes[0].Body)
	assert.Equal(t, engine.StatusSynced, notes[0].Status)

	// Nothing changed: pulling again yields nothing.
	assert.Equal(t, engine.Result{}, b.sync(t))

	//
	// Remote-only change on B, pulled by A.
	//

	nb := notes[0]
	nb.Body = "milk, eggs"
	require.NoError(t, b.store.UpdateNote(ctx, nb))
	b.sync(t)

	a.sync(t)
	n, err = a.store.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "milk, eggs", n.Body)
	assert.Equal(t, engine.StatusSynced, n.Status)

	//
	// Concurrent edits: A edits first but pushes last.
	//

	n.Body = "milk, eggs, bread"
	require.NoError(t, a.store.UpdateNote(ctx, n))
	time.Sleep(10 * time.Millisecond)

	nb, err = b.store.Note(ctx, nb.ID)
	require.NoError(t, err)
	nb.Body = "milk, eggs, butter"
	require.NoError(t, b.store.UpdateNote(ctx, nb))
	b.sync(t)

	result = a.sync(t)
	assert.Equal(t, 1, result.ConflictsDetected)

	n, err = a.store.Note(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusConflict, n.Status)
	assert.Equal(t, "milk, eggs, bread", n.Body, "pull never overwrites a conflicting item")

	conflicts, err := a.store.Conflicts(ctx)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "milk, eggs, butter", conflicts[0].Server.Data["body"])

	require.NoError(t, engine.NewResolver(a.store).Resolve(ctx, libsync.ItemTypeNote, n.ID, engine.Merge))
	a.sync(t)
	b.sync(t)

	nb, err = b.store.Note(ctx, nb.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.MergeBodies("milk, eggs, bread", "milk, eggs, butter"), nb.Body)
	assert.Equal(t, engine.StatusSynced, nb.Status)

	//
	// Deletion propagates.
	//

	require.NoError(t, b.store.DeleteNote(ctx, nb.ID))
	b.sync(t)
	a.sync(t)

	_, err = a.store.Note(ctx, n.ID)
	assert.ErrorIs(t, err, libsync.ErrNotFound)
}
