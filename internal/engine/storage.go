package engine

import (
	"context"
	"time"

	"github.com/mdouchement/writersync/pkg/libsync"
)

var _ Transport = (libsync.Client)(nil)

type (
	// A Storage is the local store contract used by the engine.
	// Every mutation is its own transaction.
	Storage interface {
		// PendingItems returns the items of the given type waiting to be pushed.
		// Tombstones that never reached the server are not returned.
		PendingItems(ctx context.Context, itemType string) ([]Item, error)
		// MarkSynced records the remote id of a pushed item and flags it as synced.
		// An item whose updatedAt moved past pushedAt was edited meanwhile and stays pending.
		MarkSynced(ctx context.Context, localID int64, itemType, remoteID string, pushedAt time.Time) error
		// MarkConflict flags the item as conflicting.
		MarkConflict(ctx context.Context, localID int64, itemType string) error
		// UpsertFromRemote updates the item matching the remote id or inserts it. The item is stored as synced.
		UpsertFromRemote(ctx context.Context, item Item) (int64, error)
		// Checkpoint returns the last pull watermark.
		Checkpoint(ctx context.Context) (string, error)
		// SetCheckpoint stores the pull watermark.
		SetCheckpoint(ctx context.Context, checkpoint string) error
		// FindByRemoteID returns the item for the given remote id or nil.
		FindByRemoteID(ctx context.Context, remoteID, itemType string) (*Item, error)
		// DeleteByRemoteID soft-deletes the item matching the remote id.
		DeleteByRemoteID(ctx context.Context, remoteID, itemType string) error
		// All returns every item of the given type, tombstones included.
		All(ctx context.Context, itemType string) ([]Item, error)
	}

	// A ConflictStore keeps the detected conflicts until they are resolved.
	ConflictStore interface {
		// AddConflict stores the conflict, replacing any existing one for the same item.
		AddConflict(ctx context.Context, c Conflict) error
		// Conflicts returns all the unresolved conflicts.
		Conflicts(ctx context.Context) ([]Conflict, error)
		// FindConflict returns the conflict of the given item or nil.
		FindConflict(ctx context.Context, itemType string, localID int64) (*Conflict, error)
		// DeleteConflict removes the conflict of the given item.
		DeleteConflict(ctx context.Context, itemType string, localID int64) error
	}

	// A LocalStore is everything the conflict resolution needs.
	LocalStore interface {
		ConflictStore
		// Get returns the item for the given local id or nil.
		Get(ctx context.Context, itemType string, localID int64) (*Item, error)
		// Update overwrites the payload, timestamps, status and remote id of an existing item.
		Update(ctx context.Context, item Item) error
	}

	// A Transport carries the sync protocol to the server.
	// It is implemented by libsync.Client.
	Transport interface {
		BearerToken() string
		Push(ctx context.Context, req libsync.PushRequest) (libsync.PushResponse, error)
		Pull(ctx context.Context, since string) (libsync.PullResponse, error)
	}
)
