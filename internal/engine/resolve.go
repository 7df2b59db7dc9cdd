package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

// A Resolution is the user choice for a conflict.
type Resolution string

// Conflict resolutions.
const (
	KeepLocal  Resolution = "local"
	KeepServer Resolution = "server"
	Merge      Resolution = "merge"
)

// ErrMergeUnsupported is returned when a conflict cannot be merged.
var ErrMergeUnsupported = errors.New("merge is not supported for this item")

// ParseResolution returns the Resolution named by s.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case KeepLocal, KeepServer, Merge:
		return r, nil
	}
	return "", errors.Errorf("unknown resolution %q (expected local, server or merge)", s)
}

// A Resolver applies conflict resolutions to the local store.
type Resolver struct {
	store LocalStore
	now   func() time.Time
}

// NewResolver returns a new Resolver.
func NewResolver(store LocalStore) *Resolver {
	return &Resolver{
		store: store,
		now:   time.Now,
	}
}

// Resolve applies the resolution and drops the conflict.
// The resolved item is pushed on the next pass unless the server version is kept.
func (r *Resolver) Resolve(ctx context.Context, itemType string, localID int64, resolution Resolution) error {
	conflict, err := r.store.FindConflict(ctx, itemType, localID)
	if err != nil {
		return errors.Wrap(err, "could not find conflict")
	}
	if conflict == nil {
		return errors.Wrapf(libsync.ErrNotFound, "no conflict for %s %d", itemType, localID)
	}

	item, err := r.store.Get(ctx, itemType, localID)
	if err != nil {
		return errors.Wrap(err, "could not find item")
	}
	if item == nil {
		return errors.Wrapf(libsync.ErrNotFound, "no %s %d", itemType, localID)
	}

	switch resolution {
	case KeepLocal:
		item.Status = StatusPending
		item.UpdatedAt = r.now().UTC()
	case KeepServer:
		if conflict.Server.Empty() {
			return errors.New("server version is not available, keep the local version instead")
		}
		updatedAt, err := libsync.ParseTime(conflict.Server.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, "invalid server version")
		}

		item.Payload = copyPayload(conflict.Server.Data)
		item.UpdatedAt = updatedAt
		item.Status = StatusSynced
		if conflict.Server.ID != "" {
			item.RemoteID = conflict.Server.ID
		}
	case Merge:
		if itemType != libsync.ItemTypeNote {
			return errors.Wrap(ErrMergeUnsupported, itemType)
		}
		if encrypted(item.Payload) || encrypted(conflict.Server.Data) {
			return errors.Wrap(ErrMergeUnsupported, "note is locked with a passphrase")
		}

		payload := copyPayload(item.Payload)
		payload["body"] = MergeBodies(item.String("body"), stringOf(conflict.Server.Data, "body"))
		item.Payload = payload
		item.Status = StatusPending
		item.UpdatedAt = r.now().UTC()
	default:
		return errors.Errorf("unknown resolution %q", resolution)
	}

	if err = r.store.Update(ctx, *item); err != nil {
		return errors.Wrap(err, "could not update item")
	}
	return errors.Wrap(r.store.DeleteConflict(ctx, itemType, localID), "could not delete conflict")
}

// MergeBodies concatenates both versions with visible markers.
func MergeBodies(local, server string) string {
	return fmt.Sprintf("=== LOCAL VERSION ===\n%s\n\n=== SERVER VERSION ===\n%s\n\n=== END OF CONFLICT ===\n", local, server)
}

func encrypted(payload map[string]any) bool {
	switch v := payload["is_encrypted"].(type) {
	case bool:
		return v
	case float64:
		return v != 0
	}
	return false
}
