// Package engine implements the client side of the sync protocol.
//
// A pass pushes the pending local items then pulls the remote changes since the
// last checkpoint. Conflicts are never merged automatically: they are recorded in
// the ConflictStore and resolved later with a Resolver.
package engine

import (
	"context"
	"time"

	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// A Result aggregates the outcome of a pass.
	Result struct {
		EntriesSynced     int
		CategoriesSynced  int
		ConflictsDetected int
		// Failed counts the pulled items that could not be applied.
		Failed int
	}

	// An Engine runs sync passes.
	// Passes must be serialized by the caller.
	Engine struct {
		transport Transport
		storage   Storage
		conflicts ConflictStore
		session   *Session
		log       logrus.FieldLogger
		now       func() time.Time
	}

	// An Option configures an Engine.
	Option func(*Engine)
)

// WithLogger sets the engine logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		e.log = l
	}
}

// New returns a new Engine.
func New(transport Transport, storage Storage, conflicts ConflictStore, session *Session, opts ...Option) *Engine {
	e := &Engine{
		transport: transport,
		storage:   storage,
		conflicts: conflicts,
		session:   session,
		log:       logrus.StandardLogger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Total returns the number of synchronized items.
func (r Result) Total() int {
	return r.EntriesSynced + r.CategoriesSynced
}

// Sync performs one pass: push then pull.
// A push failure is logged and does not prevent the pull.
// The checkpoint only moves forward after a pull where every item has been applied.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	var result Result

	if e.transport == nil || e.transport.BearerToken() == "" || e.storage == nil || e.conflicts == nil || e.session == nil {
		return result, libsync.ErrConfiguration
	}

	key, err := e.session.Key()
	if err != nil {
		return result, err
	}
	defer key.Wipe()

	//
	// Push
	//

	if err = e.push(ctx, key, &result); err != nil {
		e.log.WithError(err).Warn("push failed, continuing with pull")
		result = Result{}
	}

	//
	// Pull
	//

	if err = e.pull(ctx, key, &result); err != nil {
		return result, err
	}

	return result, nil
}

func (e *Engine) push(ctx context.Context, key libsync.BulkKey, result *Result) error {
	categories, err := e.storage.PendingItems(ctx, libsync.ItemTypeCategory)
	if err != nil {
		return errors.Wrap(err, "could not get pending categories")
	}
	entries, err := e.storage.PendingItems(ctx, libsync.ItemTypeNote)
	if err != nil {
		return errors.Wrap(err, "could not get pending entries")
	}

	request := libsync.PushRequest{
		Entries:    make([]libsync.PushItem, 0, len(entries)),
		Categories: make([]libsync.PushItem, 0, len(categories)),
	}
	pending := map[string]map[int64]Item{
		libsync.ItemTypeNote:     make(map[int64]Item, len(entries)),
		libsync.ItemTypeCategory: make(map[int64]Item, len(categories)),
	}

	for _, item := range categories {
		if pi, ok := e.pushItem(key, item); ok {
			request.Categories = append(request.Categories, pi)
			pending[libsync.ItemTypeCategory][item.LocalID] = item
		}
	}
	for _, item := range entries {
		if pi, ok := e.pushItem(key, item); ok {
			request.Entries = append(request.Entries, pi)
			pending[libsync.ItemTypeNote][item.LocalID] = item
		}
	}

	if request.Len() == 0 {
		return nil
	}

	response, err := e.transport.Push(ctx, request)
	if err != nil {
		return errors.Wrap(err, "could not push items")
	}

	result.CategoriesSynced += e.processPushResults(ctx, key, pending[libsync.ItemTypeCategory], response.Categories, result)
	result.EntriesSynced += e.processPushResults(ctx, key, pending[libsync.ItemTypeNote], response.Entries, result)
	return nil
}

func (e *Engine) pushItem(key libsync.BulkKey, item Item) (libsync.PushItem, bool) {
	encrypted, err := key.EncryptPayload(item.Payload)
	if err != nil {
		e.itemLog(item).WithError(err).Error("could not encrypt item")
		return libsync.PushItem{}, false
	}

	return libsync.PushItem{
		LocalID:       item.LocalID,
		ServerID:      libsync.StringPtr(item.RemoteID),
		EncryptedData: encrypted,
		CreatedAt:     libsync.FormatTime(item.CreatedAt),
		UpdatedAt:     libsync.FormatTime(item.UpdatedAt),
		IsDeleted:     item.Deleted,
	}, true
}

// processPushResults applies the per-item outcomes and returns the number of successes.
func (e *Engine) processPushResults(ctx context.Context, key libsync.BulkKey, pending map[int64]Item, results []libsync.PushResult, result *Result) (n int) {
	for _, r := range results {
		item, ok := pending[r.LocalID]
		if !ok {
			e.log.WithField("local_id", r.LocalID).Warn("push result for an unknown item")
			continue
		}
		log := e.itemLog(item)

		switch r.Status {
		case libsync.StatusSuccess:
			remoteID := libsync.StringValue(r.ServerID)
			if remoteID == "" {
				remoteID = item.RemoteID
			}
			if remoteID == "" {
				log.Warn("pushed item has no remote id")
				continue
			}

			if err := e.storage.MarkSynced(ctx, item.LocalID, item.Type, remoteID, item.UpdatedAt); err != nil {
				log.WithError(err).Error("could not mark item as synced")
				continue
			}
			n++
		case libsync.StatusConflict:
			// The record is stored first so a conflicting item always has one to resolve.
			conflict := Conflict{
				ItemType: item.Type,
				LocalID:  item.LocalID,
				Local: Snapshot{
					ID:        item.RemoteID,
					Data:      item.Payload,
					UpdatedAt: libsync.FormatTime(item.UpdatedAt),
				},
				Server:     e.serverSnapshot(key, r.ConflictData, log),
				DetectedAt: libsync.UnixMillisecond(e.now()),
			}
			if err := e.conflicts.AddConflict(ctx, conflict); err != nil {
				log.WithError(err).Error("could not store conflict, kept pending")
				continue
			}
			if err := e.storage.MarkConflict(ctx, item.LocalID, item.Type); err != nil {
				log.WithError(err).Error("could not mark item as conflicting")
				continue
			}
			result.ConflictsDetected++
		default:
			log.WithField("error", r.Error).Warn("item rejected by server, kept pending")
		}
	}
	return n
}

func (e *Engine) serverSnapshot(key libsync.BulkKey, remote *libsync.RemoteItem, log logrus.FieldLogger) Snapshot {
	if remote == nil {
		return Snapshot{}
	}

	snapshot := Snapshot{
		ID:        remote.ID,
		UpdatedAt: remote.UpdatedAt,
	}

	data, err := key.DecryptPayload(remote.EncryptedData)
	if err != nil {
		log.WithError(err).Warn("could not decrypt server version of conflict")
		return snapshot
	}
	snapshot.Data = data
	return snapshot
}

func (e *Engine) pull(ctx context.Context, key libsync.BulkKey, result *Result) error {
	checkpoint, err := e.storage.Checkpoint(ctx)
	if err != nil {
		return errors.Wrap(err, "could not get checkpoint")
	}

	response, err := e.transport.Pull(ctx, checkpoint)
	if err != nil {
		return errors.Wrap(err, "could not pull changes")
	}

	var failed int
	for _, remote := range response.Categories {
		if err := e.apply(ctx, key, libsync.ItemTypeCategory, remote); err != nil {
			e.log.WithError(err).WithField("server_id", remote.ID).Error("could not apply remote category")
			failed++
		}
	}
	for _, remote := range response.Entries {
		if err := e.apply(ctx, key, libsync.ItemTypeNote, remote); err != nil {
			e.log.WithError(err).WithField("server_id", remote.ID).Error("could not apply remote entry")
			failed++
		}
	}

	result.CategoriesSynced += len(response.Categories)
	result.EntriesSynced += len(response.Entries)
	result.Failed += failed

	if failed > 0 {
		e.log.WithField("failed", failed).Warn("checkpoint kept, failed items will be pulled again")
		return nil
	}

	return e.advance(ctx, checkpoint, response.CurrentTimestamp)
}

// apply merges one remote item into the local store.
func (e *Engine) apply(ctx context.Context, key libsync.BulkKey, itemType string, remote libsync.RemoteItem) error {
	if remote.Tombstoned() {
		return errors.Wrap(e.storage.DeleteByRemoteID(ctx, remote.ID, itemType), "could not delete item")
	}

	payload, err := key.DecryptPayload(remote.EncryptedData)
	if err != nil {
		return err
	}

	updatedAt, err := libsync.ParseTime(remote.UpdatedAt)
	if err != nil {
		return errors.Wrap(libsync.ErrMalformedResponse, err.Error())
	}
	createdAt, err := libsync.ParseTime(remote.CreatedAt)
	if err != nil {
		createdAt = updatedAt
	}

	local, err := e.storage.FindByRemoteID(ctx, remote.ID, itemType)
	if err != nil {
		return errors.Wrap(err, "could not find local item")
	}

	if local != nil {
		log := e.itemLog(*local)

		switch {
		case e.session.Guard.IsEditing(itemType, local.LocalID):
			log.Debug("skipped, item is being edited")
			return nil
		case local.Status == StatusPending, local.Status == StatusConflict:
			log.WithField("status", local.Status).Debug("skipped, local changes not pushed")
			return nil
		case !local.UpdatedAt.Before(updatedAt):
			log.Debug("skipped, local version is same or newer")
			return nil
		}
	}

	_, err = e.storage.UpsertFromRemote(ctx, Item{
		RemoteID:  remote.ID,
		Type:      itemType,
		Payload:   payload,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Status:    StatusSynced,
	})
	return errors.Wrap(err, "could not upsert item")
}

// advance moves the checkpoint forward, never backward.
func (e *Engine) advance(ctx context.Context, current, next string) error {
	n, err := libsync.ParseTime(next)
	if err != nil {
		return errors.Wrap(libsync.ErrMalformedResponse, "invalid current_timestamp")
	}

	if c, err := libsync.ParseTime(current); err == nil && !n.After(c) {
		return nil
	}

	return errors.Wrap(e.storage.SetCheckpoint(ctx, libsync.FormatTime(n)), "could not store checkpoint")
}

func (e *Engine) itemLog(item Item) logrus.FieldLogger {
	return e.log.WithFields(logrus.Fields{
		"type":      item.Type,
		"local_id":  item.LocalID,
		"server_id": item.RemoteID,
	})
}
