package engine_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

type memory struct {
	mu         sync.Mutex
	seq        int64
	items      map[string]map[int64]*engine.Item
	conflicts  map[string]engine.Conflict
	checkpoint string
}

func newMemory() *memory {
	return &memory{
		items: map[string]map[int64]*engine.Item{
			libsync.ItemTypeNote:     {},
			libsync.ItemTypeCategory: {},
		},
		conflicts:  map[string]engine.Conflict{},
		checkpoint: libsync.CheckpointSentinel,
	}
}

func conflictKey(itemType string, localID int64) string {
	return fmt.Sprintf("%s/%d", itemType, localID)
}

func (m *memory) add(item engine.Item) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	item.LocalID = m.seq
	m.items[item.Type][item.LocalID] = &item
	return item.LocalID
}

func (m *memory) get(itemType string, localID int64) engine.Item {
	m.mu.Lock()
	defer m.mu.Unlock()

	return *m.items[itemType][localID]
}

func (m *memory) PendingItems(_ context.Context, itemType string) ([]engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []engine.Item
	for _, item := range m.items[itemType] {
		if item.Status != engine.StatusPending || (item.Deleted && item.RemoteID == "") {
			continue
		}
		items = append(items, *item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LocalID < items[j].LocalID })
	return items, nil
}

func (m *memory) MarkSynced(_ context.Context, localID int64, itemType, remoteID string, pushedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemType][localID]
	if !ok {
		return libsync.ErrNotFound
	}
	item.RemoteID = remoteID
	if item.UpdatedAt.Equal(pushedAt) {
		item.Status = engine.StatusSynced
	}
	return nil
}

func (m *memory) MarkConflict(_ context.Context, localID int64, itemType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemType][localID]
	if !ok {
		return libsync.ErrNotFound
	}
	item.Status = engine.StatusConflict
	return nil
}

func (m *memory) UpsertFromRemote(_ context.Context, item engine.Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.items[item.Type] {
		if existing.RemoteID == item.RemoteID {
			existing.Payload = item.Payload
			existing.UpdatedAt = item.UpdatedAt
			existing.Status = engine.StatusSynced
			existing.Deleted = false
			return existing.LocalID, nil
		}
	}

	m.seq++
	item.LocalID = m.seq
	item.Status = engine.StatusSynced
	m.items[item.Type][item.LocalID] = &item
	return item.LocalID, nil
}

func (m *memory) Checkpoint(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.checkpoint, nil
}

func (m *memory) SetCheckpoint(_ context.Context, checkpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoint = checkpoint
	return nil
}

func (m *memory) FindByRemoteID(_ context.Context, remoteID, itemType string) (*engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items[itemType] {
		if item.RemoteID == remoteID {
			c := *item
			return &c, nil
		}
	}
	return nil, nil
}

func (m *memory) DeleteByRemoteID(_ context.Context, remoteID, itemType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range m.items[itemType] {
		if item.RemoteID == remoteID {
			item.Deleted = true
			item.Status = engine.StatusSynced
		}
	}
	return nil
}

func (m *memory) All(_ context.Context, itemType string) ([]engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var items []engine.Item
	for _, item := range m.items[itemType] {
		items = append(items, *item)
	}
	return items, nil
}

func (m *memory) AddConflict(_ context.Context, c engine.Conflict) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.conflicts[conflictKey(c.ItemType, c.LocalID)] = c
	return nil
}

func (m *memory) Conflicts(context.Context) ([]engine.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var conflicts []engine.Conflict
	for _, c := range m.conflicts {
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

func (m *memory) FindConflict(_ context.Context, itemType string, localID int64) (*engine.Conflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.conflicts[conflictKey(itemType, localID)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memory) DeleteConflict(_ context.Context, itemType string, localID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.conflicts, conflictKey(itemType, localID))
	return nil
}

func (m *memory) Get(_ context.Context, itemType string, localID int64) (*engine.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.items[itemType][localID]
	if !ok {
		return nil, nil
	}
	c := *item
	return &c, nil
}

func (m *memory) Update(_ context.Context, item engine.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[item.Type][item.LocalID]; !ok {
		return libsync.ErrNotFound
	}
	m.items[item.Type][item.LocalID] = &item
	return nil
}

// brokenConflicts is a conflict store that cannot write.
type brokenConflicts struct {
	*memory
}

func (brokenConflicts) AddConflict(context.Context, engine.Conflict) error {
	return errBoom
}

//
// Transport
//

type transport struct {
	token    string
	pushErr  error
	pullErr  error
	pushed   []libsync.PushRequest
	pulled   []string
	onPush   func(libsync.PushRequest) libsync.PushResponse
	response libsync.PullResponse
}

func (t *transport) BearerToken() string {
	return t.token
}

func (t *transport) Push(_ context.Context, req libsync.PushRequest) (libsync.PushResponse, error) {
	t.pushed = append(t.pushed, req)
	if t.pushErr != nil {
		return libsync.PushResponse{}, t.pushErr
	}
	if t.onPush != nil {
		return t.onPush(req), nil
	}

	var res libsync.PushResponse
	for i, item := range req.Entries {
		res.Entries = append(res.Entries, success(item, "entry", i))
	}
	for i, item := range req.Categories {
		res.Categories = append(res.Categories, success(item, "category", i))
	}
	return res, nil
}

func (t *transport) Pull(_ context.Context, since string) (libsync.PullResponse, error) {
	t.pulled = append(t.pulled, since)
	if t.pullErr != nil {
		return libsync.PullResponse{}, t.pullErr
	}
	return t.response, nil
}

func success(item libsync.PushItem, prefix string, i int) libsync.PushResult {
	id := libsync.StringValue(item.ServerID)
	if id == "" {
		id = fmt.Sprintf("%s-%d", prefix, i)
	}
	return libsync.PushResult{
		LocalID:  item.LocalID,
		ServerID: &id,
		Status:   libsync.StatusSuccess,
	}
}

var errBoom = errors.New("boom")
