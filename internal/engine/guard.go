package engine

import "sync"

type guardKey struct {
	itemType string
	localID  int64
}

// An EditingGuard tracks the items currently opened in an editor.
// A pull never overwrites a guarded item. It is safe for concurrent use.
type EditingGuard struct {
	mu    sync.RWMutex
	items map[guardKey]struct{}
}

// NewEditingGuard returns an empty guard.
func NewEditingGuard() *EditingGuard {
	return &EditingGuard{
		items: map[guardKey]struct{}{},
	}
}

// Begin marks the item as being edited.
func (g *EditingGuard) Begin(itemType string, localID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.items[guardKey{itemType, localID}] = struct{}{}
}

// End releases the item.
func (g *EditingGuard) End(itemType string, localID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.items, guardKey{itemType, localID})
}

// IsEditing returns true if the item is being edited.
func (g *EditingGuard) IsEditing(itemType string, localID int64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.items[guardKey{itemType, localID}]
	return ok
}

// Len returns the number of guarded items.
func (g *EditingGuard) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.items)
}
