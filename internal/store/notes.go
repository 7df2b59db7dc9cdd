package store

import (
	"context"
	"strconv"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

type (
	// A Note is a local entry.
	Note struct {
		ID         int64
		RemoteID   string
		Title      string
		Body       string
		Encrypted  bool
		CategoryID string // remote id of the category
		UpdatedAt  time.Time
		Status     engine.Status
	}

	// A Category groups notes.
	Category struct {
		ID        int64
		RemoteID  string
		Name      string
		UpdatedAt time.Time
		Status    engine.Status
	}
)

// Payload returns the synchronized fields of the note.
func (n Note) Payload() map[string]any {
	return map[string]any{
		"title":        n.Title,
		"body":         n.Body,
		"is_encrypted": n.Encrypted,
		"category_id":  n.CategoryID,
	}
}

func noteFrom(item engine.Item) Note {
	encrypted, _ := item.Payload["is_encrypted"].(bool)
	return Note{
		ID:         item.LocalID,
		RemoteID:   item.RemoteID,
		Title:      item.String("title"),
		Body:       item.String("body"),
		Encrypted:  encrypted,
		CategoryID: item.String("category_id"),
		UpdatedAt:  item.UpdatedAt,
		Status:     item.Status,
	}
}

func categoryFrom(item engine.Item) Category {
	return Category{
		ID:        item.LocalID,
		RemoteID:  item.RemoteID,
		Name:      item.String("name"),
		UpdatedAt: item.UpdatedAt,
		Status:    item.Status,
	}
}

func (s *Store) live(ctx context.Context, itemType string, id int64) (engine.Item, error) {
	item, err := s.Get(ctx, itemType, id)
	if err != nil {
		return engine.Item{}, err
	}
	if item == nil || item.Deleted {
		return engine.Item{}, errors.Wrapf(libsync.ErrNotFound, "%s %d", itemType, id)
	}
	return *item, nil
}

// CreateNote inserts a new note.
func (s *Store) CreateNote(ctx context.Context, n *Note) error {
	id, err := s.Create(ctx, libsync.ItemTypeNote, n.Payload())
	if err != nil {
		return err
	}
	n.ID = id
	n.Status = engine.StatusPending
	return nil
}

// Note returns the live note with the given id.
func (s *Store) Note(ctx context.Context, id int64) (Note, error) {
	item, err := s.live(ctx, libsync.ItemTypeNote, id)
	return noteFrom(item), err
}

// Notes returns the live notes, most recently updated first.
func (s *Store) Notes(ctx context.Context) ([]Note, error) {
	items, err := s.Live(ctx, libsync.ItemTypeNote)
	if err != nil {
		return nil, err
	}

	notes := make([]Note, len(items))
	for i, item := range items {
		notes[i] = noteFrom(item)
	}
	return notes, nil
}

// UpdateNote saves the note fields.
func (s *Store) UpdateNote(ctx context.Context, n Note) error {
	return s.Edit(ctx, libsync.ItemTypeNote, n.ID, n.Payload())
}

// DeleteNote tombstones the note.
func (s *Store) DeleteNote(ctx context.Context, id int64) error {
	return s.Delete(ctx, libsync.ItemTypeNote, id)
}

// CreateCategory inserts a new category.
func (s *Store) CreateCategory(ctx context.Context, name string) (Category, error) {
	id, err := s.Create(ctx, libsync.ItemTypeCategory, map[string]any{"name": name})
	if err != nil {
		return Category{}, err
	}
	return s.Category(ctx, strconv.FormatInt(id, 10))
}

// Category returns the live category matching the given local id, remote id or name.
func (s *Store) Category(ctx context.Context, ref string) (Category, error) {
	categories, err := s.Categories(ctx)
	if err != nil {
		return Category{}, err
	}

	for _, c := range categories {
		if strconv.FormatInt(c.ID, 10) == ref || (c.RemoteID != "" && c.RemoteID == ref) {
			return c, nil
		}
	}
	for _, c := range categories {
		if c.Name == ref {
			return c, nil
		}
	}
	return Category{}, errors.Wrapf(libsync.ErrNotFound, "category %s", ref)
}

// Categories returns the live categories, most recently updated first.
func (s *Store) Categories(ctx context.Context) ([]Category, error) {
	items, err := s.Live(ctx, libsync.ItemTypeCategory)
	if err != nil {
		return nil, err
	}

	categories := make([]Category, len(items))
	for i, item := range items {
		categories[i] = categoryFrom(item)
	}
	return categories, nil
}

// RenameCategory changes the category name.
func (s *Store) RenameCategory(ctx context.Context, id int64, name string) error {
	return s.Edit(ctx, libsync.ItemTypeCategory, id, map[string]any{"name": name})
}

// DeleteCategory tombstones the category. Its notes keep their category reference.
func (s *Store) DeleteCategory(ctx context.Context, id int64) error {
	return s.Delete(ctx, libsync.ItemTypeCategory, id)
}
