package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

type fieldKind int

const (
	text fieldKind = iota
	nullText
	boolean
)

type field struct {
	column string
	key    string
	kind   fieldKind
}

// A table maps an item type to its SQL table and payload columns.
type table struct {
	name   string
	fields []field
}

var tables = map[string]table{
	libsync.ItemTypeNote: {
		name: "entries",
		fields: []field{
			{column: "title", key: "title", kind: text},
			{column: "body", key: "body", kind: text},
			{column: "is_encrypted", key: "is_encrypted", kind: boolean},
			{column: "category_id", key: "category_id", kind: nullText},
		},
	},
	libsync.ItemTypeCategory: {
		name: "categories",
		fields: []field{
			{column: "name", key: "name", kind: text},
		},
	},
}

const syncColumns = "_id, server_id, created_at, updated_at, sync_status, is_deleted"

func lookup(itemType string) (table, error) {
	t, ok := tables[itemType]
	if !ok {
		return t, errors.Errorf("unknown item type %q", itemType)
	}
	return t, nil
}

func (t table) columns() []string {
	columns := make([]string, len(t.fields))
	for i, f := range t.fields {
		columns[i] = f.column
	}
	return columns
}

func (t table) selectFrom() string {
	return fmt.Sprintf("SELECT %s, %s FROM %s", syncColumns, strings.Join(t.columns(), ", "), t.name)
}

// values returns the column values of the payload, in column order.
func (t table) values(payload map[string]any) []any {
	values := make([]any, len(t.fields))
	for i, f := range t.fields {
		switch f.kind {
		case boolean:
			v, _ := payload[f.key].(bool)
			values[i] = v
		case nullText:
			v, _ := payload[f.key].(string)
			values[i] = sql.NullString{String: v, Valid: v != ""}
		default:
			v, _ := payload[f.key].(string)
			values[i] = v
		}
	}
	return values
}

type scanner interface {
	Scan(dest ...any) error
}

func (t table) scan(row scanner, itemType string) (engine.Item, error) {
	var (
		item      engine.Item
		serverID  sql.NullString
		createdAt string
		updatedAt string
		status    string
	)

	dest := []any{&item.LocalID, &serverID, &createdAt, &updatedAt, &status, &item.Deleted}
	fields := make([]any, len(t.fields))
	for i, f := range t.fields {
		switch f.kind {
		case boolean:
			fields[i] = new(bool)
		case nullText:
			fields[i] = new(sql.NullString)
		default:
			fields[i] = new(string)
		}
	}

	if err := row.Scan(append(dest, fields...)...); err != nil {
		return item, err
	}

	item.Type = itemType
	item.RemoteID = serverID.String
	item.Status = engine.Status(status)
	item.Payload = make(map[string]any, len(t.fields))
	for i, f := range t.fields {
		switch v := fields[i].(type) {
		case *bool:
			item.Payload[f.key] = *v
		case *sql.NullString:
			if v.Valid {
				item.Payload[f.key] = v.String
			}
		case *string:
			item.Payload[f.key] = *v
		}
	}

	var err error
	if item.CreatedAt, err = libsync.ParseTime(createdAt); err != nil {
		return item, err
	}
	item.UpdatedAt, err = libsync.ParseTime(updatedAt)
	return item, err
}

func (s *Store) query(ctx context.Context, itemType, where string, args ...any) ([]engine.Item, error) {
	t, err := lookup(itemType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, t.selectFrom()+" "+where, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "could not query %s", t.name)
	}
	defer rows.Close()

	var items []engine.Item
	for rows.Next() {
		item, err := t.scan(rows, itemType)
		if err != nil {
			return nil, errors.Wrapf(err, "could not scan %s", t.name)
		}
		items = append(items, item)
	}
	return items, errors.Wrapf(rows.Err(), "could not iterate %s", t.name)
}

func (s *Store) queryOne(ctx context.Context, itemType, where string, args ...any) (*engine.Item, error) {
	items, err := s.query(ctx, itemType, where+" LIMIT 1", args...)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

func (s *Store) exec(ctx context.Context, itemType, statement string, args ...any) (int64, error) {
	t, err := lookup(itemType)
	if err != nil {
		return 0, err
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(statement, t.name), args...)
	if err != nil {
		return 0, errors.Wrapf(err, "could not update %s", t.name)
	}
	return result.RowsAffected()
}

// PendingItems returns the items waiting to be pushed.
// Tombstones that never reached the server are left out.
func (s *Store) PendingItems(ctx context.Context, itemType string) ([]engine.Item, error) {
	return s.query(ctx, itemType, `WHERE sync_status = 'pending' AND NOT (is_deleted = 1 AND server_id IS NULL) ORDER BY _id`)
}

// MarkSynced flags the item as synced with the given remote id.
// An item edited after pushedAt only gets its remote id and stays pending.
func (s *Store) MarkSynced(ctx context.Context, localID int64, itemType, remoteID string, pushedAt time.Time) error {
	n, err := s.exec(ctx, itemType, `UPDATE %s SET sync_status = 'synced', server_id = ?, last_synced_at = ? WHERE _id = ? AND updated_at = ?`,
		remoteID, s.timestamp(), localID, libsync.FormatTime(pushedAt))
	if err != nil || n > 0 {
		return err
	}

	_, err = s.exec(ctx, itemType, `UPDATE %s SET server_id = ? WHERE _id = ?`, remoteID, localID)
	return err
}

// MarkConflict flags the item as conflicting.
func (s *Store) MarkConflict(ctx context.Context, localID int64, itemType string) error {
	_, err := s.exec(ctx, itemType, `UPDATE %s SET sync_status = 'conflict' WHERE _id = ?`, localID)
	return err
}

// UpsertFromRemote stores a remote item as synced and returns its local id.
// The row is matched by server id; a previous tombstone is revived.
func (s *Store) UpsertFromRemote(ctx context.Context, item engine.Item) (int64, error) {
	if item.RemoteID == "" {
		return 0, errors.New("remote item without id")
	}

	t, err := lookup(item.Type)
	if err != nil {
		return 0, err
	}

	columns := t.columns()
	updates := make([]string, 0, len(columns)+1)
	for _, c := range columns {
		updates = append(updates, c+" = excluded."+c)
	}

	statement := fmt.Sprintf(`INSERT INTO %s (%s, created_at, updated_at, server_id, sync_status, last_synced_at, is_deleted)
VALUES (%s?, ?, ?, 'synced', ?, 0)
ON CONFLICT (server_id) DO UPDATE SET %s, updated_at = excluded.updated_at, sync_status = 'synced',
  last_synced_at = excluded.last_synced_at, is_deleted = 0
RETURNING _id`,
		t.name, strings.Join(columns, ", "), strings.Repeat("?, ", len(columns)), strings.Join(updates, ", "))

	args := append(t.values(item.Payload),
		libsync.FormatTime(item.CreatedAt),
		libsync.FormatTime(item.UpdatedAt),
		item.RemoteID,
		s.timestamp(),
	)

	var id int64
	err = s.db.QueryRowContext(ctx, statement, args...).Scan(&id)
	return id, errors.Wrapf(err, "could not upsert %s", t.name)
}

// FindByRemoteID returns the item with the given remote id or nil.
func (s *Store) FindByRemoteID(ctx context.Context, remoteID, itemType string) (*engine.Item, error) {
	return s.queryOne(ctx, itemType, `WHERE server_id = ?`, remoteID)
}

// DeleteByRemoteID applies a remote tombstone.
func (s *Store) DeleteByRemoteID(ctx context.Context, remoteID, itemType string) error {
	_, err := s.exec(ctx, itemType, `UPDATE %s SET is_deleted = 1, sync_status = 'synced', last_synced_at = ? WHERE server_id = ?`,
		s.timestamp(), remoteID)
	return err
}

// All returns every item of the given type, tombstones included.
func (s *Store) All(ctx context.Context, itemType string) ([]engine.Item, error) {
	return s.query(ctx, itemType, `ORDER BY _id`)
}

// Get returns the item with the given local id or nil.
func (s *Store) Get(ctx context.Context, itemType string, localID int64) (*engine.Item, error) {
	return s.queryOne(ctx, itemType, `WHERE _id = ?`, localID)
}

// Update overwrites the payload, updated_at, status and remote id of an existing item.
func (s *Store) Update(ctx context.Context, item engine.Item) error {
	t, err := lookup(item.Type)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(t.fields))
	for _, c := range t.columns() {
		sets = append(sets, c+" = ?")
	}

	args := append(t.values(item.Payload),
		libsync.FormatTime(item.UpdatedAt),
		string(item.Status),
		sql.NullString{String: item.RemoteID, Valid: item.RemoteID != ""},
		item.LocalID,
	)

	n, err := s.exec(ctx, item.Type, `UPDATE %s SET `+strings.Join(sets, ", ")+`, updated_at = ?, sync_status = ?, server_id = ? WHERE _id = ?`, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(libsync.ErrNotFound, "%s %d", item.Type, item.LocalID)
	}
	return nil
}

// Create inserts a new local item as pending and returns its local id.
func (s *Store) Create(ctx context.Context, itemType string, payload map[string]any) (int64, error) {
	t, err := lookup(itemType)
	if err != nil {
		return 0, err
	}

	now := s.timestamp()
	statement := fmt.Sprintf(`INSERT INTO %s (%s, created_at, updated_at, sync_status) VALUES (%s?, ?, 'pending')`,
		t.name, strings.Join(t.columns(), ", "), strings.Repeat("?, ", len(t.fields)))

	result, err := s.db.ExecContext(ctx, statement, append(t.values(payload), now, now)...)
	if err != nil {
		return 0, errors.Wrapf(err, "could not insert into %s", t.name)
	}
	return result.LastInsertId()
}

// Edit replaces the payload of a live item and marks it pending.
// A conflicting item keeps its status until the conflict is resolved.
func (s *Store) Edit(ctx context.Context, itemType string, localID int64, payload map[string]any) error {
	t, err := lookup(itemType)
	if err != nil {
		return err
	}

	sets := make([]string, 0, len(t.fields))
	for _, c := range t.columns() {
		sets = append(sets, c+" = ?")
	}

	args := append(t.values(payload), s.timestamp(), localID)
	n, err := s.exec(ctx, itemType, `UPDATE %s SET `+strings.Join(sets, ", ")+`, updated_at = ?,
  sync_status = CASE sync_status WHEN 'conflict' THEN 'conflict' ELSE 'pending' END
WHERE _id = ? AND is_deleted = 0`, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(libsync.ErrNotFound, "%s %d", itemType, localID)
	}
	return nil
}

// Delete tombstones a live item and marks it pending.
func (s *Store) Delete(ctx context.Context, itemType string, localID int64) error {
	n, err := s.exec(ctx, itemType, `UPDATE %s SET is_deleted = 1, sync_status = 'pending', updated_at = ? WHERE _id = ? AND is_deleted = 0`,
		s.timestamp(), localID)
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.Wrapf(libsync.ErrNotFound, "%s %d", itemType, localID)
	}
	return nil
}

// Live returns the items of the given type that are not deleted, most recently updated first.
func (s *Store) Live(ctx context.Context, itemType string) ([]engine.Item, error) {
	return s.query(ctx, itemType, `WHERE is_deleted = 0 ORDER BY updated_at DESC, _id DESC`)
}

// PendingCount returns the number of items of every type waiting to be pushed.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT
  (SELECT COUNT(*) FROM entries WHERE sync_status = 'pending' AND NOT (is_deleted = 1 AND server_id IS NULL)) +
  (SELECT COUNT(*) FROM categories WHERE sync_status = 'pending' AND NOT (is_deleted = 1 AND server_id IS NULL))`).Scan(&n)
	return n, errors.Wrap(err, "could not count pending items")
}
