package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/pkg/errors"
)

// AddConflict stores the conflict, replacing the previous one of the same item.
func (s *Store) AddConflict(ctx context.Context, c engine.Conflict) error {
	local, err := json.Marshal(c.Local)
	if err != nil {
		return errors.Wrap(err, "could not serialize local version")
	}
	server, err := json.Marshal(c.Server)
	if err != nil {
		return errors.Wrap(err, "could not serialize server version")
	}

	_, err = s.db.ExecContext(ctx, `INSERT OR REPLACE INTO conflicts (item_type, local_id, local_version, server_version, detected_at)
VALUES (?, ?, ?, ?, ?)`, c.ItemType, c.LocalID, string(local), string(server), c.DetectedAt)
	return errors.Wrap(err, "could not store conflict")
}

// Conflicts returns every unresolved conflict, oldest first.
func (s *Store) Conflicts(ctx context.Context) ([]engine.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_type, local_id, local_version, server_version, detected_at
FROM conflicts ORDER BY detected_at, item_type, local_id`)
	if err != nil {
		return nil, errors.Wrap(err, "could not query conflicts")
	}
	defer rows.Close()

	var conflicts []engine.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, errors.Wrap(rows.Err(), "could not iterate conflicts")
}

// FindConflict returns the conflict of the given item or nil.
func (s *Store) FindConflict(ctx context.Context, itemType string, localID int64) (*engine.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT item_type, local_id, local_version, server_version, detected_at
FROM conflicts WHERE item_type = ? AND local_id = ?`, itemType, localID)

	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// DeleteConflict removes the conflict of the given item.
func (s *Store) DeleteConflict(ctx context.Context, itemType string, localID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM conflicts WHERE item_type = ? AND local_id = ?`, itemType, localID)
	return errors.Wrap(err, "could not delete conflict")
}

func scanConflict(row scanner) (engine.Conflict, error) {
	var (
		c      engine.Conflict
		local  string
		server string
	)

	if err := row.Scan(&c.ItemType, &c.LocalID, &local, &server, &c.DetectedAt); err != nil {
		return c, err
	}

	if err := json.Unmarshal([]byte(local), &c.Local); err != nil {
		return c, errors.Wrap(err, "could not parse local version")
	}
	if err := json.Unmarshal([]byte(server), &c.Server); err != nil {
		return c, errors.Wrap(err, "could not parse server version")
	}
	return c, nil
}
