// Package store is the client local database.
// It implements the engine storage contracts on top of SQLite.
package store

import (
	"context"
	"database/sql"
	"embed"
	"io/fs"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // database/sql driver
)

//go:embed migrations/*.sql
var migrations embed.FS

// CheckpointKey is the metadata key of the pull watermark.
const CheckpointKey = "last_sync_timestamp"

var (
	_ engine.Storage    = (*Store)(nil)
	_ engine.LocalStore = (*Store)(nil)
)

// A Store is the local SQLite database.
type Store struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (and creates if needed) the database at the given path and applies the migrations.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open local database")
	}
	db.SetMaxOpenConns(1)

	if err = migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:   db,
		path: path,
		now:  time.Now,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	fsys, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return errors.Wrap(err, "could not load migrations")
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		return errors.Wrap(err, "could not create migration provider")
	}

	_, err = provider.Up(ctx)
	return errors.Wrap(err, "could not migrate local database")
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return libsync.FormatTime(s.now())
}

// Checkpoint returns the last pull watermark or the sentinel when the installation never synced.
func (s *Store) Checkpoint(ctx context.Context) (string, error) {
	var checkpoint string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, CheckpointKey).Scan(&checkpoint)
	if errors.Is(err, sql.ErrNoRows) {
		return libsync.CheckpointSentinel, nil
	}
	return checkpoint, errors.Wrap(err, "could not read checkpoint")
}

// SetCheckpoint stores the pull watermark.
func (s *Store) SetCheckpoint(ctx context.Context, checkpoint string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT (key) DO UPDATE SET value = excluded.value`, CheckpointKey, checkpoint)
	return errors.Wrap(err, "could not store checkpoint")
}
