package database

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // database/sql driver
	"github.com/mdouchement/writersync/internal/model"
	"github.com/pkg/errors"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// uniqueViolation is the PostgreSQL error code for unique_violation.
const uniqueViolation = "23505"

type pg struct {
	db *sql.DB
}

// PostgresMigrate applies the embedded schema migrations.
func PostgresMigrate(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return errors.Wrap(err, "could not get database connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrations)
	if err = goose.SetDialect("pgx"); err != nil {
		return errors.Wrap(err, "could not set migration dialect")
	}

	return errors.Wrap(goose.UpContext(ctx, db, "migrations"), "could not migrate database")
}

// PostgresOpen returns a new PostgreSQL database connection.
func PostgresOpen(dsn string) (Client, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not get database connection")
	}

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not reach database")
	}

	return NewPostgres(db), nil
}

// NewPostgres returns a Client over an already opened connection.
func NewPostgres(db *sql.DB) Client {
	return &pg{db: db}
}

// Save inserts or updates the entry in database with the given model.
func (c *pg) Save(m model.Model) error {
	prepare(m)

	var err error
	switch v := m.(type) {
	case *model.User:
		_, err = c.db.Exec(`INSERT INTO users (id, email, password_hash, encrypted_master_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET email = $2, password_hash = $3, encrypted_master_key = $4, updated_at = $6`,
			v.ID, v.Email, v.PasswordHash, nullString(v.EncryptedMasterKey), *v.CreatedAt, *v.UpdatedAt)
	case *model.SyncItem:
		_, err = c.db.Exec(`INSERT INTO sync_items (id, user_id, item_type, encrypted_data, created_at, updated_at, deleted_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET encrypted_data = $4, updated_at = $6, deleted_at = $7`,
			v.ID, v.UserID, v.ItemType, v.EncryptedData, *v.CreatedAt, *v.UpdatedAt, nullTime(v.DeletedAt))
	default:
		return errors.Errorf("unsupported model %T", m)
	}

	return errors.Wrap(err, "could not save the model")
}

// Delete deletes the entry in database with the given model.
func (c *pg) Delete(m model.Model) error {
	var err error
	switch m.(type) {
	case *model.User:
		_, err = c.db.Exec(`DELETE FROM users WHERE id = $1`, m.GetID())
	case *model.SyncItem:
		_, err = c.db.Exec(`DELETE FROM sync_items WHERE id = $1`, m.GetID())
	default:
		return errors.Errorf("unsupported model %T", m)
	}
	return errors.Wrap(err, "could not delete the model")
}

// Close the database.
func (c *pg) Close() error {
	return c.db.Close()
}

// IsNotFound returns true if err is a not found error.
func (c *pg) IsNotFound(err error) bool {
	return errors.Cause(err) == sql.ErrNoRows
}

// IsAlreadyExists returns true if err is a unique constraint violation.
func (c *pg) IsAlreadyExists(err error) bool {
	var pgerr *pgconn.PgError
	return errors.As(err, &pgerr) && pgerr.Code == uniqueViolation
}

// FindUser returns the user for the given id (UUID).
func (c *pg) FindUser(id string) (*model.User, error) {
	user, err := c.scanUser(c.db.QueryRow(`SELECT id, email, password_hash, encrypted_master_key, created_at, updated_at
FROM users WHERE id = $1`, id))
	return user, errors.Wrap(err, "find user by id")
}

// FindUserByMail returns the user for the given email.
func (c *pg) FindUserByMail(email string) (*model.User, error) {
	user, err := c.scanUser(c.db.QueryRow(`SELECT id, email, password_hash, encrypted_master_key, created_at, updated_at
FROM users WHERE email = $1`, email))
	return user, errors.Wrap(err, "find user by mail")
}

// FindSyncItemByUserID returns the item for the given id and user id (UUID).
func (c *pg) FindSyncItemByUserID(id, userID string) (*model.SyncItem, error) {
	item, err := c.scanItem(c.db.QueryRow(`SELECT id, user_id, item_type, encrypted_data, created_at, updated_at, deleted_at
FROM sync_items WHERE id = $1 AND user_id = $2`, id, userID))
	return item, errors.Wrap(err, "could not find sync item by user id")
}

// FindSyncItemsUpdatedSince returns all the user's items updated strictly after since.
func (c *pg) FindSyncItemsUpdatedSince(userID string, since time.Time) ([]*model.SyncItem, error) {
	rows, err := c.db.Query(`SELECT id, user_id, item_type, encrypted_data, created_at, updated_at, deleted_at
FROM sync_items WHERE user_id = $1 AND updated_at > $2 ORDER BY updated_at ASC`, userID, since)
	if err != nil {
		return nil, errors.Wrap(err, "could not find sync items")
	}
	defer rows.Close()

	items := make([]*model.SyncItem, 0)
	for rows.Next() {
		item, err := c.scanItem(rows)
		if err != nil {
			return nil, errors.Wrap(err, "could not read sync item")
		}
		items = append(items, item)
	}
	return items, errors.Wrap(rows.Err(), "could not iterate sync items")
}

type scanner interface {
	Scan(dest ...any) error
}

func (c *pg) scanUser(row scanner) (*model.User, error) {
	var (
		user      model.User
		masterKey sql.NullString
		createdAt time.Time
		updatedAt time.Time
	)

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &masterKey, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if masterKey.Valid {
		user.EncryptedMasterKey = &masterKey.String
	}
	user.SetCreatedAt(createdAt.UTC())
	user.SetUpdatedAt(updatedAt.UTC())
	return &user, nil
}

func (c *pg) scanItem(row scanner) (*model.SyncItem, error) {
	var (
		item      model.SyncItem
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	err := row.Scan(&item.ID, &item.UserID, &item.ItemType, &item.EncryptedData, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	item.SetCreatedAt(createdAt.UTC())
	item.SetUpdatedAt(updatedAt.UTC())
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		item.DeletedAt = &t
	}
	return &item, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
