package database_test

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postgresClient(t *testing.T) (database.Client, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return database.NewPostgres(db), mock
}

func TestPostgres_FindUserByMail(t *testing.T) {
	db, mock := postgresClient(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`(?s)^SELECT id, email, password_hash, encrypted_master_key, created_at, updated_at\s+FROM users WHERE email = \$1$`).
		WithArgs("george.abitbol@nowhere.lan").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "encrypted_master_key", "created_at", "updated_at"}).
			AddRow("u-1", "george.abitbol@nowhere.lan", "hash", "wrapped", now, now))

	user, err := db.FindUserByMail("george.abitbol@nowhere.lan")
	require.NoError(t, err)
	assert.Equal(t, "u-1", user.ID)
	assert.True(t, user.HasMasterKey())
	assert.Equal(t, "wrapped", *user.EncryptedMasterKey)
}

func TestPostgres_NotFound(t *testing.T) {
	db, mock := postgresClient(t)

	mock.ExpectQuery(`FROM users WHERE id = \$1`).
		WithArgs("u-1").
		WillReturnError(sql.ErrNoRows)

	_, err := db.FindUser("u-1")
	assert.True(t, db.IsNotFound(err))
}

func TestPostgres_SaveSyncItem(t *testing.T) {
	db, mock := postgresClient(t)

	mock.ExpectExec(`(?s)^INSERT INTO sync_items .+ ON CONFLICT \(id\) DO UPDATE`).
		WithArgs(sqlmock.AnyArg(), "u-1", model.ItemTypeNote, "ciphertext", sqlmock.AnyArg(), sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	item := &model.SyncItem{UserID: "u-1", ItemType: model.ItemTypeNote, EncryptedData: "ciphertext"}
	require.NoError(t, db.Save(item))
	assert.NotEmpty(t, item.ID)
	assert.NotNil(t, item.CreatedAt)
}

func TestPostgres_SaveDuplicateUser(t *testing.T) {
	db, mock := postgresClient(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := db.Save(&model.User{Email: "george.abitbol@nowhere.lan"})
	assert.Error(t, err)
	assert.True(t, db.IsAlreadyExists(err))
	assert.False(t, db.IsAlreadyExists(errors.New("boom")))
}

func TestPostgres_FindSyncItemsUpdatedSince(t *testing.T) {
	db, mock := postgresClient(t)

	since := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	deleted := since.Add(2 * time.Hour)
	mock.ExpectQuery(`(?s)FROM sync_items WHERE user_id = \$1 AND updated_at > \$2 ORDER BY updated_at ASC$`).
		WithArgs("u-1", since).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "item_type", "encrypted_data", "created_at", "updated_at", "deleted_at"}).
			AddRow("i-1", "u-1", "category", "a", since, since.Add(time.Hour), nil).
			AddRow("i-2", "u-1", "note", "b", since, deleted, deleted))

	items, err := db.FindSyncItemsUpdatedSince("u-1", since)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.False(t, items[0].IsDeleted())
	assert.True(t, items[1].IsDeleted())
	assert.True(t, deleted.Equal(*items[1].DeletedAt))
}
