package database

import (
	"time"

	"github.com/asdine/storm/v3"
	"github.com/asdine/storm/v3/q"
	"github.com/gofrs/uuid"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/pkg/stormcodec"
	"github.com/pkg/errors"
)

type strm struct {
	db *storm.DB
}

func stormDB(database, codec string) (*storm.DB, error) {
	c, err := stormcodec.Lookup(codec)
	if err != nil {
		return nil, err
	}

	db, err := storm.Open(database, storm.Codec(c))
	return db, errors.Wrap(err, "could not get database connection")
}

// StormInit initializes Storm database.
func StormInit(database, codec string) error {
	db, err := stormDB(database, codec)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Init(&model.User{}); err != nil {
		return errors.Wrap(err, "could not init user index")
	}

	err = db.Init(&model.SyncItem{})
	return errors.Wrap(err, "could not init sync item index")
}

// StormReIndex reindex Storm database.
func StormReIndex(database, codec string) error {
	db, err := stormDB(database, codec)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.ReIndex(&model.User{}); err != nil {
		return errors.Wrap(err, "could not ReIndex users")
	}

	err = db.ReIndex(&model.SyncItem{})
	return errors.Wrap(err, "could not ReIndex sync items")
}

// StormOpen returns a new Storm database connection.
func StormOpen(database, codec string) (Client, error) {
	db, err := stormDB(database, codec)
	if err != nil {
		return nil, err
	}

	return &strm{
		db: db,
	}, nil
}

// Save inserts or updates the entry in database with the given model.
func (c *strm) Save(m model.Model) error {
	prepare(m)
	return errors.Wrap(c.db.Save(m), "could not save the model")
}

// Delete deletes the entry in database with the given model.
func (c *strm) Delete(m model.Model) error {
	return errors.Wrap(c.db.DeleteStruct(m), "could not delete the model")
}

// Close the database.
func (c *strm) Close() error {
	return c.db.Close()
}

// IsNotFound returns true if err is nil or a not found error.
func (c *strm) IsNotFound(err error) bool {
	return errors.Cause(err) == storm.ErrNotFound
}

// IsAlreadyExists returns true if err is a unique constraint violation.
func (c *strm) IsAlreadyExists(err error) bool {
	return errors.Cause(err) == storm.ErrAlreadyExists
}

// FindUser returns the user for the given id (UUID).
func (c *strm) FindUser(id string) (*model.User, error) {
	var user model.User
	if err := c.db.One("ID", id, &user); err != nil {
		return nil, errors.Wrap(err, "find user by id")
	}
	return &user, nil
}

// FindUserByMail returns the user for the given email.
func (c *strm) FindUserByMail(email string) (*model.User, error) {
	var user model.User
	if err := c.db.One("Email", email, &user); err != nil {
		return nil, errors.Wrap(err, "find user by mail")
	}
	return &user, nil
}

// FindSyncItemByUserID returns the item for the given id and user id (UUID).
func (c *strm) FindSyncItemByUserID(id, userID string) (*model.SyncItem, error) {
	var item model.SyncItem
	err := c.db.Select(q.Eq("ID", id), q.Eq("UserID", userID)).First(&item)
	if err != nil {
		return nil, errors.Wrap(err, "could not find sync item by user id")
	}
	return &item, nil
}

// FindSyncItemsUpdatedSince returns all the user's items updated strictly after since.
func (c *strm) FindSyncItemsUpdatedSince(userID string, since time.Time) ([]*model.SyncItem, error) {
	items := make([]*model.SyncItem, 0)
	err := c.db.Select(q.Eq("UserID", userID), q.Gt("UpdatedAt", since)).OrderBy("UpdatedAt").Find(&items)
	if err != nil && !c.IsNotFound(err) {
		return nil, errors.Wrap(err, "could not find sync items")
	}
	return items, nil
}

func newID() string {
	return uuid.Must(uuid.NewV4()).String()
}
