package database

import (
	"time"

	"github.com/mdouchement/writersync/internal/model"
)

type (
	// A Client can interacts with the database.
	Client interface {
		// Save inserts or updates the entry in database with the given model.
		Save(m model.Model) error
		// Delete deletes the entry in database with the given model.
		Delete(m model.Model) error
		// Close the database.
		Close() error
		// IsNotFound returns true if err is a not found error.
		IsNotFound(err error) bool
		// IsAlreadyExists returns true if err is a unique constraint violation.
		IsAlreadyExists(err error) bool

		UserInteraction
		SyncItemInteraction
	}

	// An UserInteraction defines all the methods used to interact with a user record.
	UserInteraction interface {
		// FindUser returns the user for the given id (UUID).
		FindUser(id string) (*model.User, error)
		// FindUserByMail returns the user for the given email.
		FindUserByMail(email string) (*model.User, error)
	}

	// A SyncItemInteraction defines all the methods used to interact with sync item record(s).
	SyncItemInteraction interface {
		// FindSyncItemByUserID returns the item for the given id and user id (UUID).
		FindSyncItemByUserID(id, userID string) (*model.SyncItem, error)
		// FindSyncItemsUpdatedSince returns all the user's items updated strictly after since,
		// ordered by ascending update date. Tombstones are included.
		FindSyncItemsUpdatedSince(userID string, since time.Time) ([]*model.SyncItem, error)
	}
)

func prepare(m model.Model) {
	t := time.Now().UTC()

	if m.GetID() == "" {
		m.SetID(newID())
		if m.GetCreatedAt() == nil {
			m.SetCreatedAt(t)
		}
	}

	// Sync items carry the client's clock, only fill the gaps.
	if m.GetUpdatedAt() == nil {
		m.SetUpdatedAt(t)
	}
}
