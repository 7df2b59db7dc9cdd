package service

import (
	"time"

	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
)

// This file is only for test purpose and is only loaded by test framework.

// NewSyncAt returns a SyncService with a frozen clock.
func NewSyncAt(db database.Client, user *model.User, now time.Time) SyncService {
	return &syncService{
		db:   db,
		user: user,
		now: func() time.Time {
			return now
		},
	}
}
