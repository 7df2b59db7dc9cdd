package service

import (
	"time"

	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/internal/server/serializer"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type (
	// A SyncService is a service used for syncing items of one user.
	SyncService interface {
		// Push reconciles the submitted items with the stored ones.
		// Items are processed independently, categories first.
		Push(params libsync.PushRequest) *libsync.PushResponse
		// Changes returns the items updated strictly after since.
		Changes(since time.Time) (*libsync.PullResponse, error)
	}

	syncService struct {
		db   database.Client
		user *model.User
		now  func() time.Time
	}
)

// NewSync instantiates a new Sync service.
func NewSync(db database.Client, user *model.User) SyncService {
	return &syncService{
		db:   db,
		user: user,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *syncService) Push(params libsync.PushRequest) *libsync.PushResponse {
	response := &libsync.PushResponse{
		Entries:    make([]libsync.PushResult, 0, len(params.Entries)),
		Categories: make([]libsync.PushResult, 0, len(params.Categories)),
	}

	for _, item := range params.Categories {
		response.Categories = append(response.Categories, s.push(model.ItemTypeCategory, item))
	}
	for _, item := range params.Entries {
		response.Entries = append(response.Entries, s.push(model.ItemTypeNote, item))
	}

	return response
}

func (s *syncService) push(itemType string, item libsync.PushItem) libsync.PushResult {
	result, err := s.reconcile(itemType, item)
	if err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"user_id":   s.user.ID,
			"item_type": itemType,
			"local_id":  item.LocalID,
		}).Error("could not push item")

		return libsync.PushResult{
			LocalID: item.LocalID,
			Status:  libsync.StatusError,
			Error:   err.Error(),
		}
	}
	return result
}

// find returns the user's item with the given id or nil.
// An item of another type is never returned, it is an error.
func (s *syncService) find(id, itemType string) (*model.SyncItem, error) {
	stored, err := s.db.FindSyncItemByUserID(id, s.user.ID)
	if err != nil {
		if s.db.IsNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "could not get access to database")
	}

	if stored.ItemType != itemType {
		return nil, errors.Errorf("item %s is a %s, not a %s", id, stored.ItemType, itemType)
	}
	return stored, nil
}

func (s *syncService) reconcile(itemType string, item libsync.PushItem) (libsync.PushResult, error) {
	result := libsync.PushResult{LocalID: item.LocalID, Status: libsync.StatusSuccess}
	now := s.now()
	serverID := libsync.StringValue(item.ServerID)

	updatedAt, err := parseTimeOr(item.UpdatedAt, now)
	if err != nil {
		return result, err
	}

	//
	// Tombstone, never a conflict
	//

	if item.IsDeleted && serverID != "" {
		stored, err := s.find(serverID, itemType)
		if err != nil {
			return result, err
		}

		if stored != nil {
			// Other devices must see the deletion even if the claimed clock is behind.
			if updatedAt.Before(now) {
				updatedAt = now
			}
			stored.DeletedAt = &now
			stored.UpdatedAt = &updatedAt

			if err = s.db.Save(stored); err != nil {
				return result, errors.Wrap(err, "could not delete item")
			}
		}

		result.ServerID = item.ServerID
		return result, nil
	}

	if !item.IsDeleted && item.EncryptedData == "" {
		return result, errors.New("encrypted_data is required")
	}

	//
	// Update
	//

	if serverID != "" {
		stored, err := s.find(serverID, itemType)
		if err != nil {
			return result, err
		}

		if stored != nil {
			result.ServerID = &stored.ID

			// Ties favor the client.
			if stored.UpdatedAt != nil && stored.UpdatedAt.After(updatedAt) {
				conflict := serializer.SyncItem(stored)
				result.Status = libsync.StatusConflict
				result.ConflictData = &conflict
				return result, nil
			}

			stored.EncryptedData = item.EncryptedData
			stored.UpdatedAt = &updatedAt
			if err = s.db.Save(stored); err != nil {
				return result, errors.Wrap(err, "could not update item")
			}
			return result, nil
		}
		// Unknown on this server, stored as a new item.
	}

	//
	// Insert
	//

	createdAt, err := parseTimeOr(item.CreatedAt, now)
	if err != nil {
		return result, err
	}

	record := &model.SyncItem{
		UserID:        s.user.ID,
		ItemType:      itemType,
		EncryptedData: item.EncryptedData,
	}
	record.CreatedAt = &createdAt
	record.UpdatedAt = &updatedAt
	if item.IsDeleted {
		record.DeletedAt = &now
	}

	if err = s.db.Save(record); err != nil {
		return result, errors.Wrap(err, "could not insert item")
	}

	result.ServerID = &record.ID
	return result, nil
}

func (s *syncService) Changes(since time.Time) (*libsync.PullResponse, error) {
	// Taken before the query so that nothing saved meanwhile falls behind the watermark.
	now := s.now()

	items, err := s.db.FindSyncItemsUpdatedSince(s.user.ID, since)
	if err != nil {
		return nil, errors.Wrap(err, "could not get items")
	}

	response := &libsync.PullResponse{
		Entries:          make([]libsync.RemoteItem, 0),
		Categories:       make([]libsync.RemoteItem, 0),
		CurrentTimestamp: libsync.FormatTime(now),
	}

	for _, item := range items {
		switch item.ItemType {
		case model.ItemTypeNote:
			response.Entries = append(response.Entries, serializer.SyncItem(item))
		case model.ItemTypeCategory:
			response.Categories = append(response.Categories, serializer.SyncItem(item))
		}
	}

	return response, nil
}
