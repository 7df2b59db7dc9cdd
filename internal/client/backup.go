package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// An UnsealedItem is a decrypted backup entry.
type UnsealedItem struct {
	ID        string         `json:"id"`
	ItemType  string         `json:"item_type"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at"`
	Deleted   bool           `json:"deleted,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Backup fetchs all the items, still encrypted, and store them in the current directory.
func Backup(ctx context.Context) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	// Pulling since the sentinel returns everything, tombstones included.
	items, err := a.client.Pull(ctx, libsync.CheckpointSentinel)
	if err != nil {
		return errors.Wrap(err, "could not get items")
	}

	filename := fmt.Sprintf("items_%s.json", time.Now().Format("20060102150405"))
	if err = backup(items, filename); err != nil {
		return errors.Wrap(err, "items")
	}

	fmt.Printf("Saved %d notes and %d categories in %s\n", len(items.Entries), len(items.Categories), filename)
	return nil
}

// Unseal decrypts a backup made by Backup.
func Unseal(ctx context.Context, filename string) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	data, err := os.ReadFile(filename)
	if err != nil {
		return errors.Wrap(err, "could not load file")
	}

	var items libsync.PullResponse
	if err = json.Unmarshal(data, &items); err != nil {
		return errors.Wrap(err, "could not parse backuped items")
	}

	key, err := a.session.Key()
	if err != nil {
		return err
	}
	defer key.Wipe()

	unsealed, err := unseal(key, items)
	if err != nil {
		return err
	}

	err = backup(unsealed, strings.Replace(filename, "items_", "unsealed_", 1))
	return errors.Wrap(err, "unsealed items")
}

func unseal(key libsync.BulkKey, items libsync.PullResponse) ([]UnsealedItem, error) {
	unsealed := make([]UnsealedItem, 0, items.Len())

	for _, group := range []struct {
		itemType string
		items    []libsync.RemoteItem
	}{
		{libsync.ItemTypeCategory, items.Categories},
		{libsync.ItemTypeNote, items.Entries},
	} {
		itemType := group.itemType
		for _, item := range group.items {
			u := UnsealedItem{
				ID:        item.ID,
				ItemType:  itemType,
				CreatedAt: item.CreatedAt,
				UpdatedAt: item.UpdatedAt,
				Deleted:   item.Tombstoned(),
			}

			if !u.Deleted {
				payload, err := key.DecryptPayload(item.EncryptedData)
				if err != nil {
					return nil, errors.Wrapf(err, "could not unseal %s %s", itemType, item.ID)
				}
				u.Data = payload
			}

			unsealed = append(unsealed, u)
		}
	}

	return unsealed, nil
}

func backup(v any, filename string) error {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "could not serialize value to backup")
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrap(err, "could not create backup file")
	}
	defer f.Close()

	_, err = f.Write(payload)
	if err != nil {
		return errors.Wrap(err, "could not write backuped values")
	}

	return errors.Wrap(f.Sync(), "could not backup")
}
