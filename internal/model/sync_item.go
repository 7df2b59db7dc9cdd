package model

import "time"

// Item types.
const (
	ItemTypeNote     = "note"
	ItemTypeCategory = "category"
)

// A SyncItem represents an encrypted record owned by a user.
// CreatedAt and UpdatedAt are the timestamps claimed by the client.
type SyncItem struct {
	Base `msgpack:",inline" storm:"inline"`

	UserID        string     `json:"user_id"        msgpack:"user_id"        storm:"index"`
	ItemType      string     `json:"item_type"      msgpack:"item_type"      storm:"index"`
	EncryptedData string     `json:"encrypted_data" msgpack:"encrypted_data"`
	DeletedAt     *time.Time `json:"deleted_at"     msgpack:"deleted_at"`
}

// IsDeleted returns true if the item is a tombstone.
func (i *SyncItem) IsDeleted() bool {
	return i.DeletedAt != nil
}

// ValidItemType returns true if t is a known item type.
func ValidItemType(t string) bool {
	return t == ItemTypeNote || t == ItemTypeCategory
}
