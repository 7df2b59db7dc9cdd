package serializer

import (
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/pkg/libsync"
)

// SyncItem serializes the render of a sync item.
func SyncItem(m *model.SyncItem) libsync.RemoteItem {
	r := libsync.RemoteItem{
		ID:            m.ID,
		ItemType:      m.ItemType,
		EncryptedData: m.EncryptedData,
	}
	if m.CreatedAt != nil {
		r.CreatedAt = libsync.FormatTime(*m.CreatedAt)
	}
	if m.UpdatedAt != nil {
		r.UpdatedAt = libsync.FormatTime(*m.UpdatedAt)
	}
	if m.DeletedAt != nil {
		r.DeletedAt = libsync.StringPtr(libsync.FormatTime(*m.DeletedAt))
	}
	return r
}
