package serializer

import (
	"github.com/mdouchement/writersync/internal/model"
	"github.com/mdouchement/writersync/pkg/libsync"
)

// Auth serializes the render of a successful register or login.
func Auth(m *model.User, token string) libsync.Auth {
	return libsync.Auth{
		Token:  token,
		UserID: m.ID,
		Email:  m.Email,
	}
}

// MasterKey serializes the render of the user's wrapped master key.
func MasterKey(m *model.User) libsync.MasterKey {
	return libsync.MasterKey{
		EncryptedMasterKey: m.EncryptedMasterKey,
		Exists:             m.HasMasterKey(),
	}
}
