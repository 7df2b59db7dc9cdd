package model

// A User represents a database record.
type User struct {
	Base `msgpack:",inline" storm:"inline"`

	Email        string `msgpack:"email"         storm:"unique"`
	PasswordHash string `msgpack:"password_hash"`

	// EncryptedMasterKey is the wrapped bulk key uploaded by the client.
	// The server never sees it unwrapped.
	EncryptedMasterKey *string `msgpack:"encrypted_master_key,omitempty"`
}

// HasMasterKey returns true if a wrapped master key is stored for the user.
func (u *User) HasMasterKey() bool {
	return u.EncryptedMasterKey != nil && *u.EncryptedMasterKey != ""
}
