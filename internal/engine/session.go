package engine

import (
	"sync"

	"github.com/mdouchement/writersync/pkg/itemlock"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

// A Session holds the secrets and the in-memory state of one unlocked account.
// The editing guard, the per-item key cache and the bulk key live and die with it.
type Session struct {
	Guard  *EditingGuard
	Locker *itemlock.Locker

	mu  sync.RWMutex
	key libsync.BulkKey
}

// NewSession returns a locked session whose per-item key cache holds at most cacheSize keys.
func NewSession(cacheSize int) (*Session, error) {
	locker, err := itemlock.New(cacheSize)
	if err != nil {
		return nil, err
	}

	return &Session{
		Guard:  NewEditingGuard(),
		Locker: locker,
	}, nil
}

// Unlock installs a copy of the bulk key.
func (s *Session) Unlock(key libsync.BulkKey) error {
	if !key.Valid() {
		return errors.Wrap(libsync.ErrKeyLocked, "invalid bulk key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.key.Wipe()
	s.key = append(libsync.BulkKey(nil), key...)
	return nil
}

// UnlockWithPassword unwraps the server-stored bulk key with the encryption password.
// The password buffer is wiped.
func (s *Session) UnlockWithPassword(wrapped string, password []byte) error {
	defer libsync.Wipe(password)

	key, err := libsync.UnwrapBulkKey(wrapped, password)
	if err != nil {
		return err
	}
	defer key.Wipe()

	return s.Unlock(key)
}

// Key returns the bulk key, or ErrKeyLocked.
func (s *Session) Key() (libsync.BulkKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.key.Valid() {
		return nil, libsync.ErrKeyLocked
	}
	return append(libsync.BulkKey(nil), s.key...), nil
}

// Unlocked returns true if the bulk key is available.
func (s *Session) Unlocked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.key.Valid()
}

// Lock wipes every secret held by the session.
func (s *Session) Lock() {
	s.mu.Lock()
	s.key.Wipe()
	s.key = nil
	s.mu.Unlock()

	s.Locker.Purge()
}
