// Package itemlock implements the per-item passphrase lock.
//
// It is independent from the account bulk key: a locked body is sealed with a key
// derived from a passphrase chosen for that item only. Derived keys are cached by
// salt in a bounded LRU so unlocking the same item twice does not pay the derivation
// again.
package itemlock

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Lock parameters.
const (
	SaltLength       = 32
	KeyLength        = chacha20poly1305.KeySize
	Iterations       = 310_000
	DefaultCacheSize = 64
)

var (
	// ErrDecryption is returned when the passphrase is wrong or the ciphertext is corrupted.
	ErrDecryption = errors.New("could not unlock item")
	// ErrFormat is returned when the value is not a locked item.
	ErrFormat = errors.New("invalid locked item format")
)

type (
	// A Locker seals and opens item bodies with per-item passphrases.
	// It is safe for concurrent use.
	Locker struct {
		iterations int
		keysMu     sync.Mutex
		keys       *lru.Cache[string, derived]

		mu          sync.Mutex
		passphrases map[int64][]byte
	}

	derived struct {
		check []byte
		key   []byte
	}
)

// New returns a Locker caching at most size derived keys.
func New(size int) (*Locker, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}

	keys, err := lru.NewWithEvict(size, func(_ string, d derived) {
		wipe(d.key)
	})
	if err != nil {
		return nil, errors.Wrap(err, "could not create key cache")
	}

	return &Locker{
		iterations:  Iterations,
		keys:        keys,
		passphrases: map[int64][]byte{},
	}, nil
}

// Lock encrypts plaintext and returns `salt:nonce:ciphertext` (base64 parts).
func (l *Locker) Lock(plaintext, passphrase []byte) (string, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "could not generate salt")
	}

	key := l.key(passphrase, salt)
	aead, err := chacha20poly1305.New(key)
	wipe(key)
	if err != nil {
		return "", errors.Wrap(err, "could not create AEAD")
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)
	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, ":"), nil
}

// Unlock decrypts a value produced by Lock.
// On failure the cached key for the value's salt is evicted.
func (l *Locker) Unlock(locked string, passphrase []byte) ([]byte, error) {
	salt, nonce, ciphertext, err := parse(locked)
	if err != nil {
		return nil, err
	}

	key := l.key(passphrase, salt)
	aead, err := chacha20poly1305.New(key)
	wipe(key)
	if err != nil {
		return nil, errors.Wrap(err, "could not create AEAD")
	}
	if len(nonce) != aead.NonceSize() {
		return nil, errors.Wrap(ErrFormat, "invalid nonce length")
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		l.evict(salt)
		return nil, ErrDecryption
	}
	return plaintext, nil
}

// IsLocked returns true if the value looks like a locked item.
func IsLocked(value string) bool {
	_, _, _, err := parse(value)
	return err == nil
}

// Remember keeps the passphrase of an item for the lifetime of the Locker.
func (l *Locker) Remember(id int64, passphrase []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if old, ok := l.passphrases[id]; ok {
		wipe(old)
	}
	l.passphrases[id] = append([]byte(nil), passphrase...)
}

// Passphrase returns the remembered passphrase of an item.
func (l *Locker) Passphrase(id int64) ([]byte, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.passphrases[id]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), p...), true
}

// Forget removes the remembered passphrase of an item.
func (l *Locker) Forget(id int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.passphrases[id]; ok {
		wipe(p)
		delete(l.passphrases, id)
	}
}

// Len returns the number of cached derived keys.
func (l *Locker) Len() int {
	return l.keys.Len()
}

// Purge drops every cached key and remembered passphrase.
func (l *Locker) Purge() {
	l.keysMu.Lock()
	l.keys.Purge()
	l.keysMu.Unlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, p := range l.passphrases {
		wipe(p)
		delete(l.passphrases, id)
	}
}

// key returns a copy of the derived key for the salt, deriving it on cache miss.
// A cached key is only reused for the passphrase it was derived from.
// The caller wipes the returned copy.
func (l *Locker) key(passphrase, salt []byte) []byte {
	l.keysMu.Lock()
	defer l.keysMu.Unlock()

	ck := cacheKey(salt)
	check := fingerprint(passphrase, salt)
	if d, ok := l.keys.Get(ck); ok {
		if subtle.ConstantTimeCompare(d.check, check) == 1 {
			return append([]byte(nil), d.key...)
		}
		// Removal wipes the key of the other passphrase.
		l.keys.Remove(ck)
	}

	key := pbkdf2.Key(passphrase, salt, l.iterations, KeyLength, sha256.New)
	l.keys.Add(ck, derived{check: check, key: key})
	return append([]byte(nil), key...)
}

func (l *Locker) evict(salt []byte) {
	l.keysMu.Lock()
	defer l.keysMu.Unlock()

	l.keys.Remove(cacheKey(salt))
}

func parse(value string) (salt, nonce, ciphertext []byte, err error) {
	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return nil, nil, nil, ErrFormat
	}

	if salt, err = base64.StdEncoding.DecodeString(parts[0]); err != nil || len(salt) != SaltLength {
		return nil, nil, nil, errors.Wrap(ErrFormat, "invalid salt")
	}
	if nonce, err = base64.StdEncoding.DecodeString(parts[1]); err != nil {
		return nil, nil, nil, errors.Wrap(ErrFormat, "invalid nonce")
	}
	if ciphertext, err = base64.StdEncoding.DecodeString(parts[2]); err != nil {
		return nil, nil, nil, errors.Wrap(ErrFormat, "invalid ciphertext")
	}
	return salt, nonce, ciphertext, nil
}

func cacheKey(salt []byte) string {
	return base64.RawStdEncoding.EncodeToString(salt)
}

func fingerprint(passphrase, salt []byte) []byte {
	h := sha256.New()
	h.Write(salt)
	h.Write(passphrase)
	return h.Sum(nil)
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
