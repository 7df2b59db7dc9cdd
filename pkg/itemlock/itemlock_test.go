package itemlock_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mdouchement/writersync/pkg/itemlock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T, size int) *itemlock.Locker {
	t.Helper()

	l, err := itemlock.New(size)
	require.NoError(t, err)
	itemlock.SetIterations(l, 1000)
	return l
}

func TestLockUnlock(t *testing.T) {
	l := newLocker(t, 4)

	locked, err := l.Lock([]byte("my diary"), []byte("open sesame"))
	assert.NoError(t, err)
	assert.Len(t, strings.Split(locked, ":"), 3)
	assert.True(t, itemlock.IsLocked(locked))
	assert.True(t, itemlock.Cached(l, locked))

	plaintext, err := l.Unlock(locked, []byte("open sesame"))
	assert.NoError(t, err)
	assert.Equal(t, "my diary", string(plaintext))

	other, err := l.Lock([]byte("my diary"), []byte("open sesame"))
	assert.NoError(t, err)
	assert.NotEqual(t, locked, other)
}

func TestUnlock_WrongPassphraseEvicts(t *testing.T) {
	l := newLocker(t, 4)

	locked, err := l.Lock([]byte("my diary"), []byte("open sesame"))
	require.NoError(t, err)
	require.True(t, itemlock.Cached(l, locked))

	_, err = l.Unlock(locked, []byte("close sesame"))
	assert.True(t, errors.Is(err, itemlock.ErrDecryption))
	assert.False(t, itemlock.Cached(l, locked))

	// A fresh derivation with the right passphrase still works.
	plaintext, err := l.Unlock(locked, []byte("open sesame"))
	assert.NoError(t, err)
	assert.Equal(t, "my diary", string(plaintext))
	assert.True(t, itemlock.Cached(l, locked))
}

func TestUnlock_OtherPassphraseWipesCachedKey(t *testing.T) {
	l := newLocker(t, 4)

	locked, err := l.Lock([]byte("my diary"), []byte("open sesame"))
	require.NoError(t, err)

	cached := itemlock.CachedKey(l, locked)
	require.Len(t, cached, itemlock.KeyLength)
	require.NotEqual(t, make([]byte, itemlock.KeyLength), cached)

	_, err = l.Unlock(locked, []byte("close sesame"))
	assert.True(t, errors.Is(err, itemlock.ErrDecryption))
	assert.Equal(t, make([]byte, itemlock.KeyLength), cached)
}

func TestUnlock_CorruptedEvicts(t *testing.T) {
	l := newLocker(t, 4)

	locked, err := l.Lock([]byte("my diary"), []byte("open sesame"))
	require.NoError(t, err)

	parts := strings.Split(locked, ":")
	parts[2] = "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAA=="
	_, err = l.Unlock(strings.Join(parts, ":"), []byte("open sesame"))
	assert.True(t, errors.Is(err, itemlock.ErrDecryption))
	assert.False(t, itemlock.Cached(l, locked))
}

func TestUnlock_Format(t *testing.T) {
	l := newLocker(t, 4)

	for _, v := range []string{"", "plain text", "a:b", "a:b:c:d", "!!:AA==:AA=="} {
		_, err := l.Unlock(v, []byte("open sesame"))
		assert.True(t, errors.Is(err, itemlock.ErrFormat), v)
		assert.False(t, itemlock.IsLocked(v), v)
	}
}

func TestCacheIsBounded(t *testing.T) {
	l := newLocker(t, 3)

	for i := 0; i < 10; i++ {
		_, err := l.Lock([]byte(fmt.Sprint(i)), []byte("open sesame"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, l.Len())

	l.Purge()
	assert.Equal(t, 0, l.Len())
}

func TestRememberForget(t *testing.T) {
	l := newLocker(t, 3)

	_, ok := l.Passphrase(42)
	assert.False(t, ok)

	l.Remember(42, []byte("open sesame"))
	p, ok := l.Passphrase(42)
	assert.True(t, ok)
	assert.Equal(t, "open sesame", string(p))

	l.Forget(42)
	_, ok = l.Passphrase(42)
	assert.False(t, ok)

	l.Remember(43, []byte("x"))
	l.Purge()
	_, ok = l.Passphrase(43)
	assert.False(t, ok)
}
