package itemlock

// This file is only for test purpose and is only loaded by test framework.

// SetIterations overrides the derivation cost.
func SetIterations(l *Locker, n int) {
	l.iterations = n
}

// Cached returns true if a derived key is cached for the salt of the locked value.
func Cached(l *Locker, locked string) bool {
	salt, _, _, err := parse(locked)
	if err != nil {
		return false
	}
	return l.keys.Contains(cacheKey(salt))
}

// CachedKey returns the cached derived key for the salt of the locked value.
func CachedKey(l *Locker, locked string) []byte {
	salt, _, _, err := parse(locked)
	if err != nil {
		return nil
	}
	d, ok := l.keys.Peek(cacheKey(salt))
	if !ok {
		return nil
	}
	return d.key
}
