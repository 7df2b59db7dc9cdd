package libsync

import (
	"encoding/base64"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Wrapping parameters.
// The wrapped form is base64(salt ‖ nonce ‖ ciphertext ‖ tag).
const (
	WrapSaltLength  = 32
	WrapNonceLength = chacha20poly1305.NonceSize

	wrapTime    = 3
	wrapMemory  = 64 << 10 // KiB
	wrapThreads = 2
)

// WrapBulkKey encrypts the bulk key with a key derived from the password.
// A new salt and nonce are generated on each call so wrapping twice gives different outputs.
func WrapBulkKey(key BulkKey, password []byte) (string, error) {
	if !key.Valid() {
		return "", errors.New("invalid bulk key length")
	}

	salt, err := GenerateRandomBytes(WrapSaltLength)
	if err != nil {
		return "", errors.Wrap(err, "could not generate salt")
	}

	kek := wrappingKey(password, salt)
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return "", errors.Wrap(err, "could not create AEAD")
	}

	nonce, err := GenerateRandomBytes(WrapNonceLength)
	if err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}

	payload := make([]byte, 0, WrapSaltLength+WrapNonceLength+len(key)+aead.Overhead())
	payload = append(payload, salt...)
	payload = append(payload, nonce...)
	payload = aead.Seal(payload, nonce, key, nil)

	return base64.StdEncoding.EncodeToString(payload), nil
}

// UnwrapBulkKey decrypts a wrapped bulk key.
// A wrong password returns ErrDecryption.
func UnwrapBulkKey(wrapped string, password []byte) (BulkKey, error) {
	payload, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, "invalid wrapped key encoding")
	}

	if len(payload) < WrapSaltLength+WrapNonceLength+chacha20poly1305.Overhead {
		return nil, errors.Wrap(ErrDecryption, "wrapped key too short")
	}

	salt := payload[:WrapSaltLength]
	nonce := payload[WrapSaltLength : WrapSaltLength+WrapNonceLength]
	ciphertext := payload[WrapSaltLength+WrapNonceLength:]

	kek := wrappingKey(password, salt)
	defer Wipe(kek)

	aead, err := chacha20poly1305.New(kek)
	if err != nil {
		return nil, errors.Wrap(err, "could not create AEAD")
	}

	key, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, "wrong password or corrupted key")
	}

	if len(key) != BulkKeyLength {
		Wipe(key)
		return nil, errors.Wrap(ErrDecryption, "unexpected bulk key length")
	}
	return BulkKey(key), nil
}

// RewrapBulkKey unwraps with the current password and wraps the same key with the new one.
func RewrapBulkKey(wrapped string, current, next []byte) (string, error) {
	key, err := UnwrapBulkKey(wrapped, current)
	if err != nil {
		return "", err
	}
	defer key.Wipe()

	return WrapBulkKey(key, next)
}

func wrappingKey(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, wrapTime, wrapMemory, wrapThreads, chacha20poly1305.KeySize)
}
