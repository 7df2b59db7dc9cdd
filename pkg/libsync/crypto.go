package libsync

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// BulkKeyLength is the size in bytes of the account bulk key.
const BulkKeyLength = chacha20poly1305.KeySize

// A BulkKey is the random account key encrypting every synced payload.
type BulkKey []byte

// GenerateBulkKey returns a new random bulk key.
func GenerateBulkKey() (BulkKey, error) {
	k, err := GenerateRandomBytes(BulkKeyLength)
	return BulkKey(k), errors.Wrap(err, "could not generate bulk key")
}

// Valid returns true if the key has the expected length.
func (k BulkKey) Valid() bool {
	return len(k) == BulkKeyLength
}

// Wipe zeroes the key material.
func (k BulkKey) Wipe() {
	Wipe(k)
}

// Encrypt seals plaintext and returns base64(nonce ‖ ciphertext).
// A fresh 96-bit nonce is used for every call.
func (k BulkKey) Encrypt(plaintext []byte) (string, error) {
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return "", errors.Wrap(err, "could not create AEAD")
	}

	nonce, err := GenerateRandomBytes(aead.NonceSize())
	if err != nil {
		return "", errors.Wrap(err, "could not generate nonce")
	}

	ciphertext := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Decrypt opens a value produced by Encrypt.
func (k BulkKey) Decrypt(encoded string) ([]byte, error) {
	aead, err := chacha20poly1305.New(k)
	if err != nil {
		return nil, errors.Wrap(err, "could not create AEAD")
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, "invalid encoding")
	}
	if len(ciphertext) < aead.NonceSize()+aead.Overhead() {
		return nil, errors.Wrap(ErrDecryption, "ciphertext too short")
	}

	nonce := ciphertext[:aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, ciphertext[aead.NonceSize():], nil)
	if err != nil {
		return nil, errors.Wrap(ErrDecryption, err.Error())
	}
	return plaintext, nil
}

// EncryptPayload serializes the payload in JSON and seals it.
func (k BulkKey) EncryptPayload(payload map[string]any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Wrap(err, "could not serialize payload")
	}
	defer Wipe(data)

	return k.Encrypt(data)
}

// DecryptPayload opens and parses a payload sealed by EncryptPayload.
func (k BulkKey) DecryptPayload(encoded string) (map[string]any, error) {
	data, err := k.Decrypt(encoded)
	if err != nil {
		return nil, err
	}
	defer Wipe(data)

	var payload map[string]any
	if err = json.Unmarshal(data, &payload); err != nil {
		return nil, errors.Wrap(ErrDecryption, "payload is not a JSON object")
	}
	return payload, nil
}

// GenerateRandomBytes returns securely generated random bytes.
// It will return an error if the system's secure random
// number generator fails to function correctly, in which
// case the caller should not continue.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Wipe zeroes the given buffer.
// It is a best-effort hygiene, the runtime may have copied the data elsewhere.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
