package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/chzyer/readline"
	sargon2 "github.com/mdouchement/simple-argon2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	saltKeyLength   = 16
	credentialsfile = ".writersync"
	// PassphraseEnv is the environment variable read before prompting for the credentials passphrase.
	PassphraseEnv = "WSC_PASSPHRASE"
	// DefaultDatabase is the local database used when none is configured.
	DefaultDatabase = "writersync.db"
)

// A Config holds client's configuration.
type Config struct {
	Endpoint    string `json:"endpoint"`
	Email       string `json:"email"`
	UserID      string `json:"user_id"`
	BearerToken string `json:"bearer_token"`
	BulkKey     []byte `json:"bulk_key"`
	Database    string `json:"database"`
}

// Remove removes the credential files from the current directory.
func Remove() error {
	return os.Remove(credentialsfile)
}

// Load gets the configuration from the current folder according to `credentialsfile` const.
func Load() (Config, error) {
	ciphertext, err := os.ReadFile(credentialsfile)
	if err != nil {
		return Config{}, errors.Wrap(err, "could not read credentials file")
	}

	passphrase, err := readPassphrase()
	if err != nil {
		return Config{}, err
	}

	return open(ciphertext, passphrase)
}

// Save stores the configuration in the current folder according to `credentialsfile` const.
func Save(cfg Config) error {
	fmt.Println("Storing credentials in current directory as " + credentialsfile)
	passphrase, err := readPassphrase()
	if err != nil {
		return err
	}

	ciphertext, err := seal(cfg, passphrase)
	if err != nil {
		return err
	}

	f, err := os.OpenFile(credentialsfile, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return errors.Wrapf(err, "could not create %s", credentialsfile)
	}
	defer f.Close()

	_, err = f.Write(ciphertext)
	if err != nil {
		return errors.Wrap(err, "could not store credentials")
	}

	return errors.Wrap(f.Sync(), "could not store credentials")
}

func readPassphrase() ([]byte, error) {
	if passphrase := os.Getenv(PassphraseEnv); passphrase != "" {
		return []byte(passphrase), nil
	}

	passphrase, err := readline.Password("passphrase: ")
	return passphrase, errors.Wrap(err, "could not read passphrase from stdin")
}

func seal(cfg Config, passphrase []byte) ([]byte, error) {
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "could not serialize config")
	}

	//
	// Key derivation of passphrase

	salt, err := sargon2.GenerateRandomBytes(saltKeyLength)
	if err != nil {
		return nil, errors.Wrap(err, "could not generate salt for credentials")
	}
	hash := argon2.IDKey(passphrase, salt, 3, 64<<10, 2, 32)

	//
	// Seal config

	aead, err := chacha20poly1305.NewX(hash)
	if err != nil {
		return nil, errors.Wrap(err, "could not create AEAD")
	}
	nonce, err := sargon2.GenerateRandomBytes(uint32(aead.NonceSize()))
	if err != nil {
		return nil, errors.Wrap(err, "could not generate nonce for credentials")
	}

	ciphertext := aead.Seal(nil, nonce, payload, nil)
	ciphertext = append(nonce, ciphertext...)
	return append(salt, ciphertext...), nil
}

func open(ciphertext, passphrase []byte) (Config, error) {
	var cfg Config

	if len(ciphertext) < saltKeyLength+chacha20poly1305.NonceSizeX {
		return cfg, errors.New("credentials file is truncated")
	}

	salt := ciphertext[:saltKeyLength]
	ciphertext = ciphertext[saltKeyLength:]
	hash := argon2.IDKey(passphrase, salt, 3, 64<<10, 2, 32)

	aead, err := chacha20poly1305.NewX(hash)
	if err != nil {
		return cfg, errors.Wrap(err, "could not create AEAD")
	}

	nonce := ciphertext[:aead.NonceSize()]
	ciphertext = ciphertext[aead.NonceSize():]

	payload, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return cfg, errors.Wrap(err, "could not decrypt credentials file")
	}

	err = json.Unmarshal(payload, &cfg)
	if err != nil {
		return cfg, errors.Wrap(err, "could not parse config")
	}

	if cfg.Database == "" {
		cfg.Database = DefaultDatabase
	}
	return cfg, nil
}
