package client

import (
	"bytes"
	"context"
	"fmt"

	"github.com/chzyer/readline"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
)

const unwrapAttempts = 3

// Login connects to a writersync server and unlocks the account bulk key.
func Login(ctx context.Context) error {
	return authenticate(ctx, false)
}

// Register creates an account on a writersync server and sets up its bulk key.
func Register(ctx context.Context) error {
	return authenticate(ctx, true)
}

func authenticate(ctx context.Context, register bool) error {
	cfg := Config{Database: DefaultDatabase}

	endpoint, err := readline.Line("Endpoint: ")
	if err != nil {
		return errors.Wrap(err, "could not read endpoint from stdin")
	}
	cfg.Endpoint = endpoint

	client, err := libsync.NewDefaultClient(cfg.Endpoint)
	if err != nil {
		return errors.Wrap(err, "could not reach given endpoint")
	}
	if err = client.Health(ctx); err != nil {
		return errors.Wrap(err, "server is not healthy")
	}

	cfg.Email, err = readline.Line("Email: ")
	if err != nil {
		return errors.Wrap(err, "could not read email from stdin")
	}

	password, err := readline.Password("Password: ")
	if err != nil {
		return errors.Wrap(err, "could not read password from stdin")
	}

	var auth libsync.Auth
	if register {
		auth, err = client.Register(ctx, cfg.Email, string(password))
	} else {
		auth, err = client.Login(ctx, cfg.Email, string(password))
	}
	libsync.Wipe(password)
	if err != nil {
		return errors.Wrap(err, "could not authenticate")
	}
	cfg.UserID = auth.UserID
	cfg.BearerToken = auth.Token

	key, err := setupEncryption(ctx, client)
	if err != nil {
		return err
	}
	defer key.Wipe()
	cfg.BulkKey = key

	return Save(cfg)
}

// setupEncryption unwraps the bulk key stored by the server or creates a new one.
func setupEncryption(ctx context.Context, client libsync.Client) (libsync.BulkKey, error) {
	mk, err := client.MasterKey(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not get master key")
	}

	if mk.Exists {
		return unlockBulkKey(libsync.StringValue(mk.EncryptedMasterKey))
	}

	fmt.Println("No encryption key found on the server, creating a new one.")
	password, err := readNewPassword("Encryption password: ")
	if err != nil {
		return nil, err
	}
	defer libsync.Wipe(password)

	key, err := libsync.GenerateBulkKey()
	if err != nil {
		return nil, err
	}

	wrapped, err := libsync.WrapBulkKey(key, password)
	if err != nil {
		key.Wipe()
		return nil, err
	}

	err = client.UploadMasterKey(ctx, wrapped)
	if errors.Is(err, libsync.ErrAlreadyExists) {
		// Another device has been faster.
		key.Wipe()
		mk, err = client.MasterKey(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "could not get master key")
		}
		return unlockBulkKey(libsync.StringValue(mk.EncryptedMasterKey))
	}
	if err != nil {
		key.Wipe()
		return nil, errors.Wrap(err, "could not upload master key")
	}

	fmt.Println("Keep your encryption password safe, your notes cannot be recovered without it.")
	return key, nil
}

func unlockBulkKey(wrapped string) (libsync.BulkKey, error) {
	for i := 0; i < unwrapAttempts; i++ {
		password, err := readline.Password("Encryption password: ")
		if err != nil {
			return nil, errors.Wrap(err, "could not read encryption password from stdin")
		}

		key, err := libsync.UnwrapBulkKey(wrapped, password)
		libsync.Wipe(password)
		if errors.Is(err, libsync.ErrDecryption) {
			fmt.Println("Wrong encryption password.")
			continue
		}
		return key, err
	}

	return nil, errors.Wrap(libsync.ErrDecryption, "too many attempts")
}

// readNewPassword prompts a password satisfying the policy, twice.
func readNewPassword(prompt string) ([]byte, error) {
	for {
		password, err := readline.Password(prompt)
		if err != nil {
			return nil, errors.Wrap(err, "could not read password from stdin")
		}

		if err = libsync.ValidatePassword(password); err != nil {
			libsync.Wipe(password)
			fmt.Println(err)
			continue
		}

		score := libsync.PasswordStrength(password)
		fmt.Printf("Strength: %d/4 (%s)\n", score, libsync.StrengthLabel(score))

		confirmation, err := readline.Password("Confirm: ")
		if err != nil {
			libsync.Wipe(password)
			return nil, errors.Wrap(err, "could not read password from stdin")
		}

		match := bytes.Equal(password, confirmation)
		libsync.Wipe(confirmation)
		if !match {
			libsync.Wipe(password)
			fmt.Println("Passwords do not match.")
			continue
		}

		return password, nil
	}
}
