package client

import (
	"context"
	"fmt"

	"github.com/chzyer/readline"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Passwd changes the encryption password. The bulk key itself is unchanged.
func Passwd(ctx context.Context) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	mk, err := a.client.MasterKey(ctx)
	if err != nil {
		return errors.Wrap(err, "could not get master key")
	}
	if !mk.Exists {
		return errors.Wrap(libsync.ErrNotFound, "no master key stored on the server")
	}

	current, err := readline.Password("Current encryption password: ")
	if err != nil {
		return errors.Wrap(err, "could not read password from stdin")
	}
	defer libsync.Wipe(current)

	next, err := readNewPassword("New encryption password: ")
	if err != nil {
		return err
	}
	defer libsync.Wipe(next)

	wrapped, err := libsync.RewrapBulkKey(libsync.StringValue(mk.EncryptedMasterKey), current, next)
	if err != nil {
		return errors.Wrap(err, "could not re-wrap master key")
	}

	if err = a.client.ChangeMasterKeyPassword(ctx, wrapped); err != nil {
		return errors.Wrap(err, "could not update master key")
	}

	fmt.Println("Encryption password changed")
	return nil
}
