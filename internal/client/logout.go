package client

import (
	"fmt"

	"github.com/pkg/errors"
)

// Logout forgets the credentials. The local database is kept.
func Logout() error {
	if err := Remove(); err != nil {
		return errors.Wrap(err, "could not remove credential file")
	}

	fmt.Println("Logged out, local notes are kept")
	return nil
}
