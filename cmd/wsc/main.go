package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/mdouchement/writersync/internal/client"
	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	verbose       bool
	watchInterval time.Duration
	editInterval  time.Duration
	category      string
	body          string
	keep          string
	kind          bool
)

func main() {
	c := &cobra.Command{
		Use:          "wsc",
		Short:        "writersync client, encrypted notes synchronization",
		Version:      fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:         cobra.NoArgs,
		SilenceUsage: true,
	}
	c.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	c.AddCommand(registerCmd)
	c.AddCommand(loginCmd)
	c.AddCommand(logoutCmd)
	c.AddCommand(passwdCmd)

	c.AddCommand(syncCmd)
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", client.DefaultInterval, "Delay between two periodic passes")
	c.AddCommand(watchCmd)

	noteAddCmd.Flags().StringVarP(&category, "category", "c", "", "Category id or name")
	noteAddCmd.Flags().StringVarP(&body, "body", "b", "", "Note body (- reads stdin)")
	noteEditCmd.Flags().DurationVarP(&editInterval, "interval", "i", time.Minute, "Delay between two background passes while editing (0 disables them)")
	noteCmd.AddCommand(noteAddCmd, noteListCmd, noteShowCmd, noteEditCmd, noteRmCmd, noteLockCmd, noteUnlockCmd)
	c.AddCommand(noteCmd)

	categoryCmd.AddCommand(categoryAddCmd, categoryListCmd, categoryRenameCmd, categoryRmCmd)
	c.AddCommand(categoryCmd)

	for _, cmd := range []*cobra.Command{conflictShowCmd, resolveCmd} {
		cmd.Flags().BoolVar(&kind, "category", false, "The conflict is on a category")
	}
	resolveCmd.Flags().StringVarP(&keep, "keep", "k", "", "Resolution: local, server or merge")
	resolveCmd.MarkFlagRequired("keep") // nolint:errcheck
	conflictsCmd.AddCommand(conflictShowCmd)
	c.AddCommand(conflictsCmd)
	c.AddCommand(resolveCmd)

	c.AddCommand(backupCmd)
	c.AddCommand(unsealCmd)

	if err := c.ExecuteContext(context.Background()); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func id(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	return n, errors.Wrapf(err, "invalid id %q", arg)
}

func itemType() string {
	if kind {
		return libsync.ItemTypeCategory
	}
	return libsync.ItemTypeNote
}

func readBody(body string) (string, error) {
	if body != "-" {
		return body, nil
	}

	b, err := io.ReadAll(os.Stdin)
	return string(b), errors.Wrap(err, "could not read body from stdin")
}

var (
	registerCmd = &cobra.Command{
		Use:   "register",
		Short: "Create an account on a writersync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Register(cmd.Context())
		},
	}

	loginCmd = &cobra.Command{
		Use:   "login",
		Short: "Login to a writersync server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Login(cmd.Context())
		},
	}

	logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Forget the credentials, local notes are kept",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return client.Logout()
		},
	}

	passwdCmd = &cobra.Command{
		Use:   "passwd",
		Short: "Change the encryption password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Passwd(cmd.Context())
		},
	}

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Synchronize the local notes with the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Sync(cmd.Context(), verbose)
		},
	}

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Synchronize periodically and on local changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Watch(cmd.Context(), watchInterval, verbose)
		},
	}

	//
	// Notes
	//

	noteCmd = &cobra.Command{
		Use:   "note",
		Short: "Manage the local notes",
	}

	noteAddCmd = &cobra.Command{
		Use:   "add TITLE",
		Short: "Create a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readBody(body)
			if err != nil {
				return err
			}
			return client.NoteAdd(cmd.Context(), args[0], text, category)
		},
	}

	noteListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the notes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.NoteList(cmd.Context())
		},
	}

	noteShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.NoteShow(cmd.Context(), n)
		},
	}

	noteEditCmd = &cobra.Command{
		Use:   "edit ID",
		Short: "Edit a note with $EDITOR",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.NoteEdit(cmd.Context(), n, editInterval)
		},
	}

	noteRmCmd = &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.NoteRm(cmd.Context(), n)
		},
	}

	noteLockCmd = &cobra.Command{
		Use:   "lock ID",
		Short: "Protect a note body with its own passphrase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.NoteLock(cmd.Context(), n)
		},
	}

	noteUnlockCmd = &cobra.Command{
		Use:   "unlock ID",
		Short: "Remove the passphrase of a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.NoteUnlock(cmd.Context(), n)
		},
	}

	//
	// Categories
	//

	categoryCmd = &cobra.Command{
		Use:   "category",
		Short: "Manage the local categories",
	}

	categoryAddCmd = &cobra.Command{
		Use:   "add NAME",
		Short: "Create a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.CategoryAdd(cmd.Context(), args[0])
		},
	}

	categoryListCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the categories",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.CategoryList(cmd.Context())
		},
	}

	categoryRenameCmd = &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.CategoryRename(cmd.Context(), n, args[1])
		},
	}

	categoryRmCmd = &cobra.Command{
		Use:   "rm ID",
		Short: "Delete a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.CategoryRm(cmd.Context(), n)
		},
	}

	//
	// Conflicts
	//

	conflictsCmd = &cobra.Command{
		Use:   "conflicts",
		Short: "List the unresolved conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Conflicts(cmd.Context())
		},
	}

	conflictShowCmd = &cobra.Command{
		Use:   "show ID",
		Short: "Print both versions of a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			return client.ConflictShow(cmd.Context(), itemType(), n)
		},
	}

	resolveCmd = &cobra.Command{
		Use:   "resolve ID",
		Short: "Resolve a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := id(args[0])
			if err != nil {
				return err
			}
			resolution, err := engine.ParseResolution(keep)
			if err != nil {
				return err
			}
			return client.Resolve(cmd.Context(), itemType(), n, resolution)
		},
	}

	//
	// Backups
	//

	backupCmd = &cobra.Command{
		Use:   "backup",
		Short: "Backup your encrypted notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return client.Backup(cmd.Context())
		},
	}

	unsealCmd = &cobra.Command{
		Use:   "unseal FILENAME",
		Short: "Decrypt a backup",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return client.Unseal(cmd.Context(), args[0])
		},
	}
)
