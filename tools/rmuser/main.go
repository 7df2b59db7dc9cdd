package main

import (
	"fmt"
	"log"
	"time"

	"github.com/mdouchement/writersync/internal/database"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
)

var (
	codec string
	dsn   string
)

func main() {
	c := &coral.Command{
		Use:   "rmuser DATABASE EMAIL",
		Short: "Remove a user and all its synced items from the database",
		Long:  "DATABASE is a storm file path, or ignored when --dsn is given.",
		Args:  coral.ExactArgs(2),
		RunE: func(_ *coral.Command, args []string) error {
			//
			//
			var (
				db  database.Client
				err error
			)
			if dsn != "" {
				fmt.Println("Opening PostgreSQL database")
				db, err = database.PostgresOpen(dsn)
			} else {
				fmt.Println("Opening", args[0])
				db, err = database.StormOpen(args[0], codec)
			}
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			// Fetch user
			user, err := db.FindUserByMail(args[1])
			if err != nil {
				if db.IsNotFound(err) {
					fmt.Println("No account for this email")
					return nil
				}
				return errors.Wrap(err, "find user by mail")
			}

			fmt.Println("User found:", user.ID)

			// Deleting user's items, tombstones included
			items, err := db.FindSyncItemsUpdatedSince(user.ID, time.Time{})
			if err != nil && !db.IsNotFound(err) {
				return errors.Wrap(err, "find items")
			}
			for _, item := range items {
				if err = db.Delete(item); err != nil && !db.IsNotFound(err) {
					return errors.Wrap(err, "delete item")
				}
			}
			fmt.Println(len(items), "items removed")

			// Delete user
			err = db.Delete(user)
			if err != nil && !db.IsNotFound(err) {
				return errors.Wrap(err, "delete user")
			}
			fmt.Println("User removed")

			return nil
		},
	}
	c.Flags().StringVar(&codec, "codec", "", "Storm codec (msgpack, json, cbor, binc)")
	c.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL DSN")

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}
