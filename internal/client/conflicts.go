package client

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Conflicts prints the unresolved conflicts.
func Conflicts(ctx context.Context) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	conflicts, err := a.store.Conflicts(ctx)
	if err != nil {
		return err
	}
	if len(conflicts) == 0 {
		fmt.Println("No conflicts")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tID\tDETECTED\tLABEL")
	for _, c := range conflicts {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", c.ItemType, c.LocalID, c.DetectedTime().Local().Format(time.DateTime), label(c.ItemType, c.Local))
	}
	return w.Flush()
}

func label(itemType string, s engine.Snapshot) string {
	key := "title"
	if itemType == libsync.ItemTypeCategory {
		key = "name"
	}
	v, _ := s.Data[key].(string)
	return v
}

// ConflictShow prints both versions of a conflict.
func ConflictShow(ctx context.Context, itemType string, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.store.FindConflict(ctx, itemType, id)
	if err != nil {
		return err
	}
	if c == nil {
		return errors.Wrapf(libsync.ErrNotFound, "no conflict for %s %d", itemType, id)
	}

	fmt.Print(describe("LOCAL", c.Local))
	fmt.Println()
	fmt.Print(describe("SERVER", c.Server))
	return nil
}

func describe(side string, s engine.Snapshot) string {
	if s.Empty() {
		return fmt.Sprintf("=== %s (unavailable) ===\n", side)
	}

	out := fmt.Sprintf("=== %s (updated %s) ===\n", side, s.UpdatedAt)
	for _, key := range []string{"name", "title", "body"} {
		if v, ok := s.Data[key].(string); ok {
			out += fmt.Sprintf("%s: %s\n", key, v)
		}
	}
	if locked, _ := s.Data["is_encrypted"].(bool); locked {
		out += "(locked with a passphrase)\n"
	}
	return out
}

// Resolve applies a resolution to a conflict.
func Resolve(ctx context.Context, itemType string, id int64, resolution engine.Resolution) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	if err = engine.NewResolver(a.store).Resolve(ctx, itemType, id, resolution); err != nil {
		return err
	}

	fmt.Printf("Resolved %s %d (%s)\n", itemType, id, resolution)
	return nil
}
