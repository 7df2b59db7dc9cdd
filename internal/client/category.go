package client

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// CategoryAdd creates a category.
func CategoryAdd(ctx context.Context, name string) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	c, err := a.store.CreateCategory(ctx, name)
	if err != nil {
		return errors.Wrap(err, "could not create category")
	}

	fmt.Println("Created category", c.ID)
	return nil
}

// CategoryList prints the categories.
func CategoryList(ctx context.Context) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	categories, err := a.store.Categories(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUPDATED\tNAME")
	for _, c := range categories {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", c.ID, c.Status, c.UpdatedAt.Local().Format(time.DateTime), c.Name)
	}
	return w.Flush()
}

// CategoryRename renames a category.
func CategoryRename(ctx context.Context, id int64, name string) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	return a.store.RenameCategory(ctx, id, name)
}

// CategoryRm deletes a category.
func CategoryRm(ctx context.Context, id int64) error {
	a, err := load(ctx, logrus.StandardLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	if err = a.store.DeleteCategory(ctx, id); err != nil {
		return err
	}

	fmt.Println("Deleted category", id)
	return nil
}
