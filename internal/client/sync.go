package client

import (
	"context"
	"fmt"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/sirupsen/logrus"
)

// Sync runs one sync pass.
func Sync(ctx context.Context, verbose bool) error {
	log := logrus.StandardLogger()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	a, err := load(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.engine.Sync(ctx)
	if err != nil {
		return err
	}
	dump(log, "sync result", result)

	fmt.Println(summary(result))
	return nil
}

func summary(r engine.Result) string {
	s := fmt.Sprintf("Synced %d notes, %d categories. %d conflicts.", r.EntriesSynced, r.CategoriesSynced, r.ConflictsDetected)
	if r.Failed > 0 {
		s += fmt.Sprintf(" %d items could not be applied.", r.Failed)
	}
	return s
}
