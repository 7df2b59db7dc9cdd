package client

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultInterval is the default delay between two periodic passes.
const DefaultInterval = 15 * time.Minute

// settle is the quiet period after a local change before a pass is triggered.
const settle = 2 * time.Second

// Watch runs a pass every interval and whenever the local database changes.
// It stops on SIGINT or SIGTERM.
func Watch(ctx context.Context, interval time.Duration, verbose bool) error {
	level := logrus.InfoLevel
	if verbose {
		level = logrus.DebugLevel
	}
	log := NewLogger(LogFile, level, true)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := load(ctx, log)
	if err != nil {
		return err
	}
	defer a.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "could not create file watcher")
	}
	defer watcher.Close()

	// SQLite replaces and appends sidecar files, the directory is watched instead of the file.
	path, err := filepath.Abs(a.store.Path())
	if err != nil {
		return errors.Wrap(err, "could not resolve database path")
	}
	if err = watcher.Add(filepath.Dir(path)); err != nil {
		return errors.Wrap(err, "could not watch database")
	}

	changed := make(chan struct{}, 1)
	debounced := debounce.New(settle)

	log.WithField("interval", interval).Info("watching for changes")
	run(ctx, a, log)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("stopped")
			return nil
		case <-ticker.C:
			run(ctx, a, log)
		case <-changed:
			// Passes write to the database too, only local edits trigger a new one.
			n, err := a.store.PendingCount(ctx)
			if err != nil {
				log.WithError(err).Error("could not count pending items")
				continue
			}
			if n > 0 {
				run(ctx, a, log)
			}
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if strings.HasPrefix(filepath.Base(event.Name), filepath.Base(path)) && event.Has(fsnotify.Write) {
				debounced(func() {
					select {
					case changed <- struct{}{}:
					default:
					}
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Warn("file watcher error")
		}
	}
}

func run(ctx context.Context, a *app, log logrus.FieldLogger) {
	result, err := a.engine.Sync(ctx)
	if err != nil {
		log.WithError(err).Error("sync failed")
		return
	}
	log.Info(summary(result))
}
