package client

import (
	"context"

	"github.com/mdouchement/writersync/internal/engine"
	"github.com/mdouchement/writersync/internal/store"
	"github.com/mdouchement/writersync/pkg/libsync"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// sessionCacheSize is the number of per-item keys kept in memory.
const sessionCacheSize = 32

// An app gathers everything a command needs for the authenticated account.
type app struct {
	cfg     Config
	client  libsync.Client
	store   *store.Store
	session *engine.Session
	engine  *engine.Engine
}

func load(ctx context.Context, log logrus.FieldLogger) (*app, error) {
	cfg, err := Load()
	if err != nil {
		return nil, errors.Wrap(err, "could not load config")
	}

	return newApp(ctx, cfg, log)
}

func newApp(ctx context.Context, cfg Config, log logrus.FieldLogger) (*app, error) {
	client, err := libsync.NewDefaultClient(cfg.Endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "could not reach writersync endpoint")
	}
	client.SetBearerToken(cfg.BearerToken)

	session, err := engine.NewSession(sessionCacheSize)
	if err != nil {
		return nil, err
	}
	if len(cfg.BulkKey) > 0 {
		if err = session.Unlock(cfg.BulkKey); err != nil {
			return nil, err
		}
	}

	s, err := store.Open(ctx, cfg.Database)
	if err != nil {
		session.Lock()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		client:  client,
		store:   s,
		session: session,
		engine:  engine.New(client, s, s, session, engine.WithLogger(log)),
	}, nil
}

// Close wipes the secrets and closes the local database.
func (a *app) Close() error {
	a.session.Lock()
	libsync.Wipe(a.cfg.BulkKey)
	return a.store.Close()
}
