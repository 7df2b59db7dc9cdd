package main

import (
	"context"
	"fmt"
	"hash"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/mdouchement/writersync/internal/database"
	"github.com/mdouchement/writersync/internal/server"
	"github.com/muesli/coral"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/hkdf"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	dbname    = "writersync.db"
	envPrefix = "WRITERSYNC_"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cfg string
)

func main() {
	c := &coral.Command{
		Use:     "writersync",
		Short:   "Encrypted notes synchronization server",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    coral.ExactArgs(0),
	}
	for _, cmd := range []*coral.Command{initCmd, reindexCmd, migrateCmd, serverCmd} {
		cmd.Flags().StringVarP(&cfg, "config", "c", "", "Configuration file")
		c.AddCommand(cmd)
	}

	if err := c.Execute(); err != nil {
		log.Fatalf("%+v", err)
	}
}

// config loads the defaults, the configuration file and the WRITERSYNC_ environment variables, in that order.
// Nested keys use a double underscore (e.g. WRITERSYNC_DATABASE__DRIVER).
func config() (*koanf.Koanf, error) {
	konf := koanf.New(".")

	err := konf.Load(confmap.Provider(map[string]any{
		"address":         ":5000",
		"token_ttl":       "168h",
		"auth_rate_limit": 1.0,
		"database.driver": "storm",
		"log.level":       "info",
	}, "."), nil)
	if err != nil {
		return nil, errors.Wrap(err, "could not load defaults")
	}

	if cfg != "" {
		if err = konf.Load(file.Provider(cfg), yaml.Parser()); err != nil {
			return nil, errors.Wrap(err, "could not load configuration file")
		}
	}

	err = konf.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil)
	return konf, errors.Wrap(err, "could not load environment")
}

func dbnameWithPath(path string) string {
	if len(path) == 0 {
		return dbname
	}
	return filepath.Join(path, dbname)
}

func openDatabase(konf *koanf.Koanf) (database.Client, error) {
	switch driver := konf.String("database.driver"); driver {
	case "storm":
		return database.StormOpen(dbnameWithPath(konf.String("database.path")), konf.String("database.codec"))
	case "postgres":
		return database.PostgresOpen(konf.String("database.dsn"))
	default:
		return nil, errors.Errorf("unsupported database driver: %s", driver)
	}
}

func setupLogger(konf *koanf.Koanf) error {
	level, err := logrus.ParseLevel(konf.String("log.level"))
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	logrus.SetLevel(level)

	if filename := konf.String("log.file"); filename != "" {
		logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   filename,
			MaxSize:    100, // megabytes
			MaxBackups: 3,
			MaxAge:     28, //days
		}))
	}
	return nil
}

func kdf(l int, k []byte) []byte {
	nhash := func() hash.Hash {
		h, err := blake2b.New256(nil)
		if err != nil {
			panic(err)
		}
		return h
	}

	payload := make([]byte, l)

	kdf := hkdf.New(nhash, k, nil, []byte("writersync jwt"))
	_, err := io.ReadFull(kdf, payload)
	if err != nil {
		panic(err)
	}

	return payload
}

var (
	initCmd = &coral.Command{
		Use:   "init",
		Short: "Init the storm database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := config()
			if err != nil {
				return err
			}

			return database.StormInit(dbnameWithPath(konf.String("database.path")), konf.String("database.codec"))
		},
	}

	//
	reindexCmd = &coral.Command{
		Use:   "reindex",
		Short: "Reindex the storm database",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := config()
			if err != nil {
				return err
			}

			return database.StormReIndex(dbnameWithPath(konf.String("database.path")), konf.String("database.codec"))
		},
	}

	//
	migrateCmd = &coral.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema migrations",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := config()
			if err != nil {
				return err
			}

			if konf.String("database.dsn") == "" {
				return errors.New("database.dsn not found")
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			return database.PostgresMigrate(ctx, konf.String("database.dsn"))
		},
	}

	//
	//
	serverCmd = &coral.Command{
		Use:   "server",
		Short: "Start server",
		Args:  coral.ExactArgs(0),
		RunE: func(_ *coral.Command, _ []string) error {
			konf, err := config()
			if err != nil {
				return err
			}

			if konf.String("secret_key") == "" {
				return errors.New("secret_key not found")
			}

			if err = setupLogger(konf); err != nil {
				return err
			}

			db, err := openDatabase(konf)
			if err != nil {
				return errors.Wrap(err, "could not open database")
			}
			defer db.Close()

			engine := server.EchoEngine(server.IOC{
				Version:        version,
				Database:       db,
				NoRegistration: konf.Bool("no_registration"),
				SigningKey:     kdf(32, konf.MustBytes("secret_key")),
				TokenTTL:       konf.Duration("token_ttl"),
				AuthRateLimit:  konf.Float64("auth_rate_limit"),
			})
			server.PrintRoutes(engine)

			address := konf.String("address")
			message := "could not run server"
			logrus.Infof("Server listening on %s", address)
			parts := strings.Split(address, ":")
			if len(parts) == 2 && parts[0] == "unix" {
				socketFile := parts[1]
				if _, err := os.Stat(socketFile); err == nil {
					logrus.Infof("Removing existing %s", socketFile)
					os.Remove(socketFile)
				}
				defer os.Remove(socketFile)
				listener, err := net.Listen(parts[0], socketFile)
				if err != nil {
					return err
				}
				return errors.Wrap(engine.Server.Serve(listener), message)
			}
			return errors.Wrap(engine.Start(address), message)
		},
	}
)
