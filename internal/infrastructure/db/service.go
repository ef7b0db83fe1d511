package db

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/arkade-os/marketd/internal/core/ports"
	badgerdb "github.com/arkade-os/marketd/internal/infrastructure/db/badger"
	inmemorydb "github.com/arkade-os/marketd/internal/infrastructure/db/inmemory"
	pgdb "github.com/arkade-os/marketd/internal/infrastructure/db/postgres"
	redisdb "github.com/arkade-os/marketd/internal/infrastructure/db/redis"
	sqlitedb "github.com/arkade-os/marketd/internal/infrastructure/db/sqlite"
	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

//go:embed sqlite/migration/*
var migrations embed.FS

//go:embed postgres/migration/*
var pgMigration embed.FS

var storeTypes = map[string]func(...interface{}) (ports.RepoManager, error){
	"inmemory": newInmemoryRepoManager,
	"badger":   badgerdb.NewRepoManager,
	"sqlite":   sqlitedb.NewRepoManager,
	"postgres": pgdb.NewRepoManager,
	"redis":    redisdb.NewRepoManager,
}

const (
	sqliteDbFile = "sqlite.db"
)

type ServiceConfig struct {
	DataStoreType   string
	DataStoreConfig []interface{}
}

// NewService opens the store of the given type and runs its migrations, if any.
//
// Expected config per store type:
//   - inmemory: none
//   - badger: base directory (empty for in-memory), optional badger.Logger
//   - sqlite: base directory
//   - postgres: dsn, autocreate flag
//   - redis: url, number of retries for conflicting transactions
func NewService(config ServiceConfig) (ports.RepoManager, error) {
	factory, ok := storeTypes[config.DataStoreType]
	if !ok {
		return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
	}

	switch config.DataStoreType {
	case "inmemory":
		return factory()

	case "badger":
		repoManager, err := factory(config.DataStoreConfig...)
		if err != nil {
			return nil, fmt.Errorf("failed to open market store: %s", err)
		}
		return repoManager, nil

	case "postgres":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for postgres")
		}

		dsn, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid DSN for postgres")
		}

		autoCreate, ok := config.DataStoreConfig[1].(bool)
		if !ok {
			return nil, fmt.Errorf("invalid autocreate flag for postgres")
		}

		db, err := pgdb.OpenDb(dsn, autoCreate)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres db: %s", err)
		}

		if err := migratePostgres(db); err != nil {
			// nolint:all
			db.Close()
			return nil, err
		}

		repoManager, err := factory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open market store: %s", err)
		}
		return repoManager, nil

	case "sqlite":
		if len(config.DataStoreConfig) != 1 {
			return nil, fmt.Errorf("invalid data store config")
		}

		baseDir, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid base directory")
		}

		dbFile := filepath.Join(baseDir, sqliteDbFile)
		db, err := sqlitedb.OpenDb(dbFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open db: %s", err)
		}

		if err := migrateSqlite(db); err != nil {
			// nolint:all
			db.Close()
			return nil, err
		}

		repoManager, err := factory(db)
		if err != nil {
			return nil, fmt.Errorf("failed to open market store: %s", err)
		}
		return repoManager, nil

	case "redis":
		if len(config.DataStoreConfig) != 2 {
			return nil, fmt.Errorf("invalid data store config for redis")
		}

		redisUrl, ok := config.DataStoreConfig[0].(string)
		if !ok {
			return nil, fmt.Errorf("invalid url for redis")
		}
		numOfRetries, ok := config.DataStoreConfig[1].(int)
		if !ok {
			return nil, fmt.Errorf("invalid number of retries for redis")
		}

		opts, err := redis.ParseURL(redisUrl)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %s", err)
		}
		rdb := redis.NewClient(opts)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			// nolint:all
			rdb.Close()
			return nil, fmt.Errorf("failed to connect to redis: %s", err)
		}

		repoManager, err := factory(rdb, numOfRetries)
		if err != nil {
			// nolint:all
			rdb.Close()
			return nil, fmt.Errorf("failed to open market store: %s", err)
		}
		return repoManager, nil
	}

	return nil, fmt.Errorf("invalid data store type: %s", config.DataStoreType)
}

func newInmemoryRepoManager(_ ...interface{}) (ports.RepoManager, error) {
	return inmemorydb.NewRepoManager(), nil
}

func migratePostgres(db *sql.DB) error {
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		return fmt.Errorf("failed to init postgres migration driver: %s", err)
	}

	source, err := iofs.New(pgMigration, "postgres/migration")
	if err != nil {
		return fmt.Errorf("failed to embed postgres migrations: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create postgres migration instance: %s", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run postgres migrations: %s", err)
	}
	log.Debug("applied postgres migrations")
	return nil
}

func migrateSqlite(db *sql.DB) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to init driver: %s", err)
	}

	source, err := iofs.New(migrations, "sqlite/migration")
	if err != nil {
		return fmt.Errorf("failed to embed migrations: %s", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "marketdb", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %s", err)
	}

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			return nil
		}
		return fmt.Errorf("failed to run migrations: %s", err)
	}
	log.Debug("applied sqlite migrations")
	return nil
}
