package database

import (
	"context"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/storage/database/inmem"
	"github.com/trezcool/academia/storage/database/mongodb"
	"github.com/trezcool/academia/storage/database/postgres"
)

// Storage engines.
const (
	EngineMongo    = "mongo"
	EnginePostgres = "postgres"
	EngineMemory   = "memory"
)

var ErrUnknownEngine = errors.New("unknown database engine")

// Open connects the document store selected by `database.engine` and waits for it to answer.
func Open(ctx context.Context, conf *core.Config) (core.DocumentStore, error) {
	var (
		store core.DocumentStore
		err   error
	)
	switch conf.Database.Engine {
	case EngineMongo:
		store, err = mongodb.Open(ctx, conf)
	case EnginePostgres:
		store, err = postgres.Open(conf)
	case EngineMemory:
		store = inmemdb.Open()
	default:
		return nil, errors.Wrap(ErrUnknownEngine, conf.Database.Engine)
	}
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err = ping(ctx, store); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return store, nil
}

// ping waits for the database to be ready. Waits 100ms longer between each attempt.
func ping(ctx context.Context, store core.DocumentStore) error {
	var err error
	maxAttempts := 30
	for attempts := 1; attempts <= maxAttempts; attempts++ {
		err = store.Ping(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "DB ping canceled")
		case <-time.After(time.Duration(attempts) * 100 * time.Millisecond):
		}
	}

	if err != nil {
		return errors.Wrap(err, "DB ping timeout")
	}
	return nil
}

// Migrate applies a goose command to the postgres store. Other engines have no schema.
func Migrate(ctx context.Context, store core.DocumentStore, command string, args ...string) error {
	pg, ok := store.(*postgres.DB)
	if !ok {
		return errors.New("migrations only apply to the postgres engine")
	}
	return postgres.Migrate(ctx, pg.SQL().DB, command, args...)
}
