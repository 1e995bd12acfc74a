package core

import (
	"context"

	"gitlab.com/tozd/go/errors"

	"graphclone/internal/config"
	blobcore "graphclone/internal/infra/blob/core"
	blobfs "graphclone/internal/infra/blob/fs"
	blobmemory "graphclone/internal/infra/blob/memory"
	blobs3 "graphclone/internal/infra/blob/s3"
	"graphclone/internal/infra/persistence/blobstate"
	"graphclone/internal/infra/persistence/memory"
	"graphclone/internal/infra/persistence/postgres"
	"graphclone/internal/infra/persistence/sqlite"
	"graphclone/pkg/domain"
)

// Store is a persistent store the caller must close.
type Store interface {
	domain.PersistentStore
	Close() error
}

type nopCloser struct {
	domain.PersistentStore
}

func (nopCloser) Close() error { return nil }

// Unwrap returns the wrapped store.
func (n nopCloser) Unwrap() domain.PersistentStore { return n.PersistentStore }

// OpenPersistentStore selects a backend from cfg.Storage.Driver:
//
//	memory   in-memory only (tests / ephemeral)
//	sqlite   embedded sqlite file at cfg.SQLite.Path
//	postgres PostgreSQL server at cfg.Postgres.DSN
//	blob     snapshot objects in the blob store chosen by cfg.Blob
func OpenPersistentStore(ctx context.Context, cfg config.Config, model *domain.Model, engine *domain.RulesEngine, opts ...memory.Option) (Store, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return nopCloser{memory.NewStore(model, engine, opts...)}, nil
	case config.StorageSQLite, "":
		store, err := sqlite.NewStore(cfg.SQLite.Path, model, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoragePostgres:
		store, err := postgres.NewStore(ctx, cfg.Postgres.DSN, model, engine, opts...)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageBlob:
		blobs, err := OpenBlobStore(ctx, cfg.Blob)
		if err != nil {
			return nil, err
		}
		store, err := blobstate.NewStore(ctx, blobs, model, engine,
			blobstate.WithRetention(cfg.Blob.Retention),
			blobstate.WithMemoryOptions(opts...),
		)
		if err != nil {
			return nil, err
		}
		return nopCloser{store}, nil
	default:
		return nil, errors.Errorf("unknown storage driver %s", cfg.Storage.Driver)
	}
}

// OpenBlobStore builds the blob store named by cfg.Driver.
func OpenBlobStore(ctx context.Context, cfg config.BlobConfig) (blobcore.Store, error) {
	switch cfg.Driver {
	case config.BlobFilesystem, "":
		store, err := blobfs.New(cfg.Root)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.BlobMemory:
		return blobmemory.New(), nil
	case config.BlobS3:
		store, err := blobs3.New(ctx, blobs3.Config{
			Region:          cfg.S3.Region,
			Bucket:          cfg.S3.Bucket,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			PathStyle:       cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, errors.Errorf("unknown blob driver %s", cfg.Driver)
	}
}
