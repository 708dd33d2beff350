package data

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"

	"github.com/yola1107/puppeteer/internal/conf"
	"github.com/yola1107/puppeteer/log"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(NewData, NewAssignmentRepo, NewTokenFile)

// ErrBlobNotFound means nothing was saved yet.
var ErrBlobNotFound = errors.New("data: blob not found")

// BlobStore reads and writes one durable blob.
type BlobStore interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, blob []byte) error
}

// Data .
type Data struct {
	store BlobStore
}

// NewData opens the configured blob store.
func NewData(c *conf.Data) (*Data, func(), error) {
	var (
		store BlobStore
		rdb   *redis.Client
	)
	switch c.Store {
	case conf.StoreFile:
		store = NewFileStore(c.File)
	case conf.StoreRedis:
		rdb = NewRedis(c.Redis)
		store = NewRedisStore(rdb, c.Redis.Key)
	default:
		return nil, nil, fmt.Errorf("data: unknown store %q", c.Store)
	}

	cleanup := func() {
		log.Info("closing the data resources")
		if rdb != nil {
			_ = rdb.Close()
		}
	}
	return &Data{store: store}, cleanup, nil
}
