package fundkrawler

import (
	"context"
	"fmt"
)

// Store persists the records of one snapshot. Writing the same path twice
// replaces the first snapshot.
type Store interface {
	Write(ctx context.Context, path string, records []*ThemeRecord) error
	Close() error
}

// Store driver names accepted in the config file.
const (
	StoreDriverFile     = "file"
	StoreDriverRedis    = "redis"
	StoreDriverPostgres = "postgres"
)

// NewStore opens the store selected by config.Store.Driver.
func NewStore(ctx context.Context, config *Config) (Store, error) {
	switch config.Store.Driver {
	case StoreDriverFile, "":
		return NewFileStore(config.Store.Root), nil
	case StoreDriverRedis:
		return NewRedisStore(config.Store.Namespace, config.Store.Redis), nil
	case StoreDriverPostgres:
		return NewPostgresStore(ctx, config.Store.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
}
