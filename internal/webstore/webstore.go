// Package webstore is a durable key/value namespace shared by several
// independent client handles ("tabs"). A write through one handle is
// announced to subscribers on every other handle, never to the writer.
package webstore

import (
	"context"
	"fmt"

	"tmail/internal/conf"

	"github.com/redis/go-redis/v9"
)

// Event describes a change made by another handle.
type Event struct {
	Key string `json:"key"`
	// Value is the new value; empty when Removed.
	Value   string `json:"value,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// Storage is one tab's view of a namespace.
type Storage interface {
	// Get reports ok=false for missing keys.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	// Remove is a no-op for missing keys.
	Remove(ctx context.Context, key string) error
	// Subscribe calls fn for every change made through other handles, in order,
	// until the returned Subscription is closed.
	Subscribe(ctx context.Context, fn func(Event)) (Subscription, error)
	Close() error
}

// Subscription is released by Close. Close is idempotent.
type Subscription interface {
	Close() error
}

// Open opens a new tab on the namespace described by cfg.
func Open(ctx context.Context, cfg conf.ClientStorage) (Storage, error) {
	switch cfg.Driver {
	case "sqlite":
		return OpenSQLite(cfg.Path, cfg.PollInterval)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedis(client, cfg.Namespace), nil
	case "memory":
		return NewNamespace().Tab(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
