package data

import (
	"context"
	"fmt"

	"tmail/internal/biz"
	"tmail/internal/conf"

	"github.com/redis/go-redis/v9"
)

// NewTokenRepo 按配置选择令牌仓库实现
func NewTokenRepo(ctx context.Context, cfg conf.Store) (biz.TokenRepo, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemoryTokenRepo(), nil
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "data/tokens.db"
		}
		return NewSQLiteTokenRepo(path)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("store.dsn is required for postgres")
		}
		return NewPostgresTokenRepo(cfg.DSN)
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		return NewRedisTokenRepo(client, cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Pinger is implemented by repos backed by an external store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks repo's backing store; in-process repos are always reachable.
func Ping(ctx context.Context, repo biz.TokenRepo) error {
	if p, ok := repo.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
