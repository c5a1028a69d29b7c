package webstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var _ Storage = (*RedisStorage)(nil)

// RedisStorage 基于 Redis 的存储句柄：键值写入 <namespace>:<key>，
// 变更通过 <namespace>:events 频道广播
type RedisStorage struct {
	client    *redis.Client
	namespace string
	origin    string
}

type redisEvent struct {
	Origin string `json:"origin"`
	Event
}

// NewRedis opens a tab on namespace. Close closes client.
func NewRedis(client *redis.Client, namespace string) *RedisStorage {
	return &RedisStorage{client: client, namespace: namespace, origin: uuid.NewString()}
}

func (r *RedisStorage) key(k string) string {
	return r.namespace + ":" + k
}

func (r *RedisStorage) channel() string {
	return r.namespace + ":events"
}

func (r *RedisStorage) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.client.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return v, true, nil
}

func (r *RedisStorage) Set(ctx context.Context, key, value string) error {
	payload, err := r.encode(Event{Key: key, Value: value})
	if err != nil {
		return err
	}

	// 写入和广播放在同一个 MULTI 中
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key(key), value, 0)
		pipe.Publish(ctx, r.channel(), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

// removeScript 删除和广播原子执行，键不存在时不广播
var removeScript = redis.NewScript(`
if redis.call('DEL', KEYS[1]) == 0 then
	return 0
end
redis.call('PUBLISH', KEYS[2], ARGV[1])
return 1
`)

func (r *RedisStorage) Remove(ctx context.Context, key string) error {
	payload, err := r.encode(Event{Key: key, Removed: true})
	if err != nil {
		return err
	}
	if err := removeScript.Run(ctx, r.client, []string{r.key(key), r.channel()}, payload).Err(); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}
	return nil
}

func (r *RedisStorage) encode(ev Event) (string, error) {
	data, err := json.Marshal(redisEvent{Origin: r.origin, Event: ev})
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}
	return string(data), nil
}

// Subscribe returns once the subscription is confirmed by the server, so no
// change published after Subscribe returns is missed. fn runs on a dedicated
// goroutine and must not close the subscription itself.
func (r *RedisStorage) Subscribe(ctx context.Context, fn func(Event)) (Subscription, error) {
	ps := r.client.Subscribe(ctx, r.channel())
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	sub := &redisSubscription{ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(sub.done)
		for msg := range ch {
			var ev redisEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				slog.Warn("dropping malformed storage event", "component", "webstore", "error", err)
				continue
			}
			if ev.Origin == r.origin {
				continue
			}
			fn(ev.Event)
		}
	}()
	return sub, nil
}

// Close 关闭 Redis 客户端
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

type redisSubscription struct {
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSubscription) Close() error {
	s.once.Do(func() {
		s.err = s.ps.Close()
		<-s.done
	})
	return s.err
}
