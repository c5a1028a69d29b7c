package data

import (
	"context"
	"fmt"
	"time"

	"tmail/internal/biz"

	"github.com/redis/go-redis/v9"
)

var _ biz.TokenRepo = (*redisTokenRepo)(nil)

// insertTokenScript 仅在键不存在时写入整条哈希
var insertTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// touchTokenScript 只更新已存在令牌的 last_used_at
var touchTokenScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return 0
end
redis.call('HSET', KEYS[1], 'last_used_at', ARGV[1])
return 1
`)

// redisTokenRepo Redis 实现的令牌仓库，每个令牌一个哈希
type redisTokenRepo struct {
	client *redis.Client
	prefix string
}

type redisTokenValue struct {
	UserID     int64  `redis:"user_id"`
	Username   string `redis:"username"`
	Email      string `redis:"email"`
	AvatarURL  string `redis:"avatar_url"`
	Name       string `redis:"name"`
	IssuedAt   int64  `redis:"issued_at"`
	LastUsedAt int64  `redis:"last_used_at"`
}

// NewRedisTokenRepo 创建 Redis 令牌仓库，键以 prefix 开头
func NewRedisTokenRepo(client *redis.Client, prefix string) biz.TokenRepo {
	return &redisTokenRepo{client: client, prefix: prefix}
}

func (r *redisTokenRepo) tokenKey(token string) string {
	return r.prefix + ":token:" + hashToken(token)
}

func (r *redisTokenRepo) NextUserID(ctx context.Context) (int64, error) {
	id, err := r.client.Incr(ctx, r.prefix+":user_seq").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate user id: %w", err)
	}
	return id, nil
}

func (r *redisTokenRepo) Insert(ctx context.Context, rec *biz.TokenRecord, profile *biz.UserProfile) error {
	fields := []interface{}{
		"user_id", rec.UserID,
		"username", profile.Username,
		"email", profile.Email,
		"avatar_url", profile.AvatarURL,
		"name", tokenName(rec),
		"issued_at", rec.IssuedAt.UnixMicro(),
		"last_used_at", unixMicroOrZero(rec.LastUsedAt),
	}
	ok, err := insertTokenScript.Run(ctx, r.client, []string{r.tokenKey(rec.Token)}, fields...).Int()
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	if ok == 0 {
		return biz.ErrTokenExists
	}
	return nil
}

func (r *redisTokenRepo) Lookup(ctx context.Context, token string) (*biz.TokenRecord, *biz.UserProfile, error) {
	cmd := r.client.HGetAll(ctx, r.tokenKey(token))
	fields, err := cmd.Result()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get token: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil, biz.ErrTokenNotFound
	}

	var v redisTokenValue
	if err := cmd.Scan(&v); err != nil {
		return nil, nil, fmt.Errorf("failed to decode token: %w", err)
	}

	rec := &biz.TokenRecord{
		Token:      token,
		Name:       v.Name,
		UserID:     v.UserID,
		IssuedAt:   time.UnixMicro(v.IssuedAt).UTC(),
		LastUsedAt: timeFromMicro(v.LastUsedAt),
	}
	profile := &biz.UserProfile{ID: v.UserID, Username: v.Username, Email: v.Email, AvatarURL: v.AvatarURL}
	return rec, profile, nil
}

// Touch 更新令牌最近使用时间
func (r *redisTokenRepo) Touch(ctx context.Context, token string, at time.Time) error {
	ok, err := touchTokenScript.Run(ctx, r.client, []string{r.tokenKey(token)}, at.UnixMicro()).Int()
	if err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	if ok == 0 {
		return biz.ErrTokenNotFound
	}
	return nil
}

// Close 关闭 Redis 客户端
func (r *redisTokenRepo) Close() error {
	return r.client.Close()
}

func (r *redisTokenRepo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
