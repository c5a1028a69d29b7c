package data

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"tmail/internal/biz"
)

var _ biz.TokenRepo = (*memoryTokenRepo)(nil)

type tokenEntry struct {
	rec     biz.TokenRecord
	profile biz.UserProfile
}

// memoryTokenRepo 进程内令牌表，进程重启即丢失
type memoryTokenRepo struct {
	mu     sync.RWMutex
	tokens map[string]tokenEntry
	seq    atomic.Int64
}

// NewMemoryTokenRepo 创建内存令牌仓库
func NewMemoryTokenRepo() biz.TokenRepo {
	r := &memoryTokenRepo{tokens: make(map[string]tokenEntry)}
	// ids start at a random offset so they look like provider ids, then only grow
	r.seq.Store(rand.Int64N(1_000_000))
	return r
}

func (r *memoryTokenRepo) NextUserID(context.Context) (int64, error) {
	return r.seq.Add(1), nil
}

func (r *memoryTokenRepo) Insert(_ context.Context, rec *biz.TokenRecord, profile *biz.UserProfile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tokens[rec.Token]; ok {
		return biz.ErrTokenExists
	}
	entry := tokenEntry{rec: *rec, profile: *profile}
	entry.rec.Name = tokenName(rec)
	r.tokens[rec.Token] = entry
	return nil
}

func (r *memoryTokenRepo) Lookup(_ context.Context, token string) (*biz.TokenRecord, *biz.UserProfile, error) {
	r.mu.RLock()
	entry, ok := r.tokens[token]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, biz.ErrTokenNotFound
	}
	return &entry.rec, &entry.profile, nil
}

func (r *memoryTokenRepo) Touch(_ context.Context, token string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.tokens[token]
	if !ok {
		return biz.ErrTokenNotFound
	}
	entry.rec.LastUsedAt = at
	r.tokens[token] = entry
	return nil
}

func (r *memoryTokenRepo) Close() error { return nil }
