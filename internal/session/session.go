// Package session keeps the client's login state in a webstore namespace.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"tmail/internal/webstore"
)

// 持久化的键名
const (
	KeyAPIToken  = "api_token"
	KeyUser      = "user"
	KeyAuthState = "auth_state"
)

// FallbackUsername is shown when the stored user cannot be decoded.
const FallbackUsername = "User"

// User 用户资料，与服务端 /api/profile 的 JSON 一致
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// ClientSession 当前登录状态，每个存储命名空间至多一个
type ClientSession struct {
	APIToken string
	User     User
}

// Store reads and writes the ClientSession of one tab.
type Store struct {
	storage webstore.Storage
	logger  *slog.Logger
}

// NewStore creates a Store on storage.
func NewStore(storage webstore.Storage, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{storage: storage, logger: logger.With("component", "session")}
}

// Load returns the persisted session, or nil when there is none.
// A user entry that is not valid JSON still yields a session, named FallbackUsername;
// an empty one means logged out.
func (s *Store) Load(ctx context.Context) (*ClientSession, error) {
	token, ok, err := s.storage.Get(ctx, KeyAPIToken)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", KeyAPIToken, err)
	}
	if !ok || token == "" {
		return nil, nil
	}
	raw, ok, err := s.storage.Get(ctx, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", KeyUser, err)
	}
	// 空的用户记录视为未登录
	if !ok || raw == "" {
		return nil, nil
	}

	sess := &ClientSession{APIToken: token}
	if err := json.Unmarshal([]byte(raw), &sess.User); err != nil {
		s.logger.Warn("stored user is malformed, using placeholder", "error", err)
		sess.User = User{Username: FallbackUsername}
	}
	if sess.User.Username == "" {
		sess.User.Username = FallbackUsername
	}
	return sess, nil
}

// Save persists token and user. The user is written first so a tab that sees
// the token can always read the user.
func (s *Store) Save(ctx context.Context, token string, user User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	if err := s.storage.Set(ctx, KeyUser, string(data)); err != nil {
		return err
	}
	return s.storage.Set(ctx, KeyAPIToken, token)
}

// Clear removes the session. Failures are logged, never returned.
func (s *Store) Clear(ctx context.Context) {
	for _, key := range []string{KeyAPIToken, KeyUser} {
		if err := s.storage.Remove(ctx, key); err != nil {
			s.logger.Error("failed to clear session key", "key", key, "error", err)
		}
	}
}

// Subscribe calls fn whenever another tab changes the session.
func (s *Store) Subscribe(ctx context.Context, fn func()) (webstore.Subscription, error) {
	return s.storage.Subscribe(ctx, func(ev webstore.Event) {
		if ev.Key == KeyAPIToken || ev.Key == KeyUser {
			fn()
		}
	})
}

// SaveState remembers the login nonce until the callback arrives.
func (s *Store) SaveState(ctx context.Context, state string) error {
	return s.storage.Set(ctx, KeyAuthState, state)
}

// TakeState returns and forgets the remembered nonce.
func (s *Store) TakeState(ctx context.Context) (string, error) {
	state, _, err := s.storage.Get(ctx, KeyAuthState)
	if err != nil {
		return "", err
	}
	if err := s.storage.Remove(ctx, KeyAuthState); err != nil {
		return "", err
	}
	return state, nil
}
