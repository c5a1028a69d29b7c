package biz

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"tmail/internal/secure"
)

// AuthorizationRequest 授权请求，AuthURL 中总是携带原样的 state
type AuthorizationRequest struct {
	State   string
	AuthURL string
}

// DefaultTokenName 登录签发的令牌名称
const DefaultTokenName = "default"

// TokenRecord 令牌记录
type TokenRecord struct {
	Token  string
	Name   string
	UserID int64

	IssuedAt time.Time
	// LastUsedAt is zero until the token first authenticates a request.
	LastUsedAt time.Time
}

// UserProfile 用户资料，签发时生成，之后不可变
type UserProfile struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// Login 换取令牌的结果
type Login struct {
	Token string
	User  UserProfile
}

// Identity is what an identity provider knows about the user behind a code.
// Zero fields are synthesized from the allocated user id.
type Identity struct {
	UserID    int64
	Username  string
	Email     string
	AvatarURL string
}

// IdentityProvider 身份提供方接口（由 auth 层实现）
type IdentityProvider interface {
	// Name returns the provider identifier (mock, github, oidc).
	Name() string
	// AuthCodeURL returns the provider authorization URL carrying state verbatim.
	AuthCodeURL(state string) string
	// Resolve exchanges an authorization code for the user's identity.
	Resolve(ctx context.Context, code string) (*Identity, error)
}

// TokenRepo 令牌表接口（由 data 层实现）
type TokenRepo interface {
	// NextUserID allocates a user id never handed out before by this repo.
	NextUserID(ctx context.Context) (int64, error)
	// Insert stores record and profile together. ErrTokenExists on collision.
	Insert(ctx context.Context, rec *TokenRecord, profile *UserProfile) error
	// Lookup returns ErrTokenNotFound for unknown tokens.
	Lookup(ctx context.Context, token string) (*TokenRecord, *UserProfile, error)
	// Touch records a successful use of token. ErrTokenNotFound for unknown tokens.
	Touch(ctx context.Context, token string, at time.Time) error
	Close() error
}

// StateStore tracks issued state nonces for optional callback verification.
type StateStore interface {
	Save(state string, ttl time.Duration)
	// Consume reports whether state was issued and unexpired; a state is usable once.
	Consume(state string) bool
}

// ExpiryPolicy decides whether an issued token is still valid.
type ExpiryPolicy interface {
	Expired(rec *TokenRecord, now time.Time) bool
}

// NeverExpire keeps tokens valid for the life of the repo.
type NeverExpire struct{}

func (NeverExpire) Expired(*TokenRecord, time.Time) bool { return false }

// MaxAge expires tokens TTL after issuance.
type MaxAge struct {
	TTL time.Duration
}

func (m MaxAge) Expired(rec *TokenRecord, now time.Time) bool {
	return now.Sub(rec.IssuedAt) >= m.TTL
}

const (
	stateTTL        = 10 * time.Minute
	mintMaxAttempts = 3
)

// AuthUsecase 令牌签发业务逻辑
type AuthUsecase struct {
	repo     TokenRepo
	provider IdentityProvider
	states   StateStore
	expiry   ExpiryPolicy
	newToken func() (string, error)
	now      func() time.Time
	logger   *slog.Logger
}

// AuthOption configures an AuthUsecase.
type AuthOption func(*AuthUsecase)

// WithStateVerification records issued states and requires them on exchange.
func WithStateVerification(states StateStore) AuthOption {
	return func(uc *AuthUsecase) { uc.states = states }
}

// WithExpiryPolicy replaces the default NeverExpire policy.
func WithExpiryPolicy(p ExpiryPolicy) AuthOption {
	return func(uc *AuthUsecase) { uc.expiry = p }
}

// WithTokenFunc replaces the random token source.
func WithTokenFunc(fn func() (string, error)) AuthOption {
	return func(uc *AuthUsecase) { uc.newToken = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) AuthOption {
	return func(uc *AuthUsecase) { uc.now = now }
}

// WithLogger sets the logger; slog.Default otherwise.
func WithLogger(logger *slog.Logger) AuthOption {
	return func(uc *AuthUsecase) { uc.logger = logger }
}

// NewAuthUsecase 创建 AuthUsecase
func NewAuthUsecase(repo TokenRepo, provider IdentityProvider, opts ...AuthOption) *AuthUsecase {
	uc := &AuthUsecase{
		repo:     repo,
		provider: provider,
		expiry:   NeverExpire{},
		newToken: secure.Token,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// AuthorizationURL 生成授权地址，不修改令牌表
func (uc *AuthUsecase) AuthorizationURL(ctx context.Context, state string) (*AuthorizationRequest, error) {
	if state == "" {
		return nil, ErrMissingState
	}
	if uc.states != nil {
		uc.states.Save(state, stateTTL)
	}
	return &AuthorizationRequest{
		State:   state,
		AuthURL: uc.provider.AuthCodeURL(state),
	}, nil
}

// ExchangeCode 用授权码换取新令牌和用户资料
func (uc *AuthUsecase) ExchangeCode(ctx context.Context, code, state string) (*Login, error) {
	if code == "" {
		return nil, ErrMissingCode
	}
	if uc.states != nil && !uc.states.Consume(state) {
		return nil, ErrInvalidState
	}

	identity, err := uc.provider.Resolve(ctx, code)
	if err != nil {
		return nil, wrapError("resolve identity", fmt.Errorf("%w: %w", ErrProvider, err))
	}

	userID := identity.UserID
	if userID == 0 {
		if userID, err = uc.repo.NextUserID(ctx); err != nil {
			return nil, wrapError("allocate user id", err)
		}
	}
	profile := synthesizeProfile(userID, identity)

	// 令牌冲突概率可忽略，仍然有限重试
	for attempt := 0; attempt < mintMaxAttempts; attempt++ {
		token, err := uc.newToken()
		if err != nil {
			return nil, wrapError("mint token", err)
		}
		rec := &TokenRecord{Token: token, Name: DefaultTokenName, UserID: userID, IssuedAt: uc.now().UTC()}
		err = uc.repo.Insert(ctx, rec, profile)
		if errors.Is(err, ErrTokenExists) {
			continue
		}
		if err != nil {
			return nil, wrapError("store token", err)
		}

		uc.logger.Info("token issued",
			"component", "auth",
			"provider", uc.provider.Name(),
			"user_id", userID,
			"username", profile.Username,
		)
		return &Login{Token: token, User: *profile}, nil
	}
	return nil, wrapError("mint token", ErrTokenExists)
}

// Profile 根据令牌查询用户资料
func (uc *AuthUsecase) Profile(ctx context.Context, token string) (*UserProfile, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	rec, profile, err := uc.repo.Lookup(ctx, token)
	if errors.Is(err, ErrTokenNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, wrapError("lookup token", err)
	}
	now := uc.now()
	if uc.expiry.Expired(rec, now) {
		return nil, ErrUnauthorized
	}
	// 使用时间只做记录，写失败不影响鉴权
	if err := uc.repo.Touch(ctx, token, now.UTC()); err != nil {
		uc.logger.Warn("failed to record token use",
			"component", "auth",
			"user_id", rec.UserID,
			"error", err,
		)
	}
	return profile, nil
}

// synthesizeProfile fills whatever the identity lacks from the user id.
func synthesizeProfile(userID int64, id *Identity) *UserProfile {
	idStr := strconv.FormatInt(userID, 10)
	p := &UserProfile{
		ID:        userID,
		Username:  id.Username,
		Email:     id.Email,
		AvatarURL: id.AvatarURL,
	}
	if p.Username == "" {
		p.Username = "user_" + idStr
	}
	if p.Email == "" {
		p.Email = p.Username + "@github.com"
	}
	if p.AvatarURL == "" {
		p.AvatarURL = "https://avatars.githubusercontent.com/u/" + idStr + "?v=4"
	}
	return p
}
