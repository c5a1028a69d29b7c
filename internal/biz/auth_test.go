package biz_test

import (
	"context"
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"testing"
	"time"

	"tmail/internal/auth"
	"tmail/internal/biz"
	"tmail/internal/data"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, opts ...biz.AuthOption) *biz.AuthUsecase {
	t.Helper()
	provider := auth.NewMockProvider("client-id", "http://localhost:3000/login/callback", "", []string{"user"})
	return biz.NewAuthUsecase(data.NewMemoryTokenRepo(), provider, opts...)
}

func TestAuthorizationURL(t *testing.T) {
	uc := newIssuer(t)
	ctx := context.Background()

	for _, state := range []string{"abc123", "with space", "a&b=c", "%41"} {
		req, err := uc.AuthorizationURL(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, state, req.State)

		u, err := url.Parse(req.AuthURL)
		require.NoError(t, err)
		assert.Equal(t, state, u.Query().Get("state"))
	}

	_, err := uc.AuthorizationURL(ctx, "")
	assert.ErrorIs(t, err, biz.ErrMissingState)
}

func TestExchangeCode(t *testing.T) {
	uc := newIssuer(t)
	ctx := context.Background()

	_, err := uc.ExchangeCode(ctx, "", "s")
	assert.ErrorIs(t, err, biz.ErrMissingCode)

	usernameRe := regexp.MustCompile(`^user_\d+$`)
	tokens := make(map[string]bool)
	for i := 0; i < 10; i++ {
		login, err := uc.ExchangeCode(ctx, "xyz", "")
		require.NoError(t, err)

		assert.NotEmpty(t, login.Token)
		assert.False(t, tokens[login.Token], "token reissued")
		tokens[login.Token] = true

		assert.Regexp(t, usernameRe, login.User.Username)
		assert.Equal(t, "user_"+strconv.FormatInt(login.User.ID, 10), login.User.Username)
		assert.Equal(t, login.User.Username+"@github.com", login.User.Email)
		assert.Contains(t, login.User.AvatarURL, "/u/"+strconv.FormatInt(login.User.ID, 10))

		profile, err := uc.Profile(ctx, login.Token)
		require.NoError(t, err)
		assert.Equal(t, login.User, *profile)
	}
}

func TestProfile_UnknownTokenAlwaysUnauthorized(t *testing.T) {
	uc := newIssuer(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := uc.Profile(ctx, "fabricated")
		assert.ErrorIs(t, err, biz.ErrUnauthorized)
	}
	_, err := uc.Profile(ctx, "")
	assert.ErrorIs(t, err, biz.ErrUnauthorized)
}

func TestExchangeCode_Concurrent(t *testing.T) {
	uc := newIssuer(t)
	ctx := context.Background()

	var (
		mu     sync.Mutex
		tokens = make(map[string]int64)
		wg     sync.WaitGroup
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			login, err := uc.ExchangeCode(ctx, "code", "")
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			tokens[login.Token] = login.User.ID
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, tokens, 32)

	ids := make(map[int64]bool)
	for token, id := range tokens {
		assert.False(t, ids[id], "user id %d issued twice", id)
		ids[id] = true

		profile, err := uc.Profile(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, id, profile.ID)
	}
}

func TestExchangeCode_StateVerification(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	uc := newIssuer(t, biz.WithStateVerification(auth.NewStateStore(ctx)))

	_, err := uc.ExchangeCode(ctx, "code", "forged")
	assert.ErrorIs(t, err, biz.ErrInvalidState)

	_, err = uc.AuthorizationURL(ctx, "issued")
	require.NoError(t, err)

	_, err = uc.ExchangeCode(ctx, "code", "issued")
	require.NoError(t, err)

	_, err = uc.ExchangeCode(ctx, "code", "issued")
	assert.ErrorIs(t, err, biz.ErrInvalidState, "state is single use")
}

func TestProfile_MaxAge(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	uc := newIssuer(t,
		biz.WithExpiryPolicy(biz.MaxAge{TTL: time.Hour}),
		biz.WithClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	login, err := uc.ExchangeCode(ctx, "code", "")
	require.NoError(t, err)

	now = now.Add(59 * time.Minute)
	_, err = uc.Profile(ctx, login.Token)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = uc.Profile(ctx, login.Token)
	assert.ErrorIs(t, err, biz.ErrUnauthorized)
}

type stubProvider struct {
	identity *biz.Identity
	err      error
}

func (s stubProvider) Name() string                  { return "stub" }
func (s stubProvider) AuthCodeURL(state string) string { return "https://idp.example/authorize?state=" + url.QueryEscape(state) }
func (s stubProvider) Resolve(context.Context, string) (*biz.Identity, error) {
	return s.identity, s.err
}

func TestExchangeCode_ProviderIdentity(t *testing.T) {
	provider := stubProvider{identity: &biz.Identity{UserID: 583231, Username: "octocat", Email: "octocat@github.com"}}
	uc := biz.NewAuthUsecase(data.NewMemoryTokenRepo(), provider)

	login, err := uc.ExchangeCode(context.Background(), "code", "")
	require.NoError(t, err)
	assert.Equal(t, int64(583231), login.User.ID)
	assert.Equal(t, "octocat", login.User.Username)
	assert.Equal(t, "octocat@github.com", login.User.Email)
	assert.Equal(t, "https://avatars.githubusercontent.com/u/583231?v=4", login.User.AvatarURL)
}

func TestExchangeCode_ProviderFailure(t *testing.T) {
	uc := biz.NewAuthUsecase(data.NewMemoryTokenRepo(), stubProvider{err: errors.New("bad_verification_code")})

	_, err := uc.ExchangeCode(context.Background(), "code", "")
	assert.ErrorIs(t, err, biz.ErrProvider)
	assert.Contains(t, err.Error(), "bad_verification_code")
}

func TestExchangeCode_TokenCollisionRetried(t *testing.T) {
	tokens := []string{"same", "same", "fresh"}
	next := func() (string, error) {
		tok := tokens[0]
		tokens = tokens[1:]
		return tok, nil
	}
	uc := newIssuer(t, biz.WithTokenFunc(next))
	ctx := context.Background()

	first, err := uc.ExchangeCode(ctx, "code", "")
	require.NoError(t, err)
	assert.Equal(t, "same", first.Token)

	second, err := uc.ExchangeCode(ctx, "code", "")
	require.NoError(t, err)
	assert.Equal(t, "fresh", second.Token)
}

func TestProfile_RecordsLastUse(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := data.NewMemoryTokenRepo()
	provider := auth.NewMockProvider("client-id", "http://localhost:3000/login/callback", "", []string{"user"})
	uc := biz.NewAuthUsecase(repo, provider, biz.WithClock(func() time.Time { return now }))
	ctx := context.Background()

	login, err := uc.ExchangeCode(ctx, "code", "")
	require.NoError(t, err)

	rec, _, err := repo.Lookup(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, biz.DefaultTokenName, rec.Name)
	assert.True(t, rec.LastUsedAt.IsZero())

	now = now.Add(5 * time.Minute)
	_, err = uc.Profile(ctx, login.Token)
	require.NoError(t, err)

	rec, _, err = repo.Lookup(ctx, login.Token)
	require.NoError(t, err)
	assert.Equal(t, now, rec.LastUsedAt)
}
