package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"tmail/internal/conf"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestMockProvider_AuthCodeURLKeepsState(t *testing.T) {
	p := NewMockProvider("client-123", "http://localhost:3000/login/callback", "", []string{"user"})

	states := []string{"abc123", "a b&c=d", "ünïcode", "x+y/z?", "-_.~"}
	for _, state := range states {
		raw := p.AuthCodeURL(state)
		u, err := url.Parse(raw)
		require.NoError(t, err)

		q := u.Query()
		assert.Equal(t, state, q.Get("state"), "state must survive decoding verbatim")
		assert.Equal(t, "client-123", q.Get("client_id"))
		assert.Equal(t, "http://localhost:3000/login/callback", q.Get("redirect_uri"))
		assert.Equal(t, "user", q.Get("scope"))
		assert.Equal(t, "github.com", u.Host)
		assert.Equal(t, "/login/oauth/authorize", u.Path)
	}
}

func TestMockProvider_CustomAuthorizeURL(t *testing.T) {
	p := NewMockProvider("id", "http://cb", "http://localhost:3000/mock/oauth/authorize", nil)
	u, err := url.Parse(p.AuthCodeURL("s"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:3000", u.Host)
	assert.Equal(t, "/mock/oauth/authorize", u.Path)

	identity, err := p.Resolve(context.Background(), "anything")
	require.NoError(t, err)
	assert.Zero(t, identity.UserID)
}

func newFakeGitHub(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		if r.Form.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"access_token": "gho_test", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer gho_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(githubUser{ID: 583231, Login: "octocat", Email: "octocat@github.com", AvatarURL: "https://avatars.githubusercontent.com/u/583231?v=4"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubProvider_Resolve(t *testing.T) {
	srv := newFakeGitHub(t)

	p := NewGitHubProvider("id", "secret", "http://cb", []string{"user:email"})
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:  srv.URL + "/login/oauth/authorize",
		TokenURL: srv.URL + "/login/oauth/access_token",
	}
	p.apiBaseURL = srv.URL

	identity, err := p.Resolve(context.Background(), "good-code")
	require.NoError(t, err)
	assert.Equal(t, int64(583231), identity.UserID)
	assert.Equal(t, "octocat", identity.Username)
	assert.Equal(t, "octocat@github.com", identity.Email)

	_, err = p.Resolve(context.Background(), "bad-code")
	assert.Error(t, err)
}

func TestGitHubProvider_AuthCodeURL(t *testing.T) {
	p := NewGitHubProvider("id", "secret", "http://cb", []string{"user:email"})
	u, err := url.Parse(p.AuthCodeURL("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	assert.Equal(t, "xyz", u.Query().Get("state"))
}

func TestNewIdentityProvider(t *testing.T) {
	ctx := context.Background()

	p, err := NewIdentityProvider(ctx, &conf.Auth{Provider: "mock", ClientID: "id"}, "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "mock", p.Name())

	_, err = NewIdentityProvider(ctx, &conf.Auth{Provider: "github", ClientID: "id"}, "http://cb")
	assert.Error(t, err, "github requires a secret")

	p, err = NewIdentityProvider(ctx, &conf.Auth{Provider: "github", ClientID: "id", ClientSecret: "s"}, "http://cb")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Name())

	_, err = NewIdentityProvider(ctx, &conf.Auth{Provider: "oidc"}, "http://cb")
	assert.Error(t, err, "oidc requires an issuer")

	_, err = NewIdentityProvider(ctx, &conf.Auth{Provider: "saml"}, "http://cb")
	assert.Error(t, err)
}

func TestNewOIDCProvider_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := NewOIDCProvider(context.Background(), &conf.Auth{IssuerURL: srv.URL, ClientID: "id"}, "http://cb")
	assert.Error(t, err)
}
