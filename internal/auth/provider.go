package auth

import (
	"context"
	"fmt"

	"tmail/internal/biz"
	"tmail/internal/conf"
)

// DefaultAuthorizeURL is where the mock provider sends users unless overridden.
const DefaultAuthorizeURL = "https://github.com/login/oauth/authorize"

// NewIdentityProvider builds the provider named by cfg.Provider.
func NewIdentityProvider(ctx context.Context, cfg *conf.Auth, redirectURL string) (biz.IdentityProvider, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockProvider(cfg.ClientID, redirectURL, cfg.AuthorizeURL, cfg.Scopes), nil
	case "github":
		if cfg.ClientSecret == "" {
			return nil, fmt.Errorf("github provider requires a client secret")
		}
		return NewGitHubProvider(cfg.ClientID, cfg.ClientSecret, redirectURL, cfg.Scopes), nil
	case "oidc":
		return NewOIDCProvider(ctx, cfg, redirectURL)
	default:
		return nil, fmt.Errorf("unknown auth provider %q", cfg.Provider)
	}
}
