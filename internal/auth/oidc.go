package auth

import (
	"context"
	"fmt"

	"tmail/internal/biz"
	"tmail/internal/conf"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

var _ biz.IdentityProvider = (*OIDCProvider)(nil)

// OIDCProvider wraps OIDC provider and OAuth2 configuration
type OIDCProvider struct {
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config oauth2.Config
}

// NewOIDCProvider creates a new OIDC identity provider
func NewOIDCProvider(ctx context.Context, cfg *conf.Auth, redirectURL string) (*OIDCProvider, error) {
	if cfg.IssuerURL == "" {
		return nil, fmt.Errorf("oidc provider requires auth.issuer_url")
	}

	// Initialize OIDC provider (discovers .well-known/openid-configuration)
	provider, err := oidc.NewProvider(ctx, cfg.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 || (len(scopes) == 1 && scopes[0] == "user") {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	oauth2Config := oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     provider.Endpoint(),
		Scopes:       scopes,
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID: cfg.ClientID,
	})

	return &OIDCProvider{
		provider:     provider,
		verifier:     verifier,
		oauth2Config: oauth2Config,
	}, nil
}

func (p *OIDCProvider) Name() string { return "oidc" }

// AuthCodeURL returns the OIDC authorization URL with state parameter
func (p *OIDCProvider) AuthCodeURL(state string) string {
	return p.oauth2Config.AuthCodeURL(state)
}

// Resolve exchanges the code, verifies the ID token and maps its claims.
// OIDC subjects are strings, so the issuer allocates the numeric user id.
func (p *OIDCProvider) Resolve(ctx context.Context, code string) (*biz.Identity, error) {
	token, err := p.oauth2Config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in response")
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	var claims oidcClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	username := claims.PreferredUsername
	if username == "" {
		username = claims.Name
	}
	return &biz.Identity{
		Username:  username,
		Email:     claims.Email,
		AvatarURL: claims.Picture,
	}, nil
}
