package auth

import (
	"context"

	"tmail/internal/biz"

	"golang.org/x/oauth2"
)

var _ biz.IdentityProvider = (*MockProvider)(nil)

// MockProvider stands in for a real identity service: every code resolves to
// a brand new anonymous identity, synthesized by the issuer from the user id.
type MockProvider struct {
	config oauth2.Config
}

// NewMockProvider creates a mock provider. An empty authorizeURL means GitHub's.
func NewMockProvider(clientID, redirectURL, authorizeURL string, scopes []string) *MockProvider {
	if authorizeURL == "" {
		authorizeURL = DefaultAuthorizeURL
	}
	return &MockProvider{
		config: oauth2.Config{
			ClientID:    clientID,
			RedirectURL: redirectURL,
			Scopes:      scopes,
			Endpoint:    oauth2.Endpoint{AuthURL: authorizeURL},
		},
	}
}

func (p *MockProvider) Name() string { return "mock" }

// AuthCodeURL returns the authorization URL with state parameter
func (p *MockProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Resolve accepts any code.
func (p *MockProvider) Resolve(context.Context, string) (*biz.Identity, error) {
	return &biz.Identity{}, nil
}
