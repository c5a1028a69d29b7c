package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"tmail/internal/biz"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

var _ biz.IdentityProvider = (*GitHubProvider)(nil)

// GitHubProvider exchanges codes with GitHub OAuth and reads the /user API.
type GitHubProvider struct {
	config     oauth2.Config
	apiBaseURL string // defaults to https://api.github.com, overridden in tests
}

// NewGitHubProvider creates a new GitHub OAuth provider.
func NewGitHubProvider(clientID, clientSecret, redirectURL string, scopes []string) *GitHubProvider {
	return &GitHubProvider{
		config: oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       scopes,
			Endpoint:     github.Endpoint,
		},
		apiBaseURL: "https://api.github.com",
	}
}

func (p *GitHubProvider) Name() string { return "github" }

// AuthCodeURL returns the GitHub authorization URL with state parameter
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Resolve exchanges the code and fetches the GitHub account behind it.
func (p *GitHubProvider) Resolve(ctx context.Context, code string) (*biz.Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	user, err := p.fetchUser(p.config.Client(ctx, token))
	if err != nil {
		return nil, err
	}

	return &biz.Identity{
		UserID:    user.ID,
		Username:  user.Login,
		Email:     user.Email,
		AvatarURL: user.AvatarURL,
	}, nil
}

func (p *GitHubProvider) fetchUser(client *http.Client) (*githubUser, error) {
	req, err := http.NewRequest(http.MethodGet, p.apiBaseURL+"/user", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build user request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user: status %d", resp.StatusCode)
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user: %w", err)
	}
	if user.ID == 0 {
		return nil, fmt.Errorf("github user has no id")
	}
	return &user, nil
}
