package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is the config structure.
type Config struct {
	Server Server `yaml:"server"`
	Log    Log    `yaml:"log"`
	Auth   Auth   `yaml:"auth"`
	Store  Store  `yaml:"store"`
	Mail   Mail   `yaml:"mail"`
	Client Client `yaml:"client"`
}

// Server is the server config.
type Server struct {
	Addr    string `yaml:"addr" env:"SERVER_ADDR"`
	BaseURL string `yaml:"base_url" env:"SERVER_BASE_URL"`
	// AllowedOrigins for CORS. Empty allows any origin.
	AllowedOrigins []string `yaml:"allowed_origins" env:"SERVER_ALLOWED_ORIGINS" envSeparator:","`
}

// Log is the logging config.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Auth is the authentication config.
type Auth struct {
	// Provider selects the identity provider: mock, github or oidc.
	Provider     string   `yaml:"provider" env:"AUTH_PROVIDER"`
	ClientID     string   `yaml:"client_id" env:"GITHUB_OAUTH_ID"`
	ClientSecret string   `yaml:"client_secret" env:"GITHUB_OAUTH_SECRET"`
	RedirectURL  string   `yaml:"redirect_url" env:"GITHUB_OAUTH_REDIRECT"`
	Scopes       []string `yaml:"scopes" env:"AUTH_SCOPES" envSeparator:","`
	// AuthorizeURL overrides the provider authorize endpoint (mock provider only).
	AuthorizeURL string `yaml:"authorize_url" env:"AUTH_AUTHORIZE_URL"`
	// IssuerURL is the OIDC discovery base (oidc provider only).
	IssuerURL string `yaml:"issuer_url" env:"OIDC_PROVIDER"`
	// MockAuthorize serves /mock/oauth/authorize, which redirects straight back with a code.
	MockAuthorize bool `yaml:"mock_authorize" env:"AUTH_MOCK_AUTHORIZE"`
	// VerifyState rejects code exchanges whose state was not issued by this server.
	VerifyState bool `yaml:"verify_state" env:"AUTH_VERIFY_STATE"`
	// TokenTTL bounds API token lifetime. Zero means tokens never expire.
	TokenTTL time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL"`
}

// Store is the token table config.
type Store struct {
	// Driver is one of memory, sqlite, postgres, redis.
	Driver    string `yaml:"driver" env:"STORE_DRIVER"`
	DSN       string `yaml:"dsn" env:"STORE_DSN"`
	RedisAddr string `yaml:"redis_addr" env:"REDIS_ADDR"`
	Prefix    string `yaml:"prefix" env:"STORE_PREFIX"`
}

// Mail is the mailbox collaborator config.
type Mail struct {
	Domains []string `yaml:"domains" env:"MAIL_DOMAINS" envSeparator:","`
}

// Client is the tmail CLI config.
type Client struct {
	APIBaseURL   string        `yaml:"api_base_url" env:"TMAIL_API_BASE_URL"`
	CallbackAddr string        `yaml:"callback_addr" env:"TMAIL_CALLBACK_ADDR"`
	LandingPath  string        `yaml:"landing_path" env:"TMAIL_LANDING_PATH"`
	VerifyState  bool          `yaml:"verify_state" env:"TMAIL_VERIFY_STATE"`
	Storage      ClientStorage `yaml:"storage"`
}

// ClientStorage selects where the CLI persists its session.
type ClientStorage struct {
	Driver       string        `yaml:"driver" env:"TMAIL_STORAGE_DRIVER"`
	Path         string        `yaml:"path" env:"TMAIL_STORAGE_PATH"`
	RedisAddr    string        `yaml:"redis_addr" env:"TMAIL_STORAGE_REDIS_ADDR"`
	Namespace    string        `yaml:"namespace" env:"TMAIL_STORAGE_NAMESPACE"`
	PollInterval time.Duration `yaml:"poll_interval" env:"TMAIL_STORAGE_POLL_INTERVAL"`
}

// GetRedirectURL returns the OAuth callback URL.
// If RedirectURL is explicitly configured, use it.
// Otherwise, construct from server base_url + the web callback route.
func (a *Auth) GetRedirectURL(serverBaseURL string) string {
	if a.RedirectURL != "" {
		return a.RedirectURL
	}
	return serverBaseURL + "/login/callback"
}

// Load loads config from file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	// environment wins over the file
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":3000"
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = "http://localhost:3000"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Auth.Provider == "" {
		c.Auth.Provider = "mock"
	}
	if c.Auth.ClientID == "" {
		c.Auth.ClientID = "your_client_id"
	}
	if len(c.Auth.Scopes) == 0 {
		c.Auth.Scopes = []string{"user"}
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Store.Prefix == "" {
		c.Store.Prefix = "tmail"
	}
	if len(c.Mail.Domains) == 0 {
		c.Mail.Domains = []string{"mail.4w.ink", "localhost"}
	}
	if c.Client.APIBaseURL == "" {
		c.Client.APIBaseURL = c.Server.BaseURL
	}
	if c.Client.CallbackAddr == "" {
		c.Client.CallbackAddr = "127.0.0.1:4321"
	}
	if c.Client.LandingPath == "" {
		c.Client.LandingPath = "/dashboard"
	}
	if c.Client.Storage.Driver == "" {
		c.Client.Storage.Driver = "sqlite"
	}
	if c.Client.Storage.Path == "" {
		c.Client.Storage.Path = "data/tmail-client.db"
	}
	if c.Client.Storage.Namespace == "" {
		c.Client.Storage.Namespace = "tmail:web"
	}
	if c.Client.Storage.PollInterval == 0 {
		c.Client.Storage.PollInterval = 500 * time.Millisecond
	}
}
