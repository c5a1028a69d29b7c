// Package flow drives the client side of the login handshake:
// authorization URL, provider redirect, callback, code exchange.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"tmail/internal/secure"
	"tmail/internal/session"
)

// State 登录流程状态
type State int

const (
	LoggedOut State = iota
	Authorizing
	AwaitingCallback
	Exchanging
	LoggedIn
	Failed
)

func (s State) String() string {
	switch s {
	case LoggedOut:
		return "logged_out"
	case Authorizing:
		return "authorizing"
	case AwaitingCallback:
		return "awaiting_callback"
	case Exchanging:
		return "exchanging"
	case LoggedIn:
		return "logged_in"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	ErrNoCode        = errors.New("no authorization code provided")
	ErrStateMismatch = errors.New("state does not match the login that was started")
)

// Navigator performs full-page navigations.
type Navigator interface {
	Navigate(ctx context.Context, target string) error
	Reload(ctx context.Context) error
}

// DefaultLandingPath is where a successful login lands.
const DefaultLandingPath = "/dashboard"

// Controller runs one login attempt at a time. It never retries on its own:
// after Failed the caller starts over with Begin.
type Controller struct {
	api      AuthAPI
	store    *session.Store
	nav      Navigator
	landing  string
	verify   bool
	newState func() (string, error)
	logger   *slog.Logger

	mu    sync.Mutex
	state State
	err   error
}

// Option configures a Controller.
type Option func(*Controller)

// WithLandingPath sets the post-login navigation target.
func WithLandingPath(path string) Option {
	return func(c *Controller) { c.landing = path }
}

// WithStateVerification remembers the nonce in Begin and requires it on the callback.
func WithStateVerification() Option {
	return func(c *Controller) { c.verify = true }
}

// WithStateFunc replaces the random nonce source.
func WithStateFunc(fn func() (string, error)) Option {
	return func(c *Controller) { c.newState = fn }
}

// WithLogger sets the logger; slog.Default otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// NewController creates a controller in the LoggedOut state.
func NewController(api AuthAPI, store *session.Store, nav Navigator, opts ...Option) *Controller {
	c := &Controller{
		api:      api,
		store:    store,
		nav:      nav,
		landing:  DefaultLandingPath,
		newState: secure.Token,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "flow")
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Err returns the failure of the last attempt, or nil.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Controller) set(s State, err error) {
	c.mu.Lock()
	c.state, c.err = s, err
	c.mu.Unlock()
	c.logger.Debug("login state changed", "state", s.String())
}

func (c *Controller) fail(err error) error {
	c.set(Failed, err)
	c.logger.Warn("login failed", "error", err)
	return err
}

// Begin requests an authorization URL for a fresh nonce and navigates to it.
func (c *Controller) Begin(ctx context.Context) error {
	c.set(Authorizing, nil)

	state, err := c.newState()
	if err != nil {
		return c.fail(fmt.Errorf("failed to initiate login: %w", err))
	}
	if c.verify {
		if err := c.store.SaveState(ctx, state); err != nil {
			return c.fail(fmt.Errorf("failed to initiate login: %w", err))
		}
	}

	authURL, err := c.api.AuthURL(ctx, state)
	if err != nil {
		return c.fail(fmt.Errorf("failed to initiate login: %w", err))
	}

	c.set(AwaitingCallback, nil)
	if err := c.nav.Navigate(ctx, authURL); err != nil {
		return c.fail(fmt.Errorf("failed to initiate login: %w", err))
	}
	return nil
}

// HandleCallback exchanges the code from the callback query, persists the
// session and only then navigates to the landing page.
func (c *Controller) HandleCallback(ctx context.Context, query url.Values) error {
	code, state := query.Get("code"), query.Get("state")
	if code == "" {
		return c.fail(ErrNoCode)
	}

	if c.verify {
		expected, err := c.store.TakeState(ctx)
		if err != nil {
			return c.fail(fmt.Errorf("login failed: %w", err))
		}
		if expected == "" || expected != state {
			return c.fail(fmt.Errorf("login failed: %w", ErrStateMismatch))
		}
	}

	c.set(Exchanging, nil)
	res, err := c.api.Login(ctx, code, state)
	if err != nil {
		return c.fail(fmt.Errorf("login failed: %w", err))
	}
	if err := c.store.Save(ctx, res.APIToken, res.User); err != nil {
		return c.fail(fmt.Errorf("login failed: %w", err))
	}

	c.set(LoggedIn, nil)
	c.logger.Info("logged in", "username", res.User.Username)
	if err := c.nav.Navigate(ctx, c.landing); err != nil {
		// the session is saved; a failed navigation does not undo the login
		c.logger.Warn("failed to open landing page", "error", err)
	}
	return nil
}

// Reset returns a Failed controller to LoggedOut.
func (c *Controller) Reset() {
	c.set(LoggedOut, nil)
}
