// Package view holds the session-aware surfaces of the client: the
// login/logout control and the login callback page.
package view

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"tmail/internal/flow"
	"tmail/internal/session"
	"tmail/internal/webstore"
)

// AuthModel is what the login/logout control shows.
type AuthModel struct {
	LoggedIn  bool
	Username  string
	AvatarURL string
	// Loading is true between Login and the provider redirect.
	Loading bool
	Error   string
}

// AuthView renders the login control when logged out, and the avatar,
// username and a logout control when logged in. It follows session changes
// made by other tabs while mounted.
type AuthView struct {
	store    *session.Store
	ctrl     *flow.Controller
	nav      flow.Navigator
	onRender func(AuthModel)
	logger   *slog.Logger

	mu    sync.Mutex
	model AuthModel
	sub   webstore.Subscription
}

// AuthViewOption configures an AuthView.
type AuthViewOption func(*AuthView)

// OnRender is called with the new model after every render.
func OnRender(fn func(AuthModel)) AuthViewOption {
	return func(v *AuthView) { v.onRender = fn }
}

// NewAuthView creates an unmounted view.
func NewAuthView(store *session.Store, ctrl *flow.Controller, nav flow.Navigator, opts ...AuthViewOption) *AuthView {
	v := &AuthView{
		store:  store,
		ctrl:   ctrl,
		nav:    nav,
		logger: slog.Default().With("component", "view"),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mount subscribes to other tabs' changes, then loads the session and renders.
func (v *AuthView) Mount(ctx context.Context) error {
	// 先订阅再读取，两者之间的写入不会丢
	sub, err := v.store.Subscribe(ctx, func() {
		v.Refresh(context.Background())
	})
	if err != nil {
		return fmt.Errorf("subscribe to session changes: %w", err)
	}

	v.mu.Lock()
	v.sub = sub
	v.mu.Unlock()

	v.Refresh(ctx)
	return nil
}

// Unmount releases the subscription. Safe to call more than once.
func (v *AuthView) Unmount() {
	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

// Refresh re-reads the session and re-renders.
func (v *AuthView) Refresh(ctx context.Context) {
	sess, err := v.store.Load(ctx)
	if err != nil {
		v.logger.Error("failed to load session", "error", err)
	}

	v.update(func(m *AuthModel) {
		if sess == nil {
			m.LoggedIn, m.Username, m.AvatarURL = false, "", ""
			return
		}
		m.LoggedIn = true
		m.Username = sess.User.Username
		m.AvatarURL = sess.User.AvatarURL
		m.Error = ""
	})
}

// Login starts the flow. While it runs the control shows Loading; a failure
// re-enables it and shows the error.
func (v *AuthView) Login(ctx context.Context) error {
	v.update(func(m *AuthModel) {
		m.Loading, m.Error = true, ""
	})

	err := v.ctrl.Begin(ctx)
	v.update(func(m *AuthModel) {
		m.Loading = false
		if err != nil {
			m.Error = err.Error()
		}
	})
	return err
}

// Logout clears the session, renders logged out and reloads the page.
// It cannot fail: storage and reload errors are only logged.
func (v *AuthView) Logout(ctx context.Context) {
	v.store.Clear(ctx)
	v.update(func(m *AuthModel) {
		*m = AuthModel{}
	})
	if err := v.nav.Reload(ctx); err != nil {
		v.logger.Warn("reload after logout failed", "error", err)
	}
}

// Model returns the current model.
func (v *AuthView) Model() AuthModel {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.model
}

// Render returns a text rendering of the control.
func (v *AuthView) Render() string {
	return RenderAuth(v.Model())
}

func (v *AuthView) update(fn func(*AuthModel)) {
	v.mu.Lock()
	fn(&v.model)
	m := v.model
	v.mu.Unlock()

	if v.onRender != nil {
		v.onRender(m)
	}
}

// RenderAuth 文本形式的登录控件
func RenderAuth(m AuthModel) string {
	var b strings.Builder
	switch {
	case m.LoggedIn:
		if m.AvatarURL != "" {
			fmt.Fprintf(&b, "[%s] ", m.AvatarURL)
		}
		fmt.Fprintf(&b, "%s [Logout]", m.Username)
	case m.Loading:
		b.WriteString("[Loading...]")
	default:
		b.WriteString("[登录]")
	}
	if m.Error != "" {
		fmt.Fprintf(&b, "\n%s", m.Error)
	}
	return b.String()
}
