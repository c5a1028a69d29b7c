package view_test

import (
	"context"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"tmail/internal/api"
	"tmail/internal/auth"
	"tmail/internal/biz"
	"tmail/internal/data"
	"tmail/internal/flow"
	"tmail/internal/service"
	"tmail/internal/session"
	"tmail/internal/view"
	"tmail/internal/webstore"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redirectURL = "http://localhost:3000/login/callback"

// newServer runs the real API stack with the mock provider.
func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	provider := auth.NewMockProvider("test_client", redirectURL, "", []string{"user"})
	authUsecase := biz.NewAuthUsecase(data.NewMemoryTokenRepo(), provider)
	mailService := service.NewMailService(biz.NewMailUsecase(data.NewMemoryMailboxRepo(), []string{"mail.test"}))
	router := api.NewRouter(
		api.NewAuthHandler(service.NewAuthService(authUsecase), mailService),
		api.NewMailHandler(mailService),
		auth.BearerMiddleware(authUsecase),
		api.RouterOptions{},
	)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type navigator struct {
	mu      sync.Mutex
	visited []string
	reloads int
}

func (n *navigator) Navigate(_ context.Context, target string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.visited = append(n.visited, target)
	return nil
}

func (n *navigator) Reload(context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.reloads++
	return nil
}

func (n *navigator) last() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.visited) == 0 {
		return ""
	}
	return n.visited[len(n.visited)-1]
}

type tab struct {
	store *session.Store
	ctrl  *flow.Controller
	nav   *navigator
	auth  *view.AuthView
}

func openTab(t *testing.T, srv *httptest.Server, storage webstore.Storage) *tab {
	t.Helper()
	store := session.NewStore(storage, nil)
	nav := &navigator{}
	ctrl := flow.NewController(flow.NewAPIClient(srv.URL, nil), store, nav)
	tb := &tab{store: store, ctrl: ctrl, nav: nav, auth: view.NewAuthView(store, ctrl, nav)}
	require.NoError(t, tb.auth.Mount(context.Background()))
	t.Cleanup(tb.auth.Unmount)
	return tb
}

// login runs the whole handshake in tb: button, provider redirect, callback page.
func login(t *testing.T, tb *tab) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, tb.auth.Login(ctx))

	authURL, err := url.Parse(tb.nav.last())
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	cb := view.NewCallbackView(tb.ctrl)
	assert.Equal(t, "Logging you in...", cb.Render())
	require.NoError(t, cb.Mount(ctx, url.Values{"code": {"xyz"}, "state": {state}}))
	assert.Equal(t, flow.DefaultLandingPath, tb.nav.last())
}

func TestCrossTabLogin(t *testing.T) {
	storages := map[string]func(t *testing.T) (webstore.Storage, webstore.Storage){
		"memory": func(t *testing.T) (webstore.Storage, webstore.Storage) {
			ns := webstore.NewNamespace()
			return ns.Tab(), ns.Tab()
		},
		"redis": func(t *testing.T) (webstore.Storage, webstore.Storage) {
			mr := miniredis.RunT(t)
			a := webstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tmail:web")
			b := webstore.NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tmail:web")
			t.Cleanup(func() {
				a.Close()
				b.Close()
			})
			return a, b
		},
		"sqlite": func(t *testing.T) (webstore.Storage, webstore.Storage) {
			path := filepath.Join(t.TempDir(), "web.db")
			a, err := webstore.OpenSQLite(path, 10*time.Millisecond)
			require.NoError(t, err)
			b, err := webstore.OpenSQLite(path, 10*time.Millisecond)
			require.NoError(t, err)
			t.Cleanup(func() {
				a.Close()
				b.Close()
			})
			return a, b
		},
	}

	for name, open := range storages {
		t.Run(name, func(t *testing.T) {
			srv := newServer(t)
			s1, s2 := open(t)
			tab1, tab2 := openTab(t, srv, s1), openTab(t, srv, s2)

			assert.False(t, tab1.auth.Model().LoggedIn)
			assert.False(t, tab2.auth.Model().LoggedIn)
			assert.Equal(t, "[登录]", tab2.auth.Render())

			login(t, tab1)

			sess, err := tab1.store.Load(context.Background())
			require.NoError(t, err)
			require.NotNil(t, sess)
			assert.Regexp(t, regexp.MustCompile(`^user_\d+$`), sess.User.Username)

			// landing page remounts the writer's own view
			tab1.auth.Refresh(context.Background())
			require.True(t, tab1.auth.Model().LoggedIn)

			require.Eventually(t, func() bool {
				m := tab2.auth.Model()
				return m.LoggedIn && m.Username == sess.User.Username
			}, 2*time.Second, 10*time.Millisecond)
			assert.Contains(t, tab2.auth.Render(), sess.User.Username+" [Logout]")
			assert.Zero(t, tab2.nav.reloads)

			tab2.auth.Logout(context.Background())
			assert.False(t, tab2.auth.Model().LoggedIn)
			assert.Equal(t, 1, tab2.nav.reloads)

			require.Eventually(t, func() bool {
				return !tab1.auth.Model().LoggedIn
			}, 2*time.Second, 10*time.Millisecond)
		})
	}
}

// subscribeHookStorage runs hook just before the wrapped Subscribe.
type subscribeHookStorage struct {
	webstore.Storage
	hook func()
}

func (s *subscribeHookStorage) Subscribe(ctx context.Context, fn func(webstore.Event)) (webstore.Subscription, error) {
	s.hook()
	return s.Storage.Subscribe(ctx, fn)
}

func TestMountSeesWriteDuringSubscribe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "web.db")
	s1, err := webstore.OpenSQLite(path, 10*time.Millisecond)
	require.NoError(t, err)
	defer s1.Close()
	s2, err := webstore.OpenSQLite(path, 10*time.Millisecond)
	require.NoError(t, err)
	defer s2.Close()

	writer := session.NewStore(s1, nil)
	user := session.User{ID: 7, Username: "user_7", AvatarURL: "a.png"}
	hooked := &subscribeHookStorage{Storage: s2, hook: func() {
		// 另一个标签页恰好在挂载过程中登录
		require.NoError(t, writer.Save(context.Background(), "tok-7", user))
	}}

	store := session.NewStore(hooked, nil)
	nav := &navigator{}
	v := view.NewAuthView(store, flow.NewController(flow.NewAPIClient("http://127.0.0.1:0", nil), store, nav), nav)
	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	require.Eventually(t, func() bool {
		m := v.Model()
		return m.LoggedIn && m.Username == "user_7"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionSurvivesReload(t *testing.T) {
	srv := newServer(t)
	ns := webstore.NewNamespace()
	tab1 := openTab(t, srv, ns.Tab())
	login(t, tab1)

	// a reload is a fresh view on the same storage
	reloaded := openTab(t, srv, ns.Tab())
	assert.True(t, reloaded.auth.Model().LoggedIn)
	assert.Equal(t, tab1.auth.Model().Username, reloaded.auth.Model().Username)
}

func TestUnmountStopsUpdates(t *testing.T) {
	srv := newServer(t)
	ns := webstore.NewNamespace()
	tab1, tab2 := openTab(t, srv, ns.Tab()), openTab(t, srv, ns.Tab())

	tab2.auth.Unmount()
	login(t, tab1)
	assert.False(t, tab2.auth.Model().LoggedIn)
}

func TestLoginFailureShowsError(t *testing.T) {
	srv := newServer(t)
	srv.Close()

	var renders []view.AuthModel
	store := session.NewStore(webstore.NewNamespace().Tab(), nil)
	nav := &navigator{}
	ctrl := flow.NewController(flow.NewAPIClient(srv.URL, nil), store, nav)
	v := view.NewAuthView(store, ctrl, nav, view.OnRender(func(m view.AuthModel) {
		renders = append(renders, m)
	}))
	require.NoError(t, v.Mount(context.Background()))
	defer v.Unmount()

	err := v.Login(context.Background())
	require.Error(t, err)

	m := v.Model()
	assert.False(t, m.Loading)
	assert.Contains(t, m.Error, "failed to initiate login: ")
	assert.Contains(t, renders, view.AuthModel{Loading: true})
	assert.Equal(t, flow.Failed, ctrl.State())
}

func TestCallbackViewError(t *testing.T) {
	srv := newServer(t)
	store := session.NewStore(webstore.NewNamespace().Tab(), nil)
	nav := &navigator{}
	ctrl := flow.NewController(flow.NewAPIClient(srv.URL, nil), store, nav)

	cb := view.NewCallbackView(ctrl)
	assert.True(t, cb.Model().Loading)

	err := cb.Mount(context.Background(), url.Values{"state": {"abc"}})
	require.ErrorIs(t, err, flow.ErrNoCode)
	assert.Equal(t, "no authorization code provided\nBack to login: /", cb.Render())
	assert.Empty(t, nav.visited)
}

func TestRenderAuth(t *testing.T) {
	assert.Equal(t, "[登录]", view.RenderAuth(view.AuthModel{}))
	assert.Equal(t, "[Loading...]", view.RenderAuth(view.AuthModel{Loading: true}))
	assert.Equal(t, "[a.png] user_1 [Logout]", view.RenderAuth(view.AuthModel{LoggedIn: true, Username: "user_1", AvatarURL: "a.png"}))
	assert.Equal(t, "[登录]\nboom", view.RenderAuth(view.AuthModel{Error: "boom"}))
}
