package session

import (
	"context"
	"testing"
	"time"

	"tmail/internal/webstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var alice = User{ID: 42, Username: "user_42", Email: "user_42@github.com", AvatarURL: "https://avatars.githubusercontent.com/u/42?v=4"}

func TestLoadEmpty(t *testing.T) {
	store := NewStore(webstore.NewNamespace().Tab(), nil)

	sess, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(webstore.NewNamespace().Tab(), nil)

	require.NoError(t, store.Save(ctx, "tok", alice))
	sess, err := store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, ClientSession{APIToken: "tok", User: alice}, *sess)
}

func TestLoadMalformedUser(t *testing.T) {
	ctx := context.Background()
	tab := webstore.NewNamespace().Tab()
	store := NewStore(tab, nil)

	for _, raw := range []string{"{not json", "null", `{"id":"x"}`} {
		t.Run(raw, func(t *testing.T) {
			require.NoError(t, tab.Set(ctx, KeyAPIToken, "tok"))
			require.NoError(t, tab.Set(ctx, KeyUser, raw))

			sess, err := store.Load(ctx)
			require.NoError(t, err)
			require.NotNil(t, sess)
			assert.Equal(t, "tok", sess.APIToken)
			assert.Equal(t, FallbackUsername, sess.User.Username)
		})
	}
}

func TestLoadRequiresBothKeys(t *testing.T) {
	ctx := context.Background()
	tab := webstore.NewNamespace().Tab()
	store := NewStore(tab, nil)

	require.NoError(t, tab.Set(ctx, KeyAPIToken, "tok"))
	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)

	require.NoError(t, tab.Set(ctx, KeyUser, ""))
	sess, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess, "empty user means logged out")

	require.NoError(t, tab.Remove(ctx, KeyAPIToken))
	require.NoError(t, tab.Set(ctx, KeyUser, `{"username":"user_1"}`))
	sess, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	store := NewStore(webstore.NewNamespace().Tab(), nil)

	require.NoError(t, store.Save(ctx, "tok", alice))
	store.Clear(ctx)
	store.Clear(ctx)

	sess, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, sess)
}

func TestSubscribeSeesOtherTabsOnly(t *testing.T) {
	ctx := context.Background()
	ns := webstore.NewNamespace()
	tab1, tab2 := NewStore(ns.Tab(), nil), NewStore(ns.Tab(), nil)

	var seen1, seen2 int
	sub1, err := tab1.Subscribe(ctx, func() { seen1++ })
	require.NoError(t, err)
	defer sub1.Close()
	sub2, err := tab2.Subscribe(ctx, func() { seen2++ })
	require.NoError(t, err)
	defer sub2.Close()

	require.NoError(t, tab1.Save(ctx, "tok", alice))
	assert.Equal(t, 0, seen1)
	assert.Equal(t, 2, seen2)

	// the login nonce is not part of the session
	require.NoError(t, tab1.SaveState(ctx, "nonce"))
	assert.Equal(t, 2, seen2)
}

func TestStateTakenOnce(t *testing.T) {
	ctx := context.Background()
	store := NewStore(webstore.NewNamespace().Tab(), nil)

	require.NoError(t, store.SaveState(ctx, "nonce"))
	state, err := store.TakeState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "nonce", state)

	state, err = store.TakeState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestDisclosureGate(t *testing.T) {
	ctx := context.Background()
	tab := webstore.NewNamespace().Tab()
	now := time.Date(2026, 10, 19, 9, 0, 0, 0, time.Local)
	gate := NewDisclosureGate(tab, func() time.Time { return now })

	assert.True(t, gate.Mount(ctx))
	gate.Dismiss()
	assert.False(t, gate.Visible())
	assert.True(t, gate.ShouldShow(ctx), "plain dismiss does not persist")

	assert.True(t, gate.Mount(ctx))
	require.NoError(t, gate.DismissToday(ctx))
	assert.False(t, gate.Visible())
	v, _, _ := tab.Get(ctx, KeyDisclosureLastShown)
	assert.Equal(t, "Mon Oct 19 2026", v)
	assert.False(t, gate.Mount(ctx))

	now = now.Add(24 * time.Hour)
	assert.True(t, gate.ShouldShow(ctx))

	require.NoError(t, tab.Set(ctx, KeyDisclosureLastShown, "garbage"))
	assert.True(t, gate.ShouldShow(ctx))
}
