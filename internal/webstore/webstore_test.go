package webstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openPair returns two tabs on the same namespace.
type openPair func(t *testing.T) (Storage, Storage)

func backends() map[string]openPair {
	return map[string]openPair{
		"memory": func(t *testing.T) (Storage, Storage) {
			ns := NewNamespace()
			return ns.Tab(), ns.Tab()
		},
		"sqlite": func(t *testing.T) (Storage, Storage) {
			path := filepath.Join(t.TempDir(), "web.db")
			a, err := OpenSQLite(path, 10*time.Millisecond)
			require.NoError(t, err)
			b, err := OpenSQLite(path, 10*time.Millisecond)
			require.NoError(t, err)
			t.Cleanup(func() {
				a.Close()
				b.Close()
			})
			return a, b
		},
		"redis": func(t *testing.T) (Storage, Storage) {
			mr := miniredis.RunT(t)
			a := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tmail:web")
			b := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "tmail:web")
			t.Cleanup(func() {
				a.Close()
				b.Close()
			})
			return a, b
		},
	}
}

func collect(t *testing.T, s Storage) (<-chan Event, Subscription) {
	t.Helper()
	ch := make(chan Event, 16)
	sub, err := s.Subscribe(context.Background(), func(ev Event) { ch <- ev })
	require.NoError(t, err)
	t.Cleanup(func() { sub.Close() })
	return ch, sub
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for storage event")
		return Event{}
	}
}

func assertQuiet(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestStorage(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("get set remove", func(t *testing.T) {
				a, b := open(t)

				_, ok, err := a.Get(ctx, "api_token")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, a.Set(ctx, "api_token", "tok"))
				v, ok, err := b.Get(ctx, "api_token")
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "tok", v)

				require.NoError(t, a.Set(ctx, "api_token", "tok2"))
				v, _, _ = a.Get(ctx, "api_token")
				assert.Equal(t, "tok2", v)

				require.NoError(t, b.Remove(ctx, "api_token"))
				_, ok, err = a.Get(ctx, "api_token")
				require.NoError(t, err)
				assert.False(t, ok)

				require.NoError(t, b.Remove(ctx, "never-set"))
			})

			t.Run("other tabs are notified", func(t *testing.T) {
				a, b := open(t)
				fromB, _ := collect(t, b)

				require.NoError(t, a.Set(ctx, "user", `{"id":1}`))
				assert.Equal(t, Event{Key: "user", Value: `{"id":1}`}, next(t, fromB))

				require.NoError(t, a.Remove(ctx, "user"))
				assert.Equal(t, Event{Key: "user", Removed: true}, next(t, fromB))
			})

			t.Run("removing a missing key is silent", func(t *testing.T) {
				a, b := open(t)
				fromB, _ := collect(t, b)

				require.NoError(t, a.Remove(ctx, "never-set"))
				assertQuiet(t, fromB)

				require.NoError(t, a.Set(ctx, "api_token", "tok"))
				assert.Equal(t, Event{Key: "api_token", Value: "tok"}, next(t, fromB))
				require.NoError(t, a.Remove(ctx, "api_token"))
				assert.Equal(t, Event{Key: "api_token", Removed: true}, next(t, fromB))
				require.NoError(t, a.Remove(ctx, "api_token"))
				assertQuiet(t, fromB)
			})

			t.Run("writer is not notified", func(t *testing.T) {
				a, _ := open(t)
				fromA, _ := collect(t, a)

				require.NoError(t, a.Set(ctx, "user", "x"))
				assertQuiet(t, fromA)
			})

			t.Run("closed subscription is silent", func(t *testing.T) {
				a, b := open(t)
				fromB, sub := collect(t, b)

				require.NoError(t, sub.Close())
				require.NoError(t, sub.Close())
				require.NoError(t, a.Set(ctx, "user", "x"))
				assertQuiet(t, fromB)
			})
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "web.db")

	s, err := OpenSQLite(path, 0)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "api_token", "tok"))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path, 0)
	require.NoError(t, err)
	defer s.Close()

	v, ok, err := s.Get(ctx, "api_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok", v)
}
