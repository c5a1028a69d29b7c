package webstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Namespace 进程内的共享存储，Tab 返回互相独立的句柄
type Namespace struct {
	mu   sync.Mutex
	data map[string]string
	subs map[*memorySub]struct{}
}

type memorySub struct {
	origin string
	fn     func(Event)
}

// NewNamespace creates an empty namespace.
func NewNamespace() *Namespace {
	return &Namespace{
		data: make(map[string]string),
		subs: make(map[*memorySub]struct{}),
	}
}

// Tab opens a new handle. Events are delivered synchronously on the writer's
// goroutine, after the write is visible and outside the namespace lock.
func (n *Namespace) Tab() *MemoryTab {
	return &MemoryTab{ns: n, origin: uuid.NewString()}
}

func (n *Namespace) publish(origin string, ev Event) {
	n.mu.Lock()
	targets := make([]func(Event), 0, len(n.subs))
	for s := range n.subs {
		if s.origin != origin {
			targets = append(targets, s.fn)
		}
	}
	n.mu.Unlock()

	for _, fn := range targets {
		fn(ev)
	}
}

var _ Storage = (*MemoryTab)(nil)

// MemoryTab is one handle on a Namespace.
type MemoryTab struct {
	ns     *Namespace
	origin string
}

func (t *MemoryTab) Get(_ context.Context, key string) (string, bool, error) {
	t.ns.mu.Lock()
	defer t.ns.mu.Unlock()
	v, ok := t.ns.data[key]
	return v, ok, nil
}

func (t *MemoryTab) Set(_ context.Context, key, value string) error {
	t.ns.mu.Lock()
	t.ns.data[key] = value
	t.ns.mu.Unlock()

	t.ns.publish(t.origin, Event{Key: key, Value: value})
	return nil
}

func (t *MemoryTab) Remove(_ context.Context, key string) error {
	t.ns.mu.Lock()
	_, existed := t.ns.data[key]
	delete(t.ns.data, key)
	t.ns.mu.Unlock()

	if existed {
		t.ns.publish(t.origin, Event{Key: key, Removed: true})
	}
	return nil
}

func (t *MemoryTab) Subscribe(_ context.Context, fn func(Event)) (Subscription, error) {
	s := &memorySub{origin: t.origin, fn: fn}
	t.ns.mu.Lock()
	t.ns.subs[s] = struct{}{}
	t.ns.mu.Unlock()
	return &memorySubscription{ns: t.ns, sub: s}, nil
}

// Close is a no-op; the namespace outlives its tabs.
func (t *MemoryTab) Close() error { return nil }

type memorySubscription struct {
	ns   *Namespace
	sub  *memorySub
	once sync.Once
}

func (s *memorySubscription) Close() error {
	s.once.Do(func() {
		s.ns.mu.Lock()
		delete(s.ns.subs, s.sub)
		s.ns.mu.Unlock()
	})
	return nil
}
