package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/watch-progress/services/progress/internal/store"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestRegistry(ttl time.Duration) (*Registry, *fakeClock, *store.InMemoryProgressStore) {
	s := store.NewInMemoryProgressStore()
	clock := &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	r := NewRegistry(s, RegistryOptions{SaveInterval: time.Hour, IdleTTL: ttl})
	r.now = clock.Now
	return r, clock, s
}

func TestRegistry_OpenGetEnd(t *testing.T) {
	r, _, s := newTestRegistry(0)
	ctx := context.Background()

	id, ctrl := r.Open(ctx, "u1", "v1", 100)
	if id == "" {
		t.Fatal("expected session id")
	}
	if !ctrl.Snapshot().Loaded {
		t.Fatal("expected controller to be loaded on open")
	}

	got, err := r.Get(id)
	if err != nil || got != ctrl {
		t.Fatalf("expected same controller, got %v (%v)", got, err)
	}

	ctrl.Start(0)
	ctrl.Extend(25)

	snap, err := r.End(ctx, id)
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if snap.Progress != 25 || snap.State != "idle" {
		t.Fatalf("expected pending span committed on end, got %+v", snap)
	}
	rec, ok, _ := s.Get(ctx, "u1", "v1")
	if !ok || rec.TotalProgress != 25 {
		t.Fatalf("expected end to persist, got %+v", rec)
	}

	if _, err := r.Get(id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
	if _, err := r.End(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound on second end, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestRegistry_ReapIdleSessions(t *testing.T) {
	r, clock, _ := newTestRegistry(10 * time.Minute)
	ctx := context.Background()

	stale, _ := r.Open(ctx, "u1", "v1", 100)
	clock.Advance(8 * time.Minute)
	fresh, _ := r.Open(ctx, "u1", "v2", 100)
	clock.Advance(5 * time.Minute)

	if n := r.Reap(ctx); n != 1 {
		t.Fatalf("expected 1 reaped, got %d", n)
	}
	if _, err := r.Get(stale); !errors.Is(err, ErrSessionNotFound) {
		t.Fatal("expected stale session to be reaped")
	}
	if _, err := r.Get(fresh); err != nil {
		t.Fatalf("expected fresh session to survive: %v", err)
	}
}

func TestRegistry_GetRefreshesActivity(t *testing.T) {
	r, clock, _ := newTestRegistry(10 * time.Minute)
	ctx := context.Background()

	id, _ := r.Open(ctx, "u1", "v1", 100)
	clock.Advance(9 * time.Minute)
	if _, err := r.Get(id); err != nil {
		t.Fatalf("get: %v", err)
	}
	clock.Advance(9 * time.Minute)

	if n := r.Reap(ctx); n != 0 {
		t.Fatalf("expected active session to survive, reaped %d", n)
	}
}

func TestRegistry_ReapDisabledWithoutTTL(t *testing.T) {
	r, clock, _ := newTestRegistry(0)
	ctx := context.Background()
	r.Open(ctx, "u1", "v1", 100)
	clock.Advance(24 * time.Hour)
	if n := r.Reap(ctx); n != 0 {
		t.Fatalf("expected no reaping, got %d", n)
	}
}

func TestRegistry_Shutdown(t *testing.T) {
	r, _, s := newTestRegistry(0)
	ctx := context.Background()

	_, a := r.Open(ctx, "u1", "v1", 100)
	_, b := r.Open(ctx, "u1", "v2", 200)
	a.Start(0)
	a.Extend(10)
	b.Start(0)
	b.Extend(50)

	r.Shutdown(ctx)
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
	list, err := s.List(ctx, "u1", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected both sessions persisted, got %d", len(list))
	}
}
