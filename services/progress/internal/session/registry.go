package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/watch-progress/internal/platform/analytics"
	"github.com/example/watch-progress/services/progress/internal/store"
)

// ErrSessionNotFound is returned for unknown or already ended session ids.
var ErrSessionNotFound = errors.New("session not found")

// RegistryOptions holds the defaults applied to every controller.
type RegistryOptions struct {
	SaveInterval time.Duration
	WriteTimeout time.Duration
	// IdleTTL is how long a session may go without events before the
	// reaper ends it. Zero disables reaping.
	IdleTTL   time.Duration
	Logger    *zap.Logger
	Analytics *analytics.Publisher
}

type entry struct {
	ctrl     *Controller
	lastSeen time.Time
}

// Registry maps session ids to live controllers.
type Registry struct {
	store store.ProgressStore
	opts  RegistryOptions
	log   *zap.Logger
	now   func() time.Time

	mu       sync.Mutex
	sessions map[string]*entry
}

func NewRegistry(s store.ProgressStore, opts RegistryOptions) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		store:    s,
		opts:     opts,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*entry),
	}
}

// Open creates a controller for (userID, videoID), loads its stored progress
// and registers it. The session is only reachable once Load has returned.
func (r *Registry) Open(ctx context.Context, userID, videoID string, videoDuration float64) (string, *Controller) {
	ctrl := NewController(r.store, Options{
		UserID:        userID,
		VideoID:       videoID,
		VideoDuration: videoDuration,
		SaveInterval:  r.opts.SaveInterval,
		WriteTimeout:  r.opts.WriteTimeout,
		Logger:        r.log,
		Analytics:     r.opts.Analytics,
	})
	ctrl.Load(ctx)

	id := uuid.NewString()
	r.mu.Lock()
	r.sessions[id] = &entry{ctrl: ctrl, lastSeen: r.now()}
	r.mu.Unlock()

	r.opts.Analytics.Publish(analytics.SubjectSessionOpened, "session_opened", userID, map[string]any{
		"video_id":   videoID,
		"session_id": id,
	})
	return id, ctrl
}

// Get returns the controller for id and marks the session as active.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.lastSeen = r.now()
	return e.ctrl, nil
}

// End stops the session (committing any pending interval), tears it down and
// returns its final state.
func (r *Registry) End(ctx context.Context, id string) (Snapshot, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	e.ctrl.Stop(ctx)
	e.ctrl.Close()
	snap := e.ctrl.Snapshot()

	r.opts.Analytics.Publish(analytics.SubjectSessionEnded, "session_ended", snap.UserID, map[string]any{
		"video_id":       snap.VideoID,
		"session_id":     id,
		"total_progress": snap.Progress,
	})
	return snap, nil
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Reap ends every session idle for longer than IdleTTL and returns how many
// were ended.
func (r *Registry) Reap(ctx context.Context) int {
	if r.opts.IdleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var stale []string
	for id, e := range r.sessions {
		if e.lastSeen.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.Unlock()

	n := 0
	for _, id := range stale {
		if _, err := r.End(ctx, id); err == nil {
			n++
		}
	}
	if n > 0 {
		r.log.Info("reaped idle sessions", zap.Int("count", n))
	}
	return n
}

// Run reaps idle sessions every interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, every time.Duration) {
	if every <= 0 || r.opts.IdleTTL <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			r.Reap(ctx)
		}
	}
}

// Shutdown ends every live session.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	for _, id := range ids {
		_, _ = r.End(ctx, id)
	}
	if len(ids) > 0 {
		r.log.Info("ended sessions on shutdown", zap.Int("count", len(ids)))
	}
}
