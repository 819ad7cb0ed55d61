// Package handlers exposes watch progress and playback sessions over HTTP.
package handlers

import (
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/watch-progress/services/progress/internal/segments"
	"github.com/example/watch-progress/services/progress/internal/session"
	"github.com/example/watch-progress/services/progress/internal/store"
)

type Deps struct {
	Store     store.ProgressStore
	Sessions  *session.Registry
	Applier   *segments.Applier
	Publisher *segments.Publisher
	Logger    *zap.Logger
}

// Register mounts the v1 API on r.
func Register(r chi.Router, d Deps) {
	log := orNop(d.Logger)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/users/{user_id}", func(r chi.Router) {
			r.Get("/progress", ListProgress(d.Store, log))
			r.Get("/videos/{video_id}/progress", GetProgress(d.Store, log))
			r.Put("/videos/{video_id}/progress", PutProgress(d.Store, log))
			r.Post("/videos/{video_id}/segments", PostSegment(d.Applier, d.Publisher, log))
		})

		r.Post("/sessions", CreateSession(d.Sessions))
		r.Route("/sessions/{session_id}", func(r chi.Router) {
			r.Get("/", GetSession(d.Sessions))
			r.Post("/events", PostSessionEvent(d.Sessions, log))
			r.Delete("/", EndSession(d.Sessions))
		})
	})
}
