package handlers

import (
	"context"
	"net/http"
)

// AppStore is what the liveness and stats endpoints need from the
// document store.
type AppStore interface {
	Ping(ctx context.Context) error
	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (int64, error)
}

// Pinger is a backing store that can report liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppHandler serves the status and stats endpoints.
type AppHandler struct {
	db    AppStore
	cache Pinger
}

// NewAppHandler creates a new app handler
func NewAppHandler(db AppStore, cache Pinger) *AppHandler {
	return &AppHandler{db: db, cache: cache}
}

// Status handles GET /status
func (ah *AppHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	writeJSON(w, http.StatusOK, map[string]bool{
		"redis": ah.cache.Ping(ctx) == nil,
		"db":    ah.db.Ping(ctx) == nil,
	})
}

// Stats handles GET /stats
func (ah *AppHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "app.stats")
	defer span.End()

	users, err := ah.db.CountUsers(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	files, err := ah.db.CountFiles(ctx)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{
		"users": users,
		"files": files,
	})
}
