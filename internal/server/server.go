package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/engine"
	"github.com/LifesaverLabs/inner-friend-circle-sub002/internal/store"
)

// Server is the circled HTTP API server.
type Server struct {
	db      *store.DB
	engine  *engine.Engine
	router  chi.Router
	version string
	started time.Time
}

// New creates a new Server over the engine.
func New(db *store.DB, eng *engine.Engine, version string) *Server {
	s := &Server{
		db:      db,
		engine:  eng,
		version: version,
		started: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// People and contact identifiers
		r.Post("/people", s.handleCreatePerson)
		r.Post("/people/{personID}/contacts", s.handleAddContactMethod)

		// Connection graph
		r.Post("/connections", s.handleCreateConnection)
		r.Post("/connections/{edgeID}/respond", s.handleRespondConnection)
		r.Delete("/connections/{edgeID}", s.handleDeleteConnection)
		r.Get("/people/{personID}/friends", s.handleFriendsInTier)

		// Capacity ledger
		r.Get("/people/{personID}/capacity", s.handleTierCapacity)
		r.Post("/people/{personID}/reserved-groups", s.handleAddReservedGroup)
		r.Put("/people/{personID}/reserved-groups/{groupID}", s.handleUpdateReservedGroup)
		r.Delete("/people/{personID}/reserved-groups/{groupID}", s.handleRemoveReservedGroup)

		// Invitations
		r.Post("/invitations", s.handleRecordInvitation)
		r.Get("/people/{personID}/invitations", s.handleListInvitations)

		// Content
		r.Post("/posts", s.handleCreatePost)
		r.Put("/posts/{postID}", s.handleUpdatePost)
		r.Delete("/posts/{postID}", s.handleDeletePost)
		r.Post("/posts/{postID}/interactions", s.handleAddInteraction)
		r.Get("/feed", s.handleTierFeed)

		// Nudges
		r.Get("/people/{personID}/nudges", s.handleComputeNudges)
		r.Post("/people/{personID}/nudges/{friendID}/dismiss", s.handleDismissNudge)
		r.Post("/people/{personID}/contacts/{friendID}/deep-contact", s.handleDeepContact)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.Ping(); err != nil {
		dbOK = false
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
		"db":      dbOK,
		"db_path": s.db.Path,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps engine sentinels to HTTP statuses. Expected domain
// outcomes (duplicate, self-connection, no capacity) surface as client
// errors, not 500s.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrValidation),
		errors.Is(err, engine.ErrSelfConnection):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrNotAuthenticated):
		status = http.StatusForbidden
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateConnection),
		errors.Is(err, engine.ErrConflictingState),
		errors.Is(err, engine.ErrNoCapacity):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
