// Package api is a local implementation of the exam backend: the JSON API
// under /v1 that the web front end's gateway talks to.
package api

import (
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/pavelanni/examcoach/internal/store"
	"github.com/pavelanni/examcoach/internal/tutor"
)

// ExamLifetime is how long a created exam stays usable.
const ExamLifetime = 30 * 24 * time.Hour

// Server holds shared dependencies for API handlers.
type Server struct {
	store    *store.Store
	tutor    tutor.Provider
	validate *validator.Validate
	now      func() time.Time
	shuffle  func(n int, swap func(i, j int))
}

// Option configures a Server.
type Option func(*Server)

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithShuffle replaces the question shuffler.
func WithShuffle(shuffle func(n int, swap func(i, j int))) Option {
	return func(s *Server) { s.shuffle = shuffle }
}

// New creates an API server.
func New(st *store.Store, t tutor.Provider, opts ...Option) *Server {
	s := &Server{
		store:    st,
		tutor:    t,
		validate: newValidator(),
		now:      func() time.Time { return time.Now().UTC() },
		shuffle:  rand.Shuffle,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes returns the API router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.requireToken)
			r.Post("/auth/logout", s.handleLogout)

			r.Post("/exams/create", s.handleCreateExam)
			r.Get("/exams/user/history", s.handleExamHistory)
			r.Get("/exams/{examID}", s.handleGetExam)
			r.Post("/exams/{examID}/start", s.handleStartExam)
			r.Post("/exams/{examID}/submit", s.handleSubmitExam)

			r.Post("/questions/{questionID}/chat/start", s.handleStartChat)
			r.Get("/questions/chat/history", s.handleChatHistory)
			r.Get("/questions/chat/{chatID}", s.handleGetChat)
			r.Post("/questions/chat/{chatID}/continue", s.handleContinueChat)
		})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusNotFound, "Resource not found.", "NOT_FOUND")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		fail(w, http.StatusMethodNotAllowed, "Method not allowed.", "METHOD_NOT_ALLOWED")
	})
	return r
}
