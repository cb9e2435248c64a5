// Package handler serves the exam front end: sign-in, exam configuration and
// the interactive exam session pages.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examcoach/internal/controller"
	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/handler/views"
	appI18n "github.com/pavelanni/examcoach/internal/i18n"
	"github.com/pavelanni/examcoach/internal/model"
)

// Backend is the exam API as used by the front end.
type Backend interface {
	gateway.Gateway
	Login(ctx context.Context, username, password string) (string, error)
	Logout(ctx context.Context) error
	ExamHistory(ctx context.Context, page, limit int, status model.ExamStatus) (*gateway.HistoryEnvelope, error)
}

// Config holds front-end settings.
type Config struct {
	BasePath      string
	SecureCookies bool
	// Subjects offered in the exam configuration form.
	Subjects []string
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	api      Backend
	sessions *Registry
	config   Config
}

// New creates a new Handler.
func New(api Backend, sessions *Registry, cfg Config) *Handler {
	return &Handler{api: api, sessions: sessions, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Use(h.csrfMiddleware)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/logout", h.handleLogout)
		r.Get("/", h.handleIndex)
		r.Post("/exams", h.handleCreateExam)
		r.Get("/exams/{examID}", h.handleExamPage)
		r.Get("/exams/{examID}/result", h.handleResult)
		r.Post("/exams/{examID}/answer", h.action(selectAnswer))
		r.Post("/exams/{examID}/reveal", h.action(reveal))
		r.Post("/exams/{examID}/next", h.action(advance))
		r.Post("/exams/{examID}/prev", h.action(retreat))
		r.Post("/exams/{examID}/chat", h.action(sendChat))
		r.Post("/exams/{examID}/submit", h.action(submit))
		r.Post("/exams/{examID}/retry", h.action(retry))
	})
}

// BasePathMiddleware makes the deployment base path available to views.
func (h *Handler) BasePathMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := model.ContextWithBasePath(r.Context(), h.config.BasePath)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) path(p string) string {
	return h.config.BasePath + p
}

func render(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := c.Render(r.Context(), w); err != nil {
		slog.Error("render error", "error", err)
	}
}

func isUnauthorized(err error) bool {
	var apiErr *gateway.APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderIndex(w, r, http.StatusOK, "")
}

func (h *Handler) renderIndex(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	var exams []model.ExamSummary
	hist, err := h.api.ExamHistory(r.Context(), 1, 20, "")
	switch {
	case isUnauthorized(err):
		h.expireLogin(w, r)
		return
	case err != nil:
		slog.Error("exam history failed", "error", err)
		if errMsg == "" {
			errMsg = appI18n.T(r.Context(), "ServiceUnavailable")
		}
	default:
		exams = hist.Exams
	}
	render(w, r, status, views.IndexPage(h.config.Subjects, exams, errMsg))
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	count, _ := strconv.Atoi(r.FormValue("question_count"))
	minutes, _ := strconv.Atoi(r.FormValue("time_limit"))
	req := model.CreateExamRequest{
		ExamType:      model.ExamType(r.FormValue("exam_type")),
		QuestionCount: count,
		EstimatedTime: minutes,
	}
	if r.FormValue("method") == string(model.ContentByTopic) {
		req.ContentSelection = model.ContentSelection{Method: model.ContentByTopic, CustomTopic: strings.TrimSpace(r.FormValue("topic"))}
	} else {
		req.ContentSelection = model.ContentSelection{Method: model.ContentBySubject, Subject: r.FormValue("subject")}
	}

	exam, err := h.api.CreateExam(r.Context(), req)
	if isUnauthorized(err) {
		h.expireLogin(w, r)
		return
	}
	if err != nil {
		slog.Warn("create exam failed", "error", err)
		reason := err.Error()
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			reason = apiErr.Message
		}
		h.renderIndex(w, r, http.StatusUnprocessableEntity, appI18n.Td(r.Context(), "CreateExamError", map[string]any{"Reason": reason}))
		return
	}
	slog.Info("exam created", "exam_id", exam.ID, "questions", len(exam.Questions))
	http.Redirect(w, r, h.path("/exams/"+exam.ID), http.StatusSeeOther)
}

func (h *Handler) handleExamPage(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	if _, ok := h.sessions.Result(r.Context(), examID); ok {
		http.Redirect(w, r, h.path("/exams/"+examID+"/result"), http.StatusSeeOther)
		return
	}
	snap := h.sessions.Get(r.Context(), examID).Snapshot()
	if snap.State == controller.StateError && isUnauthorized(snap.Err) {
		h.sessions.Forget(model.TokenFromContext(r.Context()))
		h.expireLogin(w, r)
		return
	}
	render(w, r, http.StatusOK, views.ExamPage(snap))
}

func (h *Handler) handleResult(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")
	snap, ok := h.sessions.Result(r.Context(), examID)
	if !ok {
		http.Redirect(w, r, h.path("/exams/"+examID), http.StatusSeeOther)
		return
	}
	render(w, r, http.StatusOK, views.ResultPage(snap))
}

// sessionAction performs one user action on an exam session.
type sessionAction func(ctx context.Context, c *controller.Controller, r *http.Request) error

// action runs a session action and redirects back to the exam page. Rejected
// actions leave the session unchanged; failures show up in its next snapshot.
func (h *Handler) action(act sessionAction) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		examID := chi.URLParam(r, "examID")
		if _, ok := h.sessions.Result(r.Context(), examID); ok {
			http.Redirect(w, r, h.path("/exams/"+examID+"/result"), http.StatusSeeOther)
			return
		}
		c := h.sessions.Get(r.Context(), examID)
		if err := act(r.Context(), c, r); err != nil {
			if controller.IsKind(err, controller.ValidationFailure) {
				slog.Debug("session action rejected", "exam_id", examID, "path", r.URL.Path, "error", err)
			} else {
				slog.Warn("session action failed", "exam_id", examID, "path", r.URL.Path, "error", err)
			}
		}
		target := "/exams/" + examID
		if c.Snapshot().State == controller.StateCompleted {
			target += "/result"
		}
		http.Redirect(w, r, h.path(target), http.StatusSeeOther)
	}
}

func selectAnswer(_ context.Context, c *controller.Controller, r *http.Request) error {
	return c.SelectAnswer(r.FormValue("option"))
}

func reveal(_ context.Context, c *controller.Controller, r *http.Request) error {
	if opt := r.FormValue("option"); opt != "" {
		if err := c.SelectAnswer(opt); err != nil {
			return err
		}
	}
	return c.Reveal()
}

func advance(_ context.Context, c *controller.Controller, _ *http.Request) error {
	_, err := c.Advance()
	return err
}

func retreat(_ context.Context, c *controller.Controller, _ *http.Request) error {
	_, err := c.Retreat()
	return err
}

// sendChat waits for the tutor while the request lasts; a reply arriving
// later is still applied and shows on the next page load.
func sendChat(ctx context.Context, c *controller.Controller, r *http.Request) error {
	send, err := c.SendChat(ctx, r.FormValue("message"))
	if err != nil {
		return err
	}
	return send.Wait(ctx)
}

func submit(ctx context.Context, c *controller.Controller, _ *http.Request) error {
	return c.Submit(ctx)
}

func retry(ctx context.Context, c *controller.Controller, _ *http.Request) error {
	return c.Retry(ctx)
}
