package api

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
)

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req gateway.LoginRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		internalError(w, "login lookup failed", err)
		return
	}
	if user == nil || !user.Active || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		slog.Warn("api login failed", "username", req.Username)
		fail(w, http.StatusUnauthorized, "Invalid username or password.", "INVALID_CREDENTIALS")
		return
	}

	sess, err := s.store.CreateAuthSession(user.ID)
	if err != nil {
		internalError(w, "create auth session failed", err)
		return
	}
	slog.Info("api login", "username", user.Username)
	writeJSON(w, http.StatusOK, gateway.LoginEnvelope{Envelope: ok(), Token: sess.ID, ExpiresAt: sess.ExpiresAt})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteAuthSession(model.TokenFromContext(r.Context())); err != nil {
		internalError(w, "delete auth session failed", err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.Envelope{Success: true, Message: "Logged out."})
}

// requireToken authenticates the bearer token and puts the user and token
// into the request context.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !found || token == "" {
			fail(w, http.StatusUnauthorized, "Authentication token not provided.", "UNAUTHORIZED")
			return
		}

		sess, err := s.store.GetAuthSession(token)
		if err != nil {
			internalError(w, "auth session lookup failed", err)
			return
		}
		if sess == nil {
			fail(w, http.StatusUnauthorized, "Invalid or expired token.", "INVALID_TOKEN")
			return
		}

		user, err := s.store.GetUserByID(sess.UserID)
		if err != nil {
			internalError(w, "user lookup failed", err)
			return
		}
		if user == nil || !user.Active {
			fail(w, http.StatusUnauthorized, "Invalid or expired token.", "INVALID_TOKEN")
			return
		}

		ctx := model.ContextWithUser(r.Context(), user)
		ctx = model.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
