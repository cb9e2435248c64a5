package api

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job schedules, in robfig/cron syntax.
const (
	ExpireExamsSchedule     = "@every 1h"
	CleanupSessionsSchedule = "@every 15m"
)

// StartJobs runs the backend's maintenance jobs until the returned scheduler
// is stopped.
func (s *Server) StartJobs() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(ExpireExamsSchedule, s.ExpireExams); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(CleanupSessionsSchedule, s.CleanupSessions); err != nil {
		return nil, err
	}
	c.Start()
	slog.Info("maintenance jobs started", "expire_exams", ExpireExamsSchedule, "cleanup_sessions", CleanupSessionsSchedule)
	return c, nil
}

// ExpireExams marks exams past their lifetime as expired.
func (s *Server) ExpireExams() {
	n, err := s.store.ExpireExams(s.now())
	if err != nil {
		slog.Error("expire exams failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("expired exams", "count", n)
	}
}

// CleanupSessions deletes expired API tokens.
func (s *Server) CleanupSessions() {
	n, err := s.store.CleanupExpiredSessions(s.now())
	if err != nil {
		slog.Error("cleanup auth sessions failed", "error", err)
		return
	}
	if n > 0 {
		slog.Info("removed expired auth sessions", "count", n)
	}
}
