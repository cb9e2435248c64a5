package handler

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pavelanni/examcoach/internal/controller"
	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
)

type sessionKey struct {
	token  string
	examID string
}

const (
	// SweepSchedule is how often Sweep runs, in robfig/cron syntax.
	SweepSchedule = "@every 5m"
	// IdleTTL matches the API token lifetime; sessions untouched for longer are dropped.
	IdleTTL = 24 * time.Hour
)

// Registry keeps one session controller per signed-in user and exam. Once an
// exam is submitted its controller is released and only the graded result is
// kept until the user signs out or it goes idle.
type Registry struct {
	mu       sync.Mutex
	gw       gateway.Gateway
	opts     []controller.Option
	sessions map[sessionKey]*controller.Controller
	results  map[sessionKey]controller.Snapshot
	used     map[sessionKey]time.Time
	now      func() time.Time
}

// NewRegistry creates a registry whose controllers call gw and are built with opts.
func NewRegistry(gw gateway.Gateway, opts ...controller.Option) *Registry {
	return &Registry{
		gw:       gw,
		opts:     opts,
		sessions: make(map[sessionKey]*controller.Controller),
		results:  make(map[sessionKey]controller.Snapshot),
		used:     make(map[sessionKey]time.Time),
		now:      time.Now,
	}
}

// Get returns the controller of examID for the API token in ctx. The first
// call creates and loads it; a failed load leaves it in the error state, from
// which Retry recovers. Completing the last question submits the exam.
func (r *Registry) Get(ctx context.Context, examID string) *controller.Controller {
	key := sessionKey{token: model.TokenFromContext(ctx), examID: examID}

	r.mu.Lock()
	r.used[key] = r.now()
	if c, ok := r.sessions[key]; ok {
		r.mu.Unlock()
		return c
	}
	var c *controller.Controller
	submitCtx := context.WithoutCancel(ctx)
	opts := append(slices.Clone(r.opts), controller.WithOnComplete(func(answers []model.AnswerSubmission, exam model.Exam) {
		if err := c.Submit(submitCtx); err != nil {
			slog.Warn("submit after completion failed", "exam_id", exam.ID, "answers", len(answers), "error", err)
		}
	}))
	c = controller.New(r.gw, nil, nil, opts...)
	r.sessions[key] = c
	r.mu.Unlock()

	if err := c.Load(ctx, examID); err != nil {
		slog.Warn("exam load failed", "exam_id", examID, "error", err)
	}
	return c
}

// Result returns the graded snapshot of examID for the API token in ctx. The
// first call after submission releases the exam's controller.
func (r *Registry) Result(ctx context.Context, examID string) (controller.Snapshot, bool) {
	key := sessionKey{token: model.TokenFromContext(ctx), examID: examID}

	r.mu.Lock()
	defer r.mu.Unlock()
	if snap, ok := r.results[key]; ok {
		r.used[key] = r.now()
		return snap, true
	}
	c, ok := r.sessions[key]
	if !ok {
		return controller.Snapshot{}, false
	}
	snap := c.Snapshot()
	if snap.State != controller.StateCompleted {
		return controller.Snapshot{}, false
	}
	return r.release(key, c, snap), true
}

// release must be called with r.mu held.
func (r *Registry) release(key sessionKey, c *controller.Controller, snap controller.Snapshot) controller.Snapshot {
	c.Close()
	delete(r.sessions, key)
	done := controller.Snapshot{
		State:  snap.State,
		ExamID: snap.ExamID,
		Title:  snap.Title,
		Result: snap.Result,
	}
	r.results[key] = done
	return done
}

// Sweep releases every completed controller, including those submitted by the
// countdown while nobody had the exam open, and drops controllers and results
// idle for longer than IdleTTL. It returns how many controllers it removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-IdleTTL)
	released, dropped := 0, 0
	for k, c := range r.sessions {
		if r.used[k].Before(cutoff) {
			c.Close()
			delete(r.sessions, k)
			dropped++
			continue
		}
		if snap := c.Snapshot(); snap.State == controller.StateCompleted {
			r.release(k, c, snap)
			released++
		}
	}
	for k := range r.results {
		if r.used[k].Before(cutoff) {
			delete(r.results, k)
		}
	}
	for k := range r.used {
		_, live := r.sessions[k]
		_, done := r.results[k]
		if !live && !done {
			delete(r.used, k)
		}
	}
	if released+dropped > 0 {
		slog.Info("swept exam sessions", "released", released, "idle", dropped, "live", len(r.sessions))
	}
	return released + dropped
}

// StartSweeper runs Sweep on SweepSchedule until the returned scheduler is stopped.
func (r *Registry) StartSweeper() (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddFunc(SweepSchedule, func() { r.Sweep() }); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}

// Forget closes and drops every controller and result of token.
func (r *Registry) Forget(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, c := range r.sessions {
		if k.token == token {
			c.Close()
			delete(r.sessions, k)
		}
	}
	for k := range r.results {
		if k.token == token {
			delete(r.results, k)
		}
	}
	for k := range r.used {
		if k.token == token {
			delete(r.used, k)
		}
	}
}

// Len returns the number of live controllers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close stops every controller's countdown and waits for in-flight chat sends.
func (r *Registry) Close() {
	r.mu.Lock()
	all := make([]*controller.Controller, 0, len(r.sessions))
	for _, c := range r.sessions {
		all = append(all, c)
	}
	r.mu.Unlock()
	for _, c := range all {
		c.Close()
		c.Wait()
	}
}
