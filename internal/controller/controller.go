// Package controller drives one interactive exam session: loading the exam,
// answering and revealing questions, navigation, submission and the
// per-question tutoring chats.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pavelanni/examcoach/internal/chat"
	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/session"
)

// State is the top-level state of a session.
type State string

const (
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateSubmitting State = "submitting"
	StateCompleted  State = "completed"
	StateError      State = "error"
)

// CompleteFunc receives the final answers, in question order, when the user
// advances past the last revealed question.
type CompleteFunc func(answers []model.AnswerSubmission, exam model.Exam)

type retryOp int

const (
	retryNone retryOp = iota
	retryLoad
	retrySubmit
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for session events.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithOnComplete registers the session completion callback.
func WithOnComplete(f CompleteFunc) Option {
	return func(c *Controller) { c.onComplete = f }
}

// WithAutoSubmit enables or disables the time-limit countdown (enabled by default).
func WithAutoSubmit(enabled bool) Option {
	return func(c *Controller) { c.autoSubmit = enabled }
}

// Controller is the state machine of one exam session. Every action is
// serialized by its mutex; gateway calls run without holding it.
type Controller struct {
	mu sync.Mutex

	gw         gateway.Gateway
	store      *session.Store
	chats      *chat.Cache
	log        *slog.Logger
	onComplete CompleteFunc
	autoSubmit bool

	examID    string
	state     State
	err       *Error
	retry     retryOp
	finished  bool
	result    *model.SubmitResult
	countdown *Countdown

	pending  map[string]bool
	chatErrs map[string]*Error
	inflight sync.WaitGroup
}

// New creates a controller that owns store and chats for one session.
// Nil store or chats are replaced with empty ones.
func New(gw gateway.Gateway, store *session.Store, chats *chat.Cache, opts ...Option) *Controller {
	if store == nil {
		store = session.New()
	}
	if chats == nil {
		chats = chat.New()
	}
	c := &Controller{
		gw:         gw,
		store:      store,
		chats:      chats,
		log:        slog.Default(),
		autoSubmit: true,
		state:      StateLoading,
		pending:    make(map[string]bool),
		chatErrs:   make(map[string]*Error),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Load fetches the exam, starts it when it is still ready, and activates the
// session. Exams already past ready are not started again.
func (c *Controller) Load(ctx context.Context, examID string) error {
	c.mu.Lock()
	if c.state == StateSubmitting {
		c.mu.Unlock()
		return validation("load exam", ErrNotActive)
	}
	c.examID = examID
	c.state = StateLoading
	c.err = nil
	c.mu.Unlock()

	exam, start, err := c.fetch(ctx, examID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		err = c.store.Load(exam)
	}
	if err != nil {
		c.fail(&Error{Kind: LoadFailure, Op: "load exam", Err: err}, retryLoad)
		return c.err
	}
	c.state = StateActive
	c.retry = retryNone
	c.finished = false
	c.result = nil
	c.startCountdown(ctx, exam, start)
	c.log.Info("exam session active", "exam_id", examID, "questions", len(exam.Questions), "status", exam.Status)
	return nil
}

func (c *Controller) fetch(ctx context.Context, examID string) (*model.Exam, *model.StartInfo, error) {
	exam, err := c.gw.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.Status.PastReady() {
		return exam, nil, nil
	}
	if exam.Status != model.ExamReady {
		return nil, nil, fmt.Errorf("exam %s is %s", examID, exam.Status)
	}
	start, err := c.gw.StartExam(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("start exam: %w", err)
	}
	exam, err = c.gw.GetExam(ctx, examID)
	if err != nil {
		return nil, nil, fmt.Errorf("get started exam: %w", err)
	}
	return exam, start, nil
}

// startCountdown must be called with c.mu held.
func (c *Controller) startCountdown(ctx context.Context, exam *model.Exam, start *model.StartInfo) {
	c.countdown.Stop()
	c.countdown = nil
	if !c.autoSubmit || exam.Config.TimeLimit <= 0 {
		return
	}
	d := time.Duration(exam.Config.TimeLimit) * time.Minute
	if start != nil && !start.EndTime.IsZero() {
		d = time.Until(start.EndTime)
	}
	examID := exam.ID
	log := c.log
	submitCtx := context.WithoutCancel(ctx)
	c.countdown = StartCountdown(d, func() {
		log.Info("time is up, submitting exam", "exam_id", examID)
		if err := c.Submit(submitCtx); err != nil {
			log.Warn("automatic submission failed", "exam_id", examID, "error", err)
		}
	})
}

// fail must be called with c.mu held.
func (c *Controller) fail(e *Error, r retryOp) {
	c.state = StateError
	c.err = e
	c.retry = r
	c.log.Warn("exam session failed", "exam_id", c.examID, "kind", e.Kind, "error", e.Err)
}

// mutable must be called with c.mu held.
func (c *Controller) mutable(op string) (model.Question, error) {
	if c.state != StateActive {
		return model.Question{}, validation(op, ErrNotActive)
	}
	if c.finished {
		return model.Question{}, validation(op, ErrSessionFinished)
	}
	q, err := c.store.Current()
	if err != nil {
		return model.Question{}, validation(op, err)
	}
	return q, nil
}

// SelectAnswer chooses an option for the current question.
func (c *Controller) SelectAnswer(optionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, err := c.mutable("select answer")
	if err != nil {
		return err
	}
	if c.store.SelectAnswer(q.ID, optionID) {
		return nil
	}
	if c.store.RevealState(q.ID) == session.Revealed {
		return validation("select answer", ErrAnswerLocked)
	}
	return validation("select answer", ErrUnknownOption)
}

// Reveal shows correctness and explanation for the current question.
func (c *Controller) Reveal() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, err := c.mutable("reveal")
	if err != nil {
		return err
	}
	if err := c.store.Reveal(q.ID); err != nil {
		return validation("reveal", err)
	}
	return nil
}

// Advance moves to the next question. On the last revealed question it does
// not move; instead the first such call finishes the session and fires the
// completion callback. The returned bool reports whether the cursor moved.
func (c *Controller) Advance() (bool, error) {
	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return false, validation("advance", ErrNotActive)
	}
	q, err := c.store.Current()
	if err != nil {
		c.mu.Unlock()
		return false, validation("advance", err)
	}
	if c.store.RevealState(q.ID) != session.Revealed {
		c.mu.Unlock()
		return false, validation("advance", ErrNotRevealed)
	}
	if c.store.Advance() {
		c.mu.Unlock()
		return true, nil
	}
	if c.finished || !c.store.IsComplete() {
		c.mu.Unlock()
		return false, nil
	}
	c.finished = true
	answers := c.store.Answers()
	exam, _ := c.store.Exam()
	cb := c.onComplete
	c.mu.Unlock()

	c.log.Info("exam session complete", "exam_id", exam.ID, "answered", len(answers))
	if cb != nil {
		cb(answers, exam)
	}
	return false, nil
}

// Retreat moves to the previous question and reopens it for practice.
func (c *Controller) Retreat() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.mutable("retreat"); err != nil {
		return false, err
	}
	return c.store.Retreat(), nil
}

// Submit sends every collected answer for grading. It is the single path for
// manual and time-limit submission.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.state == StateActive:
	case c.state == StateError && c.retry == retrySubmit:
	case c.state == StateSubmitting || c.state == StateCompleted:
		c.mu.Unlock()
		return validation("submit exam", ErrSessionFinished)
	default:
		c.mu.Unlock()
		return validation("submit exam", ErrNotActive)
	}
	examID := c.examID
	answers := c.store.Answers()
	c.state = StateSubmitting
	c.err = nil
	c.mu.Unlock()

	res, err := c.gw.SubmitExam(ctx, examID, answers)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.fail(&Error{Kind: SubmitFailure, Op: "submit exam", Err: err}, retrySubmit)
		return c.err
	}
	c.state = StateCompleted
	c.retry = retryNone
	c.result = res
	c.countdown.Stop()
	c.log.Info("exam submitted", "exam_id", examID, "score", res.Score, "correct", res.CorrectAnswers, "total", res.TotalQuestions)
	return nil
}

// Retry repeats the operation that put the session into the error state.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	state, op, examID := c.state, c.retry, c.examID
	c.mu.Unlock()
	if state != StateError {
		return validation("retry", ErrNothingToRetry)
	}
	switch op {
	case retryLoad:
		return c.Load(ctx, examID)
	case retrySubmit:
		return c.Submit(ctx)
	default:
		return validation("retry", ErrNothingToRetry)
	}
}

// Send is an in-flight chat message.
type Send struct {
	QuestionID string
	Text       string
	done       chan struct{}
	err        error
}

// Done is closed once the message is committed or rolled back.
func (s *Send) Done() <-chan struct{} {
	return s.done
}

// Err returns the send failure, if any, once Done is closed.
func (s *Send) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the send finishes or ctx ends. Ending ctx does not
// cancel the send.
func (s *Send) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChat posts a message to the current question's tutoring thread. The
// message is shown immediately and removed again if the backend call fails.
// The response is applied to the question that was current when SendChat
// was called, whatever question is displayed by then.
func (c *Controller) SendChat(ctx context.Context, text string) (*Send, error) {
	if strings.TrimSpace(text) == "" {
		return nil, validation("send chat", ErrEmptyMessage)
	}

	c.mu.Lock()
	if c.state != StateActive {
		c.mu.Unlock()
		return nil, validation("send chat", ErrNotActive)
	}
	q, err := c.store.Current()
	if err != nil {
		c.mu.Unlock()
		return nil, validation("send chat", err)
	}
	if c.store.RevealState(q.ID) != session.Revealed {
		c.mu.Unlock()
		return nil, validation("send chat", ErrNotRevealed)
	}
	if c.pending[q.ID] {
		c.mu.Unlock()
		return nil, validation("send chat", ErrChatPending)
	}
	tok := c.chats.AppendOptimistic(q.ID, model.ChatMessage{Content: text, Author: model.AuthorUser})
	remoteID := c.chats.Thread(q.ID).RemoteID
	c.pending[q.ID] = true
	delete(c.chatErrs, q.ID)
	c.inflight.Add(1)
	c.mu.Unlock()

	s := &Send{QuestionID: q.ID, Text: text, done: make(chan struct{})}
	go c.deliver(context.WithoutCancel(ctx), s, remoteID, tok)
	return s, nil
}

func (c *Controller) deliver(ctx context.Context, s *Send, remoteID string, tok chat.Token) {
	defer c.inflight.Done()

	var reply *model.ChatReply
	var err error
	if remoteID == "" {
		reply, err = c.gw.StartQuestionChat(ctx, s.QuestionID, s.Text)
	} else {
		reply, err = c.gw.ContinueQuestionChat(ctx, remoteID, s.Text)
	}

	c.mu.Lock()
	delete(c.pending, s.QuestionID)
	if err != nil {
		c.chats.Rollback(s.QuestionID, tok)
		e := &Error{Kind: ChatSendFailure, Op: "send chat", Text: s.Text, Err: err}
		c.chatErrs[s.QuestionID] = e
		s.err = e
		c.log.Warn("chat message rolled back", "question_id", s.QuestionID, "error", err)
	} else {
		id := reply.ThreadID
		if id == "" {
			id = remoteID
		}
		c.chats.Commit(s.QuestionID, id, reply.Messages)
		c.log.Debug("chat committed", "question_id", s.QuestionID, "thread_id", id, "messages", len(reply.Messages))
	}
	c.mu.Unlock()
	close(s.done)
}

// Snapshot is a read-only view of the session for rendering.
type Snapshot struct {
	State    State
	ExamID   string
	Title    string
	Index    int
	Total    int
	Answered int
	// Question has CorrectAnswer and Explanation cleared until revealed.
	Question model.Question
	Selected string
	Revealed bool
	Correct  bool
	IsLast   bool
	Finished bool

	Chat        []model.ChatMessage
	ChatStarted bool
	ChatPending bool
	ChatError   *Error

	Err         *Error
	Result      *model.SubmitResult
	Remaining   time.Duration
	HasDeadline bool
}

// Snapshot returns the current view of the session.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:       c.state,
		ExamID:      c.examID,
		Err:         c.err,
		Result:      c.result,
		Finished:    c.finished,
		HasDeadline: c.countdown != nil,
		Remaining:   c.countdown.Remaining(),
	}
	if !c.store.Ready() {
		return snap
	}
	exam, _ := c.store.Exam()
	q, _ := c.store.Current()
	snap.Title = exam.Title
	snap.Index = c.store.Index()
	snap.Total = c.store.Len()
	snap.IsLast = snap.Index == snap.Total-1
	snap.Answered = len(c.store.Answers())
	snap.Selected, _ = c.store.Answer(q.ID)
	snap.Revealed = c.store.RevealState(q.ID) == session.Revealed
	if snap.Revealed {
		snap.Correct = snap.Selected == q.CorrectAnswer
	} else {
		q.CorrectAnswer = ""
		q.Explanation = ""
	}
	snap.Question = q
	if c.store.ChatAttached(q.ID) {
		th := c.chats.Thread(q.ID)
		snap.Chat = th.Messages
		snap.ChatStarted = th.Started()
	}
	snap.ChatPending = c.pending[q.ID]
	snap.ChatError = c.chatErrs[q.ID]
	return snap
}

// Thread returns the cached chat of any question, attached or not.
func (c *Controller) Thread(questionID string) chat.Thread {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chats.Thread(questionID)
}

// Answer returns the recorded answer of any question.
func (c *Controller) Answer(questionID string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Answer(questionID)
}

// Wait blocks until every in-flight chat send has finished.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close stops the time-limit countdown. In-flight chat sends still complete.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.countdown.Stop()
}
