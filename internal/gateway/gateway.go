// Package gateway talks to the remote exam API: exams, submissions and
// per-question tutoring chats.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

// Gateway is the remote exam service as seen by a session controller.
type Gateway interface {
	CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error)
	GetExam(ctx context.Context, examID string) (*model.Exam, error)
	StartExam(ctx context.Context, examID string) (*model.StartInfo, error)
	SubmitExam(ctx context.Context, examID string, answers []model.AnswerSubmission) (*model.SubmitResult, error)
	StartQuestionChat(ctx context.Context, questionID, query string) (*model.ChatReply, error)
	ContinueQuestionChat(ctx context.Context, threadID, query string) (*model.ChatReply, error)
}

// APIError is a failure reported by the exam API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("exam api: %s (%s, status %d)", e.Message, e.Code, e.Status)
	}
	return fmt.Sprintf("exam api: %s (status %d)", e.Message, e.Status)
}

// Envelope carries the fields every API response shares.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ExamEnvelope wraps a single exam.
type ExamEnvelope struct {
	Envelope
	Exam *model.Exam `json:"exam,omitempty"`
}

// StartEnvelope is the response to starting an exam.
type StartEnvelope struct {
	Envelope
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// SubmitRequest is the body of an exam submission.
type SubmitRequest struct {
	Answers []model.AnswerSubmission `json:"answers" validate:"dive"`
}

// SubmitEnvelope is the response to submitting an exam.
type SubmitEnvelope struct {
	Envelope
	Result *model.SubmitResult `json:"result,omitempty"`
}

// ChatRequest is the body of a chat start or continue call.
type ChatRequest struct {
	Query string `json:"query" validate:"required"`
}

// ChatPayload is a question chat as returned by the API.
type ChatPayload struct {
	ID         string              `json:"id"`
	QuestionID string              `json:"questionId,omitempty"`
	Messages   []model.ChatMessage `json:"messages"`
}

// ChatEnvelope wraps a question chat.
type ChatEnvelope struct {
	Envelope
	Chat *ChatPayload `json:"chat,omitempty"`
}

// LoginRequest is the body of a login call.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginEnvelope carries an issued API token.
type LoginEnvelope struct {
	Envelope
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// HistoryEnvelope is a page of the user's exams.
type HistoryEnvelope struct {
	Envelope
	Exams []model.ExamSummary `json:"exams"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
	Total int                 `json:"total"`
}
