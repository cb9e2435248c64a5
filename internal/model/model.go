package model

import (
	"context"
	"encoding/json"
	"time"
)

// UserRole represents a user's access level on the exam backend.
type UserRole string

const (
	// UserRoleStudent is a student user role.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin is an admin user role.
	UserRoleAdmin UserRole = "admin"
)

// User represents a backend user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an API token issued by the backend.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type tokenCtxKey struct{}

// ContextWithToken stores the API bearer token used by outgoing gateway calls.
func ContextWithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenCtxKey{}, token)
}

// TokenFromContext retrieves the API bearer token (empty string if not set).
func TokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(tokenCtxKey{}).(string)
	return t
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// ExamStatus represents the lifecycle status of an exam.
type ExamStatus string

const (
	ExamGenerating ExamStatus = "generating"
	ExamReady      ExamStatus = "ready"
	ExamInProgress ExamStatus = "in-progress"
	ExamCompleted  ExamStatus = "completed"
	ExamExpired    ExamStatus = "expired"
)

// PastReady reports whether the exam has already been started at some point.
func (s ExamStatus) PastReady() bool {
	switch s {
	case ExamInProgress, ExamCompleted, ExamExpired:
		return true
	default:
		return false
	}
}

// ExamType is the kind of practice exam requested.
type ExamType string

const (
	ExamTypeComplete    ExamType = "complete"
	ExamTypeQuick       ExamType = "quick"
	ExamTypeCustom      ExamType = "custom"
	ExamTypeInteractive ExamType = "interactive"
)

// ContentMethod selects how exam content is chosen.
type ContentMethod string

const (
	ContentBySubject ContentMethod = "subject"
	ContentByTopic   ContentMethod = "topic"
)

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is one selectable answer of a question.
type Option struct {
	ID   string `json:"id" yaml:"id" validate:"required"`
	Text string `json:"text" yaml:"text" validate:"required"`
}

// Question represents a multiple-choice exam question.
type Question struct {
	ID                string     `json:"id"`
	Text              string     `json:"text"`
	Options           []Option   `json:"options"`
	CorrectAnswer     string     `json:"correctAnswer"`
	Explanation       string     `json:"explanation"`
	Subject           string     `json:"subject,omitempty"`
	Topic             string     `json:"topic,omitempty"`
	Difficulty        Difficulty `json:"difficulty,omitempty"`
	PossibleQuestions []string   `json:"possibleQuestions,omitempty"`
}

// HasOption reports whether optionID is one of the question's options.
func (q Question) HasOption(optionID string) bool {
	for _, o := range q.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// ExamConfig holds the parameters an exam was created with.
type ExamConfig struct {
	Type          ExamType      `json:"type"`
	QuestionCount int           `json:"questionCount"`
	TimeLimit     int           `json:"timeLimit"` // minutes, 0 means untimed
	ContentType   ContentMethod `json:"contentType,omitempty"`
	Subject       string        `json:"subject,omitempty"`
	CustomTopic   string        `json:"customTopic,omitempty"`
}

// Exam is an ordered set of questions fetched for one session.
type Exam struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	CreatedAt time.Time  `json:"createdAt"`
	ExpiresAt time.Time  `json:"expiresAt"`
	Status    ExamStatus `json:"status"`
	Config    ExamConfig `json:"config"`
	Questions []Question `json:"questions"`
}

// ContentSelection describes which content a new exam should draw from.
type ContentSelection struct {
	Method      ContentMethod `json:"method" validate:"required,oneof=subject topic"`
	Subject     string        `json:"subject,omitempty" validate:"required_if=Method subject"`
	CustomTopic string        `json:"customTopic,omitempty" validate:"required_if=Method topic"`
}

// CreateExamRequest is the configuration for creating a new exam.
type CreateExamRequest struct {
	ExamType         ExamType         `json:"examType" validate:"required,oneof=complete quick custom interactive"`
	QuestionCount    int              `json:"questionCount" validate:"min=1,max=180"`
	EstimatedTime    int              `json:"estimatedTime" validate:"min=0,max=600"`
	ContentSelection ContentSelection `json:"contentSelection"`
}

// StartInfo is returned when an exam is started.
type StartInfo struct {
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
}

// AnswerSubmission is one answered question sent on submit.
type AnswerSubmission struct {
	QuestionID     string `json:"questionId" validate:"required"`
	SelectedOption string `json:"selectedOption" validate:"required"`
}

// SubmitResult is the backend's grading of a submitted exam.
type SubmitResult struct {
	Score          float64 `json:"score"`
	CorrectAnswers int     `json:"correctAnswers"`
	TotalQuestions int     `json:"totalQuestions"`
	TimeSpent      int     `json:"timeSpent"` // seconds
}

// Author identifies who wrote a chat message.
type Author string

const (
	AuthorUser      Author = "user"
	AuthorAssistant Author = "assistant"
)

// ChatMessage is one entry in a question's tutoring conversation.
type ChatMessage struct {
	Content   string
	Author    Author
	Timestamp *time.Time
}

type chatMessageJSON struct {
	Content   string     `json:"content"`
	IsUser    bool       `json:"isUser"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

// MarshalJSON encodes the message in the API's {content, isUser, timestamp} form.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(chatMessageJSON{
		Content:   m.Content,
		IsUser:    m.Author == AuthorUser,
		Timestamp: m.Timestamp,
	})
}

// UnmarshalJSON decodes the API's {content, isUser, timestamp} form.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var raw chatMessageJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Content = raw.Content
	m.Timestamp = raw.Timestamp
	m.Author = AuthorAssistant
	if raw.IsUser {
		m.Author = AuthorUser
	}
	return nil
}

// ChatReply is the server-confirmed state of a question chat.
type ChatReply struct {
	ThreadID string
	Messages []ChatMessage
}

// ExamSummary is a row of a user's exam history.
type ExamSummary struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Status    ExamStatus    `json:"status"`
	CreatedAt time.Time     `json:"createdAt"`
	Result    *SubmitResult `json:"result,omitempty"`
}

// QuestionImport is used for loading question banks from JSON or YAML.
type QuestionImport struct {
	ID                string     `json:"id" yaml:"id"`
	Text              string     `json:"text" yaml:"text" validate:"required"`
	Options           []Option   `json:"options" yaml:"options" validate:"min=2,dive"`
	CorrectAnswer     string     `json:"correct_answer" yaml:"correct_answer" validate:"required"`
	Explanation       string     `json:"explanation" yaml:"explanation"`
	Subject           string     `json:"subject" yaml:"subject"`
	Topic             string     `json:"topic" yaml:"topic"`
	Difficulty        Difficulty `json:"difficulty" yaml:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	PossibleQuestions []string   `json:"possible_questions" yaml:"possible_questions"`
}

// QuestionChat is a stored tutoring conversation. There is one per question
// per user.
type QuestionChat struct {
	ID         string        `json:"id"`
	QuestionID string        `json:"questionId"`
	UserID     int64         `json:"-"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	Messages   []ChatMessage `json:"messages"`
}

// ChatSummary is a row of a user's chat history.
type ChatSummary struct {
	ID           string    `json:"id"`
	QuestionID   string    `json:"questionId"`
	QuestionText string    `json:"questionText"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// GradedAnswer is a submitted answer with its correctness.
type GradedAnswer struct {
	QuestionID     string
	SelectedOption string
	Correct        bool
}
