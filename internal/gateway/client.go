package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/pavelanni/examcoach/internal/model"
)

// errorer is implemented by every response envelope.
type errorer interface {
	failure() *Envelope
}

func (e *Envelope) failure() *Envelope { return e }

// Client is the HTTP implementation of Gateway.
type Client struct {
	http *resty.Client
}

var _ Gateway = (*Client)(nil)

// New creates a client for the API at baseURL (e.g. http://127.0.0.1:5000/v1).
// The bearer token of each call is taken from its context.
func New(baseURL string, timeout time.Duration) *Client {
	r := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			if token := model.TokenFromContext(req.Context()); token != "" {
				req.SetAuthToken(token)
			}
			return nil
		})
	return &Client{http: r}
}

// do performs the call and decodes the envelope into out. Placeholders such
// as {examID} in path are filled from params and escaped.
func (c *Client) do(ctx context.Context, method, path string, params map[string]string, body any, out errorer) error {
	errBody := &Envelope{}
	req := c.http.R().
		SetContext(ctx).
		SetPathParams(params).
		SetResult(out).
		SetError(errBody)
	if body != nil {
		req.SetBody(body)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsError() {
		msg := errBody.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode())
		}
		slog.Debug("exam api error", "method", method, "path", path, "status", resp.StatusCode(), "code", errBody.Code)
		return &APIError{Status: resp.StatusCode(), Code: errBody.Code, Message: msg}
	}
	if env := out.failure(); !env.Success {
		msg := env.Error
		if msg == "" {
			msg = "request was not successful"
		}
		return &APIError{Status: resp.StatusCode(), Code: env.Code, Message: msg}
	}
	return nil
}

// Login exchanges credentials for an API token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var out LoginEnvelope
	if err := c.do(ctx, http.MethodPost, "/auth/login", nil, LoginRequest{Username: username, Password: password}, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", errors.New("login response carried no token")
	}
	return out.Token, nil
}

// Logout revokes the token carried by ctx.
func (c *Client) Logout(ctx context.Context) error {
	var out Envelope
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, &out)
}

// CreateExam asks the backend to assemble a new exam.
func (c *Client) CreateExam(ctx context.Context, req model.CreateExamRequest) (*model.Exam, error) {
	var out ExamEnvelope
	if err := c.do(ctx, http.MethodPost, "/exams/create", nil, req, &out); err != nil {
		return nil, err
	}
	if out.Exam == nil {
		return nil, errors.New("create exam: response carried no exam")
	}
	return out.Exam, nil
}

// GetExam fetches an exam with its questions.
func (c *Client) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	var out ExamEnvelope
	if err := c.do(ctx, http.MethodGet, "/exams/{examID}", map[string]string{"examID": examID}, nil, &out); err != nil {
		return nil, err
	}
	if out.Exam == nil {
		return nil, fmt.Errorf("get exam %s: response carried no exam", examID)
	}
	return out.Exam, nil
}

// StartExam marks an exam as in progress.
func (c *Client) StartExam(ctx context.Context, examID string) (*model.StartInfo, error) {
	var out StartEnvelope
	if err := c.do(ctx, http.MethodPost, "/exams/{examID}/start", map[string]string{"examID": examID}, nil, &out); err != nil {
		return nil, err
	}
	return &model.StartInfo{StartTime: out.StartTime, EndTime: out.EndTime}, nil
}

// SubmitExam sends the collected answers for grading.
func (c *Client) SubmitExam(ctx context.Context, examID string, answers []model.AnswerSubmission) (*model.SubmitResult, error) {
	if answers == nil {
		answers = []model.AnswerSubmission{}
	}
	var out SubmitEnvelope
	if err := c.do(ctx, http.MethodPost, "/exams/{examID}/submit", map[string]string{"examID": examID}, SubmitRequest{Answers: answers}, &out); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, fmt.Errorf("submit exam %s: response carried no result", examID)
	}
	return out.Result, nil
}

// StartQuestionChat opens the tutoring thread of a question with its first query.
func (c *Client) StartQuestionChat(ctx context.Context, questionID, query string) (*model.ChatReply, error) {
	var out ChatEnvelope
	if err := c.do(ctx, http.MethodPost, "/questions/{questionID}/chat/start", map[string]string{"questionID": questionID}, ChatRequest{Query: query}, &out); err != nil {
		return nil, err
	}
	return chatReply(out.Chat, "")
}

// ContinueQuestionChat adds a query to an existing thread.
func (c *Client) ContinueQuestionChat(ctx context.Context, threadID, query string) (*model.ChatReply, error) {
	var out ChatEnvelope
	if err := c.do(ctx, http.MethodPost, "/questions/chat/{threadID}/continue", map[string]string{"threadID": threadID}, ChatRequest{Query: query}, &out); err != nil {
		return nil, err
	}
	return chatReply(out.Chat, threadID)
}

// GetQuestionChat fetches a thread's full message log.
func (c *Client) GetQuestionChat(ctx context.Context, threadID string) (*model.ChatReply, error) {
	var out ChatEnvelope
	if err := c.do(ctx, http.MethodGet, "/questions/chat/{threadID}", map[string]string{"threadID": threadID}, nil, &out); err != nil {
		return nil, err
	}
	return chatReply(out.Chat, threadID)
}

// ExamHistory lists the user's exams, newest first. An empty status lists all.
func (c *Client) ExamHistory(ctx context.Context, page, limit int, status model.ExamStatus) (*HistoryEnvelope, error) {
	var out HistoryEnvelope
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	if status != "" {
		q.Set("status", string(status))
	}
	if err := c.do(ctx, http.MethodGet, "/exams/user/history?"+q.Encode(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func chatReply(p *ChatPayload, threadID string) (*model.ChatReply, error) {
	if p == nil {
		return nil, errors.New("chat response carried no chat")
	}
	id := p.ID
	if id == "" {
		id = threadID
	}
	if id == "" {
		return nil, errors.New("chat response carried no thread id")
	}
	return &model.ChatReply{ThreadID: id, Messages: p.Messages}, nil
}
