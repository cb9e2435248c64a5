package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/v1", 2*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestGetExamSendsTokenAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"success": true,
			"exam": {
				"id": "exam_1", "title": "Quick", "status": "ready",
				"createdAt": "2024-05-01T10:00:00.123456Z",
				"expiresAt": "2024-05-31T10:00:00Z",
				"config": {"type": "quick", "questionCount": 1, "timeLimit": 10},
				"questions": [{
					"id": "q1", "text": "2+2?",
					"options": [{"id": "a", "text": "4"}, {"id": "b", "text": "5"}],
					"correctAnswer": "a", "explanation": "arithmetic",
					"possibleQuestions": ["why?"]
				}]
			}
		}`))
	})

	ctx := model.ContextWithToken(context.Background(), "tok123")
	exam, err := c.GetExam(ctx, "exam_1")
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
	if gotPath != "/v1/exams/exam_1" {
		t.Errorf("unexpected path %q", gotPath)
	}
	if exam.Status != model.ExamReady || len(exam.Questions) != 1 {
		t.Fatalf("unexpected exam %+v", exam)
	}
	if exam.Questions[0].CorrectAnswer != "a" || exam.Config.TimeLimit != 10 {
		t.Errorf("fields not decoded: %+v", exam)
	}
}

func TestErrorEnvelope(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     any
		wantCode string
	}{
		{"http error", http.StatusNotFound, Envelope{Success: false, Error: "Simulado não encontrado.", Code: "EXAM_NOT_FOUND"}, "EXAM_NOT_FOUND"},
		{"success false", http.StatusOK, Envelope{Success: false, Error: "nope", Code: "BAD"}, "BAD"},
		{"empty error body", http.StatusInternalServerError, map[string]any{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := c.GetExam(context.Background(), "x")
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected *APIError, got %v", err)
			}
			if apiErr.Code != tt.wantCode {
				t.Errorf("expected code %q, got %q", tt.wantCode, apiErr.Code)
			}
			if apiErr.Message == "" {
				t.Error("expected a message")
			}
		})
	}
}

func TestTimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, http.StatusOK, Envelope{Success: true})
	}))
	defer srv.Close()

	c := New(srv.URL, 20*time.Millisecond)
	if _, err := c.StartExam(context.Background(), "exam_1"); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestSubmitExam(t *testing.T) {
	var got SubmitRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/exams/exam_1/submit" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		writeJSON(w, http.StatusOK, SubmitEnvelope{
			Envelope: Envelope{Success: true},
			Result:   &model.SubmitResult{Score: 50, CorrectAnswers: 1, TotalQuestions: 2, TimeSpent: 30},
		})
	})

	res, err := c.SubmitExam(context.Background(), "exam_1", []model.AnswerSubmission{
		{QuestionID: "q1", SelectedOption: "a"},
		{QuestionID: "q2", SelectedOption: "b"},
	})
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if len(got.Answers) != 2 || got.Answers[1].SelectedOption != "b" {
		t.Errorf("unexpected request body %+v", got)
	}
	if res.Score != 50 || res.TotalQuestions != 2 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestChatCalls(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch r.URL.Path {
		case "/v1/questions/q2/chat/start":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"chat": map[string]any{
					"id": "chat_q2_1",
					"messages": []map[string]any{
						{"content": req.Query, "isUser": true},
						{"content": "Because c.", "isUser": false},
					},
				},
			})
		case "/v1/questions/chat/chat_q2_1/continue":
			writeJSON(w, http.StatusOK, map[string]any{
				"success": true,
				"chat": map[string]any{
					"messages": []map[string]any{
						{"content": "why is c correct?", "isUser": true},
						{"content": "Because c.", "isUser": false},
						{"content": req.Query, "isUser": true},
						{"content": "Sure.", "isUser": false},
					},
				},
			})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()
	start, err := c.StartQuestionChat(ctx, "q2", "why is c correct?")
	if err != nil {
		t.Fatalf("StartQuestionChat: %v", err)
	}
	if start.ThreadID != "chat_q2_1" || len(start.Messages) != 2 {
		t.Fatalf("unexpected start reply %+v", start)
	}
	if start.Messages[0].Author != model.AuthorUser || start.Messages[1].Author != model.AuthorAssistant {
		t.Errorf("authors not decoded: %+v", start.Messages)
	}

	cont, err := c.ContinueQuestionChat(ctx, start.ThreadID, "more?")
	if err != nil {
		t.Fatalf("ContinueQuestionChat: %v", err)
	}
	if cont.ThreadID != "chat_q2_1" {
		t.Errorf("expected thread id carried over, got %q", cont.ThreadID)
	}
	if len(cont.Messages) != 4 || cont.Messages[2].Content != "more?" {
		t.Errorf("unexpected continue reply %+v", cont.Messages)
	}
}

func TestPathParamsAreEscaped(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.EscapedPath(), r.URL.RawQuery
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found", "code": "NOT_FOUND"})
	})
	ctx := context.Background()
	id := "a/b?c=d"

	tests := []struct {
		name string
		call func() error
		want string
	}{
		{"get exam", func() error { _, err := c.GetExam(ctx, id); return err }, "/v1/exams/a%2Fb%3Fc=d"},
		{"start exam", func() error { _, err := c.StartExam(ctx, id); return err }, "/v1/exams/a%2Fb%3Fc=d/start"},
		{"submit exam", func() error { _, err := c.SubmitExam(ctx, id, nil); return err }, "/v1/exams/a%2Fb%3Fc=d/submit"},
		{"start chat", func() error { _, err := c.StartQuestionChat(ctx, id, "q"); return err }, "/v1/questions/a%2Fb%3Fc=d/chat/start"},
		{"continue chat", func() error { _, err := c.ContinueQuestionChat(ctx, id, "q"); return err }, "/v1/questions/chat/a%2Fb%3Fc=d/continue"},
		{"get chat", func() error { _, err := c.GetQuestionChat(ctx, id); return err }, "/v1/questions/chat/a%2Fb%3Fc=d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr *APIError
			if err := tt.call(); !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
				t.Fatalf("expected a 404 APIError, got %v", err)
			}
			if gotPath != tt.want {
				t.Errorf("expected path %q, got %q", tt.want, gotPath)
			}
			if gotQuery != "" {
				t.Errorf("expected no query string, got %q", gotQuery)
			}
		})
	}
}

func TestExamHistoryQuery(t *testing.T) {
	var got url.Values
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query()
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "exams": []any{}})
	})
	if _, err := c.ExamHistory(context.Background(), 2, 5, model.ExamCompleted); err != nil {
		t.Fatalf("ExamHistory: %v", err)
	}
	for k, want := range map[string]string{"page": "2", "limit": "5", "status": "completed"} {
		if got.Get(k) != want {
			t.Errorf("expected %s=%q, got %q", k, want, got.Get(k))
		}
	}
}
