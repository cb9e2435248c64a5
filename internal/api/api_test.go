package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/store"
)

type fakeTutor struct {
	mu        sync.Mutex
	err       error
	histories [][]model.ChatMessage
}

func (f *fakeTutor) Reply(_ context.Context, _ model.Question, history []model.ChatMessage, query string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.histories = append(f.histories, history)
	if f.err != nil {
		return "", f.err
	}
	return "tutor: " + query, nil
}

type testEnv struct {
	store  *store.Store
	server *Server
	tutor  *fakeTutor
	client *gateway.Client
	now    time.Time
	qids   []string
}

func (e *testEnv) clock() time.Time { return e.now }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	env := &testEnv{store: st, tutor: &fakeTutor{}, now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	for _, name := range []string{"ana", "bia"} {
		hash, err := bcrypt.GenerateFromPassword([]byte(name+"-pass"), bcrypt.MinCost)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := st.CreateUser(model.User{Username: name, PasswordHash: string(hash), Role: model.UserRoleStudent, Active: true}); err != nil {
			t.Fatal(err)
		}
	}
	bank := []model.Question{
		{Text: "2+2?", Subject: "mathematics", Topic: "arithmetic", CorrectAnswer: "a"},
		{Text: "3*3?", Subject: "mathematics", Topic: "arithmetic", CorrectAnswer: "b"},
		{Text: "Author of Dom Casmurro?", Subject: "languages", Topic: "literature", CorrectAnswer: "c"},
	}
	for _, q := range bank {
		q.Options = []model.Option{{ID: "a", Text: "A"}, {ID: "b", Text: "B"}, {ID: "c", Text: "C"}}
		id, err := st.InsertQuestion(q)
		if err != nil {
			t.Fatal(err)
		}
		env.qids = append(env.qids, id)
	}

	env.server = New(st, env.tutor, WithClock(env.clock), WithShuffle(func(int, func(i, j int)) {}))
	srv := httptest.NewServer(env.server.Routes())
	t.Cleanup(srv.Close)
	env.client = gateway.New(srv.URL+"/v1", 5*time.Second)
	return env
}

func (e *testEnv) login(t *testing.T, username string) context.Context {
	t.Helper()
	token, err := e.client.Login(context.Background(), username, username+"-pass")
	if err != nil {
		t.Fatalf("Login(%s): %v", username, err)
	}
	return model.ContextWithToken(context.Background(), token)
}

func apiError(t *testing.T, err error) *gateway.APIError {
	t.Helper()
	var apiErr *gateway.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *gateway.APIError, got %v", err)
	}
	return apiErr
}

func mathsRequest(count, minutes int) model.CreateExamRequest {
	return model.CreateExamRequest{
		ExamType:         model.ExamTypeQuick,
		QuestionCount:    count,
		EstimatedTime:    minutes,
		ContentSelection: model.ContentSelection{Method: model.ContentBySubject, Subject: "mathematics"},
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		username string
		password string
		status   int
		code     string
	}{
		{"wrong password", "ana", "nope", http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown user", "zoe", "x", http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"missing password", "ana", "", http.StatusBadRequest, "MISSING_FIELD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.Login(context.Background(), tt.username, tt.password)
			apiErr := apiError(t, err)
			if apiErr.Status != tt.status || apiErr.Code != tt.code {
				t.Errorf("expected %d %s, got %d %s", tt.status, tt.code, apiErr.Status, apiErr.Code)
			}
		})
	}

	env.login(t, "ana")
}

func TestRequiresToken(t *testing.T) {
	env := newTestEnv(t)
	tests := []struct {
		name string
		ctx  context.Context
		code string
	}{
		{"no token", context.Background(), "UNAUTHORIZED"},
		{"bad token", model.ContextWithToken(context.Background(), "bogus"), "INVALID_TOKEN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.GetExam(tt.ctx, "exam_x")
			apiErr := apiError(t, err)
			if apiErr.Status != http.StatusUnauthorized || apiErr.Code != tt.code {
				t.Errorf("expected 401 %s, got %d %s", tt.code, apiErr.Status, apiErr.Code)
			}
		})
	}
}

func TestExamFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")

	exam, err := env.client.CreateExam(ctx, mathsRequest(5, 30))
	if err != nil {
		t.Fatalf("CreateExam: %v", err)
	}
	if exam.Title != "Quick Exam - Mathematics" || exam.Status != model.ExamReady {
		t.Errorf("unexpected exam %q %s", exam.Title, exam.Status)
	}
	if len(exam.Questions) != 2 || exam.Config.QuestionCount != 2 {
		t.Fatalf("expected the 2 maths questions, got %d", len(exam.Questions))
	}
	if !exam.ExpiresAt.Equal(env.now.Add(ExamLifetime)) {
		t.Errorf("unexpected expiry %v", exam.ExpiresAt)
	}

	start, err := env.client.StartExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("StartExam: %v", err)
	}
	if !start.EndTime.Equal(env.now.Add(30 * time.Minute)) {
		t.Errorf("unexpected end time %v", start.EndTime)
	}
	env.now = env.now.Add(5 * time.Minute)
	again, err := env.client.StartExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("StartExam again: %v", err)
	}
	if !again.StartTime.Equal(start.StartTime) {
		t.Errorf("start should be idempotent, got %v then %v", start.StartTime, again.StartTime)
	}

	got, err := env.client.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Status != model.ExamInProgress {
		t.Errorf("expected in-progress, got %s", got.Status)
	}

	res, err := env.client.SubmitExam(ctx, exam.ID, []model.AnswerSubmission{
		{QuestionID: got.Questions[0].ID, SelectedOption: got.Questions[0].CorrectAnswer},
		{QuestionID: got.Questions[1].ID, SelectedOption: "c"},
	})
	if err != nil {
		t.Fatalf("SubmitExam: %v", err)
	}
	if res.Score != 50 || res.CorrectAnswers != 1 || res.TotalQuestions != 2 || res.TimeSpent != 300 {
		t.Errorf("unexpected result %+v", res)
	}

	_, err = env.client.SubmitExam(ctx, exam.ID, nil)
	if apiErr := apiError(t, err); apiErr.Status != http.StatusConflict {
		t.Errorf("expected 409 on second submit, got %d", apiErr.Status)
	}

	hist, err := env.client.ExamHistory(ctx, 1, 10, model.ExamCompleted)
	if err != nil {
		t.Fatalf("ExamHistory: %v", err)
	}
	if hist.Total != 1 || hist.Exams[0].Result == nil || hist.Exams[0].Result.Score != 50 {
		t.Errorf("unexpected history %+v", hist)
	}
}

func TestExamsArePrivate(t *testing.T) {
	env := newTestEnv(t)
	exam, err := env.client.CreateExam(env.login(t, "ana"), mathsRequest(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.client.GetExam(env.login(t, "bia"), exam.ID)
	if apiErr := apiError(t, err); apiErr.Code != "EXAM_NOT_FOUND" {
		t.Errorf("expected EXAM_NOT_FOUND, got %s", apiErr.Code)
	}
}

func TestCreateExamRejects(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")

	tests := []struct {
		name   string
		req    model.CreateExamRequest
		status int
		code   string
	}{
		{"unknown type", model.CreateExamRequest{ExamType: "weekly", QuestionCount: 1, ContentSelection: model.ContentSelection{Method: model.ContentBySubject, Subject: "all"}}, http.StatusBadRequest, "MISSING_FIELD"},
		{"zero questions", mathsRequest(0, 0), http.StatusBadRequest, "MISSING_FIELD"},
		{"topic without text", model.CreateExamRequest{ExamType: model.ExamTypeCustom, QuestionCount: 1, ContentSelection: model.ContentSelection{Method: model.ContentByTopic}}, http.StatusBadRequest, "MISSING_FIELD"},
		{"nothing matches", model.CreateExamRequest{ExamType: model.ExamTypeCustom, QuestionCount: 1, ContentSelection: model.ContentSelection{Method: model.ContentByTopic, CustomTopic: "astronomy"}}, http.StatusUnprocessableEntity, "NO_QUESTIONS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.client.CreateExam(ctx, tt.req)
			apiErr := apiError(t, err)
			if apiErr.Status != tt.status || apiErr.Code != tt.code {
				t.Errorf("expected %d %s, got %d %s (%s)", tt.status, tt.code, apiErr.Status, apiErr.Code, apiErr.Message)
			}
		})
	}
}

func TestSubmitRejectsForeignQuestion(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")
	exam, err := env.client.CreateExam(ctx, mathsRequest(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	_, err = env.client.SubmitExam(ctx, exam.ID, []model.AnswerSubmission{{QuestionID: env.qids[2], SelectedOption: "c"}})
	if apiErr := apiError(t, err); apiErr.Code != "INVALID_ANSWER" {
		t.Errorf("expected INVALID_ANSWER, got %s", apiErr.Code)
	}
}

func TestExpiredExam(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")
	exam, err := env.client.CreateExam(ctx, mathsRequest(1, 0))
	if err != nil {
		t.Fatal(err)
	}

	env.now = env.now.Add(ExamLifetime + time.Hour)
	got, err := env.client.GetExam(ctx, exam.ID)
	if err != nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Status != model.ExamExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
	_, err = env.client.StartExam(ctx, exam.ID)
	if apiErr := apiError(t, err); apiErr.Status != http.StatusGone {
		t.Errorf("expected 410, got %d", apiErr.Status)
	}
}

func TestChatFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")
	qid := env.qids[0]

	start, err := env.client.StartQuestionChat(ctx, qid, "why a?")
	if err != nil {
		t.Fatalf("StartQuestionChat: %v", err)
	}
	wantID := "chat_" + qid + "_1"
	if start.ThreadID != wantID || len(start.Messages) != 2 || start.Messages[1].Content != "tutor: why a?" {
		t.Fatalf("unexpected start reply %+v", start)
	}

	cont, err := env.client.ContinueQuestionChat(ctx, start.ThreadID, "and b?")
	if err != nil {
		t.Fatalf("ContinueQuestionChat: %v", err)
	}
	if len(cont.Messages) != 4 || cont.Messages[2].Author != model.AuthorUser {
		t.Errorf("expected full log of 4 messages, got %+v", cont.Messages)
	}
	env.tutor.mu.Lock()
	h := env.tutor.histories
	env.tutor.mu.Unlock()
	if len(h) != 2 || len(h[0]) != 0 || len(h[1]) != 2 {
		t.Errorf("tutor should see the prior conversation, got %v", h)
	}

	fetched, err := env.client.GetQuestionChat(ctx, start.ThreadID)
	if err != nil {
		t.Fatalf("GetQuestionChat: %v", err)
	}
	if len(fetched.Messages) != 4 {
		t.Errorf("expected 4 stored messages, got %d", len(fetched.Messages))
	}

	_, err = env.client.GetQuestionChat(env.login(t, "bia"), start.ThreadID)
	if apiErr := apiError(t, err); apiErr.Status != http.StatusForbidden {
		t.Errorf("expected 403 for another user's chat, got %d", apiErr.Status)
	}
}

func TestChatFailures(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")

	_, err := env.client.StartQuestionChat(ctx, "q_missing", "hello")
	if apiErr := apiError(t, err); apiErr.Code != "QUESTION_NOT_FOUND" {
		t.Errorf("expected QUESTION_NOT_FOUND, got %s", apiErr.Code)
	}

	_, err = env.client.ContinueQuestionChat(ctx, "chat_missing", "hello")
	if apiErr := apiError(t, err); apiErr.Code != "CHAT_NOT_FOUND" {
		t.Errorf("expected CHAT_NOT_FOUND, got %s", apiErr.Code)
	}

	env.tutor.mu.Lock()
	env.tutor.err = errors.New("model overloaded")
	env.tutor.mu.Unlock()
	_, err = env.client.StartQuestionChat(ctx, env.qids[0], "hello")
	if apiErr := apiError(t, err); apiErr.Status != http.StatusBadGateway || apiErr.Code != "TUTOR_UNAVAILABLE" {
		t.Errorf("expected 502 TUTOR_UNAVAILABLE, got %d %s", apiErr.Status, apiErr.Code)
	}
	if c, _ := env.store.GetQuestionChat("chat_" + env.qids[0] + "_1"); c != nil {
		t.Error("failed tutor call should not store a chat")
	}
}

func TestExpireExamsJob(t *testing.T) {
	env := newTestEnv(t)
	ctx := env.login(t, "ana")
	exam, err := env.client.CreateExam(ctx, mathsRequest(1, 0))
	if err != nil {
		t.Fatal(err)
	}
	env.now = env.now.Add(ExamLifetime + time.Minute)
	env.server.ExpireExams()

	user, err := env.store.GetUserByUsername("ana")
	if err != nil {
		t.Fatal(err)
	}
	got, err := env.store.GetExam(exam.ID, user.ID)
	if err != nil || got == nil {
		t.Fatalf("GetExam: %v", err)
	}
	if got.Status != model.ExamExpired {
		t.Errorf("expected expired, got %s", got.Status)
	}
}

func TestGrade(t *testing.T) {
	questions := []model.Question{{ID: "q1", CorrectAnswer: "a"}, {ID: "q2", CorrectAnswer: "b"}}
	tests := []struct {
		name    string
		answers []model.AnswerSubmission
		correct int
		ok      bool
	}{
		{"none", nil, 0, true},
		{"all right", []model.AnswerSubmission{{QuestionID: "q1", SelectedOption: "a"}, {QuestionID: "q2", SelectedOption: "b"}}, 2, true},
		{"last answer wins", []model.AnswerSubmission{{QuestionID: "q1", SelectedOption: "a"}, {QuestionID: "q1", SelectedOption: "c"}}, 0, true},
		{"unknown question", []model.AnswerSubmission{{QuestionID: "q9", SelectedOption: "a"}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			graded, ok := grade(questions, tt.answers)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v", tt.ok, ok)
			}
			n := 0
			for _, g := range graded {
				if g.Correct {
					n++
				}
			}
			if n != tt.correct {
				t.Errorf("expected %d correct, got %d", tt.correct, n)
			}
		})
	}
}

func TestExamTitle(t *testing.T) {
	tests := []struct {
		req  model.CreateExamRequest
		want string
	}{
		{model.CreateExamRequest{ExamType: model.ExamTypeComplete, ContentSelection: model.ContentSelection{Method: model.ContentBySubject, Subject: "all"}}, "Complete Exam"},
		{model.CreateExamRequest{ExamType: model.ExamTypeQuick, ContentSelection: model.ContentSelection{Method: model.ContentBySubject, Subject: "human_sciences"}}, "Quick Exam - Human Sciences"},
		{model.CreateExamRequest{ExamType: model.ExamTypeCustom, ContentSelection: model.ContentSelection{Method: model.ContentByTopic, CustomTopic: " photosynthesis "}}, "Custom Exam - photosynthesis"},
		{model.CreateExamRequest{ExamType: model.ExamTypeInteractive}, "Custom Exam"},
	}
	for _, tt := range tests {
		if got := examTitle(tt.req); got != tt.want {
			t.Errorf("examTitle(%+v) = %q, want %q", tt.req, got, tt.want)
		}
	}
}
