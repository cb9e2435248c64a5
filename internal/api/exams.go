package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
	"github.com/pavelanni/examcoach/internal/store"
)

func (s *Server) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req model.CreateExamRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	sel := req.ContentSelection
	var subject, topic string
	if sel.Method == model.ContentBySubject {
		subject = sel.Subject
	} else {
		topic = sel.CustomTopic
	}
	questions, err := s.store.ListQuestionsFiltered(subject, topic)
	if err != nil {
		internalError(w, "list questions failed", err)
		return
	}
	if len(questions) == 0 {
		fail(w, http.StatusUnprocessableEntity, "No questions match the selected content.", "NO_QUESTIONS")
		return
	}
	s.shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	if req.QuestionCount < len(questions) {
		questions = questions[:req.QuestionCount]
	}

	now := s.now()
	exam := model.Exam{
		ID:        "exam_" + uuid.NewString(),
		Title:     examTitle(req),
		CreatedAt: now,
		ExpiresAt: now.Add(ExamLifetime),
		Status:    model.ExamReady,
		Config: model.ExamConfig{
			Type:          req.ExamType,
			QuestionCount: len(questions),
			TimeLimit:     req.EstimatedTime,
			ContentType:   sel.Method,
			Subject:       sel.Subject,
			CustomTopic:   sel.CustomTopic,
		},
		Questions: questions,
	}
	if err := s.store.CreateExam(user.ID, exam); err != nil {
		internalError(w, "create exam failed", err)
		return
	}
	slog.Info("exam created", "exam_id", exam.ID, "user", user.Username, "questions", len(questions))
	writeJSON(w, http.StatusCreated, gateway.ExamEnvelope{Envelope: ok(), Exam: &exam})
}

// loadExam fetches the caller's exam named in the URL, expiring it when its
// lifetime is over. It writes the error response and returns nil on failure.
func (s *Server) loadExam(w http.ResponseWriter, r *http.Request) *model.Exam {
	user := model.UserFromContext(r.Context())
	exam, err := s.store.GetExam(chi.URLParam(r, "examID"), user.ID)
	if err != nil {
		internalError(w, "get exam failed", err)
		return nil
	}
	if exam == nil {
		fail(w, http.StatusNotFound, "Exam not found.", "EXAM_NOT_FOUND")
		return nil
	}
	if s.now().After(exam.ExpiresAt) && exam.Status != model.ExamCompleted && exam.Status != model.ExamExpired {
		if err := s.store.UpdateExamStatus(exam.ID, model.ExamExpired); err != nil {
			internalError(w, "expire exam failed", err)
			return nil
		}
		exam.Status = model.ExamExpired
	}
	return exam
}

func (s *Server) handleGetExam(w http.ResponseWriter, r *http.Request) {
	exam := s.loadExam(w, r)
	if exam == nil {
		return
	}
	writeJSON(w, http.StatusOK, gateway.ExamEnvelope{Envelope: ok(), Exam: exam})
}

func (s *Server) handleStartExam(w http.ResponseWriter, r *http.Request) {
	exam := s.loadExam(w, r)
	if exam == nil {
		return
	}
	switch exam.Status {
	case model.ExamExpired:
		fail(w, http.StatusGone, "Exam has expired.", "EXAM_EXPIRED")
		return
	case model.ExamCompleted:
		fail(w, http.StatusConflict, "Exam was already submitted.", "EXAM_ALREADY_SUBMITTED")
		return
	}

	timing, err := s.store.StartExam(exam.ID, s.now())
	if err != nil {
		internalError(w, "start exam failed", err)
		return
	}
	resp := gateway.StartEnvelope{Envelope: ok(), StartTime: *timing.StartedAt}
	if timing.EndTime != nil {
		resp.EndTime = *timing.EndTime
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitExam(w http.ResponseWriter, r *http.Request) {
	exam := s.loadExam(w, r)
	if exam == nil {
		return
	}
	var req gateway.SubmitRequest
	if !s.decodeValid(w, r, &req) {
		return
	}
	switch exam.Status {
	case model.ExamExpired:
		fail(w, http.StatusGone, "Exam has expired.", "EXAM_EXPIRED")
		return
	case model.ExamCompleted:
		fail(w, http.StatusConflict, "Exam was already submitted.", "EXAM_ALREADY_SUBMITTED")
		return
	}

	graded, valid := grade(exam.Questions, req.Answers)
	if !valid {
		fail(w, http.StatusBadRequest, "Answer refers to a question outside this exam.", "INVALID_ANSWER")
		return
	}
	correct := 0
	for _, a := range graded {
		if a.Correct {
			correct++
		}
	}
	total := len(exam.Questions)
	now := s.now()
	res := model.SubmitResult{CorrectAnswers: correct, TotalQuestions: total}
	if total > 0 {
		res.Score = math.Round(float64(correct)*1000/float64(total)) / 10
	}
	if timing, err := s.store.GetExamTiming(exam.ID); err == nil && timing.StartedAt != nil {
		end := now
		if timing.EndTime != nil && end.After(*timing.EndTime) {
			end = *timing.EndTime
		}
		res.TimeSpent = int(end.Sub(*timing.StartedAt).Seconds())
	}

	err := s.store.SaveSubmission(exam.ID, res, graded, now)
	if errors.Is(err, store.ErrAlreadySubmitted) {
		fail(w, http.StatusConflict, "Exam was already submitted.", "EXAM_ALREADY_SUBMITTED")
		return
	}
	if err != nil {
		internalError(w, "save submission failed", err)
		return
	}
	slog.Info("exam submitted", "exam_id", exam.ID, "correct", correct, "total", total)
	writeJSON(w, http.StatusOK, gateway.SubmitEnvelope{Envelope: ok(), Result: &res})
}

// grade compares each answer with its question's correct option. A repeated
// question keeps its last answer. It reports false if an answer names a
// question that is not part of the exam.
func grade(questions []model.Question, answers []model.AnswerSubmission) ([]model.GradedAnswer, bool) {
	correct := make(map[string]string, len(questions))
	for _, q := range questions {
		correct[q.ID] = q.CorrectAnswer
	}
	index := make(map[string]int, len(answers))
	var graded []model.GradedAnswer
	for _, a := range answers {
		want, known := correct[a.QuestionID]
		if !known {
			return nil, false
		}
		g := model.GradedAnswer{QuestionID: a.QuestionID, SelectedOption: a.SelectedOption, Correct: a.SelectedOption == want}
		if i, seen := index[a.QuestionID]; seen {
			graded[i] = g
			continue
		}
		index[a.QuestionID] = len(graded)
		graded = append(graded, g)
	}
	return graded, true
}

func (s *Server) handleExamHistory(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	if limit < 1 || limit > 50 {
		limit = 10
	}
	status := model.ExamStatus(q.Get("status"))
	switch status {
	case "", model.ExamGenerating, model.ExamReady, model.ExamInProgress, model.ExamCompleted, model.ExamExpired:
	default:
		fail(w, http.StatusBadRequest, "Unknown exam status.", "INVALID_STATUS")
		return
	}

	exams, total, err := s.store.ListUserExams(user.ID, status, page, limit)
	if err != nil {
		internalError(w, "list exams failed", err)
		return
	}
	if exams == nil {
		exams = []model.ExamSummary{}
	}
	writeJSON(w, http.StatusOK, gateway.HistoryEnvelope{Envelope: ok(), Exams: exams, Page: page, Limit: limit, Total: total})
}
