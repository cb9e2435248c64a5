package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

// ErrAlreadySubmitted is returned when an exam is submitted twice.
var ErrAlreadySubmitted = errors.New("exam already submitted")

// ExamTiming holds when an exam was started and when its time runs out.
type ExamTiming struct {
	StartedAt *time.Time
	EndTime   *time.Time
}

// CreateExam stores an exam owned by userID together with its question order.
func (s *Store) CreateExam(userID int64, e model.Exam) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO exams (id, user_id, title, status, type, question_count, time_limit, content_type, subject, custom_topic, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, userID, e.Title, e.Status, e.Config.Type, e.Config.QuestionCount, e.Config.TimeLimit,
		e.Config.ContentType, e.Config.Subject, e.Config.CustomTopic, e.CreatedAt, e.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}
	for i, q := range e.Questions {
		if _, err := tx.Exec(
			`INSERT INTO exam_questions (exam_id, position, question_id) VALUES (?, ?, ?)`,
			e.ID, i, q.ID,
		); err != nil {
			return fmt.Errorf("insert exam question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// GetExam returns an exam of userID with its questions in order, or nil if
// the exam does not exist or belongs to someone else.
func (s *Store) GetExam(id string, userID int64) (*model.Exam, error) {
	var e model.Exam
	err := s.db.QueryRow(
		`SELECT id, title, status, type, question_count, time_limit, content_type, subject, custom_topic, created_at, expires_at
		 FROM exams WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&e.ID, &e.Title, &e.Status, &e.Config.Type, &e.Config.QuestionCount, &e.Config.TimeLimit,
		&e.Config.ContentType, &e.Config.Subject, &e.Config.CustomTopic, &e.CreatedAt, &e.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT q.id, q.text, q.options, q.correct_answer, q.explanation, q.subject, q.topic, q.difficulty, q.possible_questions
		 FROM exam_questions eq JOIN questions q ON q.id = eq.question_id
		 WHERE eq.exam_id = ? ORDER BY eq.position`, id,
	)
	if err != nil {
		return nil, err
	}
	if e.Questions, err = scanQuestions(rows); err != nil {
		return nil, err
	}
	return &e, nil
}

// UpdateExamStatus sets the status of an exam.
func (s *Store) UpdateExamStatus(id string, status model.ExamStatus) error {
	_, err := s.db.Exec(`UPDATE exams SET status = ? WHERE id = ?`, status, id)
	return err
}

// StartExam marks an exam in progress. Only the first call records the start
// time; later calls return the original timing.
func (s *Store) StartExam(id string, now time.Time) (ExamTiming, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return ExamTiming{}, err
	}
	defer tx.Rollback()

	var limit int
	var t ExamTiming
	err = tx.QueryRow(`SELECT time_limit, started_at, end_time FROM exams WHERE id = ?`, id).Scan(&limit, &t.StartedAt, &t.EndTime)
	if err != nil {
		return ExamTiming{}, err
	}
	if t.StartedAt != nil {
		return t, nil
	}

	t.StartedAt = &now
	if limit > 0 {
		end := now.Add(time.Duration(limit) * time.Minute)
		t.EndTime = &end
	}
	if _, err := tx.Exec(
		`UPDATE exams SET status = ?, started_at = ?, end_time = ? WHERE id = ?`,
		model.ExamInProgress, t.StartedAt, t.EndTime, id,
	); err != nil {
		return ExamTiming{}, err
	}
	return t, tx.Commit()
}

// GetExamTiming returns the start and end time of an exam.
func (s *Store) GetExamTiming(id string) (ExamTiming, error) {
	var t ExamTiming
	err := s.db.QueryRow(`SELECT started_at, end_time FROM exams WHERE id = ?`, id).Scan(&t.StartedAt, &t.EndTime)
	return t, err
}

// SaveSubmission records a graded submission and completes the exam.
func (s *Store) SaveSubmission(examID string, res model.SubmitResult, answers []model.GradedAnswer, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM submissions WHERE exam_id = ?`, examID).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return ErrAlreadySubmitted
	}

	if _, err := tx.Exec(
		`INSERT INTO submissions (exam_id, score, correct_answers, total_questions, time_spent, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		examID, res.Score, res.CorrectAnswers, res.TotalQuestions, res.TimeSpent, now,
	); err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	for _, a := range answers {
		if _, err := tx.Exec(
			`INSERT INTO submission_answers (exam_id, question_id, selected_option, correct) VALUES (?, ?, ?, ?)`,
			examID, a.QuestionID, a.SelectedOption, a.Correct,
		); err != nil {
			return fmt.Errorf("insert answer %s: %w", a.QuestionID, err)
		}
	}
	if _, err := tx.Exec(`UPDATE exams SET status = ? WHERE id = ?`, model.ExamCompleted, examID); err != nil {
		return err
	}
	return tx.Commit()
}

// GetSubmission returns the grading of an exam, or nil if not submitted.
func (s *Store) GetSubmission(examID string) (*model.SubmitResult, error) {
	var r model.SubmitResult
	err := s.db.QueryRow(
		`SELECT score, correct_answers, total_questions, time_spent FROM submissions WHERE exam_id = ?`, examID,
	).Scan(&r.Score, &r.CorrectAnswers, &r.TotalQuestions, &r.TimeSpent)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListUserExams returns one page of a user's exams, newest first, and the
// total number of matching exams. An empty status matches all.
func (s *Store) ListUserExams(userID int64, status model.ExamStatus, page, limit int) ([]model.ExamSummary, int, error) {
	where := `WHERE e.user_id = ?`
	args := []any{userID}
	if status != "" {
		where += ` AND e.status = ?`
		args = append(args, status)
	}

	var total int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM exams e `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.Query(
		`SELECT e.id, e.title, e.status, e.created_at, sub.score, sub.correct_answers, sub.total_questions, sub.time_spent
		 FROM exams e LEFT JOIN submissions sub ON sub.exam_id = e.id `+where+`
		 ORDER BY e.created_at DESC LIMIT ? OFFSET ?`,
		append(args, limit, (page-1)*limit)...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.ExamSummary
	for rows.Next() {
		var sum model.ExamSummary
		var score sql.NullFloat64
		var correct, totalQ, spent sql.NullInt64
		if err := rows.Scan(&sum.ID, &sum.Title, &sum.Status, &sum.CreatedAt, &score, &correct, &totalQ, &spent); err != nil {
			return nil, 0, err
		}
		if score.Valid {
			sum.Result = &model.SubmitResult{
				Score:          score.Float64,
				CorrectAnswers: int(correct.Int64),
				TotalQuestions: int(totalQ.Int64),
				TimeSpent:      int(spent.Int64),
			}
		}
		out = append(out, sum)
	}
	return out, total, rows.Err()
}

// ExpireExams marks unfinished exams past their expiry as expired.
func (s *Store) ExpireExams(now time.Time) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE exams SET status = ? WHERE expires_at < ? AND status NOT IN (?, ?)`,
		model.ExamExpired, now, model.ExamCompleted, model.ExamExpired,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
