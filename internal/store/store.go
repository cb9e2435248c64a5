package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pavelanni/examcoach/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS questions (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		options TEXT NOT NULL,
		correct_answer TEXT NOT NULL,
		explanation TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		topic TEXT NOT NULL DEFAULT '',
		difficulty TEXT NOT NULL DEFAULT 'medium',
		possible_questions TEXT NOT NULL DEFAULT '[]'
	);

	CREATE TABLE IF NOT EXISTS exams (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		title TEXT NOT NULL,
		status TEXT NOT NULL,
		type TEXT NOT NULL,
		question_count INTEGER NOT NULL,
		time_limit INTEGER NOT NULL DEFAULT 0,
		content_type TEXT NOT NULL DEFAULT '',
		subject TEXT NOT NULL DEFAULT '',
		custom_topic TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		started_at DATETIME,
		end_time DATETIME,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE INDEX IF NOT EXISTS idx_exams_user ON exams(user_id, created_at);

	CREATE TABLE IF NOT EXISTS exam_questions (
		exam_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		question_id TEXT NOT NULL,
		PRIMARY KEY (exam_id, position),
		FOREIGN KEY (exam_id) REFERENCES exams(id),
		FOREIGN KEY (question_id) REFERENCES questions(id)
	);

	CREATE TABLE IF NOT EXISTS submissions (
		exam_id TEXT PRIMARY KEY,
		score REAL NOT NULL,
		correct_answers INTEGER NOT NULL,
		total_questions INTEGER NOT NULL,
		time_spent INTEGER NOT NULL,
		submitted_at DATETIME NOT NULL,
		FOREIGN KEY (exam_id) REFERENCES exams(id)
	);

	CREATE TABLE IF NOT EXISTS submission_answers (
		exam_id TEXT NOT NULL,
		question_id TEXT NOT NULL,
		selected_option TEXT NOT NULL,
		correct INTEGER NOT NULL,
		PRIMARY KEY (exam_id, question_id),
		FOREIGN KEY (exam_id) REFERENCES submissions(exam_id)
	);

	CREATE TABLE IF NOT EXISTS question_chats (
		id TEXT PRIMARY KEY,
		question_id TEXT NOT NULL,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		FOREIGN KEY (question_id) REFERENCES questions(id),
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id TEXT NOT NULL,
		content TEXT NOT NULL,
		is_user INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (chat_id) REFERENCES question_chats(id)
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		sha256 TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const questionColumns = `id, text, options, correct_answer, explanation, subject, topic, difficulty, possible_questions`

type scanner interface {
	Scan(dest ...any) error
}

func scanQuestion(row scanner) (model.Question, error) {
	var q model.Question
	var options, possible string
	if err := row.Scan(&q.ID, &q.Text, &options, &q.CorrectAnswer, &q.Explanation, &q.Subject, &q.Topic, &q.Difficulty, &possible); err != nil {
		return q, err
	}
	if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
		return q, fmt.Errorf("decode options of %s: %w", q.ID, err)
	}
	if err := json.Unmarshal([]byte(possible), &q.PossibleQuestions); err != nil {
		return q, fmt.Errorf("decode possible questions of %s: %w", q.ID, err)
	}
	return q, nil
}

func scanQuestions(rows *sql.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// InsertQuestion stores a question, assigning an id when it has none.
func (s *Store) InsertQuestion(q model.Question) (string, error) {
	if q.ID == "" {
		q.ID = "q_" + uuid.NewString()
	}
	if q.Difficulty == "" {
		q.Difficulty = model.DifficultyMedium
	}
	if q.PossibleQuestions == nil {
		q.PossibleQuestions = []string{}
	}
	options, err := json.Marshal(q.Options)
	if err != nil {
		return "", err
	}
	possible, err := json.Marshal(q.PossibleQuestions)
	if err != nil {
		return "", err
	}
	_, err = s.db.Exec(
		`INSERT INTO questions (`+questionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.Text, string(options), q.CorrectAnswer, q.Explanation, q.Subject, q.Topic, q.Difficulty, string(possible),
	)
	if err != nil {
		return "", err
	}
	return q.ID, nil
}

// ListQuestionsFiltered returns questions of a subject and/or matching a
// topic. An empty subject or "all" matches every subject; the topic is
// matched case-insensitively against the topic and the question text.
func (s *Store) ListQuestionsFiltered(subject, topic string) ([]model.Question, error) {
	query := `SELECT ` + questionColumns + ` FROM questions WHERE 1=1`
	var args []any
	if subject != "" && subject != "all" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	if topic = strings.TrimSpace(topic); topic != "" {
		like := "%" + strings.ToLower(topic) + "%"
		query += ` AND (lower(topic) LIKE ? OR lower(text) LIKE ?)`
		args = append(args, like, like)
	}
	rows, err := s.db.Query(query+` ORDER BY rowid`, args...)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// GetQuestion returns a question by ID.
func (s *Store) GetQuestion(id string) (model.Question, error) {
	return scanQuestion(s.db.QueryRow(`SELECT `+questionColumns+` FROM questions WHERE id = ?`, id))
}

// QuestionCount returns the number of questions in the database.
func (s *Store) QuestionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM questions`).Scan(&count)
	return count, err
}

// ListDistinctSubjects returns all subjects in alphabetical order.
func (s *Store) ListDistinctSubjects() ([]string, error) {
	return s.distinct("subject")
}

// ListDistinctTopics returns all topics in alphabetical order.
func (s *Store) ListDistinctTopics() ([]string, error) {
	return s.distinct("topic")
}

func (s *Store) distinct(column string) ([]string, error) {
	rows, err := s.db.Query(`SELECT DISTINCT ` + column + ` FROM questions WHERE ` + column + ` != '' ORDER BY ` + column)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
