package store

import (
	"database/sql"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

// GetQuestionChat returns a chat with its messages, or nil if it does not exist.
func (s *Store) GetQuestionChat(id string) (*model.QuestionChat, error) {
	var c model.QuestionChat
	err := s.db.QueryRow(
		`SELECT id, question_id, user_id, created_at, updated_at FROM question_chats WHERE id = ?`, id,
	).Scan(&c.ID, &c.QuestionID, &c.UserID, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if c.Messages, err = s.chatMessages(id); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) chatMessages(chatID string) ([]model.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT content, is_user, created_at FROM chat_messages WHERE chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	msgs := []model.ChatMessage{}
	for rows.Next() {
		var m model.ChatMessage
		var isUser bool
		var at time.Time
		if err := rows.Scan(&m.Content, &isUser, &at); err != nil {
			return nil, err
		}
		m.Author = model.AuthorAssistant
		if isUser {
			m.Author = model.AuthorUser
		}
		m.Timestamp = &at
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// StartQuestionChat creates or restarts a chat with msgs as its whole log.
func (s *Store) StartQuestionChat(id, questionID string, userID int64, msgs []model.ChatMessage, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM chat_messages WHERE chat_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.Exec(
		`INSERT INTO question_chats (id, question_id, user_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET created_at = ?, updated_at = ?`,
		id, questionID, userID, now, now, now, now,
	); err != nil {
		return err
	}
	if err := insertMessages(tx, id, msgs, now); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendChatMessages adds msgs to the end of an existing chat.
func (s *Store) AppendChatMessages(id string, msgs []model.ChatMessage, now time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(`UPDATE question_chats SET updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if err := insertMessages(tx, id, msgs, now); err != nil {
		return err
	}
	return tx.Commit()
}

func insertMessages(tx *sql.Tx, chatID string, msgs []model.ChatMessage, now time.Time) error {
	for _, m := range msgs {
		at := now
		if m.Timestamp != nil {
			at = *m.Timestamp
		}
		if _, err := tx.Exec(
			`INSERT INTO chat_messages (chat_id, content, is_user, created_at) VALUES (?, ?, ?, ?)`,
			chatID, m.Content, m.Author == model.AuthorUser, at,
		); err != nil {
			return err
		}
	}
	return nil
}

// ListUserChats returns a user's most recently updated chats.
func (s *Store) ListUserChats(userID int64, limit int) ([]model.ChatSummary, error) {
	rows, err := s.db.Query(
		`SELECT c.id, c.question_id, q.text, c.updated_at,
		        (SELECT COUNT(*) FROM chat_messages m WHERE m.chat_id = c.id)
		 FROM question_chats c JOIN questions q ON q.id = c.question_id
		 WHERE c.user_id = ? ORDER BY c.updated_at DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.ChatSummary
	for rows.Next() {
		var c model.ChatSummary
		if err := rows.Scan(&c.ID, &c.QuestionID, &c.QuestionText, &c.UpdatedAt, &c.MessageCount); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
