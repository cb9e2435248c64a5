package store

import (
	"fmt"
	"time"

	"github.com/pavelanni/examcoach/internal/model"
)

// ExportChats builds transcripts of every stored question chat, oldest first.
func (s *Store) ExportChats() (*model.ChatExport, error) {
	rows, err := s.db.Query(
		`SELECT c.id, u.username, c.question_id, q.text, q.topic, c.created_at, c.updated_at
		 FROM question_chats c
		 JOIN users u ON u.id = c.user_id
		 JOIN questions q ON q.id = c.question_id
		 ORDER BY c.created_at, c.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	var transcripts []model.ChatTranscript
	for rows.Next() {
		var t model.ChatTranscript
		if err := rows.Scan(&t.ChatID, &t.Username, &t.QuestionID, &t.QuestionText, &t.Topic, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		transcripts = append(transcripts, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Messages are loaded after the chat rows are closed; the store may run
	// on a single connection.
	for i := range transcripts {
		msgs, err := s.chatMessages(transcripts[i].ChatID)
		if err != nil {
			return nil, fmt.Errorf("get messages of %s: %w", transcripts[i].ChatID, err)
		}
		conv := make([]model.ConversationMsg, 0, len(msgs))
		for _, m := range msgs {
			conv = append(conv, model.ConversationMsg{Role: string(m.Author), Content: m.Content, At: *m.Timestamp})
		}
		transcripts[i].Conversation = conv
	}

	return &model.ChatExport{
		ExportedAt: time.Now().UTC(),
		NumChats:   len(transcripts),
		Chats:      transcripts,
	}, nil
}
