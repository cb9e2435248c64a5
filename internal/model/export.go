package model

import "time"

// ChatExport is the top-level JSON structure for tutoring transcript export.
type ChatExport struct {
	ExportedAt time.Time        `json:"exported_at"`
	NumChats   int              `json:"num_chats"`
	Chats      []ChatTranscript `json:"chats"`
}

// ChatTranscript holds one question chat for export.
type ChatTranscript struct {
	ChatID       string            `json:"chat_id"`
	Username     string            `json:"username"`
	QuestionID   string            `json:"question_id"`
	QuestionText string            `json:"question_text"`
	Topic        string            `json:"topic"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
	Conversation []ConversationMsg `json:"conversation"`
}

// ConversationMsg is a single message in an exported conversation.
type ConversationMsg struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
