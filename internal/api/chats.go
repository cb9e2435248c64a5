package api

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/examcoach/internal/gateway"
	"github.com/pavelanni/examcoach/internal/model"
)

type chatHistoryEnvelope struct {
	gateway.Envelope
	Chats []model.ChatSummary `json:"chats"`
	Total int                 `json:"total"`
}

func chatID(questionID string, userID int64) string {
	return fmt.Sprintf("chat_%s_%d", questionID, userID)
}

func (s *Server) handleStartChat(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req gateway.ChatRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	q, err := s.store.GetQuestion(chi.URLParam(r, "questionID"))
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Question not found.", "QUESTION_NOT_FOUND")
		return
	}
	if err != nil {
		internalError(w, "get question failed", err)
		return
	}

	reply, err := s.tutor.Reply(r.Context(), q, nil, req.Query)
	if err != nil {
		slog.Error("tutor reply failed", "question_id", q.ID, "error", err)
		fail(w, http.StatusBadGateway, "The tutor is unavailable. Try again.", "TUTOR_UNAVAILABLE")
		return
	}

	now := s.now()
	id := chatID(q.ID, user.ID)
	msgs := []model.ChatMessage{
		{Content: req.Query, Author: model.AuthorUser, Timestamp: &now},
		{Content: reply, Author: model.AuthorAssistant, Timestamp: &now},
	}
	if err := s.store.StartQuestionChat(id, q.ID, user.ID, msgs, now); err != nil {
		internalError(w, "save chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ChatEnvelope{
		Envelope: ok(),
		Chat:     &gateway.ChatPayload{ID: id, QuestionID: q.ID, Messages: msgs},
	})
}

// loadChat fetches the caller's chat named in the URL. It writes the error
// response and returns nil on failure.
func (s *Server) loadChat(w http.ResponseWriter, r *http.Request) *model.QuestionChat {
	user := model.UserFromContext(r.Context())
	chat, err := s.store.GetQuestionChat(chi.URLParam(r, "chatID"))
	if err != nil {
		internalError(w, "get chat failed", err)
		return nil
	}
	if chat == nil {
		fail(w, http.StatusNotFound, "Chat not found.", "CHAT_NOT_FOUND")
		return nil
	}
	if chat.UserID != user.ID {
		fail(w, http.StatusForbidden, "Access to this chat is not allowed.", "UNAUTHORIZED")
		return nil
	}
	return chat
}

func (s *Server) handleContinueChat(w http.ResponseWriter, r *http.Request) {
	chat := s.loadChat(w, r)
	if chat == nil {
		return
	}
	var req gateway.ChatRequest
	if !s.decodeValid(w, r, &req) {
		return
	}

	q, err := s.store.GetQuestion(chat.QuestionID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(w, http.StatusNotFound, "Question not found.", "QUESTION_NOT_FOUND")
		return
	}
	if err != nil {
		internalError(w, "get question failed", err)
		return
	}

	reply, err := s.tutor.Reply(r.Context(), q, chat.Messages, req.Query)
	if err != nil {
		slog.Error("tutor reply failed", "chat_id", chat.ID, "error", err)
		fail(w, http.StatusBadGateway, "The tutor is unavailable. Try again.", "TUTOR_UNAVAILABLE")
		return
	}

	now := s.now()
	added := []model.ChatMessage{
		{Content: req.Query, Author: model.AuthorUser, Timestamp: &now},
		{Content: reply, Author: model.AuthorAssistant, Timestamp: &now},
	}
	if err := s.store.AppendChatMessages(chat.ID, added, now); err != nil {
		internalError(w, "save chat failed", err)
		return
	}
	writeJSON(w, http.StatusOK, gateway.ChatEnvelope{
		Envelope: ok(),
		Chat:     &gateway.ChatPayload{ID: chat.ID, QuestionID: chat.QuestionID, Messages: append(chat.Messages, added...)},
	})
}

func (s *Server) handleGetChat(w http.ResponseWriter, r *http.Request) {
	chat := s.loadChat(w, r)
	if chat == nil {
		return
	}
	writeJSON(w, http.StatusOK, gateway.ChatEnvelope{
		Envelope: ok(),
		Chat:     &gateway.ChatPayload{ID: chat.ID, QuestionID: chat.QuestionID, Messages: chat.Messages},
	})
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 || limit > 50 {
		limit = 10
	}
	chats, err := s.store.ListUserChats(user.ID, limit)
	if err != nil {
		internalError(w, "list chats failed", err)
		return
	}
	if chats == nil {
		chats = []model.ChatSummary{}
	}
	writeJSON(w, http.StatusOK, chatHistoryEnvelope{Envelope: ok(), Chats: chats, Total: len(chats)})
}
