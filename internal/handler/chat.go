package handler

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/sakif/companion/internal/apperror"
	"github.com/sakif/companion/internal/model"
	"github.com/sakif/companion/internal/service"
)

// ChatHandler serves group chat over plain HTTP. Live delivery goes through
// the websocket endpoint instead (see WSHandler).
type ChatHandler struct {
	chat   *service.ChatService
	logger *slog.Logger
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(chat *service.ChatService, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{chat: chat, logger: logger}
}

type sendMessageRequest struct {
	LocationID string     `json:"location_id"`
	GroupID    uuid.UUID  `json:"group_id"`
	User       model.User `json:"user"`
	Content    string     `json:"content"`
}

// HandleSend appends a message to a group's chat.
//
// HTTP: POST /chat/send
// REQUEST BODY: {"location_id": "...", "group_id": "<uuid>", "user": {...}, "content": "hi"}
//
// Responds 201 with the stored message. Only members may write (403).
func (h *ChatHandler) HandleSend(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.GroupID == uuid.Nil {
		writeError(w, apperror.ValidationFailed("group_id", "group_id is required"))
		return
	}

	msg, err := h.chat.Send(r.Context(), req.LocationID, req.GroupID, req.User, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleHistory returns a group's messages, oldest first.
//
// HTTP: GET /chat/history?location_id=...&group_id=<uuid>&user_id=7
//
// 200 with [] means no messages yet; a non-member gets 403.
func (h *ChatHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	groupID, err := queryUUID(r, "group_id")
	if err != nil {
		writeError(w, err)
		return
	}
	userID, err := queryInt64(r, "user_id")
	if err != nil {
		writeError(w, err)
		return
	}

	history, err := h.chat.History(r.Context(), r.URL.Query().Get("location_id"), groupID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}
