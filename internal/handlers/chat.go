package handlers

import (
	"net/http"

	"devlink-backend/internal/middleware"
	"devlink-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// ChatHandler handles chat history HTTP requests
type ChatHandler struct {
	chat *services.ChatService
}

// NewChatHandler creates a new chat handler
func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// SendMessageRequest represents the request body for posting a message
type SendMessageRequest struct {
	Text string `json:"text" validate:"max=16000"`
}

// GetThread handles GET /api/v1/chat/{targetUserId}
func (h *ChatHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := chi.URLParam(r, "targetUserId")
	if err := validateParam("targetUserId", target); err != nil {
		respondError(w, err)
		return
	}

	transcript, err := h.chat.OpenThread(ctx, middleware.GetUserID(ctx), target)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transcript)
}

// SendMessage handles POST /api/v1/chat/{targetUserId}/messages
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	target := chi.URLParam(r, "targetUserId")
	if err := validateParam("targetUserId", target); err != nil {
		respondError(w, err)
		return
	}

	var req SendMessageRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	msg, err := h.chat.SendMessage(ctx, middleware.GetUserID(ctx), target, req.Text)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, msg)
}
