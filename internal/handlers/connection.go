package handlers

import (
	"fmt"
	"net/http"

	"devlink-backend/internal/middleware"
	"devlink-backend/internal/models"
	"devlink-backend/internal/services"

	"github.com/go-chi/chi/v5"
)

// ConnectionHandler handles connection request HTTP requests
type ConnectionHandler struct {
	connections *services.ConnectionService
	users       *services.UserService
}

// NewConnectionHandler creates a new connection handler
func NewConnectionHandler(connections *services.ConnectionService, users *services.UserService) *ConnectionHandler {
	return &ConnectionHandler{connections: connections, users: users}
}

// SendRequest handles POST /api/v1/request/send/{status}/{toUserId}
func (h *ConnectionHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	toUserID := chi.URLParam(r, "toUserId")
	status := models.RequestStatus(chi.URLParam(r, "status"))

	if err := validateParam("toUserId", toUserID); err != nil {
		respondError(w, err)
		return
	}

	req, err := h.connections.CreateRequest(ctx, userID, toUserID, status)
	if err != nil {
		respondError(w, err)
		return
	}

	message := fmt.Sprintf("request is now %s", req.Status)
	if to, err := h.users.GetProfile(ctx, toUserID); err == nil {
		message = fmt.Sprintf("your status for %s is now %s", to.DisplayName, req.Status)
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"message": message,
		"data":    req,
	})
}

// ReviewRequest handles POST /api/v1/request/review/{status}/{requestId}
func (h *ConnectionHandler) ReviewRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	requestID := chi.URLParam(r, "requestId")
	status := models.RequestStatus(chi.URLParam(r, "status"))

	if err := validateParam("requestId", requestID); err != nil {
		respondError(w, err)
		return
	}

	req, err := h.connections.ReviewRequest(ctx, userID, requestID, status)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("connection request %s", req.Status),
		"data":    req,
	})
}
