package handlers

import (
	"net/http"

	"devlink-backend/internal/middleware"
	"devlink-backend/internal/services"
)

// UserHandler serves the caller's view of their own connections
type UserHandler struct {
	connections *services.ConnectionService
}

// NewUserHandler creates a new user handler
func NewUserHandler(connections *services.ConnectionService) *UserHandler {
	return &UserHandler{connections: connections}
}

// ReceivedRequests handles GET /api/v1/user/requests/received
func (h *UserHandler) ReceivedRequests(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requests, err := h.connections.ListIncoming(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": requests})
}

// Connections handles GET /api/v1/user/connections
func (h *UserHandler) Connections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	peers, err := h.connections.ListAcceptedPeers(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"data": peers})
}
