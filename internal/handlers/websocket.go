package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 32 * 1024
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub      *services.WSHub
	users    *services.UserService
	chat     *services.ChatService
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. An empty
// allowedOrigins list accepts any origin.
func NewWebSocketHandler(hub *services.WSHub, users *services.UserService, chat *services.ChatService, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:   hub,
		users: users,
		chat:  chat,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=...
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondJSON(w, http.StatusUnauthorized, errorResponse(apperr.ErrInvalidToken))
		return
	}
	userID, err := h.users.ValidateJWT(token)
	if err != nil {
		respondJSON(w, http.StatusUnauthorized, errorResponse(apperr.ErrInvalidToken))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	client := services.NewClient(userID, services.DefaultSendBuffer)
	h.hub.Register(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		writePump(conn, client)
	}()

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")
	h.readLoop(r.Context(), conn, client)

	h.hub.Unregister(client)
	<-done
}

func (h *WebSocketHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *services.Client) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("user_id", client.UserID).Msg("WebSocket closed unexpectedly")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.SendEvent(services.ErrorEvent(apperr.Validation(apperr.CodeInvalidInput, "invalid message format")))
			continue
		}
		h.handleMessage(ctx, client, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, client *services.Client, msg services.WSMessage) {
	switch msg.Type {
	case services.EventJoinChat:
		room, err := h.chat.JoinRoom(client, msg.TargetUserID)
		if err != nil {
			client.SendEvent(services.ErrorEvent(err))
			return
		}
		client.SendEvent(services.WSMessage{Type: services.EventJoined, RoomID: room, TargetUserID: msg.TargetUserID})

	case services.EventLeaveChat:
		room, err := h.chat.LeaveRoom(client, msg.TargetUserID)
		if err != nil {
			client.SendEvent(services.ErrorEvent(err))
			return
		}
		client.SendEvent(services.WSMessage{Type: services.EventLeft, RoomID: room, TargetUserID: msg.TargetUserID})

	case services.EventSendMessage:
		if _, err := h.chat.SendMessage(ctx, client.UserID, msg.TargetUserID, msg.Text); err != nil {
			if apperr.KindOf(err) == apperr.KindDependency {
				log.Error().Err(err).Str("user_id", client.UserID).Msg("Failed to send message")
			}
			client.SendEvent(services.ErrorEvent(err))
		}

	default:
		client.SendEvent(services.ErrorEvent(apperr.Validation(apperr.CodeInvalidInput, "unknown message type")))
	}
}

// writePump is the only writer of conn. It exits when the client's queue is
// closed or a write fails.
func writePump(conn *websocket.Conn, client *services.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Outbound():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Debug().Err(err).Str("user_id", client.UserID).Msg("WebSocket write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
