package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxMessageRunes bounds the length of one chat message
const MaxMessageRunes = 4000

// ChatStore persists chat threads and messages
type ChatStore interface {
	EnsureThread(ctx context.Context, newID, lowID, highID string, now time.Time) (*models.ChatThread, error)
	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, threadID string) ([]models.Message, error)
}

// ChatService manages gated transcripts and live room delivery
type ChatService struct {
	gate  *ChatGate
	store ChatStore
	users *UserService
	hub   *WSHub
	now   func() time.Time
}

// NewChatService creates a new chat service
func NewChatService(gate *ChatGate, store ChatStore, users *UserService, hub *WSHub) *ChatService {
	return &ChatService{
		gate:  gate,
		store: store,
		users: users,
		hub:   hub,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func orderedPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

func (s *ChatService) thread(ctx context.Context, a, b string) (*models.ChatThread, error) {
	low, high := orderedPair(a, b)
	thread, err := s.store.EnsureThread(ctx, uuid.New().String(), low, high, s.now())
	if err != nil {
		return nil, apperr.Dependency("failed to open chat thread", err)
	}
	return thread, nil
}

// OpenThread returns the transcript between userID and peerID, creating the
// thread on first use. The pair must be connected.
func (s *ChatService) OpenThread(ctx context.Context, userID, peerID string) (*models.Transcript, error) {
	if peerID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "target user is required")
	}
	if err := s.gate.Authorize(ctx, userID, peerID); err != nil {
		return nil, err
	}

	thread, err := s.thread(ctx, userID, peerID)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, thread.ID)
	if err != nil {
		return nil, apperr.Dependency("failed to load messages", err)
	}
	return &models.Transcript{Thread: *thread, Messages: messages}, nil
}

// SendMessage appends a message to the pair's thread and publishes it to the
// room. Append and publish happen under the room lock, so subscribers see
// messages in stored order.
func (s *ChatService) SendMessage(ctx context.Context, senderID, peerID, text string) (*models.Message, error) {
	if peerID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "target user is required")
	}
	if err := s.gate.Authorize(ctx, senderID, peerID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, apperr.ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return nil, apperr.Validation(apperr.CodeMessageTooLong,
			fmt.Sprintf("message exceeds %d characters", MaxMessageRunes))
	}

	thread, err := s.thread(ctx, senderID, peerID)
	if err != nil {
		return nil, err
	}

	senderName := senderID
	if p, err := s.users.GetProfile(ctx, senderID); err == nil {
		senderName = p.DisplayName
	}

	msg := &models.Message{
		ThreadID:   thread.ID,
		SenderID:   senderID,
		SenderName: senderName,
		Text:       text,
	}
	room := RoomKey(senderID, peerID)
	err = s.hub.WithRoomLock(room, func() error {
		if err := s.store.AppendMessage(ctx, msg); err != nil {
			return apperr.Dependency("failed to store message", err)
		}
		s.hub.Publish(room, WSMessage{Type: EventMessageReceived, RoomID: room, Message: msg})
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().Str("room_id", room).Str("sender_id", senderID).Int64("message_id", msg.ID).Msg("Message sent")
	return msg, nil
}

// ErrSessionClosed is returned when a room is joined by a session that already ended
var ErrSessionClosed = errors.New("websocket session closed")

// JoinRoom subscribes a live session to the room it shares with peerID.
// Joining grants no access: sends are still authorized individually.
func (s *ChatService) JoinRoom(c *Client, peerID string) (string, error) {
	if peerID == "" || peerID == c.UserID {
		return "", apperr.Validation(apperr.CodeInvalidInput, "a different target user is required")
	}
	room := RoomKey(c.UserID, peerID)
	if !s.hub.Join(c, room) {
		return "", apperr.Dependency("failed to join chat room", ErrSessionClosed)
	}
	log.Debug().Str("room_id", room).Str("user_id", c.UserID).Msg("Joined chat room")
	return room, nil
}

// LeaveRoom unsubscribes a live session from the room it shares with peerID
func (s *ChatService) LeaveRoom(c *Client, peerID string) (string, error) {
	if peerID == "" {
		return "", apperr.Validation(apperr.CodeInvalidInput, "target user is required")
	}
	room := RoomKey(c.UserID, peerID)
	s.hub.Leave(c, room)
	return room, nil
}
