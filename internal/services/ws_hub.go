package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/models"

	"github.com/rs/zerolog/log"
)

// Socket event types
const (
	EventJoinChat        = "join_chat"
	EventLeaveChat       = "leave_chat"
	EventSendMessage     = "send_message"
	EventJoined          = "joined"
	EventLeft            = "left"
	EventMessageReceived = "message_received"
	EventError           = "error"
)

// DefaultSendBuffer is the outbound queue size of a socket session
const DefaultSendBuffer = 64

// WSMessage represents a WebSocket message in either direction
type WSMessage struct {
	Type         string          `json:"type"`
	TargetUserID string          `json:"target_user_id,omitempty"`
	Text         string          `json:"text,omitempty"`
	RoomID       string          `json:"room_id,omitempty"`
	Message      *models.Message `json:"message,omitempty"`
	Kind         apperr.Kind     `json:"kind,omitempty"`
	Code         apperr.Code     `json:"code,omitempty"`
	Error        string          `json:"error,omitempty"`
}

// ErrorEvent builds the error event sent to a socket for err
func ErrorEvent(err error) WSMessage {
	return WSMessage{
		Type:  EventError,
		Kind:  apperr.KindOf(err),
		Code:  apperr.CodeOf(err),
		Error: apperr.PublicMessage(err),
	}
}

// RoomKey derives the room identifier for an unordered pair of users.
// Both participants compute the same key regardless of argument order.
func RoomKey(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	sum := sha256.Sum256([]byte(strings.Join(ids, "_")))
	return hex.EncodeToString(sum[:])
}

// Client is one live socket session
type Client struct {
	UserID string

	send   chan []byte
	mu     sync.Mutex
	rooms  map[string]struct{}
	closed bool
}

// NewClient creates a session with a bounded outbound queue
func NewClient(userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Client{
		UserID: userID,
		send:   make(chan []byte, buffer),
		rooms:  make(map[string]struct{}),
	}
}

// Outbound is drained by the connection's write pump; it is closed when the
// session is unregistered.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Enqueue queues data without blocking. It returns false when the queue is
// full or the session is gone.
func (c *Client) Enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// SendEvent marshals and enqueues an event
func (c *Client) SendEvent(msg WSMessage) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return false
	}
	return c.Enqueue(data)
}

// closeLocked closes the outbound queue once. c.mu must be held.
func (c *Client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// WSHub is the in-process registry of chat rooms and their live subscribers
type WSHub struct {
	mu      sync.RWMutex
	rooms   map[string]map[*Client]struct{}
	clients map[*Client]struct{}

	locksMu sync.Mutex
	locks   map[string]*roomLock
}

// roomLock is an ordering lock shared by every sender currently in a room.
// refs counts holders and waiters; the entry is dropped when it reaches zero.
type roomLock struct {
	mu   sync.Mutex
	refs int
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		rooms:   make(map[string]map[*Client]struct{}),
		clients: make(map[*Client]struct{}),
		locks:   make(map[string]*roomLock),
	}
}

// Register tracks a session so Shutdown can close it
func (h *WSHub) Register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	log.Info().Str("user_id", c.UserID).Msg("WebSocket connection registered")
}

// Unregister leaves every room the session joined and closes its queue
func (h *WSHub) Unregister(c *Client) {
	h.mu.Lock()
	c.mu.Lock()
	for key := range c.rooms {
		h.removeLocked(key, c)
	}
	c.rooms = make(map[string]struct{})
	c.closeLocked()
	c.mu.Unlock()
	delete(h.clients, c)
	h.mu.Unlock()

	log.Info().Str("user_id", c.UserID).Msg("WebSocket connection unregistered")
}

// Join subscribes c to room key. A closed session is never subscribed.
func (h *WSHub) Join(c *Client, key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.rooms[key] = struct{}{}

	subs, ok := h.rooms[key]
	if !ok {
		subs = make(map[*Client]struct{})
		h.rooms[key] = subs
	}
	subs[c] = struct{}{}
	return true
}

// Leave unsubscribes c from room key
func (h *WSHub) Leave(c *Client, key string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c.mu.Lock()
	delete(c.rooms, key)
	c.mu.Unlock()
	h.removeLocked(key, c)
}

func (h *WSHub) removeLocked(key string, c *Client) {
	subs, ok := h.rooms[key]
	if !ok {
		return
	}
	delete(subs, c)
	if len(subs) == 0 {
		delete(h.rooms, key)
	}
}

// Subscribers returns the number of sessions joined to key
func (h *WSHub) Subscribers(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[key])
}

// Publish delivers msg to every current subscriber of key and returns the
// number of sessions it was queued for. Sessions with a full queue miss it.
func (h *WSHub) Publish(key string, msg WSMessage) int {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("room_id", key).Msg("Failed to marshal room event")
		return 0
	}

	h.mu.RLock()
	subs := make([]*Client, 0, len(h.rooms[key]))
	for c := range h.rooms[key] {
		subs = append(subs, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range subs {
		if c.Enqueue(data) {
			delivered++
			continue
		}
		log.Warn().Str("room_id", key).Str("user_id", c.UserID).Msg("Dropped room event for slow subscriber")
	}
	return delivered
}

// WithRoomLock runs fn while holding the ordering lock of room key.
func (h *WSHub) WithRoomLock(key string, fn func() error) error {
	h.locksMu.Lock()
	lock, ok := h.locks[key]
	if !ok {
		lock = &roomLock{}
		h.locks[key] = lock
	}
	lock.refs++
	h.locksMu.Unlock()

	defer func() {
		h.locksMu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(h.locks, key)
		}
		h.locksMu.Unlock()
	}()

	lock.mu.Lock()
	defer lock.mu.Unlock()
	return fn()
}

// roomLocks returns the number of rooms with a live ordering lock
func (h *WSHub) roomLocks() int {
	h.locksMu.Lock()
	defer h.locksMu.Unlock()
	return len(h.locks)
}

// Shutdown closes every registered session
func (h *WSHub) Shutdown() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.Unregister(c)
	}
	log.Info().Int("sessions", len(clients)).Msg("WebSocket hub closed")
}
