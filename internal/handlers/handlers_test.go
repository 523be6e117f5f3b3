package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"devlink-backend/internal/models"
	"devlink-backend/internal/repository/memstore"
	"devlink-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testJWTSecret     = "jwt-secret"
	testWebhookSecret = "hook-secret"
)

type stubOrders struct{ n int }

func (s *stubOrders) CreateOrder(_ context.Context, req services.OrderRequest) (*services.Order, error) {
	s.n++
	return &services.Order{ID: fmt.Sprintf("order_%d", s.n), Amount: req.Amount, Currency: req.Currency, Receipt: req.Receipt, Status: "created"}, nil
}

type testServer struct {
	*httptest.Server
	users *services.UserService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	userStore := memstore.NewUsers(
		&models.User{ID: "alice", FirstName: "Alice", Email: "alice@example.com"},
		&models.User{ID: "bob", FirstName: "Bob", Email: "bob@example.com"},
		&models.User{ID: "carol", FirstName: "Carol", Email: "carol@example.com"},
	)
	ledger := memstore.NewConnections()
	users := services.NewUserService(userStore, nil, nil, testJWTSecret)
	hub := services.NewWSHub()

	svc := Services{
		Users:       users,
		Connections: services.NewConnectionService(ledger, users, nil),
		Chat:        services.NewChatService(services.NewChatGate(ledger), memstore.NewChats(), users, hub),
		Payments: services.NewPaymentService(memstore.NewPayments(userStore), users, &stubOrders{},
			"rzp_key", "INR", testWebhookSecret),
		Hub: hub,
	}
	srv := httptest.NewServer(NewRouter(svc, nil))
	t.Cleanup(func() {
		hub.Shutdown()
		srv.Close()
	})
	return &testServer{Server: srv, users: users}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := s.users.GenerateJWT(userID)
	require.NoError(t, err)
	return tok
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) (int, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case []byte:
		reader = bytes.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(t, userID))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func (s *testServer) connect(t *testing.T, from, to string) {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "/api/v1/request/send/interested/"+to, from, nil)
	require.Equal(t, http.StatusCreated, status)
	id := body["data"].(map[string]any)["id"].(string)
	status, _ = s.do(t, http.MethodPost, "/api/v1/request/review/accepted/"+id, to, nil)
	require.Equal(t, http.StatusOK, status)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok", body["status"])
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	status, body := s.do(t, http.MethodGet, "/api/v1/user/connections", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "INVALID_TOKEN", errorCode(body))
}

func TestSendRequestErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"bad status", "/api/v1/request/send/accepted/bob", http.StatusBadRequest, "INVALID_STATUS"},
		{"self", "/api/v1/request/send/interested/alice", http.StatusBadRequest, "SELF_REFERENCE"},
		{"unknown user", "/api/v1/request/send/interested/zed", http.StatusNotFound, "INVALID_TARGET"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, tt.path, "alice", nil)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, errorCode(body))
		})
	}
}

func TestConnectionFlow(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/request/send/interested/bob", "alice", nil)
	require.Equal(t, http.StatusCreated, status)
	assert.Contains(t, body["message"], "Bob")
	id := body["data"].(map[string]any)["id"].(string)

	status, body = s.do(t, http.MethodPost, "/api/v1/request/send/interested/alice", "bob", nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE_REQUEST", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/user/requests/received", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	received := body["data"].([]any)
	require.Len(t, received, 1)
	assert.Equal(t, "Alice", received[0].(map[string]any)["from"].(map[string]any)["display_name"])

	status, _ = s.do(t, http.MethodPost, "/api/v1/request/review/accepted/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, status, "sender cannot review")

	status, _ = s.do(t, http.MethodPost, "/api/v1/request/review/accepted/"+id, "bob", nil)
	assert.Equal(t, http.StatusOK, status)

	status, _ = s.do(t, http.MethodPost, "/api/v1/request/review/rejected/"+id, "bob", nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/api/v1/user/connections", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	peers := body["data"].([]any)
	require.Len(t, peers, 1)
	assert.Equal(t, "bob", peers[0].(map[string]any)["id"])
}

func TestChatHTTP(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/api/v1/chat/bob", "alice", nil)
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "UNAUTHORIZED", errorCode(body))

	s.connect(t, "alice", "bob")

	status, body = s.do(t, http.MethodPost, "/api/v1/chat/bob/messages", "alice", map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "EMPTY_MESSAGE", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/chat/bob/messages", "alice", []byte(`{`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/chat/bob/messages", "alice", map[string]string{"text": "hello bob"})
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "Alice", body["sender_name"])

	status, body = s.do(t, http.MethodGet, "/api/v1/chat/alice", "bob", nil)
	require.Equal(t, http.StatusOK, status)
	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	assert.Equal(t, "hello bob", messages[0].(map[string]any)["text"])
}

func TestPaymentFlow(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/payment/create", "alice", map[string]string{"membershipType": "Diamond"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_TIER", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/payment/create", "alice", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_INPUT", errorCode(body))

	status, body = s.do(t, http.MethodPost, "/api/v1/payment/create", "alice", map[string]string{"membershipType": "Gold"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "rzp_key", body["key_id"])
	assert.Equal(t, float64(159900), body["amount"])
	orderID := body["order_id"].(string)

	payload := []byte(fmt.Sprintf(`{"event":"payment.captured","payload":{"payment":{"entity":{"order_id":%q,"status":"captured"}}}}`, orderID))
	webhook := func(sig string, body []byte) (int, map[string]any) {
		req, err := http.NewRequest(http.MethodPost, s.URL+"/api/v1/payment/webhook", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("X-Razorpay-Signature", sig)
		req.Header.Set("X-Razorpay-Event-Id", "evt_1")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, body = webhook("bad", payload)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SIGNATURE", errorCode(body))

	status, body = s.do(t, http.MethodGet, "/api/v1/premium/verify", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["is_premium"])

	sig := services.SignWebhookPayload(payload, testWebhookSecret)
	status, body = webhook(sig, payload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["applied"])

	status, body = webhook(sig, payload)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["duplicate"])

	status, body = s.do(t, http.MethodGet, "/api/v1/premium/verify", "alice", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_premium"])
	assert.Equal(t, "Gold", body["tier"])

	unknown := []byte(`{"payload":{"payment":{"entity":{"order_id":"order_x","status":"captured"}}}}`)
	status, body = webhook(services.SignWebhookPayload(unknown, testWebhookSecret), unknown)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["ignored"])

	for _, other := range [][]byte{
		[]byte(`{"payload":{}}`),
		[]byte(`{"event":"settlement.processed","payload":{"settlement":{"entity":{"id":"setl_1"}}}}`),
	} {
		status, body = webhook(services.SignWebhookPayload(other, testWebhookSecret), other)
		assert.Equal(t, http.StatusOK, status, string(other))
		assert.Equal(t, true, body["ignored"])
	}

	status, body = webhook("bad", []byte(`{"payload":{}}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_SIGNATURE", errorCode(body))
}

func dialWS(t *testing.T, s *testServer, userID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws?token=" + s.token(t, userID)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) services.WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg services.WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestWebSocketRejectsMissingToken(t *testing.T) {
	s := newTestServer(t)
	url := "ws" + strings.TrimPrefix(s.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocketChat(t *testing.T) {
	s := newTestServer(t)
	s.connect(t, "alice", "bob")

	alice := dialWS(t, s, "alice")
	bob := dialWS(t, s, "bob")

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventJoinChat, TargetUserID: "bob"}))
	joinedA := readWS(t, alice)
	assert.Equal(t, services.EventJoined, joinedA.Type)

	require.NoError(t, bob.WriteJSON(services.WSMessage{Type: services.EventJoinChat, TargetUserID: "alice"}))
	joinedB := readWS(t, bob)
	assert.Equal(t, joinedA.RoomID, joinedB.RoomID)

	require.NoError(t, bob.WriteJSON(services.WSMessage{Type: services.EventSendMessage, TargetUserID: "alice", Text: "hello"}))
	for _, conn := range []*websocket.Conn{alice, bob} {
		ev := readWS(t, conn)
		assert.Equal(t, services.EventMessageReceived, ev.Type)
		require.NotNil(t, ev.Message)
		assert.Equal(t, "hello", ev.Message.Text)
		assert.Equal(t, "Bob", ev.Message.SenderName)
	}

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: services.EventSendMessage, TargetUserID: "carol", Text: "hi"}))
	ev := readWS(t, alice)
	assert.Equal(t, services.EventError, ev.Type)
	assert.Equal(t, "authorization", string(ev.Kind))

	require.NoError(t, alice.WriteJSON(services.WSMessage{Type: "dance"}))
	ev = readWS(t, alice)
	assert.Equal(t, services.EventError, ev.Type)
	assert.Equal(t, "validation", string(ev.Kind))

	require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte("not json")))
	ev = readWS(t, alice)
	assert.Equal(t, services.EventError, ev.Type)
}
