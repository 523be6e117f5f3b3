package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRazorpayCreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var req OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, int64(79900), req.Amount)
		assert.Equal(t, "Silver", req.Notes["membershipType"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_9","amount":79900,"currency":"INR","receipt":"r1","status":"created"}`))
	}))
	defer srv.Close()

	client := NewRazorpayClient(srv.URL+"/", "key", "secret")
	order, err := client.CreateOrder(context.Background(), OrderRequest{
		Amount: 79900, Currency: "INR", Receipt: "r1",
		Notes: map[string]string{"membershipType": "Silver"},
	})
	require.NoError(t, err)
	assert.Equal(t, "order_9", order.ID)
	assert.Equal(t, "created", order.Status)
	assert.Equal(t, "key", client.KeyID())
}

func TestRazorpayCreateOrderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR"}}`))
	}))
	defer srv.Close()

	_, err := NewRazorpayClient(srv.URL, "key", "bad").CreateOrder(context.Background(), OrderRequest{Amount: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestVerifyWebhookSignature(t *testing.T) {
	body := []byte(`{"event":"payment.captured"}`)
	sig := SignWebhookPayload(body, "s3cret")

	assert.True(t, VerifyWebhookSignature(body, sig, "s3cret"))
	assert.True(t, VerifyWebhookSignature(body, " "+sig+" ", "s3cret"))
	assert.False(t, VerifyWebhookSignature(body, sig, "other"))
	assert.False(t, VerifyWebhookSignature(append(body, ' '), sig, "s3cret"))
	assert.False(t, VerifyWebhookSignature(body, "", "s3cret"))
	assert.False(t, VerifyWebhookSignature(body, sig, ""))
	assert.False(t, VerifyWebhookSignature(body, "zz", "s3cret"))
}
