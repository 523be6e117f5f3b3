package handlers

import (
	"errors"
	"io"
	"net/http"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/middleware"
	"devlink-backend/internal/models"
	"devlink-backend/internal/services"

	"github.com/rs/zerolog/log"
)

const (
	signatureHeader = "X-Razorpay-Signature"
	eventIDHeader   = "X-Razorpay-Event-Id"
)

// PaymentHandler handles membership payment HTTP requests
type PaymentHandler struct {
	payments *services.PaymentService
}

// NewPaymentHandler creates a new payment handler
func NewPaymentHandler(payments *services.PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

// CreatePaymentRequest represents the request body for creating a payment
type CreatePaymentRequest struct {
	MembershipType models.Tier `json:"membershipType" validate:"required"`
}

// CreatePayment handles POST /api/v1/payment/create
func (h *PaymentHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreatePaymentRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, err)
		return
	}

	intent, err := h.payments.CreateIntent(ctx, middleware.GetUserID(ctx), req.MembershipType)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, intent)
}

// VerifyPremium handles GET /api/v1/premium/verify
func (h *PaymentHandler) VerifyPremium(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ent, err := h.payments.CheckEntitlement(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ent)
}

// Webhook handles POST /api/v1/payment/webhook. The provider retries on any
// non-2xx answer, so only failures a retry could fix return 5xx.
func (h *PaymentHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		respondError(w, apperr.Validation(apperr.CodeInvalidPayload, "unreadable webhook body"))
		return
	}

	result, err := h.payments.ReconcileWebhook(r.Context(), body, r.Header.Get(signatureHeader), r.Header.Get(eventIDHeader))
	if err != nil {
		if errors.Is(err, apperr.ErrUnknownOrder) {
			log.Warn().Str("event_id", r.Header.Get(eventIDHeader)).Msg("Webhook for unknown order ignored")
			respondJSON(w, http.StatusOK, map[string]any{"ignored": true})
			return
		}
		if apperr.KindOf(err) == apperr.KindIntegrity {
			log.Warn().Str("remote_addr", r.RemoteAddr).Msg("Rejected webhook with invalid signature")
		}
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}
