package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/models"
	"devlink-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// membershipPrices are in the smallest currency unit
var membershipPrices = map[models.Tier]int64{
	models.TierSilver: 79900,
	models.TierGold:   159900,
}

// PriceOf returns the price of tier, or false for an unknown tier
func PriceOf(tier models.Tier) (int64, bool) {
	amount, ok := membershipPrices[tier]
	return amount, ok
}

// PaymentStore persists payments and applies webhook deliveries
type PaymentStore interface {
	Create(ctx context.Context, p *models.Payment) error
	ApplyDelivery(ctx context.Context, d *models.WebhookDelivery, now time.Time) (*repository.TransitionResult, error)
}

// PaymentIntent is returned to the client to open checkout
type PaymentIntent struct {
	models.Payment
	KeyID string `json:"key_id"`
}

// WebhookResult is the outcome of one webhook delivery
type WebhookResult struct {
	EventID   string               `json:"event_id"`
	OrderID   string               `json:"order_id"`
	Status    models.PaymentStatus `json:"status"`
	Applied   bool                 `json:"applied"`
	Duplicate bool                 `json:"duplicate"`
	// Ignored marks an authentic delivery that carries nothing to reconcile.
	Ignored bool `json:"ignored,omitempty"`
}

type webhookEnvelope struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// PaymentService creates payment intents and reconciles provider webhooks
type PaymentService struct {
	store         PaymentStore
	users         *UserService
	orders        OrderCreator
	keyID         string
	currency      string
	webhookSecret string
	now           func() time.Time
}

// NewPaymentService creates a new payment service
func NewPaymentService(store PaymentStore, users *UserService, orders OrderCreator, keyID, currency, webhookSecret string) *PaymentService {
	return &PaymentService{
		store:         store,
		users:         users,
		orders:        orders,
		keyID:         keyID,
		currency:      currency,
		webhookSecret: webhookSecret,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateIntent creates a provider order for tier and records it as created
func (s *PaymentService) CreateIntent(ctx context.Context, userID string, tier models.Tier) (*PaymentIntent, error) {
	amount, ok := PriceOf(tier)
	if !ok {
		return nil, apperr.Validation(apperr.CodeInvalidTier, fmt.Sprintf("invalid membership type: %s", tier))
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	notes := models.PaymentNotes{
		Tier:      tier,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Email:     user.Email,
	}
	order, err := s.orders.CreateOrder(ctx, OrderRequest{
		Amount:   amount,
		Currency: s.currency,
		Receipt:  "receipt_" + id[:8],
		Notes: map[string]string{
			"firstName":      notes.FirstName,
			"lastName":       notes.LastName,
			"email":          notes.Email,
			"membershipType": string(tier),
		},
	})
	if err != nil {
		return nil, apperr.Dependency("failed to create order", err)
	}

	now := s.now()
	payment := models.Payment{
		ID:        id,
		UserID:    userID,
		OrderID:   order.ID,
		Tier:      tier,
		Amount:    amount,
		Currency:  s.currency,
		Status:    models.PaymentCreated,
		Receipt:   order.Receipt,
		Notes:     notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, &payment); err != nil {
		return nil, apperr.Dependency("failed to store payment", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("order_id", order.ID).
		Str("tier", string(tier)).
		Int64("amount", amount).
		Msg("Payment intent created")

	return &PaymentIntent{Payment: payment, KeyID: s.keyID}, nil
}

// ReconcileWebhook verifies and applies one provider delivery. The signature
// is checked over the raw body before anything is parsed. Redeliveries of a
// settled order return Duplicate without error.
func (s *PaymentService) ReconcileWebhook(ctx context.Context, body []byte, signature, eventID string) (*WebhookResult, error) {
	if !VerifyWebhookSignature(body, signature, s.webhookSecret) {
		return nil, apperr.ErrInvalidSignature
	}

	if eventID == "" {
		sum := sha256.Sum256(body)
		eventID = hex.EncodeToString(sum[:])
	}

	// Past this point the delivery is authentic. A retry cannot change its
	// content, so unusable payloads are acknowledged instead of rejected.
	var env webhookEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		log.Warn().Err(err).Str("event_id", eventID).Msg("Ignoring undecodable webhook payload")
		return &WebhookResult{EventID: eventID, Ignored: true}, nil
	}
	entity := env.Payload.Payment.Entity
	if entity.OrderID == "" || entity.Status == "" {
		log.Info().
			Str("event_id", eventID).
			Str("event", env.Event).
			Msg("Ignoring webhook without a payment entity")
		return &WebhookResult{EventID: eventID, OrderID: entity.OrderID, Ignored: true}, nil
	}

	status := models.PaymentStatus(entity.Status)
	delivery := &models.WebhookDelivery{
		EventID:    eventID,
		OrderID:    entity.OrderID,
		Event:      env.Event,
		Status:     status,
		Payload:    body,
		ReceivedAt: s.now(),
	}

	res, err := s.store.ApplyDelivery(ctx, delivery, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrUnknownOrder
		}
		return nil, apperr.Dependency("failed to reconcile payment", err)
	}

	result := &WebhookResult{
		EventID: eventID,
		OrderID: entity.OrderID,
		Status:  res.Payment.Status,
		Applied: res.Applied,
	}
	logEvent := log.Info().
		Str("event_id", eventID).
		Str("order_id", entity.OrderID).
		Str("delivered_status", entity.Status).
		Str("status", string(res.Payment.Status))

	switch {
	case res.Applied:
		logEvent.Msg("Payment reconciled")
	case !status.IsTerminal():
		logEvent.Msg("Webhook acknowledged without transition")
	default:
		result.Duplicate = true
		logEvent.Msg("Duplicate webhook delivery ignored")
	}
	return result, nil
}

// CheckEntitlement returns the premium state of userID
func (s *PaymentService) CheckEntitlement(ctx context.Context, userID string) (*models.Entitlement, error) {
	return s.users.GetEntitlement(ctx, userID)
}
