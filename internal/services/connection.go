package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/models"
	"devlink-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ConnectionStore persists connection requests
type ConnectionStore interface {
	Create(ctx context.Context, req *models.ConnectionRequest) error
	Review(ctx context.Context, requestID, reviewerID string, decision models.RequestStatus, now time.Time) (*models.ConnectionRequest, error)
	ListIncoming(ctx context.Context, userID string) ([]*models.ConnectionRequest, error)
	ListAcceptedPeerIDs(ctx context.Context, userID string) ([]string, error)
	HasAccepted(ctx context.Context, userA, userB string) (bool, error)
	ListPendingRecipients(ctx context.Context, from, to time.Time) ([]string, error)
}

// ConnectionService owns the connection request state machine
type ConnectionService struct {
	store    ConnectionStore
	users    *UserService
	notifier Notifier
	now      func() time.Time
}

// NewConnectionService creates a new connection service. notifier may be nil.
func NewConnectionService(store ConnectionStore, users *UserService, notifier Notifier) *ConnectionService {
	return &ConnectionService{
		store:    store,
		users:    users,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// CreateRequest records fromID's interest (or disinterest) in toID.
// At most one request exists per unordered pair, whichever side sent it.
func (s *ConnectionService) CreateRequest(ctx context.Context, fromID, toID string, status models.RequestStatus) (*models.ConnectionRequest, error) {
	if !status.IsInitial() {
		return nil, apperr.Validation(apperr.CodeInvalidStatus, fmt.Sprintf("invalid status type: %s", status))
	}
	if toID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "target user is required")
	}
	if fromID == toID {
		return nil, apperr.ErrSelfReference
	}

	exists, err := s.users.UserExists(ctx, toID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.ErrInvalidTarget
	}

	now := s.now()
	req := &models.ConnectionRequest{
		ID:         uuid.New().String(),
		FromUserID: fromID,
		ToUserID:   toID,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.Create(ctx, req); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperr.ErrDuplicateRequest
		}
		return nil, apperr.Dependency("failed to create connection request", err)
	}

	log.Info().
		Str("request_id", req.ID).
		Str("from_user_id", fromID).
		Str("to_user_id", toID).
		Str("status", string(status)).
		Msg("Connection request created")

	s.notifyCreated(ctx, req)
	return req, nil
}

func (s *ConnectionService) notifyCreated(ctx context.Context, req *models.ConnectionRequest) {
	if s.notifier == nil {
		return
	}
	sender := req.FromUserID
	if p, err := s.users.GetProfile(ctx, req.FromUserID); err == nil {
		sender = p.DisplayName
	}
	NotifyAsync(s.notifier, req.ToUserID,
		"A new connection request from "+sender,
		fmt.Sprintf("%s marked you as %s.", sender, req.Status),
	)
}

// ReviewRequest lets the recipient of an interested request accept or reject it.
// Anything else, including a second review, is NotFound.
func (s *ConnectionService) ReviewRequest(ctx context.Context, reviewerID, requestID string, decision models.RequestStatus) (*models.ConnectionRequest, error) {
	if !decision.IsDecision() {
		return nil, apperr.Validation(apperr.CodeInvalidStatus, fmt.Sprintf("invalid status type: %s", decision))
	}
	if requestID == "" {
		return nil, apperr.Validation(apperr.CodeInvalidInput, "request id is required")
	}

	req, err := s.store.Review(ctx, requestID, reviewerID, decision, s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrNotFound
		}
		return nil, apperr.Dependency("failed to review connection request", err)
	}

	log.Info().
		Str("request_id", req.ID).
		Str("reviewer_id", reviewerID).
		Str("status", string(req.Status)).
		Msg("Connection request reviewed")
	return req, nil
}

// ListIncoming returns pending requests addressed to userID with sender profiles
func (s *ConnectionService) ListIncoming(ctx context.Context, userID string) ([]models.IncomingRequest, error) {
	rows, err := s.store.ListIncoming(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency("failed to list requests", err)
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.FromUserID)
	}
	profiles, err := s.users.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	result := make([]models.IncomingRequest, 0, len(rows))
	for _, r := range rows {
		from, ok := profiles[r.FromUserID]
		if !ok {
			from = models.PublicProfile{ID: r.FromUserID}
		}
		result = append(result, models.IncomingRequest{ConnectionRequest: *r, From: from})
	}
	return result, nil
}

// ListAcceptedPeers returns the profiles of every user connected with userID
func (s *ConnectionService) ListAcceptedPeers(ctx context.Context, userID string) ([]models.PublicProfile, error) {
	ids, err := s.store.ListAcceptedPeerIDs(ctx, userID)
	if err != nil {
		return nil, apperr.Dependency("failed to list connections", err)
	}
	profiles, err := s.users.GetProfiles(ctx, ids)
	if err != nil {
		return nil, err
	}

	peers := make([]models.PublicProfile, 0, len(ids))
	for _, id := range ids {
		if p, ok := profiles[id]; ok {
			peers = append(peers, p)
		}
	}
	return peers, nil
}

// AcceptanceChecker answers whether two users are connected
type AcceptanceChecker interface {
	HasAccepted(ctx context.Context, userA, userB string) (bool, error)
}

// ChatGate decides whether two users may exchange messages.
// It reads the ledger on every call and keeps no state.
type ChatGate struct {
	ledger AcceptanceChecker
}

// NewChatGate creates a chat gate over the connection ledger
func NewChatGate(ledger AcceptanceChecker) *ChatGate {
	return &ChatGate{ledger: ledger}
}

// CanChat reports whether an accepted request exists between a and b
func (g *ChatGate) CanChat(ctx context.Context, a, b string) (bool, error) {
	if a == "" || b == "" || a == b {
		return false, nil
	}
	ok, err := g.ledger.HasAccepted(ctx, a, b)
	if err != nil {
		return false, apperr.Dependency("failed to check connection", err)
	}
	return ok, nil
}

// Authorize returns ErrUnauthorized unless a and b may chat
func (g *ChatGate) Authorize(ctx context.Context, a, b string) error {
	ok, err := g.CanChat(ctx, a, b)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrUnauthorized
	}
	return nil
}
