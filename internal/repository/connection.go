package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicate is returned when a uniqueness rule rejects an insert
var ErrDuplicate = errors.New("duplicate record")

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// ConnectionRepository handles database operations for connection requests
type ConnectionRepository struct {
	db *pgxpool.Pool
}

// NewConnectionRepository creates a new connection request repository
func NewConnectionRepository(db *pgxpool.Pool) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

const requestColumns = `id, from_user_id, to_user_id, status, created_at, updated_at`

func scanRequest(row pgx.Row) (*models.ConnectionRequest, error) {
	var req models.ConnectionRequest
	var status string
	if err := row.Scan(&req.ID, &req.FromUserID, &req.ToUserID, &status, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return nil, err
	}
	req.Status = models.RequestStatus(status)
	return &req, nil
}

// Create inserts a request unless a row already exists for the unordered pair.
// The check runs in the same transaction as the insert; the pair index
// rejects whichever of two concurrent inserts commits second.
func (r *ConnectionRepository) Create(ctx context.Context, req *models.ConnectionRequest) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		existsQuery := `
			SELECT EXISTS(
				SELECT 1 FROM connection_requests
				WHERE (from_user_id = $1 AND to_user_id = $2)
				   OR (from_user_id = $2 AND to_user_id = $1)
			)
		`
		var exists bool
		if err := tx.QueryRow(ctx, existsQuery, req.FromUserID, req.ToUserID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check existing request: %w", err)
		}
		if exists {
			return ErrDuplicate
		}

		insertQuery := `
			INSERT INTO connection_requests (id, from_user_id, to_user_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		_, err := tx.Exec(ctx, insertQuery,
			req.ID, req.FromUserID, req.ToUserID, string(req.Status), req.CreatedAt, req.UpdatedAt,
		)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrDuplicate) || isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create connection request: %w", err)
	}
	return nil
}

// Review moves an interested request addressed to reviewer to decision.
// Returns ErrNotFound when no such request is pending.
func (r *ConnectionRepository) Review(ctx context.Context, requestID, reviewerID string, decision models.RequestStatus, now time.Time) (*models.ConnectionRequest, error) {
	query := `
		UPDATE connection_requests
		SET status = $4, updated_at = $5
		WHERE id = $1 AND to_user_id = $2 AND status = $3
		RETURNING ` + requestColumns
	req, err := scanRequest(r.db.QueryRow(ctx, query,
		requestID, reviewerID, string(models.StatusInterested), string(decision), now,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to review connection request: %w", err)
	}
	return req, nil
}

// ListIncoming retrieves interested requests addressed to userID, newest first
func (r *ConnectionRepository) ListIncoming(ctx context.Context, userID string) ([]*models.ConnectionRequest, error) {
	query := `
		SELECT ` + requestColumns + `
		FROM connection_requests
		WHERE to_user_id = $1 AND status = $2
		ORDER BY created_at DESC
	`
	rows, err := r.db.Query(ctx, query, userID, string(models.StatusInterested))
	if err != nil {
		return nil, fmt.Errorf("failed to list incoming requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ConnectionRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan connection request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating connection requests: %w", err)
	}
	return requests, nil
}

// ListAcceptedPeerIDs returns the other endpoint of every accepted request involving userID
func (r *ConnectionRepository) ListAcceptedPeerIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT CASE WHEN from_user_id = $1 THEN to_user_id ELSE from_user_id END
		FROM connection_requests
		WHERE status = $2 AND (from_user_id = $1 OR to_user_id = $1)
		ORDER BY updated_at DESC
	`
	return r.collectIDs(ctx, query, userID, string(models.StatusAccepted))
}

// HasAccepted checks whether an accepted request exists for the unordered pair
func (r *ConnectionRepository) HasAccepted(ctx context.Context, userA, userB string) (bool, error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM connection_requests
			WHERE status = $3
			  AND ((from_user_id = $1 AND to_user_id = $2) OR (from_user_id = $2 AND to_user_id = $1))
		)
	`
	var ok bool
	if err := r.db.QueryRow(ctx, query, userA, userB, string(models.StatusAccepted)).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check connection: %w", err)
	}
	return ok, nil
}

// ListPendingRecipients returns users that received interested requests in [from, to)
func (r *ConnectionRepository) ListPendingRecipients(ctx context.Context, from, to time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT to_user_id
		FROM connection_requests
		WHERE status = $1 AND created_at >= $2 AND created_at < $3
	`
	return r.collectIDs(ctx, query, string(models.StatusInterested), from, to)
}

func (r *ConnectionRepository) collectIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating user ids: %w", err)
	}
	return ids, nil
}
