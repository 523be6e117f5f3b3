package repository

import (
	"context"
	"errors"
	"fmt"

	"devlink-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("record not found")

// UserRepository reads the identity projection from the users table
type UserRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, first_name, last_name, email, photo_key, push_token, is_premium, membership_tier, created_at`

func scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	var tier string
	err := row.Scan(
		&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PhotoKey,
		&user.PushToken, &user.IsPremium, &tier, &user.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.MembershipTier = models.Tier(tier)
	return &user, nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByIDs retrieves users by ID, keyed by ID. Unknown IDs are omitted.
func (r *UserRepository) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	users := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1)`
	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get users: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}
	return users, nil
}

// Exists checks if a user exists
func (r *UserRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`
	var exists bool
	if err := r.db.QueryRow(ctx, query, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// GetEntitlement reads the premium projection of a user
func (r *UserRepository) GetEntitlement(ctx context.Context, id string) (*models.Entitlement, error) {
	query := `SELECT is_premium, membership_tier FROM users WHERE id = $1`
	ent := models.Entitlement{UserID: id}
	var tier string
	if err := r.db.QueryRow(ctx, query, id).Scan(&ent.IsPremium, &tier); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get entitlement: %w", err)
	}
	ent.Tier = models.Tier(tier)
	return &ent, nil
}
