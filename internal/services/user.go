package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"devlink-backend/internal/apperr"
	"devlink-backend/internal/cache"
	"devlink-backend/internal/models"
	"devlink-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

const jwtExpDays = 7

// UserStore is the read side of the identity service's users table
type UserStore interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	GetEntitlement(ctx context.Context, id string) (*models.Entitlement, error)
}

// ProfileCache caches public profiles between requests
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*cache.Profile, bool, error)
	Set(ctx context.Context, p *cache.Profile) error
}

// AvatarResolver turns a stored photo reference into a URL clients can load
type AvatarResolver interface {
	URL(ctx context.Context, key string) (string, error)
}

// UserService exposes the identity projection and verifies access tokens
type UserService struct {
	users     UserStore
	cache     ProfileCache
	avatars   AvatarResolver
	jwtSecret string
}

// NewUserService creates a new user service. cache and avatars may be nil.
func NewUserService(users UserStore, profileCache ProfileCache, avatars AvatarResolver, jwtSecret string) *UserService {
	return &UserService{
		users:     users,
		cache:     profileCache,
		avatars:   avatars,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT signs a token for userID. Tokens are normally issued by the
// identity service; this exists for tooling and tests sharing the secret.
func (s *UserService) GenerateJWT(userID string) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the user ID
func (s *UserService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user_id not found in token")
	}

	return userID, nil
}

// GetUser returns the full identity record of a user
func (s *UserService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrInvalidTarget
		}
		return nil, apperr.Dependency("failed to load user", err)
	}
	return user, nil
}

// UserExists reports whether id refers to a known user
func (s *UserService) UserExists(ctx context.Context, id string) (bool, error) {
	ok, err := s.users.Exists(ctx, id)
	if err != nil {
		return false, apperr.Dependency("failed to check user", err)
	}
	return ok, nil
}

// GetEntitlement returns the premium projection of a user
func (s *UserService) GetEntitlement(ctx context.Context, id string) (*models.Entitlement, error) {
	ent, err := s.users.GetEntitlement(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.ErrInvalidTarget
		}
		return nil, apperr.Dependency("failed to load entitlement", err)
	}
	return ent, nil
}

// GetProfile returns the public profile of a single user
func (s *UserService) GetProfile(ctx context.Context, id string) (*models.PublicProfile, error) {
	profiles, err := s.GetProfiles(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	p, ok := profiles[id]
	if !ok {
		return nil, apperr.ErrInvalidTarget
	}
	return &p, nil
}

// GetProfiles returns public profiles keyed by user ID. Unknown IDs are omitted.
func (s *UserService) GetProfiles(ctx context.Context, ids []string) (map[string]models.PublicProfile, error) {
	cached := make(map[string]*cache.Profile, len(ids))
	var misses []string
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		if s.cache != nil {
			p, ok, err := s.cache.Get(ctx, id)
			if err != nil {
				log.Warn().Err(err).Str("user_id", id).Msg("Profile cache read failed")
			} else if ok {
				cached[id] = p
				continue
			}
		}
		misses = append(misses, id)
	}

	if len(misses) > 0 {
		users, err := s.users.GetByIDs(ctx, misses)
		if err != nil {
			return nil, apperr.Dependency("failed to load profiles", err)
		}
		for id, u := range users {
			p := &cache.Profile{ID: u.ID, DisplayName: u.DisplayName(), PhotoKey: u.PhotoKey}
			cached[id] = p
			if s.cache != nil {
				if err := s.cache.Set(ctx, p); err != nil {
					log.Warn().Err(err).Str("user_id", id).Msg("Profile cache write failed")
				}
			}
		}
	}

	profiles := make(map[string]models.PublicProfile, len(cached))
	for id, p := range cached {
		profiles[id] = models.PublicProfile{
			ID:          p.ID,
			DisplayName: p.DisplayName,
			PhotoURL:    s.photoURL(ctx, p),
		}
	}
	return profiles, nil
}

func (s *UserService) photoURL(ctx context.Context, p *cache.Profile) string {
	if s.avatars == nil || p.PhotoKey == "" {
		return ""
	}
	url, err := s.avatars.URL(ctx, p.PhotoKey)
	if err != nil {
		log.Warn().Err(err).Str("user_id", p.ID).Msg("Failed to resolve avatar")
		return ""
	}
	return url
}
