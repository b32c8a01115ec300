package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-social-api/internal/dto"
	"github.com/noah-isme/gema-social-api/internal/repository"
)

// ErrUserNotFound indicates the referenced user does not exist.
var ErrUserNotFound = errors.New("user not found")

// UserDirectory returns the public summary of users referenced in payloads.
type UserDirectory interface {
	Summary(ctx context.Context, userID uint) (dto.UserSummary, error)
	Summaries(ctx context.Context, userIDs []uint) ([]dto.UserSummary, error)
}

type userDirectory struct {
	users    repository.UserRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewUserDirectory constructs a directory. A nil cache disables caching.
func NewUserDirectory(users repository.UserRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) UserDirectory {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &userDirectory{
		users:    users,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "user_directory").Logger(),
	}
}

func (d *userDirectory) Summary(ctx context.Context, userID uint) (dto.UserSummary, error) {
	cacheKey := userSummaryKey(userID)

	if d.cache != nil {
		if cached, err := d.cache.Get(ctx, cacheKey).Result(); err == nil {
			var summary dto.UserSummary
			if unmarshalErr := json.Unmarshal([]byte(cached), &summary); unmarshalErr == nil {
				d.logger.Debug().Uint("user_id", userID).Msg("user summary cache hit")
				return summary, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			d.logger.Warn().Err(err).Msg("failed to read user summary cache")
		}
	}

	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.UserSummary{}, ErrUserNotFound
		}
		return dto.UserSummary{}, fmt.Errorf("load user %d: %w", userID, err)
	}

	summary := dto.NewUserSummary(user)
	d.store(ctx, summary)
	return summary, nil
}

// Summaries preserves the order of userIDs and skips ids that no longer exist.
func (d *userDirectory) Summaries(ctx context.Context, userIDs []uint) ([]dto.UserSummary, error) {
	if len(userIDs) == 0 {
		return []dto.UserSummary{}, nil
	}

	users, err := d.users.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	byID := make(map[uint]dto.UserSummary, len(users))
	for _, user := range users {
		byID[user.ID] = dto.NewUserSummary(user)
	}

	result := make([]dto.UserSummary, 0, len(userIDs))
	for _, id := range userIDs {
		if summary, ok := byID[id]; ok {
			result = append(result, summary)
		}
	}
	return result, nil
}

func (d *userDirectory) store(ctx context.Context, summary dto.UserSummary) {
	if d.cache == nil {
		return
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, userSummaryKey(summary.ID), payload, d.cacheTTL).Err(); err != nil {
		d.logger.Warn().Err(err).Msg("failed to store user summary cache")
	}
}

func userSummaryKey(userID uint) string {
	return fmt.Sprintf("users:summary:%d", userID)
}
