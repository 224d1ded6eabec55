package service

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
)

type notificationStore interface {
	List(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, userID string, ids []string) error
	MarkAllRead(ctx context.Context, userID string) error
}

// NotificationService exposes a principal's notification inbox. The unread
// counter is cached in Redis since clients poll it on every page load.
type NotificationService struct {
	store    notificationStore
	cache    *redis.Client
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewNotificationService constructs the service. The cache client may be nil.
func NewNotificationService(store notificationStore, cache *redis.Client, cacheTTL time.Duration, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 30 * time.Second
	}
	return &NotificationService{store: store, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// List returns the actor's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor *models.JWTClaims, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	notifications, err := s.store.List(ctx, actor.UserID, unreadOnly, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}
	return notifications, nil
}

// CountUnread returns the actor's unread badge count, served from cache when
// fresh.
func (s *NotificationService) CountUnread(ctx context.Context, actor *models.JWTClaims) (int, error) {
	if actor == nil {
		return 0, appErrors.ErrUnauthorized
	}
	key := unreadCacheKey(actor.UserID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			if count, convErr := strconv.Atoi(cached); convErr == nil {
				return count, nil
			}
		}
	}

	count, err := s.store.CountUnread(ctx, actor.UserID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count notifications")
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, key, strconv.Itoa(count), s.cacheTTL).Err(); err != nil {
			s.logger.Warn("failed to cache unread count", zap.Error(err))
		}
	}
	return count, nil
}

// MarkRead flips the selected notifications (or all of them) to read and
// invalidates the cached badge.
func (s *NotificationService) MarkRead(ctx context.Context, req dto.MarkReadPayload, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if !req.MarkAll && len(req.IDs) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "provide ids or mark_all")
	}

	var err error
	if req.MarkAll {
		err = s.store.MarkAllRead(ctx, actor.UserID)
	} else {
		err = s.store.MarkRead(ctx, actor.UserID, req.IDs)
	}
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}

	if s.cache != nil {
		if err := s.cache.Del(ctx, unreadCacheKey(actor.UserID)).Err(); err != nil {
			s.logger.Warn("failed to invalidate unread count cache", zap.Error(err))
		}
	}
	return nil
}

func unreadCacheKey(userID string) string {
	return "notifications:unread:" + userID
}
