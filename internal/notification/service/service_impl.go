package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/tradeboard/internal/clock"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Redis *redis.Client `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	redis *redis.Client
}

func NewService(p Params) notificationdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("notification.service"),
		genID: p.GenID,
		clock: p.Clock,
		redis: p.Redis,
	}
}

func (s *Service) CreateTx(ctx context.Context, tx *gorm.DB, in notificationdomain.CreateInput) (*notificationdomain.Notification, error) {
	if tx == nil {
		tx = s.db
	}
	if in.UserID == 0 {
		return nil, notificationdomain.ErrInvalidUser
	}
	if !in.Type.Valid() {
		return nil, notificationdomain.ErrInvalidType
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, notificationdomain.ErrInvalidTitle
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return nil, notificationdomain.ErrInvalidMessage
	}

	n := &notificationdomain.Notification{
		ID:               s.genID.Generate(),
		UserID:           in.UserID,
		Title:            title,
		Message:          message,
		NotificationType: in.Type,
		Link:             strings.TrimSpace(in.Link),
		IsRead:           false,
		CreatedAt:        s.now(),
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		return nil, err
	}
	return n, nil
}

// Publish fans notifications out to their user channels. Failures are logged only.
func (s *Service) Publish(ctx context.Context, notifications ...*notificationdomain.Notification) {
	if s.redis == nil {
		return
	}
	for _, n := range notifications {
		if n == nil {
			continue
		}
		payload, err := json.Marshal(n)
		if err != nil {
			s.log.Warn("failed to encode notification", zap.Error(err))
			continue
		}
		if err := s.redis.Publish(ctx, notificationdomain.UserChannel(n.UserID), payload).Err(); err != nil {
			s.log.Warn("failed to publish notification",
				zap.String("notification_id", n.ID.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *Service) PublishRatingEvent(ctx context.Context, evt notificationdomain.RatingEvent) {
	if s.redis == nil {
		return
	}
	if evt.EventID == "" {
		evt.EventID = ulid.Make().String()
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = s.now()
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		s.log.Warn("failed to encode rating event", zap.Error(err))
		return
	}
	if err := s.redis.Publish(ctx, notificationdomain.RatingEventsChannel, payload).Err(); err != nil {
		s.log.Warn("failed to publish rating event",
			zap.String("user_id", evt.UserID),
			zap.String("type", string(evt.Type)),
			zap.Error(err),
		)
	}
}

func (s *Service) List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]notificationdomain.Notification, pagination.PageInfo, error) {
	if userID == 0 {
		return nil, pagination.PageInfo{}, notificationdomain.ErrInvalidUser
	}
	beforeID, err := page.BeforeID()
	if err != nil {
		return nil, pagination.PageInfo{}, err
	}
	limit := page.Size()

	query := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit + 1)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var rows []notificationdomain.Notification
	if err := query.Find(&rows).Error; err != nil {
		return nil, pagination.PageInfo{}, err
	}
	rows, info := pagination.Trim(rows, limit, func(n notificationdomain.Notification) int64 {
		return n.ID.Int64()
	})
	return rows, info, nil
}

func (s *Service) UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, notificationdomain.ErrInvalidUser
	}
	var count int64
	err := s.db.WithContext(ctx).
		Model(&notificationdomain.Notification{}).
		Where("user_id = ? AND is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (s *Service) MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error) {
	if userID == 0 {
		return 0, notificationdomain.ErrInvalidUser
	}
	result := s.db.WithContext(ctx).Exec(
		`UPDATE notifications SET is_read = ? WHERE user_id = ? AND is_read = ?`,
		true,
		userID,
		false,
	)
	return result.RowsAffected, result.Error
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now().UTC()
}
