package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"gorm.io/gorm"
)

const RatingEventsChannel = "rating_events"

func UserChannel(userID snowflake.ID) string {
	return fmt.Sprintf("user_notifications:%s", userID.String())
}

type Service interface {
	// CreateTx persists inside the caller's transaction. Call Publish after commit.
	CreateTx(ctx context.Context, tx *gorm.DB, in CreateInput) (*Notification, error)
	Publish(ctx context.Context, notifications ...*Notification)
	PublishRatingEvent(ctx context.Context, evt RatingEvent)
	List(ctx context.Context, userID snowflake.ID, page pagination.Pagination) ([]Notification, pagination.PageInfo, error)
	UnreadCount(ctx context.Context, userID snowflake.ID) (int64, error)
	MarkAllRead(ctx context.Context, userID snowflake.ID) (int64, error)
}

var (
	ErrInvalidUser    = errors.New("invalid_user")
	ErrInvalidType    = errors.New("invalid_notification_type")
	ErrInvalidTitle   = errors.New("invalid_title")
	ErrInvalidMessage = errors.New("invalid_message")
)
