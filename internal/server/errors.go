package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"github.com/smallbiznis/tradeboard/pkg/db"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: notFoundMessage(err),
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable), db.IsRetryableErr(err):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog feeds the request logger a type and a stable code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	} else if err != nil && payload.Type != "internal_error" {
		code = err.Error()
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, pagination.ErrInvalidPageToken):
		return true
	case isProfileValidationError(err),
		isLedgerValidationError(err),
		isAggregationValidationError(err),
		isLeaderboardValidationError(err),
		isRewardValidationError(err),
		isNotificationValidationError(err):
		return true
	default:
		return false
	}
}

func isProfileValidationError(err error) bool {
	switch {
	case errors.Is(err, profiledomain.ErrInvalidUser),
		errors.Is(err, profiledomain.ErrInvalidUsername),
		errors.Is(err, profiledomain.ErrInvalidReason),
		errors.Is(err, profiledomain.ErrCannotFollowSelf):
		return true
	default:
		return false
	}
}

func isLedgerValidationError(err error) bool {
	switch {
	case errors.Is(err, ledgerdomain.ErrInvalidUser),
		errors.Is(err, ledgerdomain.ErrInvalidReason),
		errors.Is(err, ledgerdomain.ErrInvalidEntryDate),
		errors.Is(err, ledgerdomain.ErrInvalidDateRange):
		return true
	default:
		return false
	}
}

func isAggregationValidationError(err error) bool {
	switch {
	case errors.Is(err, aggregationdomain.ErrInvalidUser),
		errors.Is(err, aggregationdomain.ErrInvalidDate),
		errors.Is(err, aggregationdomain.ErrInvalidDateRange),
		errors.Is(err, aggregationdomain.ErrRangeTooLarge),
		errors.Is(err, aggregationdomain.ErrInvalidPeriod),
		errors.Is(err, aggregationdomain.ErrInvalidTopN):
		return true
	default:
		return false
	}
}

func isLeaderboardValidationError(err error) bool {
	return errors.Is(err, leaderboarddomain.ErrUnsupportedPeriod) ||
		errors.Is(err, leaderboarddomain.ErrInvalidLimit)
}

func isRewardValidationError(err error) bool {
	switch {
	case errors.Is(err, rewarddomain.ErrInvalidPublication),
		errors.Is(err, rewarddomain.ErrInvalidUser),
		errors.Is(err, rewarddomain.ErrAuthorMismatch),
		errors.Is(err, rewarddomain.ErrInvalidName),
		errors.Is(err, rewarddomain.ErrInvalidPoints):
		return true
	default:
		return false
	}
}

func isNotificationValidationError(err error) bool {
	switch {
	case errors.Is(err, notificationdomain.ErrInvalidUser),
		errors.Is(err, notificationdomain.ErrInvalidType),
		errors.Is(err, notificationdomain.ErrInvalidTitle),
		errors.Is(err, notificationdomain.ErrInvalidMessage):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, profiledomain.ErrUsernameTaken),
		errors.Is(err, profiledomain.ErrUserConflict),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, profiledomain.ErrUserNotFound),
		errors.Is(err, profiledomain.ErrProfileNotFound),
		errors.Is(err, rewarddomain.ErrAchievementNotFound),
		errors.Is(err, aggregationdomain.ErrSnapshotNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func conflictMessage(err error) string {
	switch {
	case errors.Is(err, profiledomain.ErrUsernameTaken):
		return "username already taken"
	case errors.Is(err, profiledomain.ErrUserConflict):
		return "user id and username refer to different users"
	default:
		return "conflict"
	}
}

func notFoundMessage(err error) string {
	switch {
	case errors.Is(err, profiledomain.ErrUserNotFound),
		errors.Is(err, profiledomain.ErrProfileNotFound):
		return "profile not found"
	case errors.Is(err, rewarddomain.ErrAchievementNotFound):
		return "achievement not found"
	case errors.Is(err, aggregationdomain.ErrSnapshotNotFound):
		return "snapshot not found"
	default:
		return "not found"
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, pagination.ErrInvalidPageToken):
		return "invalid_page_token"
	case errors.Is(err, leaderboarddomain.ErrUnsupportedPeriod):
		return "unsupported_period"
	default:
		return rootCode(err)
	}
}

// rootCode unwraps to the innermost sentinel so wrapped errors keep their code.
func rootCode(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_request":
		return "request"
	case "unsupported_period":
		return "period"
	case "cannot_follow_self":
		return "user_id"
	case "publication_author_mismatch":
		return "author_id"
	case "date_range_too_large":
		return "date_to"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unsupported_period":
		return "period must be one of all, week, month"
	case "cannot_follow_self":
		return "cannot follow yourself"
	default:
		return "invalid value"
	}
}
