package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/pkg/db/pagination"
	"go.uber.org/zap"
)

type profileRatingResponse struct {
	UserID               snowflake.ID `json:"user_id"`
	Username             string       `json:"username"`
	Rating               int64        `json:"rating"`
	SeasonNumber         int          `json:"season_number"`
	LoginStreak          int          `json:"login_streak"`
	LastLoginStreakCheck string       `json:"last_login_streak_check,omitempty"`
}

func (s *Server) GetProfileRating(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	view, err := s.profileSvc.GetProfile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := profileRatingResponse{
		UserID:       view.UserID,
		Username:     view.Username,
		Rating:       view.RatingScore,
		SeasonNumber: view.SeasonNumber,
		LoginStreak:  view.LoginStreak,
	}
	if last := view.LastCheck(); !last.IsZero() {
		resp.LastLoginStreakCheck = last.Format(time.DateOnly)
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListRatingHistory(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	var query struct {
		pagination.Pagination
		Limit int `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if query.PageSize == 0 {
		query.PageSize = query.Limit
	}

	items, page, err := s.ledgerSvc.List(c.Request.Context(), userID, query.Pagination)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items, "page_info": page})
}

func (s *Server) ToggleFollow(c *gin.Context) {
	followeeID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	result, err := s.profileSvc.ToggleFollow(c.Request.Context(), currentUserID(c), followeeID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

type ensureUserRequest struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// EnsureUser is called by the auth collaborator whenever it creates a user.
func (s *Server) EnsureUser(c *gin.Context) {
	var req ensureUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	in := profiledomain.EnsureProfileInput{Username: strings.TrimSpace(req.Username)}
	if strings.TrimSpace(req.UserID) != "" {
		id, err := parseSnowflakeID(req.UserID)
		if err != nil {
			AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
			return
		}
		in.UserID = id
	}

	view, created, err := s.profileSvc.EnsureProfile(c.Request.Context(), in)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": view, "created": created})
}

type addRatingRequest struct {
	UserID string `json:"user_id"`
	Points int64  `json:"points"`
	Reason string `json:"reason"`
}

func (s *Server) AddRating(c *gin.Context) {
	var req addRatingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseSnowflakeID(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	total, err := s.profileSvc.AddRating(c.Request.Context(), userID, req.Points, strings.TrimSpace(req.Reason))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"user_id": userID, "rating": total}})
}

type startSeasonRequest struct {
	TopN int `json:"top_n"`
}

func (s *Server) StartNewSeason(c *gin.Context) {
	var req startSeasonRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	if req.TopN == 0 {
		req.TopN = defaultSnapshotTopN
	}

	result, err := s.profileSvc.StartNewSeason(c.Request.Context(), req.TopN)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("season started",
		zap.String("snapshot_id", result.SnapshotID.String()),
		zap.Int("season_number", result.SeasonNumber),
		zap.Int64("profiles_reset", result.ProfilesReset),
	)
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ReconcileProfile(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	rec, err := s.profileSvc.Reconcile(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec, "consistent": rec.Consistent()})
}

func (s *Server) RepairProfile(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	rec, err := s.profileSvc.Repair(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": rec})
}
