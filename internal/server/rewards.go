package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
)

type toggleBoostRequest struct {
	AuthorID string `json:"author_id"`
}

func (s *Server) ToggleBoost(c *gin.Context) {
	publicationID, err := strconv.ParseInt(strings.TrimSpace(c.Param("publication_id")), 10, 64)
	if err != nil || publicationID <= 0 {
		AbortWithError(c, rewarddomain.ErrInvalidPublication)
		return
	}

	var req toggleBoostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	authorID, err := parseSnowflakeID(req.AuthorID)
	if err != nil {
		AbortWithError(c, newValidationError("author_id", "invalid_author_id", "invalid author_id"))
		return
	}

	result, err := s.rewardSvc.ToggleBoost(c.Request.Context(), rewarddomain.BoostInput{
		PublicationID: publicationID,
		BoosterID:     currentUserID(c),
		AuthorID:      authorID,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListAchievements(c *gin.Context) {
	items, err := s.rewardSvc.ListAchievements(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) ListUserAchievements(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	items, err := s.rewardSvc.ListUserAchievements(c.Request.Context(), userID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

type upsertAchievementRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	RatingPoints *int64 `json:"rating_points"`
}

func (s *Server) UpsertAchievement(c *gin.Context) {
	var req upsertAchievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	achievement, created, err := s.rewardSvc.UpsertAchievement(c.Request.Context(), rewarddomain.UpsertAchievementInput{
		Name:         strings.TrimSpace(req.Name),
		Description:  strings.TrimSpace(req.Description),
		RatingPoints: req.RatingPoints,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": achievement, "created": created})
}

type grantAchievementRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) GrantAchievement(c *gin.Context) {
	var req grantAchievementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	userID, err := parseSnowflakeID(req.UserID)
	if err != nil {
		AbortWithError(c, newValidationError("user_id", "invalid_user_id", "invalid user_id"))
		return
	}

	result, err := s.rewardSvc.GrantAchievement(c.Request.Context(), userID, strings.TrimSpace(c.Param("code")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
