package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
)

func (s *Server) DailyCheckin(c *gin.Context) {
	result, err := s.checkinSvc.HandleDailyCheckin(c.Request.Context(), currentUserID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set("checkin_reason", result.Reason)
	c.JSON(http.StatusOK, result)
}

type allTimeRow struct {
	Rank     int          `json:"rank"`
	UserID   snowflake.ID `json:"user_id"`
	Username string       `json:"username"`
	Rating   int64        `json:"rating"`
}

type windowedRow struct {
	Rank     int          `json:"rank"`
	UserID   snowflake.ID `json:"user_id"`
	Username string       `json:"username"`
	Points   int64        `json:"points"`
}

// GetLeaderboard returns rating totals for period=all and summed points for
// the windowed periods.
func (s *Server) GetLeaderboard(c *gin.Context) {
	period, err := leaderboarddomain.ParsePeriod(c.Query("period"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	requested := 0
	if limit != nil {
		requested = *limit
	}

	entries, err := s.leaderboardSvc.Query(c.Request.Context(), period, requested)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if period == leaderboarddomain.PeriodAll {
		rows := make([]allTimeRow, 0, len(entries))
		for _, e := range entries {
			rows = append(rows, allTimeRow{Rank: e.Rank, UserID: e.UserID, Username: e.Username, Rating: e.Score})
		}
		c.JSON(http.StatusOK, gin.H{"period": period, "data": rows})
		return
	}

	rows := make([]windowedRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, windowedRow{Rank: e.Rank, UserID: e.UserID, Username: e.Username, Points: e.Score})
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "data": rows})
}
