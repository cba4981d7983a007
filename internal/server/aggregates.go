package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"go.uber.org/zap"
)

const defaultSnapshotTopN = 100

type rebuildAggregatesRequest struct {
	Date     string `json:"date"`
	DateFrom string `json:"date_from"`
	DateTo   string `json:"date_to"`
}

// RebuildAggregates replays a single day synchronously, or queues a range for
// the scheduler.
func (s *Server) RebuildAggregates(c *gin.Context) {
	var req rebuildAggregatesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ctx := c.Request.Context()

	if strings.TrimSpace(req.Date) != "" {
		date, err := parseDate(req.Date)
		if err != nil {
			AbortWithError(c, newValidationError("date", "invalid_date", "date must be YYYY-MM-DD"))
			return
		}
		rows, err := s.aggregationSvc.RebuildDay(ctx, date)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"date": req.Date, "rows": rows}})
		return
	}

	from, err := parseDate(req.DateFrom)
	if err != nil {
		AbortWithError(c, newValidationError("date_from", "invalid_date_from", "date_from must be YYYY-MM-DD"))
		return
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		AbortWithError(c, newValidationError("date_to", "invalid_date_to", "date_to must be YYYY-MM-DD"))
		return
	}

	request, err := s.aggregationSvc.EnqueueRebuild(ctx, from, to)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("aggregate rebuild queued",
		zap.String("request_id", request.ID.String()),
		zap.String("date_from", req.DateFrom),
		zap.String("date_to", req.DateTo),
	)
	c.JSON(http.StatusAccepted, gin.H{"data": request})
}

type createSnapshotRequest struct {
	Period string `json:"period"`
	TopN   int    `json:"top_n"`
}

func (s *Server) CreateSnapshot(c *gin.Context) {
	var req createSnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	period, err := aggregationdomain.ParseSnapshotPeriod(req.Period)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if req.TopN == 0 {
		req.TopN = defaultSnapshotTopN
	}

	snapshot, err := s.aggregationSvc.Snapshot(c.Request.Context(), period, req.TopN)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": snapshot})
}

func (s *Server) ListSnapshots(c *gin.Context) {
	limit, err := parseOptionalInt(c.Query("limit"))
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}
	requested := 0
	if limit != nil {
		requested = *limit
	}

	items, err := s.aggregationSvc.ListSnapshots(c.Request.Context(), aggregationdomain.SnapshotPeriod(c.Query("period")), requested)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) GetSnapshot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	snapshot, err := s.aggregationSvc.GetSnapshot(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": snapshot})
}
