package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/tradeboard/internal/aggregation"
	aggregationdomain "github.com/smallbiznis/tradeboard/internal/aggregation/domain"
	"github.com/smallbiznis/tradeboard/internal/checkin"
	checkindomain "github.com/smallbiznis/tradeboard/internal/checkin/domain"
	"github.com/smallbiznis/tradeboard/internal/config"
	"github.com/smallbiznis/tradeboard/internal/leaderboard"
	leaderboarddomain "github.com/smallbiznis/tradeboard/internal/leaderboard/domain"
	"github.com/smallbiznis/tradeboard/internal/ledger"
	ledgerdomain "github.com/smallbiznis/tradeboard/internal/ledger/domain"
	"github.com/smallbiznis/tradeboard/internal/notification"
	notificationdomain "github.com/smallbiznis/tradeboard/internal/notification/domain"
	"github.com/smallbiznis/tradeboard/internal/observability"
	obsmiddleware "github.com/smallbiznis/tradeboard/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/tradeboard/internal/observability/metrics"
	obstracing "github.com/smallbiznis/tradeboard/internal/observability/tracing"
	"github.com/smallbiznis/tradeboard/internal/profile"
	profiledomain "github.com/smallbiznis/tradeboard/internal/profile/domain"
	"github.com/smallbiznis/tradeboard/internal/ratelimit"
	"github.com/smallbiznis/tradeboard/internal/reward"
	rewarddomain "github.com/smallbiznis/tradeboard/internal/reward/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModule bundles every rating service without any transport.
var DomainModule = fx.Options(
	ledger.Module,
	leaderboard.Module,
	aggregation.Module,
	notification.Module,
	profile.Module,
	checkin.Module,
	reward.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	DomainModule,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, tracingCfg obstracing.MiddlewareConfig, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(tracingCfg))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, tracingCfg obstracing.MiddlewareConfig, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, tracingCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	log    *zap.Logger

	profileSvc      profiledomain.Service
	ledgerSvc       ledgerdomain.Service
	checkinSvc      checkindomain.Service
	leaderboardSvc  leaderboarddomain.Service
	aggregationSvc  aggregationdomain.Service
	rewardSvc       rewarddomain.Service
	notificationSvc notificationdomain.Service

	obsMetrics   *obsmetrics.Metrics
	writeLimiter *ratelimit.WriteLimiter
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	ProfileSvc      profiledomain.Service
	LedgerSvc       ledgerdomain.Service
	CheckinSvc      checkindomain.Service
	LeaderboardSvc  leaderboarddomain.Service
	AggregationSvc  aggregationdomain.Service
	RewardSvc       rewarddomain.Service
	NotificationSvc notificationdomain.Service
	ObsMetrics      *obsmetrics.Metrics     `optional:"true"`
	WriteLimiter    *ratelimit.WriteLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             log.Named("http.server"),
		profileSvc:      p.ProfileSvc,
		ledgerSvc:       p.LedgerSvc,
		checkinSvc:      p.CheckinSvc,
		leaderboardSvc:  p.LeaderboardSvc,
		aggregationSvc:  p.AggregationSvc,
		rewardSvc:       p.RewardSvc,
		notificationSvc: p.NotificationSvc,
		obsMetrics:      p.ObsMetrics,
		writeLimiter:    p.WriteLimiter,
	}

	svc.registerAPIRoutes()
	svc.registerInternalRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	api.GET("/leaderboard", s.GetLeaderboard)
	api.GET("/achievements", s.ListAchievements)

	// -------- Profiles --------
	api.GET("/profiles/:user_id/rating", s.GetProfileRating)
	api.GET("/profiles/:user_id/rating/history", s.ListRatingHistory)
	api.GET("/profiles/:user_id/achievements", s.ListUserAchievements)
	api.POST("/profiles/:user_id/follow", s.UserRequired(), s.WriteRateLimit("follow"), s.ToggleFollow)

	// -------- Rating events --------
	api.POST("/checkin", s.UserRequired(), s.WriteRateLimit("checkin"), s.DailyCheckin)
	api.POST("/publications/:publication_id/boost", s.UserRequired(), s.WriteRateLimit("boost"), s.ToggleBoost)

	// -------- Notifications --------
	notifications := api.Group("/notifications", s.UserRequired())
	{
		notifications.GET("", s.ListNotifications)
		notifications.GET("/unread_count", s.UnreadNotificationCount)
		notifications.POST("/read", s.MarkNotificationsRead)
	}
}

// registerInternalRoutes exposes collaborator and operator calls. They are
// expected to sit behind the private network boundary.
func (s *Server) registerInternalRoutes() {
	internal := s.engine.Group("/internal")

	internal.POST("/users", s.EnsureUser)
	internal.POST("/ratings", s.AddRating)

	internal.POST("/achievements", s.UpsertAchievement)
	internal.POST("/achievements/:code/grant", s.GrantAchievement)

	internal.POST("/aggregates/rebuild", s.RebuildAggregates)
	internal.POST("/snapshots", s.CreateSnapshot)
	internal.GET("/snapshots", s.ListSnapshots)
	internal.GET("/snapshots/:id", s.GetSnapshot)
	internal.POST("/seasons", s.StartNewSeason)

	internal.GET("/profiles/:user_id/reconcile", s.ReconcileProfile)
	internal.POST("/profiles/:user_id/repair", s.RepairProfile)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
