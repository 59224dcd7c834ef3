package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/xeocast/xeocast-admin-workers-sub001/app/auth"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/config"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/handler"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/logger"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/metrics"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/middleware"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/repository"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/service"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/storage"
	"github.com/xeocast/xeocast-admin-workers-sub001/app/utils/videogen"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pipelineStatsTTL = 30 * time.Second

// Server 表示 HTTP 服务器及其后台调度
type Server struct {
	Config *config.Config
	Logger *logger.Logger

	db         *gorm.DB
	store      storage.BlobStore
	gin        *gin.Engine
	http       *http.Server
	video      *videogen.Client
	dispatcher *service.VideoGenerationService
	callbacks  *service.VideoCallbackService
	stats      *service.PipelineStatsService
	scheduler  *service.Scheduler
}

// New 创建 Server，未启动任何后台任务
func New(cfg *config.Config, log *logger.Logger, db *gorm.DB, store storage.BlobStore) (*Server, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), accessLog(log))

	podcasts := repository.NewPodcastRepository(db)
	tasks := repository.NewExternalTaskRepository(db)
	video := videogen.New(cfg.VideoServiceURL(), cfg.VideoService.APIKey, cfg.VideoService.Timeout)

	s := &Server{
		Config: cfg,
		Logger: log,
		db:     db,
		store:  store,
		gin:    router,
		http: &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		video: video,
		dispatcher: service.NewVideoGenerationService(podcasts, tasks, repository.NewCategoryRepository(db), video, log,
			service.VideoGenerationOptions{
				CallbackURL:    cfg.CallbackURL(),
				CandidateLimit: cfg.Scheduler.CandidateLimit,
				StaleAfter:     cfg.Scheduler.StaleGeneratingAfter,
			}),
		callbacks: service.NewVideoCallbackService(podcasts, tasks, log),
		stats:     service.NewPipelineStatsService(podcasts, tasks, pipelineStatsTTL),
	}

	if cfg.Scheduler.Enabled {
		scheduler, err := service.NewScheduler(cfg.Scheduler.VideoGenerationSpec, s.dispatcher, log)
		if err != nil {
			_ = video.Close()
			return nil, fmt.Errorf("创建定时任务失败: %w", err)
		}
		s.scheduler = scheduler
	}

	s.setupRoutes()
	return s, nil
}

// Handler 返回路由，便于测试
func (s *Server) Handler() http.Handler {
	return s.gin
}

// Dispatcher 视频生成调度器
func (s *Server) Dispatcher() *service.VideoGenerationService {
	return s.dispatcher
}

// Start 启动定时任务与 HTTP 服务，阻塞直到服务关闭
func (s *Server) Start() error {
	if s.scheduler != nil {
		s.scheduler.Start()
	} else {
		s.Logger.Warnf("视频生成定时任务未启用")
	}

	s.Logger.Infof("在端口 %s 启动服务器", s.http.Addr)
	return s.http.ListenAndServe()
}

// Shutdown 先停止定时任务，再关闭 HTTP 服务和外部连接
func (s *Server) Shutdown(ctx context.Context) error {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}

	err := s.http.Shutdown(ctx)

	if cerr := s.video.Close(); cerr != nil {
		s.Logger.Errorf("关闭视频服务客户端失败: %v", cerr)
	}
	if sqlDB, derr := s.db.DB(); derr == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			s.Logger.Errorf("关闭数据库连接失败: %v", cerr)
		}
	}
	return err
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	jwtService := auth.NewJWTService(s.Config.JWT)

	authHandler := handler.NewAuthHandler(s.db, s.Config.JWT, jwtService)
	userHandler := handler.NewUserHandler(s.db)
	roleHandler := handler.NewRoleHandler(s.db)
	categoryHandler := handler.NewCategoryHandler(s.db, s.store, s.Logger)
	seriesHandler := handler.NewSeriesHandler(s.db)
	podcastHandler := handler.NewPodcastHandler(s.db, s.store, s.stats, s.Logger)
	youtubeHandler := handler.NewYouTubeHandler(s.db)
	assetHandler := handler.NewAssetHandler(s.store, s.Logger)
	pipelineHandler := handler.NewPipelineHandler(s.stats, s.dispatcher, s.Logger)
	callbackHandler := handler.NewVideoCallbackHandler(s.callbacks, s.stats, s.Logger)

	s.gin.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.gin.GET("/metrics", gin.WrapH(metrics.Handler()))

	// 视频生成服务回调，不需要JWT验证
	s.gin.Any("/video-generation-callback", callbackHandler.Handle)

	api := s.gin.Group("/api")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh", authHandler.RefreshToken)
	}

	protected := api.Group("/")
	protected.Use(middleware.JWTAuth(jwtService))
	{
		protected.GET("/me", authHandler.Me)

		categories := protected.Group("/categories")
		{
			categories.GET("", categoryHandler.ListCategories)
			categories.POST("", categoryHandler.CreateCategory)
			categories.GET("/:id", categoryHandler.GetCategory)
			categories.PUT("/:id", categoryHandler.UpdateCategory)
			categories.DELETE("/:id", categoryHandler.DeleteCategory)
			categories.POST("/:id/background", categoryHandler.UploadBackground)
		}

		series := protected.Group("/series")
		{
			series.GET("", seriesHandler.ListSeries)
			series.POST("", seriesHandler.CreateSeries)
			series.GET("/:id", seriesHandler.GetSeries)
			series.PUT("/:id", seriesHandler.UpdateSeries)
			series.DELETE("/:id", seriesHandler.DeleteSeries)
		}

		podcasts := protected.Group("/podcasts")
		{
			podcasts.GET("", podcastHandler.ListPodcasts)
			podcasts.POST("", podcastHandler.CreatePodcast)
			podcasts.GET("/statuses", podcastHandler.ListStatuses)
			podcasts.GET("/:id", podcastHandler.GetPodcast)
			podcasts.PUT("/:id", podcastHandler.UpdatePodcast)
			podcasts.DELETE("/:id", podcastHandler.DeletePodcast)
			podcasts.POST("/:id/audio", podcastHandler.UploadAudio)
			podcasts.POST("/:id/background", podcastHandler.UploadBackground)
		}

		youtube := protected.Group("/youtube")
		{
			youtube.GET("/channels", youtubeHandler.ListChannels)
			youtube.POST("/channels", youtubeHandler.CreateChannel)
			youtube.GET("/channels/:id", youtubeHandler.GetChannel)
			youtube.PUT("/channels/:id", youtubeHandler.UpdateChannel)
			youtube.DELETE("/channels/:id", youtubeHandler.DeleteChannel)

			youtube.GET("/playlists", youtubeHandler.ListPlaylists)
			youtube.POST("/playlists", youtubeHandler.CreatePlaylist)
			youtube.GET("/playlists/:id", youtubeHandler.GetPlaylist)
			youtube.PUT("/playlists/:id", youtubeHandler.UpdatePlaylist)
			youtube.DELETE("/playlists/:id", youtubeHandler.DeletePlaylist)
		}

		protected.GET("/assets/*key", assetHandler.GetAsset)
		protected.DELETE("/assets/*key", assetHandler.DeleteAsset)

		protected.GET("/pipeline/status", pipelineHandler.Status)

		// 管理员路由
		admin := protected.Group("/")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/pipeline/trigger", pipelineHandler.Trigger)

			admin.GET("/users", userHandler.ListUsers)
			admin.POST("/users", userHandler.CreateUser)
			admin.GET("/users/:id", userHandler.GetUser)
			admin.PUT("/users/:id", userHandler.UpdateUser)
			admin.DELETE("/users/:id", userHandler.DeleteUser)

			admin.GET("/roles", roleHandler.ListRoles)
			admin.POST("/roles", roleHandler.CreateRole)
			admin.GET("/roles/:id", roleHandler.GetRole)
			admin.PUT("/roles/:id", roleHandler.UpdateRole)
			admin.DELETE("/roles/:id", roleHandler.DeleteRole)
		}
	}
}

// accessLog 简单的访问日志
func accessLog(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Debug("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
