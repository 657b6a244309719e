// Package main runs the collaboration session HTTP server with websocket fan-out and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/peerlearn/collab/config"
	"github.com/peerlearn/collab/internal/auth"
	"github.com/peerlearn/collab/internal/history"
	"github.com/peerlearn/collab/internal/middleware"
	"github.com/peerlearn/collab/internal/models"
	"github.com/peerlearn/collab/internal/participants"
	"github.com/peerlearn/collab/internal/realtime"
	"github.com/peerlearn/collab/internal/sessionlog"
	"github.com/peerlearn/collab/internal/videosessions"
	"github.com/peerlearn/collab/internal/whiteboards"
	"github.com/peerlearn/collab/internal/zego"
	"github.com/peerlearn/collab/pkg/database"
	"github.com/peerlearn/collab/pkg/queue"
	"github.com/peerlearn/collab/pkg/redis"
	"github.com/peerlearn/collab/pkg/response"
)

const enqueueTimeout = 5 * time.Second

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()

	var pool *pgxpool.Pool
	if cfg.NeedsPostgres() {
		pool, err = database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("database", zap.Error(err))
		}
		defer pool.Close()
		if err := database.Migrate(ctx, pool); err != nil {
			logger.Fatal("migrate", zap.Error(err))
		}
	}

	needRedis := cfg.Whiteboard.Backend == config.BackendRedis || cfg.Session.ArchiveOnEnd
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		switch {
		case err != nil && needRedis:
			logger.Fatal("redis", zap.Error(err))
		case err != nil:
			logger.Warn("redis unavailable, events stay on this instance", zap.Error(err))
			rdb = nil
		default:
			defer rdb.Close()
		}
	}
	if needRedis && rdb == nil {
		logger.Fatal("redis required by WHITEBOARD_STORE_BACKEND=redis or SESSION_ARCHIVE_ON_END but REDIS_ADDR is empty")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	var hub *realtime.Hub
	if rdb != nil {
		bus := realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, bus, bus)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	// Video sessions, participants and history share the session backend.
	var (
		sessionStore videosessions.Store
		directory    participants.Directory
		rosterWriter participants.Writer
		historySrc   history.Source
		attendance   sessionlog.Store
	)
	switch cfg.Session.Backend {
	case config.BackendPostgres:
		sessionStore = videosessions.NewRepository(pool)
		repo := participants.NewRepository(pool)
		directory, rosterWriter = repo, repo
		historySrc = history.NewRepository(pool)
		attendance = sessionlog.NewRepository(pool)
	default:
		mem := videosessions.NewMemoryStore()
		roster := participants.NewMemory()
		sessionStore = mem
		directory, rosterWriter = roster, roster
		historySrc = history.NewMemorySource(mem, roster)
		attendance = sessionlog.NewMemory()
	}
	if len(cfg.Session.RosterSeed) > 0 {
		if err := participants.Seed(ctx, rosterWriter, cfg.Session.RosterSeed); err != nil {
			logger.Fatal("seed roster", zap.Error(err))
		}
		logger.Info("roster seeded", zap.Int("entries", len(cfg.Session.RosterSeed)))
	}
	hub.SetPresenceRecorder(sessionlog.NewRecorder(attendance, logger))

	manager := videosessions.NewManager(sessionStore, zego.NewFromConfig(cfg.Zego), cfg.Session.ProvisionTimeout, logger)
	manager.SetBroadcaster(hub)
	if cfg.Session.ArchiveOnEnd && rdb != nil {
		jobQueue := queue.NewQueue(rdb.Client, logger)
		manager.SetEndedHook(func(ctx context.Context, s *models.VideoSession) {
			ectx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
			defer cancel()
			payload := queue.WhiteboardArchivePayload{SessionID: s.SessionID, EndReason: s.EndReason}
			if s.EndedAt != nil {
				payload.EndedAt = *s.EndedAt
			}
			if err := jobQueue.EnqueueWhiteboardArchive(ectx, payload); err != nil {
				logger.Error("enqueue whiteboard archive", zap.String("session_id", s.SessionID.String()), zap.Error(err))
			}
		})
	}
	reaper := videosessions.NewReaper(manager, cfg.Session.MaxDuration, cfg.Session.ReaperInterval, logger)

	var boardStore whiteboards.Store
	switch cfg.Whiteboard.Backend {
	case config.BackendPostgres:
		boardStore = whiteboards.NewRepository(pool)
	case config.BackendRedis:
		boardStore = whiteboards.NewRedisStore(rdb.Client, 0)
	default:
		boardStore = whiteboards.NewMemoryStore()
	}
	boardService := whiteboards.NewService(boardStore, whiteboards.Policy{
		AllowUnversionedSave: cfg.Whiteboard.AllowUnversionedSave,
		ClearCreates:         cfg.Whiteboard.ClearCreates,
		MaxCanvasBytes:       cfg.Whiteboard.MaxCanvasBytes,
	}, logger)
	boardService.SetBroadcaster(hub)

	videoHandler := videosessions.NewHandler(manager, logger)
	zegoHandler := zego.NewHandler(manager, cfg.Zego, logger)
	boardHandler := whiteboards.NewHandler(boardService, int64(cfg.Whiteboard.MaxCanvasBytes), logger)
	historyHandler := history.NewHandler(history.NewAggregator(historySrc, logger), logger)
	attendanceHandler := sessionlog.NewHandler(attendance, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me/history", historyHandler.List)
		api.GET("/me/stats", historyHandler.Stats)

		// Session routes: caller must be a participant of the learning session.
		session := api.Group("/sessions/:id")
		session.Use(middleware.RequireParticipant(directory, logger))
		{
			session.POST("/video/start", videoHandler.Start)
			session.GET("/video", videoHandler.Status)
			session.POST("/video/end", videoHandler.End)
			session.GET("/video/token", zegoHandler.GetToken)

			session.GET("/whiteboard", boardHandler.Get)
			session.PUT("/whiteboard", boardHandler.Save)
			session.POST("/whiteboard/clear", boardHandler.Clear)
			session.DELETE("/whiteboard", boardHandler.Delete)

			session.GET("/attendance", attendanceHandler.GetAttendance)
		}
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, jwtService.Validate, directory, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	reaper.Start()

	go func() {
		logger.Info("server listening",
			zap.String("port", cfg.Server.Port),
			zap.String("session_backend", cfg.Session.Backend),
			zap.String("whiteboard_backend", cfg.Whiteboard.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	reaper.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
