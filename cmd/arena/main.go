package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"arena/internal/auth"
	"arena/internal/cache"
	"arena/internal/config"
	cronrunner "arena/internal/cron"
	"arena/internal/db"
	"arena/internal/engine"
	"arena/internal/events"
	"arena/internal/handler"
	"arena/internal/logger"
	gormrepository "arena/internal/repository/gorm"
)

func main() {
	cfgPath := os.Getenv("ARENA_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("ARENA_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	engineCfg, err := buildEngineConfig(cfg.Engine)
	if err != nil {
		logger.Fatal("invalid engine config", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)
	bus := events.NewBus(logger)
	eng := engine.New(store, engineCfg, bus, logger)
	if err := eng.EnsureProtocolConfig(context.Background()); err != nil {
		logger.Fatal("seed protocol config failed", zap.Error(err))
	}

	var redisStore *cache.RedisStore
	if cfg.Redis.Enabled {
		redisStore = cache.NewRedisStore(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisStore.Client.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unreachable, caching disabled", zap.Error(err))
			redisStore = nil
		}
		cancel()
	}

	jwtCfg := auth.JWT{Secret: []byte(cfg.Auth.JWTSecret), TokenTTL: cfg.Auth.TokenTTL}
	if len(jwtCfg.Secret) == 0 {
		logger.Fatal("auth.jwt_secret is required")
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(router)
	handler.RegisterDocs(router)

	authHandler := &handler.AuthHandler{Auth: jwtCfg, AdminKey: cfg.Auth.AdminKey}
	authHandler.Register(router)
	voteHandler := &handler.VoteHandler{Engine: eng, Cache: redisStore, QuoteTTL: cfg.Redis.QuoteTTL, Auth: jwtCfg}
	voteHandler.Register(router)
	epochHandler := &handler.EpochHandler{Engine: eng, Cache: redisStore, QuoteTTL: cfg.Redis.QuoteTTL, Auth: jwtCfg}
	epochHandler.Register(router)
	claimHandler := &handler.ClaimHandler{Engine: eng, Auth: jwtCfg}
	claimHandler.Register(router)
	adminHandler := &handler.AdminHandler{Engine: eng, Auth: jwtCfg}
	adminHandler.Register(router)
	eventsHandler := &handler.EventsHandler{Engine: eng, Bus: bus, Log: logger}
	eventsHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err = cronRunner.Add(cfg.Cron.Sweep, func(ctx context.Context) {
			n, err := eng.SweepDue(ctx)
			if err != nil {
				logger.Warn("cron sweep failed", zap.Error(err))
				return
			}
			if n > 0 {
				logger.Info("cron sweep ok", zap.Int("epochs", n))
			}
		})
		if err != nil {
			logger.Warn("cron register sweep failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func buildEngineConfig(cfg config.EngineConfig) (engine.Config, error) {
	start, err := time.Parse(time.RFC3339, cfg.EpochStart)
	if err != nil {
		return engine.Config{}, err
	}
	initial, err := decimal.NewFromString(cfg.InitialPrice)
	if err != nil {
		return engine.Config{}, err
	}
	return engine.Config{
		EpochStart:        start.UTC(),
		EpochLength:       cfg.EpochLength,
		InitialPrice:      initial,
		GrowthBps:         cfg.GrowthBps,
		FeeBps:            cfg.FeeBps,
		ProtocolRecipient: cfg.ProtocolRecipient,
		ClaimDeadline:     cfg.ClaimDeadline,
	}, nil
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
