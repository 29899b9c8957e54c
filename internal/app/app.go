package app

import (
	"context"
	"errors"
	"fitcoach_backend/internal/config"
	"fitcoach_backend/internal/controller"
	"fitcoach_backend/internal/repository"
	"fitcoach_backend/internal/service"
	"fitcoach_backend/pkg/configwatcher"
	"fitcoach_backend/pkg/database"
	"fitcoach_backend/pkg/logger"
	"fitcoach_backend/pkg/monitoring"
	"fitcoach_backend/pkg/security"
	"fitcoach_backend/pkg/tracing"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type App struct {
	Config *config.Config
	Router *gin.Engine
	DB     *gorm.DB
	Redis  *redis.Client

	services        *services
	tracer          *sdktrace.TracerProvider
	ctx             context.Context
	cancel          context.CancelFunc
	configCallbacks []func(*config.Config)
}

type repositories struct {
	user      *repository.UserRepository
	challenge *repository.ChallengeRepository
	checkIn   *repository.CheckInRepository
}

type services struct {
	storage     *service.StorageService
	ai          *service.AIService
	analysis    *service.AnalysisService
	idempotency *service.IdempotencyService
	auth        *service.AuthService
	challenge   *service.ChallengeService
	checkIn     *service.CheckInService
	user        *service.UserService
}

type controllers struct {
	auth      *controller.AuthController
	challenge *controller.ChallengeController
	checkIn   *controller.CheckInController
	ai        *controller.AIController
	user      *controller.UserController
	health    *controller.HealthController
}

func (a *App) RegisterConfigCallback(callback func(*config.Config)) {
	a.configCallbacks = append(a.configCallbacks, callback)
}

func (a *App) applyConfig(cfg *config.Config) {
	for _, cb := range a.configCallbacks {
		cb(cfg)
	}
}

func (a *App) initRepositories(db *gorm.DB) *repositories {
	return &repositories{
		user:      repository.NewUserRepository(db),
		challenge: repository.NewChallengeRepository(db),
		checkIn:   repository.NewCheckInRepository(db),
	}
}

func (a *App) initServices(ctx context.Context, repos *repositories, cfg *config.Config, db *gorm.DB, rdb *redis.Client) (*services, error) {
	s := &services{}

	storage, err := service.NewStorageService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	s.storage = storage

	s.ai = service.NewAIService(cfg.AI)
	s.analysis = service.NewAnalysisService(s.ai, cfg.AI, cfg.CheckIn.HistoryWindow)

	// 未启用 Redis 时幂等记录仅保存在本进程内
	var store service.IdempotencyStore
	if rdb != nil {
		store = service.NewRedisIdempotencyStore(rdb)
	} else {
		store = service.NewMemoryIdempotencyStore()
	}
	s.idempotency = service.NewIdempotencyService(store, time.Duration(cfg.CheckIn.IdempotencyTTL)*time.Hour)

	s.auth = service.NewAuthService(repos.user, cfg)
	s.challenge = service.NewChallengeService(repos.challenge, s.storage)
	s.checkIn = service.NewCheckInService(db, repos.checkIn, s.storage, s.analysis, cfg.CheckIn)
	s.user = service.NewUserService(repos.user, s.challenge, s.checkIn)

	return s, nil
}

func (a *App) initControllers(s *services, db *gorm.DB, rdb *redis.Client) *controllers {
	return &controllers{
		auth:      controller.NewAuthController(s.auth),
		challenge: controller.NewChallengeController(s.challenge),
		checkIn:   controller.NewCheckInController(s.checkIn, s.challenge, s.idempotency),
		ai:        controller.NewAIController(s.checkIn, s.challenge),
		user:      controller.NewUserController(s.user),
		health:    controller.NewHealthController(db, rdb),
	}
}

func (a *App) setupMiddlewares(router *gin.Engine, cfg *config.Config) {
	router.Use(security.CORS(cfg.CORS.AllowedOrigins))
	router.Use(security.Secure())
	router.Use(security.RateLimiter(a.ctx, cfg.RateLimit.MaxRequests, time.Duration(cfg.RateLimit.WindowMinutes)*time.Minute))

	// 分布式追踪中间件
	if cfg.Tracing.Enabled {
		router.Use(tracing.GinMiddleware())
	}

	router.Use(monitoring.MetricsMiddleware())
}

func NewApp(cfg *config.Config) (*App, error) {
	logger.InitLogger(cfg)
	logger.Log.Info("Logger initialized successfully")

	db, err := database.InitDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config: cfg,
		DB:     db,
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.MigrateOnly {
		return app, nil
	}

	if cfg.Redis.Enabled {
		rdb, err := database.InitRedis(&cfg.Redis)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("initialize redis: %w", err)
		}
		app.Redis = rdb
	}

	repos := app.initRepositories(db)
	services, err := app.initServices(ctx, repos, cfg, db, app.Redis)
	if err != nil {
		cancel()
		return nil, err
	}
	app.services = services
	controllers := app.initControllers(services, db, app.Redis)

	// 监控初始化
	monitoring.Init()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer("fitcoach-backend", cfg.Tracing.CollectorEndpoint)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("initialize tracing: %w", err)
		}
		app.tracer = tp
	}

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery())
	app.Router = router

	app.setupMiddlewares(router, cfg)
	app.registerRoutes(router, controllers, repos, cfg)

	if cfg.Storage.Type == "local" {
		router.Static("/uploads", cfg.Storage.LocalPath)
	}

	// 模型参数热更新
	app.RegisterConfigCallback(func(newCfg *config.Config) {
		services.analysis.UpdateOptions(newCfg.AI)
		logger.Log.Info("AI options updated",
			zap.String("model", newCfg.AI.Model),
			zap.Float64("temperature", newCfg.AI.Temperature),
			zap.Int("maxTokens", newCfg.AI.MaxTokens),
		)
	})
	if cfg.ConfigFile != "" {
		if err := configwatcher.Watch(ctx, cfg.ConfigFile, app.applyConfig); err != nil {
			logger.Log.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	return app, nil
}

func (a *App) Run() error {
	srv := &http.Server{
		Addr:              ":" + a.Config.Server.Port,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.Info("Server running", zap.String("port", a.Config.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待中断信号优雅地关闭服务器（设置5秒的超时时间）
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		a.Close()
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}
	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(ctx)
	a.Close()
	if err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Log.Info("Server exiting")
	return nil
}

// Close 释放后台协程和外部连接
func (a *App) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			logger.Log.Error("Failed to shutdown tracer provider", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = logger.Log.Sync()
}
