package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ZanzyTHEbar/gradewatch/internal/cache"
	"github.com/ZanzyTHEbar/gradewatch/internal/config"
	"github.com/ZanzyTHEbar/gradewatch/internal/database"
	"github.com/ZanzyTHEbar/gradewatch/internal/errors"
	"github.com/ZanzyTHEbar/gradewatch/internal/frontend"
	"github.com/ZanzyTHEbar/gradewatch/internal/middleware"
	"github.com/ZanzyTHEbar/gradewatch/internal/model"
	"github.com/ZanzyTHEbar/gradewatch/internal/monitoring"
	"github.com/ZanzyTHEbar/gradewatch/internal/ratelimit"
	"github.com/ZanzyTHEbar/gradewatch/internal/records"
	"github.com/ZanzyTHEbar/gradewatch/internal/render"
	"github.com/ZanzyTHEbar/gradewatch/internal/resilience"
	"github.com/ZanzyTHEbar/gradewatch/internal/security"
	"github.com/ZanzyTHEbar/gradewatch/internal/session"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/gradewatch/docs"
)

// app owns every long-lived dependency of the server.
type app struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	db       *database.DB
	users    *database.UserService
	store    *records.Store
	analyzer *session.Orchestrator

	redis       *ratelimit.RedisClient
	limiter     *ratelimit.RateLimiter
	charts      *cache.Cache
	compression *middleware.CompressionMiddleware
	security    *security.SecurityMiddleware
	health      *resilience.HealthMonitor
}

// newApp opens the database, loads the dataset and the model and connects to
// Redis. A missing dataset or model is fatal; an unreachable Redis is not.
func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: monitoring.NewMetrics(),
		health:  resilience.NewHealthMonitor(5 * time.Second),
	}

	err := resilience.Retry(ctx, "database", resilience.DefaultRetryConfig(), func() error {
		db, err := database.NewDB(cfg.DBPath)
		if err != nil {
			return err
		}
		a.db = db
		return nil
	})
	if err != nil {
		return nil, errors.NewConfigurationError("database unavailable", err)
	}
	a.users = database.NewUserService(database.NewRepository(a.db), cfg.JWTSecret, cfg.SessionTTL)

	a.store, err = records.Load(cfg.DatasetPath)
	if err != nil {
		a.close()
		return nil, errors.NewConfigurationError("dataset unavailable", err)
	}

	predictor, err := model.LoadArtifact(cfg.ModelPath)
	if err != nil {
		a.close()
		return nil, errors.NewConfigurationError("model unavailable", err)
	}

	a.analyzer, err = session.New(session.Config{
		DefaultClassNum: cfg.DefaultClassNum,
		Chart:           render.ChartOptions{AssetsHost: a.chartAssetsHost()},
	}, a.users, a.store, predictor)
	if err != nil {
		a.close()
		return nil, errors.NewConfigurationError("analysis pipeline", err)
	}

	a.redis = a.connectRedis(ctx)

	limits := ratelimit.DefaultConfig()
	limits.LoginLimit = cfg.LoginLimitPerMin
	a.limiter = ratelimit.NewRateLimiter(a.redis, limits, a.metrics)

	a.charts = cache.NewCache(cfg.CacheTTL)
	a.compression = middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig())

	secCfg := security.DefaultSecurityConfig()
	secCfg.AllowedOrigins = cfg.AllowedOrigins
	secCfg.RequestTimeout = cfg.RequestTimeout
	a.security = security.NewSecurityMiddleware(secCfg)

	a.registerHealthChecks()
	return a, nil
}

// connectRedis retries a configured Redis a few times and then carries on with
// in-memory rate limiting.
func (a *app) connectRedis(ctx context.Context) *ratelimit.RedisClient {
	opts := ratelimit.RedisOptions{Addr: a.cfg.RedisAddr, Password: a.cfg.RedisPassword, DB: a.cfg.RedisDB}
	if opts.Addr == "" {
		a.logger.Info("REDIS_ADDR not set, login rate limiting stays in memory")
		return &ratelimit.RedisClient{}
	}

	var client *ratelimit.RedisClient
	retry := resilience.DefaultRetryConfig()
	retry.MaxAttempts = 3
	err := resilience.Retry(ctx, "redis", retry, func() error {
		var err error
		client, err = ratelimit.NewRedisClient(ctx, opts)
		return err
	})
	if err != nil {
		a.logger.Warn("Redis unavailable, continuing with in-memory rate limiting",
			"addr", a.cfg.RedisAddr,
			"error", err)
	}
	return client
}

func (a *app) registerHealthChecks() {
	a.health.Register("database", true, func(ctx context.Context) error {
		return a.db.PingContext(ctx)
	})
	a.health.Register("dataset", true, func(context.Context) error {
		if a.store.Len() == 0 {
			return fmt.Errorf("dataset %s has no records", a.cfg.DatasetPath)
		}
		return nil
	})
	if a.cfg.RedisAddr != "" {
		a.health.Register("redis", false, func(ctx context.Context) error {
			if err := a.redis.Ping(ctx); err != nil {
				return fmt.Errorf("redis at %s: %w", a.cfg.RedisAddr, err)
			}
			return nil
		})
	}
}

func (a *app) chartAssetsHost() string {
	if a.cfg.ChartAssetsHost != "" {
		return a.cfg.ChartAssetsHost
	}
	return render.DefaultAssetsHost
}

// router builds the gin engine with the global middleware chain, the views and the API.
func (a *app) router() (*gin.Engine, error) {
	r := gin.New()

	r.Use(errors.RecoveryHandler())
	r.Use(errors.ErrorHandler())
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))
	r.Use(security.SecurityHeadersMiddleware(a.cfg.EnableHSTS))
	r.Use(security.CSPMiddleware(""))
	r.Use(a.security.RequestTimeout)
	r.Use(a.security.ValidateContentType)
	r.Use(a.compression.Handler())
	r.Use(a.limiter.IPRateLimitMiddleware())

	views, err := frontend.NewHandler(a.analyzer, a.users, frontend.Options{
		SessionTTL:      a.cfg.SessionTTL,
		SecureCookie:    a.cfg.EnableHSTS,
		ChartAssetsHost: a.chartAssetsHost(),
		DefaultClassNum: a.cfg.DefaultClassNum,
	}, frontend.Deps{
		Logger:   a.logger,
		Metrics:  a.metrics,
		Limiter:  a.limiter,
		Cache:    a.charts,
		Security: a.security,
	})
	if err != nil {
		return nil, err
	}
	if err := views.Register(r); err != nil {
		return nil, err
	}

	api := r.Group("/api", a.security.CORS())
	// Preflights have no route of their own; the CORS handler answers them.
	api.OPTIONS("/*path", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	api.POST("/login", a.limiter.LoginRateLimitMiddleware(ratelimit.JSONLimited), a.apiLogin)
	api.GET("/subjects", a.apiSubjects)
	api.POST("/analyze", a.requireBearer(), a.apiAnalyze)

	r.GET("/health", a.healthHandler)
	r.GET("/metrics", a.metricsHandler)
	r.GET("/metrics/requests", monitoring.MetricsHandler(a.metrics))
	r.GET("/cache/stats", a.charts.StatsHandler())

	if a.cfg.EnableSwagger {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.NoRoute(func(c *gin.Context) {
		respondError(c, errors.NewNotFoundError("route "+c.Request.URL.Path, nil))
	})

	return r, nil
}

// close releases everything newApp opened, in reverse order.
func (a *app) close() {
	if a.charts != nil {
		a.charts.Close()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		errors.SafeClose(a.redis, "redis")
	}
	if a.db != nil {
		errors.SafeClose(a.db, "database")
	}
	slog.Info("Resources released")
}
