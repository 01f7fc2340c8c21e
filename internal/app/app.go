// Package app is the composition root: it builds the echo server and every
// collaborator from one explicit set of dependencies. Nothing below it
// reaches for process-wide state.
package app

import (
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/segregate/internal/config"
	"github.com/iliyamo/segregate/internal/credential"
	"github.com/iliyamo/segregate/internal/handler"
	"github.com/iliyamo/segregate/internal/middleware"
	"github.com/iliyamo/segregate/internal/policy"
	"github.com/iliyamo/segregate/internal/repository"
	"github.com/iliyamo/segregate/internal/router"
	"github.com/iliyamo/segregate/internal/service"
	"github.com/iliyamo/segregate/internal/token"
	"github.com/iliyamo/segregate/internal/upload"
)

// Deps is everything the server needs from the outside world. Optional
// fields may be left nil: Redis (in-process rate limiting, no cache),
// Notifier (built from Config.RabbitURL, or discarded), Presigner (built
// from Config.S3), Registry (a fresh registry), Policy (policy.Default).
type Deps struct {
	Config    config.Config
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    *zap.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Registry  *prometheus.Registry
	Notifier  service.Notifier
	Presigner *upload.Presigner
	Policy    *policy.Policy
}

// App is a built server.
type App struct {
	Echo    *echo.Echo
	Tokens  *token.Service
	Metrics *middleware.Metrics

	publisher *service.Publisher
}

// New wires the server.
func New(d Deps) (*App, error) {
	if d.DB == nil {
		return nil, errors.New("app: database is required")
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Policy == nil {
		d.Policy = policy.Default()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
		d.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	cfg := d.Config

	tokens, err := token.NewService(token.Options{
		AccessSecret:  cfg.AccessSecret,
		RefreshSecret: cfg.RefreshSecret,
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})
	if err != nil {
		return nil, err
	}

	users := repository.NewUserRepo(d.DB)
	reports := repository.NewReportRepo(d.DB)
	creds, err := credential.NewGateway(users, d.Policy, cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	metrics := middleware.NewMetrics(d.Registry)
	a := &App{Tokens: tokens, Metrics: metrics}

	notifier := d.Notifier
	if notifier == nil {
		if cfg.RabbitURL != "" {
			a.publisher = service.NewPublisher(cfg.RabbitURL, d.Logger.Named("notify"), metrics, service.PublisherOptions{})
			notifier = a.publisher
		} else {
			notifier = service.Nop{}
		}
	}
	presigner := d.Presigner
	if presigner == nil {
		presigner = upload.NewPresigner(cfg.S3)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewRequestValidator()
	e.HTTPErrorHandler = handler.NewErrorHandler(d.Logger, cfg.IsProduction())

	e.Use(echomw.Recover())
	e.Use(echomw.RequestIDWithConfig(echomw.RequestIDConfig{Generator: uuid.NewString}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.RequestLogger(d.Logger.Named("http")))
	e.Use(metrics.Middleware())
	e.Use(echomw.BodyLimit("1M"))
	e.Use(middleware.Gate(middleware.GateConfig{
		Policy:   d.Policy,
		Verifier: tokens,
		CORS:     middleware.DefaultCORSConfig(cfg.AllowedOrigins),
		Logger:   d.Logger.Named("gate"),
		Metrics:  metrics,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{})))

	router.RegisterRoutes(e, d.DB, reports, middleware.NewRedisCache(d.Cache, d.Redis, d.Logger))
	router.RegisterAuth(e,
		handler.NewAuthHandler(creds, tokens, notifier, d.Logger, cfg.IsProduction()),
		middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger))
	router.RegisterReports(e,
		handler.NewReportHandler(reports, d.Policy, notifier, d.Logger),
		&handler.UploadHandler{Presigner: presigner},
		d.Policy)
	router.RegisterUsers(e, handler.NewUserHandler(creds, users, reports, d.Policy, d.Logger), d.Policy)

	a.Echo = e
	return a, nil
}

// Close flushes pending notifications, giving up after the publisher's
// close timeout.
func (a *App) Close() error {
	if a.publisher != nil {
		return a.publisher.Close()
	}
	return nil
}
