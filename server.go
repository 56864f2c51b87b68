package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/coordinator_backend/association"
	"bitbucket.org/mmdatafocus/coordinator_backend/config"
	"bitbucket.org/mmdatafocus/coordinator_backend/events"
	"bitbucket.org/mmdatafocus/coordinator_backend/history"
	"bitbucket.org/mmdatafocus/coordinator_backend/ledger"
	"bitbucket.org/mmdatafocus/coordinator_backend/metrics"
	"bitbucket.org/mmdatafocus/coordinator_backend/models"
	"bitbucket.org/mmdatafocus/coordinator_backend/models/memstore"
	"bitbucket.org/mmdatafocus/coordinator_backend/strategy"
	"bitbucket.org/mmdatafocus/coordinator_backend/utils"
	"bitbucket.org/mmdatafocus/coordinator_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	dbConnectAttempts     = 10
	redisConnectAttempts  = 5
	pubSubConnectAttempts = 5
)

// buildCoordinator wires storage, locks, publishing and strategies from
// settings. The returned cleanup closes whatever was opened.
func buildCoordinator(ctx context.Context, settings config.Settings, logger *logrus.Logger, reg prometheus.Registerer) (*workflow.Coordinator, func(), error) {
	clock := utils.NewClock()
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var (
		associationRepo models.AssociationRepository
		versionRepo     models.VersionRepository
	)
	if settings.Database.Driver == config.DriverMemory {
		logger.WithFields(logrus.Fields{"field": "database"}).Warn("DB_DRIVER=memory; state is lost on restart")
		associationRepo = memstore.NewAssociationStore(clock)
		versionRepo = memstore.NewVersionStore()
	} else {
		db, err := config.ConnectDatabaseWithRetry(settings.Database, dbConnectAttempts)
		if err != nil {
			return nil, cleanup, err
		}
		if sqlDB, err := db.DB(); err == nil {
			closers = append(closers, func() { _ = sqlDB.Close() })
		}
		// AutoMigrate can hold table locks; production runs cmd/migrate instead.
		if !settings.SkipMigrations {
			if err := models.MigrateTable(db); err != nil {
				return nil, cleanup, err
			}
		} else {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
		}
		associationRepo = models.NewGormAssociationRepository(db)
		versionRepo = models.NewGormVersionRepository(db)
	}

	var locker ledger.Locker = ledger.NoopLocker{}
	if settings.RedisAddress != "" {
		client, err := config.ConnectRedisWithRetry(ctx, settings.RedisAddress, redisConnectAttempts)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Warn("redis unavailable; minting without a distributed lock: " + err.Error())
		} else {
			locker = ledger.NewRedisLocker(client)
			closers = append(closers, func() { _ = config.CloseRedis() })
		}
	}

	var publisher events.Publisher = events.NoopPublisher{}
	if settings.PubSubTopic != "" {
		client, err := config.GetPubSubClient(ctx, pubSubConnectAttempts)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, func() { _ = client.Close() })
		topic, err := config.CreateTopicIfNotExists(ctx, client, settings.PubSubTopic)
		if err != nil {
			return nil, cleanup, err
		}
		closers = append(closers, topic.Stop)
		publisher = events.NewPubSubPublisher(topic, logger)
	}

	versions := ledger.New(versionRepo, locker, clock, logger)
	registry := strategy.FromSettings(settings, versions)
	if len(registry.Active()) == 0 {
		return nil, cleanup, errors.New("no record type is enabled; set ASSESSMENT_ENABLED, PLAN_ENABLED or AAP_PLAN_ENABLED")
	}

	coordinator := workflow.NewCoordinator(
		association.NewStore(associationRepo, clock, logger),
		registry,
		workflow.NewAction(logger, metrics.New(reg)),
		publisher,
		history.NewReconciler(settings.HistoryLocation()),
		clock,
		logger,
	)
	return coordinator, cleanup, nil
}

func correlationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Header("x-correlation-id", cid)
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			config.LoggerWithContext(c.Request.Context(), logger).WithFields(logrus.Fields{
				"status": c.Writer.Status(),
				"path":   c.Request.URL.Path,
			}).Info(c.Errors.String())
		}
	}
}

func corsConfig(settings config.Settings) cors.Config {
	cfg := cors.DefaultConfig()
	// production needs an explicit allowlist; everything else allows all origins
	if strings.EqualFold(settings.Env, "production") {
		cfg.AllowOrigins = settings.CorsAllowedOrigins
		if len(cfg.AllowOrigins) == 0 {
			cfg.AllowOriginFunc = func(origin string) bool { return false }
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", "x-correlation-id")
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	return cfg
}

func newRouter(settings config.Settings, service coordinatorService, logger *logrus.Logger, gatherer prometheus.Gatherer) *gin.Engine {
	r := gin.New()
	r.Use(correlationMiddleware())
	r.Use(cors.New(corsConfig(settings)))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	registerRoutes(r, &handlers{
		service:      service,
		logger:       logger,
		exposeCauses: !strings.EqualFold(settings.Env, "production"),
	})
	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	settings := config.LoadSettings()
	logger := config.GetLogger()
	if strings.EqualFold(settings.Env, "production") {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	coordinator, cleanup, err := buildCoordinator(sigCtx, settings, logger, prometheus.DefaultRegisterer)
	defer cleanup()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "startup"}).Fatal(err.Error())
	}

	srv := &http.Server{
		Addr:              ":" + settings.Port,
		Handler:           newRouter(settings, coordinator, logger, prometheus.DefaultGatherer),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		// ListenAndServe returns http.ErrServerClosed on graceful shutdown.
		serverErrCh <- srv.ListenAndServe()
	}()
	log.Printf("coordinator listening on :%s", settings.Port)

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
}
