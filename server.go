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

	"bitbucket.org/mmdatafocus/brewery_backend/config"
	"bitbucket.org/mmdatafocus/brewery_backend/middlewares"
	"bitbucket.org/mmdatafocus/brewery_backend/models"
	"bitbucket.org/mmdatafocus/brewery_backend/sequence"
	"bitbucket.org/mmdatafocus/brewery_backend/utils"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// redis backs the scope lock and the rate limiter; both are optional
func needsRedis() bool {
	return config.SequenceLockMode() == config.SequenceLockRedis || middlewares.RateLimitEnabled()
}

// readinessGate answers 503 until the database (and redis, when used) are connected.
func readinessGate(redisRequired bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Always allow the startup probe.
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if config.GetDB() == nil || (redisRequired && config.GetRedisDB() == nil) {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func corsConfig() cors.Config {
	corsConfig := cors.DefaultConfig()
	// Production-safe CORS:
	// - In production, require explicit allowlist via CORS_ALLOWED_ORIGINS (comma-separated).
	// - In non-production, allow all.
	allowedOrigins := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS"))
	if strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production") {
		if allowedOrigins == "" {
			// deny all if not configured in production
			corsConfig.AllowOriginFunc = func(string) bool { return false }
		} else {
			corsConfig.AllowOrigins = splitAndTrim(allowedOrigins)
		}
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationHeader)
	corsConfig.AddExposeHeaders("Content-Length", middlewares.CorrelationHeader)
	corsConfig.AllowCredentials = true
	return corsConfig
}

// newRouter wires every route. rateLimiter may be nil.
func newRouter(logger *logrus.Logger, redisRequired bool, rateLimiter *middlewares.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate(redisRequired))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	r.Use(cors.New(corsConfig()))
	if rateLimiter != nil {
		r.Use(rateLimiter.RateLimitMiddleware)
	}
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())
	r.Use(middlewares.AuthMiddleware())

	// bottle pages are reachable from a printed label without logging in
	r.GET("/public/products/:id/bottles/:bottleId", getPublicBottleHandler())

	api := r.Group("/", middlewares.RequireUser())
	api.GET("/ingredients", listIngredientsHandler())
	api.POST("/ingredients", createIngredientHandler())

	api.POST("/batches", createBatchHandler())
	api.GET("/batches", listBatchesHandler())
	api.GET("/batches/:id", getBatchHandler())
	api.PUT("/batches/:id", updateBatchHandler())
	api.DELETE("/batches/:id", deleteBatchHandler())
	api.POST("/batches/:id/process-entries", addProcessEntryHandler())
	api.POST("/batches/:id/finish", finishBatchHandler())

	api.GET("/products", listFinishedProductsHandler())
	api.GET("/products/:id", getFinishedProductHandler())
	api.POST("/products/:id/bottles", createBottlesHandler())
	api.GET("/products/:id/bottles/:bottleId", getBottleHandler())

	r.NoRoute(customNotFoundHandler)
	return r
}

func main() {
	port := os.Getenv("API_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	if err := config.ValidateSequenceLockMode(config.SequenceLockMode(), config.DatabaseDriver()); err != nil {
		logger.WithFields(logrus.Fields{"field": "sequence"}).Fatal(err.Error())
	}

	redisRequired := needsRedis()
	var rateLimiter *middlewares.RateLimiter
	if redisRequired {
		config.ConnectRedisWithRetry(sigCtx)
		if config.GetRedisDB() == nil {
			logger.WithFields(logrus.Fields{"field": "redis"}).Fatal("redis is required but not connected")
		}
		if middlewares.RateLimitEnabled() {
			rateLimiter = middlewares.NewRateLimiterFromEnv(config.GetRedisDB())
		}
	}

	// Start the HTTP server before the database is up; the readiness gate
	// answers 503 meanwhile.
	r := newRouter(logger, redisRequired, rateLimiter)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		models.MigrateTable()
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	allocator, err := sequence.NewFromConfig()
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "sequence"}).Fatal(err.Error())
	}
	sequence.SetDefault(allocator)

	logger.WithFields(logrus.Fields{
		"info":        "Connection Established",
		"driver":      config.DatabaseDriver(),
		"lock":        config.SequenceLockMode(),
		"retry_limit": allocator.RetryLimit(),
	}).Info("listening on port ", port)
	log.Println("Server started successfully")

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

	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

// customErrorLogger is a custom Gin middleware that logs only errors
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
			logger.WithFields(logrus.Fields{
				"correlation_id": cid,
				"method":         c.Request.Method,
				"path":           c.FullPath(),
				"status":         c.Writer.Status(),
			}).Error(c.Errors.String())
		}
	}
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
