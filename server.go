package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/davidprivate500/gonthia-crm-sub001/config"
	"github.com/davidprivate500/gonthia-crm-sub001/models"
	"github.com/davidprivate500/gonthia-crm-sub001/utils"
	"github.com/davidprivate500/gonthia-crm-sub001/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

const defaultPort = "8080"

var tracer = otel.Tracer("gonthia-crm/demo-http")

func listenPort() string {
	for _, key := range []string{"API_PORT", "PORT"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			return v
		}
	}
	return defaultPort
}

func main() {
	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The port opens before the database is reachable; demo routes answer 503 until
	// the service is wired.
	srv := &http.Server{
		Addr:              ":" + listenPort(),
		Handler:           newRouter(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()

	db := config.GetDB()
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if strings.EqualFold(strings.TrimSpace(os.Getenv("SKIP_MIGRATIONS")), "true") {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; demo tables are not migrated on startup")
	} else {
		models.MigrateTable()
	}

	svc := newDemoService(db, logger)
	setDemoService(svc)

	dispatcherCtx, cancelDispatcher := context.WithCancel(context.Background())
	defer cancelDispatcher()
	if config.DemoGeneratorEnabled() {
		go workflow.NewDemoDispatcher(db, logger, svc.Generator, svc.Patches).Run(dispatcherCtx)
	}

	logger.WithFields(logrus.Fields{
		"addr":          srv.Addr,
		"demo_enabled":  config.DemoGeneratorEnabled(),
		"redis_enabled": config.GetRedisDB() != nil,
	}).Info("demo generator service ready")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Stop dispatching before draining so no new step starts mid-shutdown.
	cancelDispatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}

func newRouter(logger *logrus.Logger) *gin.Engine {
	r := gin.New()
	r.Use(correlationID(), cors.New(corsConfigFromEnv()))
	if limiter := rateLimiterFromEnv(); limiter != nil {
		r.Use(limiter.Middleware)
	}
	r.Use(customErrorLogger(logger), gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	if config.DemoGeneratorEnabled() {
		registerDemoRoutes(r.Group("/internal/demo", requireDemoService, internalAuth()))
	}
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}

func correlationID() gin.HandlerFunc {
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

func requireDemoService(c *gin.Context) {
	if currentDemoService() == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "demo generator is starting"})
		return
	}
	c.Next()
}

// corsConfigFromEnv allows every origin outside production. In production only
// CORS_ALLOWED_ORIGINS (comma-separated) is allowed.
func corsConfigFromEnv() cors.Config {
	cfg := cors.DefaultConfig()
	if isProduction() {
		cfg.AllowOrigins = splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"))
		if len(cfg.AllowOrigins) == 0 {
			cfg.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", internalTokenHeader, "X-Requested-By", "x-correlation-id")
	cfg.AddExposeHeaders("Content-Length", "Content-Disposition", "x-correlation-id")
	return cfg
}

// customErrorLogger logs the errors handlers attached with c.Error.
func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 {
			return
		}
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"path":           c.FullPath(),
			"status":         c.Writer.Status(),
			"correlation_id": cid,
		}).Error(c.Errors.String())
	}
}

// RateLimiter is a fixed-window per-client limiter kept in Redis.
type RateLimiter struct {
	client func() *redis.Client
	limit  int64
	window time.Duration
}

// rateLimiterFromEnv returns nil unless RATE_LIMIT_ENABLED=true.
//
// Env:
// - RATE_LIMIT_WINDOW_SECONDS=60
// - RATE_LIMIT_MAX_REQUESTS=600
func rateLimiterFromEnv() *RateLimiter {
	if !strings.EqualFold(strings.TrimSpace(os.Getenv("RATE_LIMIT_ENABLED")), "true") {
		return nil
	}
	limit := positiveFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)
	window := positiveFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	return NewRateLimiter(config.GetRedisDB, limit, time.Duration(window)*time.Second)
}

func positiveFromEnv(key string, def int64) int64 {
	if n, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64); err == nil && n > 0 {
		return n
	}
	return def
}

// NewRateLimiter reads the client on every request because Redis connects after the
// router is built.
func NewRateLimiter(client func() *redis.Client, limit int64, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: limit, window: window}
}

// Middleware lets requests through when Redis is unavailable.
func (rl *RateLimiter) Middleware(c *gin.Context) {
	client := rl.client()
	if client == nil {
		c.Next()
		return
	}
	ctx := c.Request.Context()
	key := "demo-ratelimit:" + c.ClientIP()
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		_ = c.Error(fmt.Errorf("rate limit: %w", err))
		c.Next()
		return
	}
	if count == 1 {
		client.Expire(ctx, key, rl.window)
	}
	if count > rl.limit {
		c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": fmt.Sprintf("rate limit exceeded, retry in %d seconds", int(rl.window.Seconds())),
		})
		return
	}
	c.Next()
}

func isProduction() bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv("GO_ENV")), "production")
}

func splitAndTrim(csv string) []string {
	var out []string
	for _, p := range strings.Split(csv, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
