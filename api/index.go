package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/config"
	"scrapmetal_backend/routes"
	"scrapmetal_backend/scheduler"
)

var (
	router   *gin.Engine
	initOnce sync.Once
	initErr  error
)

// setup builds the router on first request. Serverless instances do not run
// the in-process timer; the platform cron calls POST /api/cron/refresh.
func setup() {
	cfg, err := config.LoadConfig()
	if err != nil {
		initErr = err
		return
	}
	cfg.ConfigureLogging()

	pricing, err := scheduler.NewFromConfig(cfg, nil)
	if err != nil {
		initErr = err
		return
	}

	gin.SetMode(gin.ReleaseMode)
	router = gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	routes.SetupRoutes(router, routes.Dependencies{
		Pricing:          pricing,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		ManualTriggerRPM: cfg.ManualTriggerRPM,
	})
}

// Handler is the Vercel serverless function handler
func Handler(w http.ResponseWriter, r *http.Request) {
	initOnce.Do(setup)
	if initErr != nil {
		log.WithError(initErr).Error("Serverless handler initialization failed")
		http.Error(w, `{"error":"service unavailable"}`, http.StatusServiceUnavailable)
		return
	}
	router.ServeHTTP(w, r)
}

// corsMiddleware adds CORS headers
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
