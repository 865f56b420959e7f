package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"scrapmetal_backend/config"
	"scrapmetal_backend/routes"
	"scrapmetal_backend/scheduler"
)

var rootCmd = &cobra.Command{
	Use:   "scrapmetal",
	Short: "Scrap metal national pricing service",
	Long: `Keeps a cache of national scrap metal prices fresh.

Prices are fetched once a week from the pricing interface, normalized and
served to the mobile app over HTTP and a websocket stream.

Examples:
  scrapmetal              # Start the API server (same as serve)
  scrapmetal refresh      # Run one refresh cycle and print the result
  scrapmetal next-run     # Print the next scheduled refresh`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and the weekly scheduler",
	RunE:  runServe,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Run one refresh cycle and print the result as JSON",
	RunE:  runRefresh,
}

var nextRunCmd = &cobra.Command{
	Use:   "next-run",
	Short: "Print the next scheduled refresh time",
	RunE:  runNextRun,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(nextRunCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.ConfigureLogging()
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Info("Scrap metal pricing API starting")

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := newApplication(cfg, true)
	if err != nil {
		return err
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.Use(requestLogger())

	routes.SetupRoutes(router, routes.Dependencies{
		Pricing:          app.scheduler,
		Stream:           app.stream,
		AdminJWTSecret:   cfg.AdminJWTSecret,
		ManualTriggerRPM: cfg.ManualTriggerRPM,
	})

	server := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Server error")
		}
	}()

	if cfg.AutoStart {
		app.scheduler.Start()
	}

	gracefulShutdown(server, app)
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, false)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, cancel := context.WithTimeout(cmd.Context(), scheduler.CycleTimeoutFor(cfg))
	defer cancel()

	result, err := app.scheduler.RunExternal(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func runNextRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app, err := newApplication(cfg, false)
	if err != nil {
		return err
	}
	defer app.close()

	schedule := app.scheduler.Status().ScheduleConfig
	next, err := scheduler.NextRunAfter(schedule, time.Now())
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", next.Format(time.RFC1123), next.UTC().Format(time.RFC3339))
	return err
}

// corsMiddleware returns a CORS middleware handler
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// requestLogger logs errors and slow requests
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		entry := log.WithFields(log.Fields{
			"method":   c.Request.Method,
			"path":     path,
			"status":   c.Writer.Status(),
			"duration": duration,
			"ip":       c.ClientIP(),
		})
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		case c.Writer.Status() >= 400 || duration > time.Second:
			entry.Warn("Request")
		default:
			entry.Debug("Request")
		}
	}
}

// gracefulShutdown waits for SIGINT/SIGTERM then stops the scheduler and the server
func gracefulShutdown(server *http.Server, app *application) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	sig := <-quit
	log.WithField("signal", sig.String()).Info("Shutting down gracefully")

	app.close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Server forced to shutdown")
	}

	log.Info("Server shutdown completed")
}
