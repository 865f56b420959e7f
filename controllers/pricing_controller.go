package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"scrapmetal_backend/models"
	"scrapmetal_backend/scheduler"
)

// PricingService is the part of the pricing scheduler the HTTP layer uses
type PricingService interface {
	Start()
	Stop()
	Status() models.SchedulerStatus
	CachedPrices() []models.PriceRecord
	PriceForMetal(metalID string) (models.PriceRecord, bool)
	TriggerManualScraping(ctx context.Context) (*models.CycleResult, error)
	RunExternal(ctx context.Context) (*models.CycleResult, error)
	UpdateConfig(update models.ScheduleConfigUpdate) (models.ScheduleConfig, error)
}

// PricingController handles national price and scheduler requests
type PricingController struct {
	pricing PricingService
}

// NewPricingController creates a new pricing controller
func NewPricingController(pricing PricingService) *PricingController {
	return &PricingController{pricing: pricing}
}

// GetPrices returns the cached national prices
// GET /api/v1/prices
func (pc *PricingController) GetPrices(c *gin.Context) {
	prices := pc.pricing.CachedPrices()
	status := pc.pricing.Status()

	c.JSON(http.StatusOK, gin.H{
		"prices":   prices,
		"count":    len(prices),
		"source":   status.Source,
		"stale":    status.Stale,
		"last_run": status.LastRun,
	})
}

// GetPrice returns one cached price by metal id
// GET /api/v1/prices/:metalId
func (pc *PricingController) GetPrice(c *gin.Context) {
	price, ok := pc.pricing.PriceForMetal(c.Param("metalId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Price not found"})
		return
	}
	c.JSON(http.StatusOK, price)
}

// GetStatus returns the scheduler status
// GET /api/v1/scheduler/status
func (pc *PricingController) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, pc.pricing.Status())
}

// StartScheduler starts the periodic check
// POST /admin/api/scheduler/start
func (pc *PricingController) StartScheduler(c *gin.Context) {
	pc.pricing.Start()
	c.JSON(http.StatusOK, pc.pricing.Status())
}

// StopScheduler stops the periodic check
// POST /admin/api/scheduler/stop
func (pc *PricingController) StopScheduler(c *gin.Context) {
	pc.pricing.Stop()
	c.JSON(http.StatusOK, pc.pricing.Status())
}

// TriggerRefresh runs one refresh cycle immediately
// POST /admin/api/scheduler/trigger
func (pc *PricingController) TriggerRefresh(c *gin.Context) {
	result, err := pc.pricing.TriggerManualScraping(c.Request.Context())
	pc.respondCycle(c, result, err)
}

// CronRefresh runs one cycle on behalf of the host platform scheduler
// POST /api/cron/refresh
func (pc *PricingController) CronRefresh(c *gin.Context) {
	result, err := pc.pricing.RunExternal(c.Request.Context())
	pc.respondCycle(c, result, err)
}

// UpdateConfig applies a partial schedule update
// PATCH /admin/api/scheduler/config
func (pc *PricingController) UpdateConfig(c *gin.Context) {
	var update models.ScheduleConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	cfg, err := pc.pricing.UpdateConfig(update)
	if err != nil {
		if errors.Is(err, scheduler.ErrConfigInvalid) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
				"hint":  errors.FlattenHints(err),
			})
			return
		}
		log.WithError(err).Error("Schedule update failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update schedule"})
		return
	}

	c.JSON(http.StatusOK, cfg)
}

func (pc *PricingController) respondCycle(c *gin.Context, result *models.CycleResult, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case errors.Is(err, scheduler.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "Refresh already in progress"})
	case errors.Is(err, scheduler.ErrFetchFailed):
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "No price data available",
			"details": err.Error(),
		})
	default:
		log.WithError(err).Error("Price refresh failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Price refresh failed"})
	}
}

// Health is the liveness probe
// GET /health
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
