package routes

import (
	"github.com/gin-gonic/gin"

	"scrapmetal_backend/controllers"
	"scrapmetal_backend/middleware"
	"scrapmetal_backend/services"
)

// Dependencies are the wired services the routes are served by
type Dependencies struct {
	Pricing          controllers.PricingService
	Stream           *services.PriceStream
	AdminJWTSecret   string
	ManualTriggerRPM int
}

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	pricingController := controllers.NewPricingController(deps.Pricing)

	router.GET("/health", controllers.Health)

	// Public read-only API
	api := router.Group("/api/v1")
	{
		prices := api.Group("/prices")
		{
			prices.GET("", pricingController.GetPrices)
			if deps.Stream != nil {
				prices.GET("/stream", gin.WrapF(deps.Stream.HandleWebSocket))
			}
			prices.GET("/:metalId", pricingController.GetPrice)
		}

		api.GET("/scheduler/status", pricingController.GetStatus)
	}

	// Host platform cron
	cron := router.Group("/api/cron")
	cron.Use(middleware.AdminAuthMiddleware(deps.AdminJWTSecret, middleware.RoleAdmin, middleware.RoleScheduler))
	{
		cron.POST("/refresh", pricingController.CronRefresh)
	}

	// Admin scheduler controls
	admin := router.Group("/admin/api/scheduler")
	admin.Use(middleware.AdminAuthMiddleware(deps.AdminJWTSecret, middleware.RoleAdmin))
	{
		admin.POST("/start", pricingController.StartScheduler)
		admin.POST("/stop", pricingController.StopScheduler)
		admin.POST("/trigger",
			middleware.RateLimitMiddleware(middleware.NewRateLimiter(deps.ManualTriggerRPM, 1)),
			pricingController.TriggerRefresh,
		)
		admin.PATCH("/config", pricingController.UpdateConfig)
	}
}
