// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dispatch/internal/http/handlers"
	"dispatch/internal/http/middleware"
)

func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	pickupHandler := handlers.NewPickupHandler(deps.Assignment, deps.Location)
	r.POST("/api/pickups", pickupHandler.Create)
	r.GET("/api/pickups/nearby", pickupHandler.Nearby)
	r.POST("/api/pickups/batch-assign", pickupHandler.BatchAssign)
	r.GET("/api/pickups/:id", pickupHandler.Get)
	r.POST("/api/pickups/:id/assign", pickupHandler.Assign)
	r.POST("/api/pickups/:id/status", pickupHandler.UpdateStatus)

	workerHandler := handlers.NewWorkerHandler(deps.Location, deps.Schedule)
	r.GET("/api/workers/nearby", workerHandler.Nearby)
	r.PUT("/api/workers/:id", workerHandler.Upsert)
	r.POST("/api/workers/:id/location", workerHandler.UpdateLocation)
	r.POST("/api/workers/:id/availability", workerHandler.SetAvailability)
	r.GET("/api/workers/:id/schedule", workerHandler.Schedule)
	r.POST("/api/workers/:id/reoptimize", workerHandler.Reoptimize)
	r.GET("/api/workers/:id/optimized-pickups", workerHandler.OptimizedPickups)

	routeHandler := handlers.NewRouteHandler(deps.Location)
	r.POST("/api/routes/optimize", routeHandler.Optimize)

	analyticsHandler := handlers.NewAnalyticsHandler(deps.Analytics, deps.Location)
	r.GET("/api/analytics/scheduling", analyticsHandler.Scheduling)
	r.GET("/api/analytics/coverage-gaps", analyticsHandler.CoverageGaps)

	wsHandler := handlers.NewWSHandler(deps.Hub, deps.Assignment, deps.AllowedOrigins)
	r.GET("/ws/:family/:id", wsHandler.Subscribe)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	return r
}
