package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/internal/server/routes"
)

func RegisterRoutes(e *echo.Echo, gatherer prometheus.Gatherer) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	apiRoutes := e.Group("/api", middleware.AuthMiddleware)

	// Session routes
	apiRoutes.POST("/sessions", routes.CreateSessionHandler, middleware.RequirePermission("session.create"))

	sessionRoutes := apiRoutes.Group("/sessions/:id", middleware.RequireSession)
	sessionRoutes.GET("", routes.GetSessionHandler)
	sessionRoutes.DELETE("", routes.DeleteSessionHandler)
	sessionRoutes.GET("/graph", routes.GetSessionGraphHandler)
	sessionRoutes.GET("/messages", routes.GetSessionMessagesHandler)
	sessionRoutes.GET("/surface", routes.SurfaceHandler)

	// Exploration routes
	sessionRoutes.POST("/query", routes.QuerySessionHandler)
	sessionRoutes.POST("/tap", routes.TapSessionHandler)
	sessionRoutes.POST("/relayout", routes.RelayoutSessionHandler)
	sessionRoutes.POST("/viewport", routes.ViewportSessionHandler)

	// Knowledge base routes
	sessionRoutes.POST("/relationships", routes.AddRelationshipHandler, middleware.RequirePermission("kb.write"))
	sessionRoutes.DELETE("/relationships", routes.RemoveRelationshipHandler, middleware.RequirePermission("kb.write"))
}
