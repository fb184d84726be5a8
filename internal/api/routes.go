package api

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tunedrift/tunedrift/internal/api/handlers"
	"github.com/tunedrift/tunedrift/internal/catalog"
	"github.com/tunedrift/tunedrift/internal/coverart"
	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/search"
	"github.com/tunedrift/tunedrift/internal/transfers"
)

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.Static(coverart.URLPrefix, s.cfg.Library.CoversDir)

	// WebSocket endpoints
	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}
	s.echo.GET("/ws/search/:clientID", s.sockets.HandleWebSocket)

	api := s.echo.Group("/api/v1")

	// System routes
	api.GET("/health", s.healthCheck)
	api.GET("/status", s.getStatus)
	api.POST("/romanize", s.romanize)
	api.POST("/sharing/rescan", s.rescanShares)
	api.GET("/activities", s.listActivities)

	system := api.Group("/system")
	NewLogsHandlers(s).RegisterRoutes(system.Group("/logs"))

	schedulerHandler := handlers.NewSchedulerHandler(s.scheduler)
	schedulerGroup := api.Group("/scheduler")
	schedulerGroup.GET("/tasks", schedulerHandler.ListTasks)
	schedulerGroup.GET("/tasks/:id", schedulerHandler.GetTask)
	schedulerGroup.POST("/tasks/:id/run", schedulerHandler.RunTask)

	// Network search and downloads
	search.NewHandlers(s.registry).RegisterRoutes(api.Group("/search/network"))
	transfers.NewHandlers(s.tracker).RegisterRoutes(api.Group("/downloads"))

	// Catalog search
	catalog.NewHandlers(s.catalog).RegisterRoutes(api.Group("/catalog"))

	// Library and playlists
	libraryHandlers := library.NewHandlers(s.store, s.syncer, s.pipeline)
	libraryHandlers.RegisterRoutes(api.Group("/library"))
	libraryHandlers.RegisterPlaylistRoutes(api.Group("/playlists"))
}
