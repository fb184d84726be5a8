package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/tunedrift/tunedrift/internal/config"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status           string `json:"status"`
	NetworkConnected bool   `json:"networkConnected"`
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{
		Status:           "ok",
		NetworkConnected: s.bridge.LoggedIn(),
	})
}

func (s *Server) getStatus(c echo.Context) error {
	ctx := c.Request().Context()

	songCount := 0
	if paths, err := s.store.SongPaths(ctx); err == nil {
		songCount = len(paths)
	}

	wsClients := 0
	if s.hub != nil {
		wsClients = s.hub.ClientCount()
	}

	return c.JSON(http.StatusOK, map[string]any{
		"version":        config.Version,
		"startTime":      s.startTime.Format(time.RFC3339),
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"system":         s.tracker.System(),
		"songCount":      songCount,
		"searchSessions": s.registry.Len(),
		"wsClients":      wsClients,
	})
}

// RomanizeRequest is the body of POST /romanize.
type RomanizeRequest struct {
	Text string `json:"text"`
}

// RomanizeResponse carries the romanized text.
type RomanizeResponse struct {
	Original  string `json:"original"`
	Romanized string `json:"romanized"`
	Changed   bool   `json:"changed"`
}

func (s *Server) romanize(c echo.Context) error {
	var req RomanizeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	out := s.romanizer.Romanize(req.Text)
	return c.JSON(http.StatusOK, RomanizeResponse{
		Original:  req.Text,
		Romanized: out,
		Changed:   out != req.Text,
	})
}

func (s *Server) rescanShares(c echo.Context) error {
	if !s.bridge.LoggedIn() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "not logged in to the network")
	}
	if err := s.shareRescan.Rescan(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Share rescan requested"})
}

// listActivities returns running and recently finished background activities.
func (s *Server) listActivities(c echo.Context) error {
	return c.JSON(http.StatusOK, s.activities.List())
}
