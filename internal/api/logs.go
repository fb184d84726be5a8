package api

import (
	"net/http"
	"os"

	"github.com/labstack/echo/v4"

	"github.com/tunedrift/tunedrift/internal/logger"
)

// LogsProvider provides access to log data.
type LogsProvider interface {
	GetRecentLogs() []logger.LogEntry
	GetLogFilePath() string
}

// LogsHandlers handles log-related HTTP endpoints.
type LogsHandlers struct {
	server *Server
}

// NewLogsHandlers creates a new logs handlers instance. The provider is read
// from the server on each request so it can be attached after routing.
func NewLogsHandlers(s *Server) *LogsHandlers {
	return &LogsHandlers{server: s}
}

// RegisterRoutes registers log routes on the given group.
func (h *LogsHandlers) RegisterRoutes(g *echo.Group) {
	g.GET("", h.GetRecentLogs)
	g.GET("/download", h.DownloadLogFile)
}

// GetRecentLogs returns recent log entries from the ring buffer.
// GET /api/v1/system/logs
func (h *LogsHandlers) GetRecentLogs(c echo.Context) error {
	var logs []logger.LogEntry
	if p := h.server.logs; p != nil {
		logs = p.GetRecentLogs()
	}
	if logs == nil {
		logs = []logger.LogEntry{}
	}
	return c.JSON(http.StatusOK, logs)
}

// DownloadLogFile serves the current log file for download.
// GET /api/v1/system/logs/download
func (h *LogsHandlers) DownloadLogFile(c echo.Context) error {
	p := h.server.logs
	if p == nil || p.GetLogFilePath() == "" {
		return echo.NewHTTPError(http.StatusNotFound, "no log file configured")
	}

	logPath := p.GetLogFilePath()
	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return echo.NewHTTPError(http.StatusNotFound, "log file not found")
	}

	return c.Attachment(logPath, "tunedrift.log")
}
