package transfers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/tunedrift/tunedrift/internal/network"
)

// Handlers provides HTTP handlers for downloads.
type Handlers struct {
	tracker *Tracker
}

// NewHandlers creates a new downloads handlers instance.
func NewHandlers(tracker *Tracker) *Handlers {
	return &Handlers{tracker: tracker}
}

// RegisterRoutes registers download routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Request)
	g.GET("/status", h.List)
	g.GET("/status/:identity", h.Get)
	g.POST("/:identity/cancel", h.Cancel)
}

// Request enqueues a download.
// POST /api/v1/downloads
func (h *Handlers) Request(c echo.Context) error {
	var req Request
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	record, err := h.tracker.Request(c.Request().Context(), req)
	if err != nil {
		return requestError(err)
	}
	return c.JSON(http.StatusAccepted, record)
}

// List returns active downloads with their status.
// GET /api/v1/downloads/status
func (h *Handlers) List(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"downloads":    h.tracker.Active(),
		"systemStatus": h.tracker.System(),
	})
}

// Get returns the status of one download.
// GET /api/v1/downloads/status/:identity
func (h *Handlers) Get(c echo.Context) error {
	identity, err := identityParam(c)
	if err != nil {
		return requestError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"identity": identity,
		"status":   h.tracker.Status(identity),
	})
}

// Cancel aborts a download.
// POST /api/v1/downloads/:identity/cancel
func (h *Handlers) Cancel(c echo.Context) error {
	identity, err := identityParam(c)
	if err != nil {
		return requestError(err)
	}
	if err := h.tracker.Cancel(c.Request().Context(), identity); err != nil {
		return requestError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "cancelled", "identity": identity})
}

// identityParam reads and validates the identity path parameter. Echo routes
// on the raw path when the request carried escapes it cannot represent, such
// as %2F.
func identityParam(c echo.Context) (string, error) {
	identity := c.Param("identity")
	if c.Request().URL.RawPath != "" {
		unescaped, err := url.PathUnescape(identity)
		if err != nil {
			return "", network.ErrMalformedIdentity
		}
		identity = unescaped
	}
	if _, _, err := network.ParseIdentity(identity); err != nil {
		return "", err
	}
	return identity, nil
}

func requestError(err error) error {
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "not logged in to the network")
	case errors.Is(err, network.ErrMalformedIdentity):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
