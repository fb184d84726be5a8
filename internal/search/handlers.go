package search

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/tunedrift/tunedrift/internal/network"
)

// Handlers provides HTTP handlers for network searches.
type Handlers struct {
	registry *Registry
}

// NewHandlers creates a new search handlers instance.
func NewHandlers(registry *Registry) *Handlers {
	return &Handlers{registry: registry}
}

// RegisterRoutes registers search routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.POST("", h.Start)
	g.GET("/:token", h.Poll)
	g.DELETE("/:token", h.Stop)
}

// StartRequest is the body of a search request.
type StartRequest struct {
	Query  string `json:"query"`
	Artist string `json:"artist,omitempty"`
	Song   string `json:"song,omitempty"`
}

// StartResponse identifies the session a search created.
type StartResponse struct {
	SearchToken network.Token `json:"searchToken"`
	ActualQuery string        `json:"actualQuery"`
}

// Start issues a network search.
// POST /api/v1/search/network
func (h *Handlers) Start(c echo.Context) error {
	var req StartRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	token, actual, err := h.registry.Start(c.Request().Context(), req.Artist, req.Song, req.Query)
	switch {
	case errors.Is(err, ErrNotLoggedIn):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "not logged in to the network")
	case errors.Is(err, ErrEmptyQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, StartResponse{SearchToken: token, ActualQuery: actual})
}

// Poll returns the current results of a search.
// GET /api/v1/search/network/:token
func (h *Handlers) Poll(c echo.Context) error {
	result, _ := h.registry.Poll(network.Token(c.Param("token")))
	return c.JSON(http.StatusOK, result)
}

// Stop ends a search and discards its results.
// DELETE /api/v1/search/network/:token
func (h *Handlers) Stop(c echo.Context) error {
	h.registry.Stop(network.Token(c.Param("token")))
	return c.NoContent(http.StatusNoContent)
}
