package catalog

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handlers provides HTTP handlers for catalog searches.
type Handlers struct {
	service *Service
}

// NewHandlers creates a new catalog handlers instance.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers catalog routes on an Echo group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/search", h.Search)
	g.GET("/providers", h.Providers)
}

// SearchResponse is the catalog search payload.
type SearchResponse struct {
	Provider string    `json:"provider"`
	Query    string    `json:"query"`
	Sections []Section `json:"sections"`
}

// Search queries one catalog provider.
// GET /api/v1/catalog/search?provider=&q=
func (h *Handlers) Search(c echo.Context) error {
	provider := c.QueryParam("provider")
	query := c.QueryParam("q")

	sections, err := h.service.Search(c.Request().Context(), provider, query)
	switch {
	case errors.Is(err, ErrEmptyQuery), errors.Is(err, ErrUnknownProvider):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}

	if provider == "" {
		provider = h.service.fallback
	}
	if sections == nil {
		sections = []Section{}
	}
	return c.JSON(http.StatusOK, SearchResponse{Provider: provider, Query: query, Sections: sections})
}

// Providers lists the available catalog providers.
// GET /api/v1/catalog/providers
func (h *Handlers) Providers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.Providers())
}
