package hospital

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler exposes the hospital registry over HTTP.
type Handler struct {
	registry *Registry
}

// NewHandler creates the HTTP handler.
func NewHandler(registry *Registry) *Handler {
	return &Handler{registry: registry}
}

// RegisterRoutes mounts the hospital API on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/hospitals", h.ListHospitals)
	g.GET("/hospitals/:id", h.GetHospital)
}

// ListHospitals handles GET /hospitals.
func (h *Handler) ListHospitals(c echo.Context) error {
	return c.JSON(http.StatusOK, h.registry.List())
}

// GetHospital handles GET /hospitals/:id.
func (h *Handler) GetHospital(c echo.Context) error {
	got, err := h.registry.Get(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, got)
}
