package emergency

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/erflow/erflow/internal/domain/patient"
	"github.com/erflow/erflow/internal/platform/gateway"
)

// Handler exposes the coordination service over HTTP.
type Handler struct {
	svc   *Service
	store *patient.Store
}

// NewHandler creates the HTTP handler.
func NewHandler(svc *Service, store *patient.Store) *Handler {
	return &Handler{svc: svc, store: store}
}

// RegisterRoutes mounts the coordination API on the given group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/patients", h.RegisterPatient)
	g.GET("/patients", h.ListPatients)
	g.GET("/patients/:id", h.GetPatient)
	g.POST("/patients/:id/dispatch", h.Dispatch)
	g.POST("/patients/:id/updates", h.SendUpdate)
	g.POST("/patients/:id/approve", h.ApprovePlan)
	g.POST("/patients/:id/first-aid", h.FirstAid)

	g.GET("/views/active-dispatches", h.ViewActiveDispatches)
	g.GET("/views/awaiting-approval", h.ViewAwaitingApproval)
	g.GET("/views/high-severity-inbound", h.ViewHighSeverityInbound)
	g.GET("/views/waiting", h.ViewWaitingRemote)
}

// RegisterPatient handles POST /patients.
func (h *Handler) RegisterPatient(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.RegisterPatient(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}
	if result.NeedsMoreInfo {
		return c.JSON(http.StatusOK, result)
	}
	return c.JSON(http.StatusCreated, result)
}

// ListPatients handles GET /patients.
func (h *Handler) ListPatients(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.List())
}

// GetPatient handles GET /patients/:id.
func (h *Handler) GetPatient(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	got, err := h.svc.Get(id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, got)
}

// dispatchRequest is the JSON body for the dispatch endpoint.
type dispatchRequest struct {
	ETAMinutes int `json:"eta_minutes"`
}

// Dispatch handles POST /patients/:id/dispatch.
func (h *Handler) Dispatch(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req dispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	got, err := h.svc.Dispatch(c.Request().Context(), id, req.ETAMinutes)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, got)
}

// updateRequest is the JSON body for a crew update.
type updateRequest struct {
	Text  string `json:"text"`
	Video string `json:"video,omitempty"`
}

// SendUpdate handles POST /patients/:id/updates.
func (h *Handler) SendUpdate(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req updateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	got, err := h.svc.SendCrewUpdate(c.Request().Context(), id, req.Text, req.Video)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, got)
}

// approveRequest is the JSON body for plan approval.
type approveRequest struct {
	PlanText string `json:"plan_text,omitempty"`
}

// ApprovePlan handles POST /patients/:id/approve.
func (h *Handler) ApprovePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req approveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	got, err := h.svc.ApprovePlan(c.Request().Context(), id, req.PlanText)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, got)
}

// FirstAid handles POST /patients/:id/first-aid.
func (h *Handler) FirstAid(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	got, err := h.svc.FirstAid(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, got)
}

// ViewActiveDispatches handles GET /views/active-dispatches.
func (h *Handler) ViewActiveDispatches(c echo.Context) error {
	return c.JSON(http.StatusOK, ActiveDispatches(h.store))
}

// ViewAwaitingApproval handles GET /views/awaiting-approval.
func (h *Handler) ViewAwaitingApproval(c echo.Context) error {
	return c.JSON(http.StatusOK, AwaitingApproval(h.store))
}

// ViewHighSeverityInbound handles GET /views/high-severity-inbound.
func (h *Handler) ViewHighSeverityInbound(c echo.Context) error {
	return c.JSON(http.StatusOK, HighSeverityInbound(h.store))
}

// ViewWaitingRemote handles GET /views/waiting.
func (h *Handler) ViewWaitingRemote(c echo.Context) error {
	return c.JSON(http.StatusOK, WaitingRemote(h.store))
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid case id")
	}
	return id, nil
}

// mapServiceError converts service and gateway errors to HTTP errors.
func mapServiceError(err error) error {
	switch {
	case errors.Is(err, patient.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, patient.ErrDuplicateID):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrAlreadyDispatched),
		errors.Is(err, ErrNoActiveDispatch),
		errors.Is(err, ErrNotAwaitingApproval):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrMissingNHSNumber),
		errors.Is(err, ErrMissingName),
		errors.Is(err, ErrMissingSymptoms),
		errors.Is(err, ErrMissingUpdateText):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, gateway.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, err.Error())
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, gateway.ErrInvalidResponse):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
