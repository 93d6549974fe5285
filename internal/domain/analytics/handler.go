package analytics

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/smartqueue/smartqueue/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	readGroup.GET("/queues/:id/analytics", h.QueueAnalytics)
	readGroup.GET("/lab-departments/:id/analytics", h.LabAnalytics)
}

func (h *Handler) QueueAnalytics(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	days, _ := strconv.Atoi(c.QueryParam("days"))
	snaps, err := h.svc.RecentQueueSnapshots(c.Request().Context(), id, days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snaps)
}

func (h *Handler) LabAnalytics(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	days, _ := strconv.Atoi(c.QueryParam("days"))
	snaps, err := h.svc.RecentLabSnapshots(c.Request().Context(), id, days)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, snaps)
}
