package maintenance

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/smartqueue/smartqueue/internal/platform/auth"
)

type Handler struct {
	sweeper *Sweeper
}

func NewHandler(sweeper *Sweeper) *Handler {
	return &Handler{sweeper: sweeper}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	adminGroup := api.Group("", auth.RequireRole("admin"))
	adminGroup.POST("/maintenance/run", h.Run)
}

// Run triggers one sweep. The report is returned even when steps
// failed; callers inspect per-step errors.
func (h *Handler) Run(c echo.Context) error {
	report := h.sweeper.Run(c.Request().Context())
	return c.JSON(http.StatusOK, report)
}
