package labs

import (
	"errors"
	"net/http"
	"time"

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
	orderGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	orderGroup.POST("/lab-tests", h.OrderTest)
	orderGroup.POST("/lab-tests/:id/review", h.ReviewTest)
	orderGroup.POST("/lab-tests/:id/cancel", h.CancelTest)

	labGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "technician"))
	labGroup.GET("/lab-tests/:id", h.GetTest)
	labGroup.POST("/lab-tests/:id/schedule", h.ScheduleTest)
	labGroup.POST("/lab-tests/:id/start", h.StartTest)
	labGroup.POST("/lab-tests/:id/complete", h.CompleteTest)
	labGroup.POST("/lab-tests/:id/report", h.ReportResults)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrScheduleConflict):
		return http.StatusConflict
	case errors.Is(err, ErrResourceUnavailable):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) OrderTest(c echo.Context) error {
	var req OrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	test, err := h.svc.OrderTest(c.Request().Context(), req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, test)
}

func (h *Handler) GetTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	test, err := h.svc.Test(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) ScheduleTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		TargetTime time.Time `json:"target_time"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	test, err := h.svc.Test(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	if err := h.svc.ScheduleAt(c.Request().Context(), test, body.TargetTime); err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) StartTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		TechnicianID *uuid.UUID `json:"technician_id,omitempty"`
		EquipmentID  *uuid.UUID `json:"equipment_id,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	test, err := h.svc.StartTest(c.Request().Context(), id, body.TechnicianID, body.EquipmentID)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) CompleteTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var res Results
	if err := c.Bind(&res); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	test, err := h.svc.CompleteTest(c.Request().Context(), id, res)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) ReviewTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Approved       bool       `json:"approved"`
		ReviewerUserID *uuid.UUID `json:"reviewer_user_id,omitempty"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	var reviewer uuid.UUID
	if body.ReviewerUserID != nil {
		reviewer = *body.ReviewerUserID
	} else if id, err := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); err == nil {
		reviewer = id
	} else {
		return echo.NewHTTPError(http.StatusBadRequest, "reviewer_user_id required")
	}
	test, err := h.svc.ReviewTest(c.Request().Context(), id, reviewer, body.Approved)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) ReportResults(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	test, err := h.svc.ReportResults(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}

func (h *Handler) CancelTest(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	test, err := h.svc.CancelTest(c.Request().Context(), id, body.Reason)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, test)
}
