package queueing

import (
	"context"
	"errors"
	"net/http"

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
	staffGroup := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	staffGroup.POST("/queues", h.CreateQueue)
	staffGroup.GET("/queues/:id", h.GetQueue)
	staffGroup.POST("/queues/:id/entries", h.Admit)
	staffGroup.POST("/queues/:id/call-next", h.CallNext)
	staffGroup.POST("/queues/:id/reorder", h.Reorder)
	staffGroup.GET("/queues/:id/wait-time", h.WaitTime)
	staffGroup.GET("/entries/:id", h.GetEntry)
	staffGroup.POST("/entries/:id/start-consultation", h.StartConsultation)
	staffGroup.POST("/entries/:id/complete", h.Complete)
	staffGroup.POST("/entries/:id/divert", h.Divert)
	staffGroup.POST("/entries/:id/return", h.Return)
	staffGroup.POST("/entries/:id/cancel", h.Cancel)
	staffGroup.POST("/departments/:id/load-balance", h.LoadBalance)
}

// httpStatus maps domain errors onto response codes.
func httpStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrAlreadyQueued), errors.Is(err, ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrQueueInactive), errors.Is(err, ErrEmptyQueue):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) CreateQueue(c echo.Context) error {
	var q Queue
	if err := c.Bind(&q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateQueue(c.Request().Context(), &q); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, q)
}

func (h *Handler) GetQueue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	q, err := h.svc.Queue(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, q)
}

func (h *Handler) Admit(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	var body struct {
		PatientID uuid.UUID `json:"patient_id"`
	}
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Admit(c.Request().Context(), queueID, body.PatientID)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) CallNext(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	entry, err := h.svc.CallNext(c.Request().Context(), queueID)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Reorder(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	if err := h.svc.ReorderByPriority(c.Request().Context(), queueID); err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) WaitTime(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	minutes, err := h.svc.EstimateWaitTime(c.Request().Context(), queueID)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"estimated_wait_minutes": minutes})
}

func (h *Handler) GetEntry(c echo.Context) error {
	return h.entryOp(c, h.svc.Entry)
}

func (h *Handler) StartConsultation(c echo.Context) error {
	return h.entryOp(c, h.svc.StartConsultation)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.entryOp(c, h.svc.CompleteConsultation)
}

func (h *Handler) Divert(c echo.Context) error {
	return h.entryOp(c, h.svc.DivertToLab)
}

func (h *Handler) Return(c echo.Context) error {
	return h.entryOp(c, h.svc.ReturnFromLab)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.entryOp(c, h.svc.Cancel)
}

func (h *Handler) entryOp(c echo.Context, op func(ctx context.Context, id uuid.UUID) (*QueueEntry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid entry id")
	}
	entry, err := op(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) LoadBalance(c echo.Context) error {
	deptID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid department id")
	}
	moved, err := h.svc.LoadBalance(c.Request().Context(), deptID)
	if err != nil {
		return echo.NewHTTPError(httpStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"moved": moved})
}
