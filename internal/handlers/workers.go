package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"telegram-relay-go/internal/models"
	"telegram-relay-go/internal/supervisor"
)

// GetWorkers returns the currently tracked workers.
func (h *Handlers) GetWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, h.supervisor.List())
}

// StartWorker spawns a worker for one account.
func (h *Handlers) StartWorker(c *gin.Context) {
	var req models.WorkerStartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	info, err := h.supervisor.Start(req.AccountID)
	switch {
	case errors.Is(err, supervisor.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Account not found or not active",
			Code:    http.StatusNotFound,
		})
	case errors.Is(err, supervisor.ErrNoSession):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "no_session",
			Message: "Account has no session file; user-session accounts only",
			Code:    http.StatusBadRequest,
		})
	case errors.Is(err, supervisor.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "already_running",
			Message: "A worker is already running for this account",
			Code:    http.StatusConflict,
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "spawn_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
	default:
		c.JSON(http.StatusCreated, info)
	}
}

// StopWorker terminates one worker by id.
func (h *Handlers) StopWorker(c *gin.Context) {
	err := h.supervisor.Stop(c.Param("id"))
	if errors.Is(err, supervisor.ErrWorkerNotFound) {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Worker not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "stop_error",
			Message: err.Error(),
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.Status(http.StatusOK)
}

// RestartWorkers restarts the workers of a user, optionally one account. The
// restart runs in the background; duplicate concurrent requests are benign.
func (h *Handlers) RestartWorkers(c *gin.Context) {
	var req models.WorkerRestartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	go h.supervisor.RestartForAccount(req.UserID, req.AccountID)
	c.Status(http.StatusAccepted)
}
