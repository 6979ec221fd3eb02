package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"telegram-relay-go/internal/models"
)

// GetLogs returns recent relay logs, newest first.
func (h *Handlers) GetLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			limit = parsed
		}
	}

	query := h.db.Order("created_at desc").Limit(limit)
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var logs []models.RelayLog
	if err := query.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch logs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetLog returns a single relay log by ID
func (h *Handlers) GetLog(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid log ID", Code: http.StatusBadRequest})
		return
	}
	var log models.RelayLog
	if err := h.db.First(&log, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Log not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, log)
}
