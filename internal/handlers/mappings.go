package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"telegram-relay-go/internal/models"
)

// GetMappings returns all channel mappings, optionally scoped to one user.
func (h *Handlers) GetMappings(c *gin.Context) {
	query := h.db.Preload("Filters").Preload("Transforms").Preload("Schedule")
	if userID := c.Query("user_id"); userID != "" {
		query = query.Where("user_id = ?", userID)
	}

	var mappings []models.ChannelMapping
	if err := query.Find(&mappings).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch mappings",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, mappings)
}

// CreateMapping creates a new channel mapping with its filters, transforms,
// and schedule, then restarts the affected workers so it takes effect.
func (h *Handlers) CreateMapping(c *gin.Context) {
	var req models.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	mapping := mappingFromRequest(req)
	if err := h.db.Create(&mapping).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create mapping",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	go h.supervisor.RestartForAccount(mapping.UserID, mapping.TelegramAccountID)
	c.JSON(http.StatusCreated, mapping)
}

// GetMapping returns a single mapping by ID
func (h *Handlers) GetMapping(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var mapping models.ChannelMapping
	err := h.db.Preload("Filters").Preload("Transforms").Preload("Schedule").
		First(&mapping, id).Error
	if err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Mapping not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	c.JSON(http.StatusOK, mapping)
}

// UpdateMapping replaces a mapping and its rule sets.
func (h *Handlers) UpdateMapping(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req models.MappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	var existing models.ChannelMapping
	if err := h.db.First(&existing, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Mapping not found",
			Code:    http.StatusNotFound,
		})
		return
	}

	mapping := mappingFromRequest(req)
	mapping.ID = existing.ID
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("mapping_id = ?", existing.ID).Delete(&models.MappingFilter{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mapping_id = ?", existing.ID).Delete(&models.MappingTransform{}).Error; err != nil {
			return err
		}
		if err := tx.Where("mapping_id = ?", existing.ID).Delete(&models.MappingSchedule{}).Error; err != nil {
			return err
		}
		return tx.Session(&gorm.Session{FullSaveAssociations: true}).Save(&mapping).Error
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update mapping",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	go h.supervisor.RestartForAccount(mapping.UserID, mapping.TelegramAccountID)
	c.JSON(http.StatusOK, mapping)
}

// DeleteMapping removes a mapping and its rule sets.
func (h *Handlers) DeleteMapping(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var mapping models.ChannelMapping
	if err := h.db.First(&mapping, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Mapping not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	err := h.db.Select("Filters", "Transforms", "Schedule").Delete(&mapping).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to delete mapping",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	go h.supervisor.RestartForAccount(mapping.UserID, mapping.TelegramAccountID)
	c.Status(http.StatusNoContent)
}

// EnableMapping enables a mapping
func (h *Handlers) EnableMapping(c *gin.Context) {
	h.setMappingEnabled(c, true)
}

// DisableMapping disables a mapping
func (h *Handlers) DisableMapping(c *gin.Context) {
	h.setMappingEnabled(c, false)
}

func (h *Handlers) setMappingEnabled(c *gin.Context, enabled bool) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var mapping models.ChannelMapping
	if err := h.db.First(&mapping, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "Mapping not found",
			Code:    http.StatusNotFound,
		})
		return
	}
	if err := h.db.Model(&mapping).Update("enabled", enabled).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to update mapping",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	go h.supervisor.RestartForAccount(mapping.UserID, mapping.TelegramAccountID)
	c.JSON(http.StatusOK, mapping)
}

func paramID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_id",
			Message: "Invalid mapping ID",
			Code:    http.StatusBadRequest,
		})
		return 0, false
	}
	return id, true
}

func mappingFromRequest(req models.MappingRequest) models.ChannelMapping {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	mapping := models.ChannelMapping{
		UserID:            req.UserID,
		TelegramAccountID: req.TelegramAccountID,
		SourceChatID:      req.SourceChatID,
		DestChatID:        req.DestChatID,
		SourceChatTitle:   req.SourceChatTitle,
		DestChatTitle:     req.DestChatTitle,
		Enabled:           enabled,
	}
	for _, f := range req.Filters {
		mapping.Filters = append(mapping.Filters, models.MappingFilter{
			IncludeText:  f.IncludeText,
			ExcludeText:  f.ExcludeText,
			MediaTypes:   f.MediaTypes,
			RegexPattern: f.RegexPattern,
		})
	}
	for _, tr := range req.Transforms {
		trEnabled := true
		if tr.Enabled != nil {
			trEnabled = *tr.Enabled
		}
		mapping.Transforms = append(mapping.Transforms, models.MappingTransform{
			RuleType:          tr.RuleType,
			FindText:          tr.FindText,
			ReplaceText:       tr.ReplaceText,
			RegexPattern:      tr.RegexPattern,
			RegexFlags:        tr.RegexFlags,
			ApplyToMediaTypes: tr.ApplyToMediaTypes,
			ReplacementMedia:  tr.ReplacementMedia,
			Enabled:           trEnabled,
			Priority:          tr.Priority,
		})
	}
	if req.Schedule != nil {
		mapping.Schedule = &models.MappingSchedule{Window: *req.Schedule}
	}
	return mapping
}
