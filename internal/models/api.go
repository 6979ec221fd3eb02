package models

import "time"

// MappingRequest represents the request structure for creating/updating
// channel mappings. Nested filters and transforms replace the existing sets.
type MappingRequest struct {
	UserID            uint               `json:"user_id" binding:"required"`
	TelegramAccountID *uint              `json:"telegram_account_id"`
	SourceChatID      int64              `json:"source_chat_id" binding:"required"`
	DestChatID        int64              `json:"dest_chat_id" binding:"required"`
	SourceChatTitle   string             `json:"source_chat_title"`
	DestChatTitle     string             `json:"dest_chat_title"`
	Enabled           *bool              `json:"enabled"`
	Filters           []FilterPayload    `json:"filters"`
	Transforms        []TransformPayload `json:"transforms"`
	Schedule          *ScheduleWindow    `json:"schedule"`
}

// FilterPayload is one filter in a mapping request.
type FilterPayload struct {
	IncludeText  string `json:"include_text"`
	ExcludeText  string `json:"exclude_text"`
	MediaTypes   string `json:"media_types"`
	RegexPattern string `json:"regex_pattern"`
}

// TransformPayload is one transform rule in a mapping request.
type TransformPayload struct {
	RuleType          string `json:"rule_type" binding:"required"`
	FindText          string `json:"find_text"`
	ReplaceText       string `json:"replace_text"`
	RegexPattern      string `json:"regex_pattern"`
	RegexFlags        string `json:"regex_flags"`
	ApplyToMediaTypes string `json:"apply_to_media_types"`
	ReplacementMedia  string `json:"replacement_media_asset_path"`
	Enabled           *bool  `json:"enabled"`
	Priority          int    `json:"priority"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Workers   int               `json:"workers"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// WorkerStartRequest identifies the account to start a worker for.
type WorkerStartRequest struct {
	AccountID uint `json:"account_id" binding:"required"`
}

// WorkerRestartRequest restarts workers for a user, optionally scoped to one
// account.
type WorkerRestartRequest struct {
	UserID    uint  `json:"user_id" binding:"required"`
	AccountID *uint `json:"account_id"`
}
