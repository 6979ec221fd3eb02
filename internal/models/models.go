package models

import (
	"time"
)

// TelegramAccount represents a Telegram account owned by a user. Workers run
// against the account's session file; accounts without a session path (bot
// accounts) cannot run workers.
type TelegramAccount struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID      uint      `json:"user_id" gorm:"not null;index"`
	Name        string    `json:"name" gorm:"type:varchar(255)"`
	Status      string    `json:"status" gorm:"type:varchar(50);not null;default:active"` // active, disabled
	SessionPath string    `json:"session_path" gorm:"type:varchar(512)"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for TelegramAccount
func (TelegramAccount) TableName() string {
	return "telegram_accounts"
}

// ChannelMapping represents a source-chat to destination-chat forwarding rule.
// A mapping is only evaluated when enabled and, if account-scoped, when the
// worker's account matches TelegramAccountID.
type ChannelMapping struct {
	ID                uint               `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID            uint               `json:"user_id" gorm:"not null;index"`
	TelegramAccountID *uint              `json:"telegram_account_id" gorm:"index"`
	SourceChatID      int64              `json:"source_chat_id" gorm:"not null;index"`
	DestChatID        int64              `json:"dest_chat_id" gorm:"not null"`
	SourceChatTitle   string             `json:"source_chat_title" gorm:"type:varchar(255)"`
	DestChatTitle     string             `json:"dest_chat_title" gorm:"type:varchar(255)"`
	Enabled           bool               `json:"enabled" gorm:"default:true"`
	Filters           []MappingFilter    `json:"filters" gorm:"foreignKey:MappingID"`
	Transforms        []MappingTransform `json:"transforms" gorm:"foreignKey:MappingID"`
	Schedule          *MappingSchedule   `json:"schedule" gorm:"foreignKey:MappingID"`
	CreatedAt         time.Time          `json:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// TableName specifies the table name for ChannelMapping
func (ChannelMapping) TableName() string {
	return "channel_mappings"
}

// MappingFilter is one predicate attached to a mapping. A message must satisfy
// every filter of a mapping to be forwarded; within one filter, all set fields
// must hold.
type MappingFilter struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	MappingID    uint   `json:"mapping_id" gorm:"not null;index"`
	IncludeText  string `json:"include_text" gorm:"type:varchar(512)"`
	ExcludeText  string `json:"exclude_text" gorm:"type:varchar(512)"`
	MediaTypes   string `json:"media_types" gorm:"type:varchar(255)"` // comma-separated allow set
	RegexPattern string `json:"regex_pattern" gorm:"type:varchar(512)"`
}

// TableName specifies the table name for MappingFilter
func (MappingFilter) TableName() string {
	return "mapping_filters"
}

// MappingTransform is one ordered rewrite rule. RuleType is one of
// text, regex, emoji, media, template; the payload columns used depend on the
// type. Lower priority runs first, ties broken by id.
type MappingTransform struct {
	ID                 uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	MappingID          uint      `json:"mapping_id" gorm:"not null;index"`
	RuleType           string    `json:"rule_type" gorm:"type:varchar(50);not null"`
	FindText           string    `json:"find_text" gorm:"type:varchar(512)"`
	ReplaceText        string    `json:"replace_text" gorm:"type:text"`
	RegexPattern       string    `json:"regex_pattern" gorm:"type:varchar(512)"`
	RegexFlags         string    `json:"regex_flags" gorm:"type:varchar(10)"`
	ApplyToMediaTypes  string    `json:"apply_to_media_types" gorm:"type:varchar(255)"`
	ReplacementMedia   string    `json:"replacement_media_asset_path" gorm:"column:replacement_media_asset_path;type:varchar(512)"`
	Enabled            bool      `json:"enabled" gorm:"default:true"`
	Priority           int       `json:"priority" gorm:"not null;default:0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// TableName specifies the table name for MappingTransform
func (MappingTransform) TableName() string {
	return "mapping_transforms"
}

// ScheduleWindow holds the 14 optional UTC HH:MM bounds (start/end per
// weekday, Monday first). A window with all fields null is unrestricted.
type ScheduleWindow struct {
	MonStart *string `json:"mon_start_utc" gorm:"type:varchar(5)"`
	MonEnd   *string `json:"mon_end_utc" gorm:"type:varchar(5)"`
	TueStart *string `json:"tue_start_utc" gorm:"type:varchar(5)"`
	TueEnd   *string `json:"tue_end_utc" gorm:"type:varchar(5)"`
	WedStart *string `json:"wed_start_utc" gorm:"type:varchar(5)"`
	WedEnd   *string `json:"wed_end_utc" gorm:"type:varchar(5)"`
	ThuStart *string `json:"thu_start_utc" gorm:"type:varchar(5)"`
	ThuEnd   *string `json:"thu_end_utc" gorm:"type:varchar(5)"`
	FriStart *string `json:"fri_start_utc" gorm:"type:varchar(5)"`
	FriEnd   *string `json:"fri_end_utc" gorm:"type:varchar(5)"`
	SatStart *string `json:"sat_start_utc" gorm:"type:varchar(5)"`
	SatEnd   *string `json:"sat_end_utc" gorm:"type:varchar(5)"`
	SunStart *string `json:"sun_start_utc" gorm:"type:varchar(5)"`
	SunEnd   *string `json:"sun_end_utc" gorm:"type:varchar(5)"`
}

// Weekday returns the (start, end) bounds for weekday (0=Monday .. 6=Sunday).
func (w *ScheduleWindow) Weekday(weekday int) (*string, *string) {
	switch weekday {
	case 0:
		return w.MonStart, w.MonEnd
	case 1:
		return w.TueStart, w.TueEnd
	case 2:
		return w.WedStart, w.WedEnd
	case 3:
		return w.ThuStart, w.ThuEnd
	case 4:
		return w.FriStart, w.FriEnd
	case 5:
		return w.SatStart, w.SatEnd
	case 6:
		return w.SunStart, w.SunEnd
	}
	return nil, nil
}

// IsEmpty reports whether all 14 bounds are null (unrestricted).
func (w *ScheduleWindow) IsEmpty() bool {
	for d := 0; d < 7; d++ {
		start, end := w.Weekday(d)
		if start != nil || end != nil {
			return false
		}
	}
	return true
}

// MappingSchedule is a mapping-level schedule override.
type MappingSchedule struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	MappingID uint           `json:"mapping_id" gorm:"not null;uniqueIndex"`
	Window    ScheduleWindow `json:"window" gorm:"embedded"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name for MappingSchedule
func (MappingSchedule) TableName() string {
	return "mapping_schedules"
}

// UserSchedule is a user-level default schedule, used when a mapping has no
// override of its own.
type UserSchedule struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID    uint           `json:"user_id" gorm:"not null;uniqueIndex"`
	Window    ScheduleWindow `json:"window" gorm:"embedded"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TableName specifies the table name for UserSchedule
func (UserSchedule) TableName() string {
	return "user_schedules"
}

// ReplyIndexEntry threads a forwarded message: it maps a source-chat message
// to the message id it produced in one destination chat, so replies to the
// source message can be sent as replies in the destination. Written once per
// successful delivery, overwritten on conflict.
type ReplyIndexEntry struct {
	ID           uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID       uint      `json:"user_id" gorm:"not null;uniqueIndex:idx_reply_key"`
	SourceChatID int64     `json:"source_chat_id" gorm:"not null;uniqueIndex:idx_reply_key"`
	SourceMsgID  int       `json:"source_msg_id" gorm:"not null;uniqueIndex:idx_reply_key"`
	DestChatID   int64     `json:"dest_chat_id" gorm:"not null;uniqueIndex:idx_reply_key"`
	DestMsgID    int       `json:"dest_msg_id" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName specifies the table name for ReplyIndexEntry
func (ReplyIndexEntry) TableName() string {
	return "reply_index"
}

// RelayLog is one audit entry per delivered message. Writing it is
// best-effort; delivery success is the source of truth.
type RelayLog struct {
	ID              uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	UserID          uint      `json:"user_id" gorm:"not null;index"`
	MappingID       uint      `json:"mapping_id" gorm:"index"`
	SourceChatID    int64     `json:"source_chat_id" gorm:"not null"`
	SourceMsgID     int       `json:"source_msg_id" gorm:"not null"`
	DestChatID      int64     `json:"dest_chat_id" gorm:"not null"`
	DestMsgID       int       `json:"dest_msg_id" gorm:"not null"`
	SourceChatTitle string    `json:"source_chat_title" gorm:"type:varchar(255)"`
	DestChatTitle   string    `json:"dest_chat_title" gorm:"type:varchar(255)"`
	Timestamp       time.Time `json:"timestamp"`
	Status          string    `json:"status" gorm:"type:varchar(50);not null"` // ok
	CreatedAt       time.Time `json:"created_at"`
}

// TableName specifies the table name for RelayLog
func (RelayLog) TableName() string {
	return "relay_logs"
}

// WorkerRegistration is the durable record of a spawned worker process. Rows
// survive supervisor restarts and are the source of truth for what should be
// running; stale rows (dead pid) are pruned before spawning.
type WorkerRegistration struct {
	WorkerID    string    `json:"worker_id" gorm:"primaryKey;type:varchar(50)"`
	UserID      uint      `json:"user_id" gorm:"not null"`
	AccountID   uint      `json:"account_id" gorm:"not null;index"`
	SessionPath string    `json:"session_path" gorm:"type:varchar(512);not null"`
	PID         int       `json:"pid" gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for WorkerRegistration
func (WorkerRegistration) TableName() string {
	return "worker_registry"
}
