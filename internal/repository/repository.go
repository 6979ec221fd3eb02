package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"telegram-relay-go/internal/models"
	"telegram-relay-go/internal/relay"
	"telegram-relay-go/internal/rules"
)

// Repository is the data access layer shared by the control plane and the
// worker processes. Workers only read mapping snapshots and write the reply
// index and relay log; the control plane additionally owns the worker
// registry.
type Repository struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// ListEnabledMappings loads the enabled mappings of a user with their
// filters, ordered transforms, and resolved schedule in one batched query
// set. When accountID is set, only mappings bound to that account or to no
// account are returned. The result is the immutable snapshot a worker keeps
// for its lifetime.
func (r *Repository) ListEnabledMappings(userID uint, accountID *uint) ([]relay.Mapping, error) {
	query := r.db.
		Preload("Filters").
		Preload("Transforms", func(db *gorm.DB) *gorm.DB {
			return db.Order("priority ASC, id ASC")
		}).
		Preload("Schedule").
		Where("user_id = ? AND enabled = ?", userID, true)
	if accountID != nil {
		query = query.Where("telegram_account_id IS NULL OR telegram_account_id = ?", *accountID)
	}

	var rows []models.ChannelMapping
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list enabled mappings: %w", err)
	}

	userDefault, err := r.userSchedule(userID)
	if err != nil {
		return nil, err
	}

	mappings := make([]relay.Mapping, 0, len(rows))
	for _, row := range rows {
		mappings = append(mappings, relay.Mapping{
			ID:              row.ID,
			UserID:          row.UserID,
			SourceChatID:    row.SourceChatID,
			DestChatID:      row.DestChatID,
			SourceChatTitle: row.SourceChatTitle,
			DestChatTitle:   row.DestChatTitle,
			Filters:         convertFilters(row.Filters),
			Transforms:      convertTransforms(row.Transforms),
			Schedule:        resolveSchedule(row.Schedule, userDefault),
		})
	}
	return mappings, nil
}

// userSchedule fetches the user-level default schedule, nil if absent.
func (r *Repository) userSchedule(userID uint) (*rules.Schedule, error) {
	var row models.UserSchedule
	err := r.db.Where("user_id = ?", userID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user schedule: %w", err)
	}
	return scheduleFromWindow(row.Window), nil
}

// resolveSchedule applies the resolution order: mapping-level override when
// any field is set, else the user default, else unrestricted.
func resolveSchedule(override *models.MappingSchedule, userDefault *rules.Schedule) *rules.Schedule {
	if override != nil && !override.Window.IsEmpty() {
		return scheduleFromWindow(override.Window)
	}
	return userDefault
}

func scheduleFromWindow(window models.ScheduleWindow) *rules.Schedule {
	schedule := &rules.Schedule{}
	for day := 0; day < 7; day++ {
		start, end := window.Weekday(day)
		schedule.Days[day] = rules.Bounds{Start: start, End: end}
	}
	return schedule
}

func convertFilters(rows []models.MappingFilter) []rules.Filter {
	filters := make([]rules.Filter, 0, len(rows))
	for _, row := range rows {
		filters = append(filters, rules.Filter{
			IncludeText:  row.IncludeText,
			ExcludeText:  row.ExcludeText,
			MediaTypes:   row.MediaTypes,
			RegexPattern: row.RegexPattern,
		})
	}
	return filters
}

func convertTransforms(rows []models.MappingTransform) []rules.Transform {
	transforms := make([]rules.Transform, 0, len(rows))
	for _, row := range rows {
		transforms = append(transforms, rules.Transform{
			ID:        row.ID,
			Kind:      rules.TransformKind(row.RuleType),
			Enabled:   row.Enabled,
			Priority:  row.Priority,
			Scope:     row.ApplyToMediaTypes,
			Find:      row.FindText,
			Replace:   row.ReplaceText,
			Pattern:   row.RegexPattern,
			Flags:     row.RegexFlags,
			AssetPath: row.ReplacementMedia,
		})
	}
	rules.SortTransforms(transforms)
	return transforms
}

// Lookup implements relay.ReplyIndex.
func (r *Repository) Lookup(ctx context.Context, userID uint, sourceChatID int64, sourceMsgID int, destChatID int64) (int, bool, error) {
	var entry models.ReplyIndexEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND source_chat_id = ? AND source_msg_id = ? AND dest_chat_id = ?",
			userID, sourceChatID, sourceMsgID, destChatID).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("reply index lookup failed: %w", err)
	}
	return entry.DestMsgID, true, nil
}

// Save implements relay.ReplyIndex as an upsert on the composite key, so an
// idempotent resend overwrites rather than duplicates.
func (r *Repository) Save(ctx context.Context, userID uint, sourceChatID int64, sourceMsgID int, destChatID int64, destMsgID int) error {
	entry := models.ReplyIndexEntry{
		UserID:       userID,
		SourceChatID: sourceChatID,
		SourceMsgID:  sourceMsgID,
		DestChatID:   destChatID,
		DestMsgID:    destMsgID,
		CreatedAt:    time.Now(),
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "user_id"}, {Name: "source_chat_id"}, {Name: "source_msg_id"}, {Name: "dest_chat_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"dest_msg_id"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to save reply index entry: %w", err)
	}
	return nil
}

// Insert implements relay.AuditLog.
func (r *Repository) Insert(ctx context.Context, entry relay.AuditEntry) error {
	row := models.RelayLog{
		UserID:          entry.UserID,
		MappingID:       entry.MappingID,
		SourceChatID:    entry.SourceChatID,
		SourceMsgID:     entry.SourceMsgID,
		DestChatID:      entry.DestChatID,
		DestMsgID:       entry.DestMsgID,
		SourceChatTitle: entry.SourceChatTitle,
		DestChatTitle:   entry.DestChatTitle,
		Timestamp:       entry.Timestamp,
		Status:          entry.Status,
		CreatedAt:       time.Now(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to insert relay log: %w", err)
	}
	return nil
}

// GetActiveAccount returns an active account by id.
func (r *Repository) GetActiveAccount(accountID uint) (*models.TelegramAccount, error) {
	var account models.TelegramAccount
	err := r.db.Where("id = ? AND status = ?", accountID, "active").First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	return &account, nil
}

// ListActiveAccountsForUser returns a user's active accounts that have a
// usable session path.
func (r *Repository) ListActiveAccountsForUser(userID uint) ([]models.TelegramAccount, error) {
	var accounts []models.TelegramAccount
	err := r.db.
		Where("user_id = ? AND status = ? AND session_path IS NOT NULL AND session_path != ''", userID, "active").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ListRegistrations returns all durable worker registrations.
func (r *Repository) ListRegistrations() ([]models.WorkerRegistration, error) {
	var regs []models.WorkerRegistration
	if err := r.db.Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list worker registrations: %w", err)
	}
	return regs, nil
}

// ListRegistrationsByAccount returns the durable registrations for one account.
func (r *Repository) ListRegistrationsByAccount(accountID uint) ([]models.WorkerRegistration, error) {
	var regs []models.WorkerRegistration
	if err := r.db.Where("account_id = ?", accountID).Find(&regs).Error; err != nil {
		return nil, fmt.Errorf("failed to list worker registrations: %w", err)
	}
	return regs, nil
}

// CreateRegistration records a spawned worker in the durable registry.
func (r *Repository) CreateRegistration(reg *models.WorkerRegistration) error {
	if err := r.db.Create(reg).Error; err != nil {
		return fmt.Errorf("failed to create worker registration: %w", err)
	}
	return nil
}

// DeleteRegistration removes a worker from the durable registry.
func (r *Repository) DeleteRegistration(workerID string) error {
	if err := r.db.Delete(&models.WorkerRegistration{}, "worker_id = ?", workerID).Error; err != nil {
		return fmt.Errorf("failed to delete worker registration: %w", err)
	}
	return nil
}

// PurgeOldRelayLogs deletes relay log rows older than cutoff and reports the
// number of rows removed.
func (r *Repository) PurgeOldRelayLogs(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.RelayLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge relay logs: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// PurgeOldReplyIndex deletes reply index rows older than cutoff.
func (r *Repository) PurgeOldReplyIndex(cutoff time.Time) (int64, error) {
	result := r.db.Where("created_at < ?", cutoff).Delete(&models.ReplyIndexEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to purge reply index: %w", result.Error)
	}
	return result.RowsAffected, nil
}
