// Package cleanup prunes aged relay logs and reply-index rows on a daily
// schedule so both tables stay bounded.
package cleanup

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/config"
)

// Store is the purge surface of the repository.
type Store interface {
	PurgeOldRelayLogs(cutoff time.Time) (int64, error)
	PurgeOldReplyIndex(cutoff time.Time) (int64, error)
}

// Cleaner runs the retention purge once a day.
type Cleaner struct {
	cron   *cron.Cron
	store  Store
	config config.CleanupConfig
}

// NewCleaner creates a new cleaner
func NewCleaner(cfg config.CleanupConfig, store Store) *Cleaner {
	return &Cleaner{
		cron:   cron.New(),
		store:  store,
		config: cfg,
	}
}

// Start schedules the daily purge.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc("30 3 * * *", c.RunOnce); err != nil {
		return fmt.Errorf("failed to add cleanup cron job: %w", err)
	}
	c.cron.Start()
	logrus.Infof("Cleanup scheduled daily, retention %d day(s)", c.config.RetentionDays)
	return nil
}

// Stop stops the scheduler and waits for a running purge to finish.
func (c *Cleaner) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

// RunOnce purges both tables immediately.
func (c *Cleaner) RunOnce() {
	cutoff := time.Now().AddDate(0, 0, -c.config.RetentionDays)

	logs, err := c.store.PurgeOldRelayLogs(cutoff)
	if err != nil {
		logrus.Errorf("Relay log purge failed: %v", err)
	}
	index, err := c.store.PurgeOldReplyIndex(cutoff)
	if err != nil {
		logrus.Errorf("Reply index purge failed: %v", err)
	}
	logrus.Infof("Cleanup done: removed %d relay log(s), %d reply index entrie(s)", logs, index)
}
