package cleanup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"telegram-relay-go/internal/config"
)

type fakeStore struct {
	logCutoff   time.Time
	indexCutoff time.Time
}

func (f *fakeStore) PurgeOldRelayLogs(cutoff time.Time) (int64, error) {
	f.logCutoff = cutoff
	return 3, nil
}

func (f *fakeStore) PurgeOldReplyIndex(cutoff time.Time) (int64, error) {
	f.indexCutoff = cutoff
	return 5, nil
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	store := &fakeStore{}
	cleaner := NewCleaner(config.CleanupConfig{RetentionDays: 30}, store)

	before := time.Now().AddDate(0, 0, -30)
	cleaner.RunOnce()
	after := time.Now().AddDate(0, 0, -30)

	assert.False(t, store.logCutoff.Before(before))
	assert.False(t, store.logCutoff.After(after))
	assert.Equal(t, store.logCutoff, store.indexCutoff)
}
