// Package supervisor is the control plane for worker processes: it spawns one
// OS process per active Telegram account, keeps a durable recovery registry,
// reattaches to orphans after a restart, and enforces at most one live worker
// per account.
package supervisor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"telegram-relay-go/internal/metrics"
	"telegram-relay-go/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrNoSession       = errors.New("account has no session path")
	ErrAlreadyRunning  = errors.New("worker already running for this account")
	ErrWorkerNotFound  = errors.New("worker not found")
)

// RegistryStore is the durable side of the supervisor: worker registrations
// plus the account rows needed to validate and respawn workers.
type RegistryStore interface {
	ListRegistrations() ([]models.WorkerRegistration, error)
	ListRegistrationsByAccount(accountID uint) ([]models.WorkerRegistration, error)
	CreateRegistration(reg *models.WorkerRegistration) error
	DeleteRegistration(workerID string) error
	GetActiveAccount(accountID uint) (*models.TelegramAccount, error)
	ListActiveAccountsForUser(userID uint) ([]models.TelegramAccount, error)
}

// WorkerInfo describes one tracked worker for the API.
type WorkerInfo struct {
	ID          string    `json:"id"`
	UserID      uint      `json:"user_id"`
	AccountID   uint      `json:"account_id"`
	SessionPath string    `json:"session_path"`
	PID         int       `json:"pid"`
	Running     bool      `json:"running"`
	StartedAt   time.Time `json:"started_at"`
}

type workerEntry struct {
	ID          string
	UserID      uint
	AccountID   uint
	SessionPath string
	handle      ProcessHandle
	StartedAt   time.Time
}

// Supervisor owns the in-memory worker table and the durable registry. The
// durable table plus pid liveness probing is the concurrency discipline:
// short-lived races (duplicate start/stop attempts from concurrent callers)
// are tolerated and treated as benign rather than serialized behind a global
// lock.
type Supervisor struct {
	store    RegistryStore
	launcher Launcher
	grace    time.Duration
	metrics  *metrics.Metrics

	mu      sync.Mutex
	workers map[string]*workerEntry
	counter int
}

func New(store RegistryStore, launcher Launcher, grace time.Duration, m *metrics.Metrics) *Supervisor {
	return &Supervisor{
		store:    store,
		launcher: launcher,
		grace:    grace,
		metrics:  m,
		workers:  make(map[string]*workerEntry),
	}
}

func (s *Supervisor) nextWorkerID() string {
	s.counter++
	return fmt.Sprintf("w%d", s.counter)
}

func (s *Supervisor) updateGauge() {
	if s.metrics != nil {
		s.metrics.LiveWorkers.Set(float64(len(s.workers)))
	}
}

// pruneDeadLocked drops in-memory workers whose process has died, together
// with their durable rows. Caller holds s.mu.
func (s *Supervisor) pruneDeadLocked() {
	for id, w := range s.workers {
		if w.handle.Alive() {
			continue
		}
		delete(s.workers, id)
		if err := s.store.DeleteRegistration(id); err != nil {
			logrus.Warnf("Failed to delete registration for dead worker %s: %v", id, err)
		}
	}
	s.updateGauge()
}

// pruneOrphanRows removes durable rows whose recorded pid is no longer
// alive (worker crashed, or a previous control plane died without cleanup).
// Without this, a stale row would block new starts for the account.
func (s *Supervisor) pruneOrphanRows() {
	regs, err := s.store.ListRegistrations()
	if err != nil {
		logrus.Warnf("Failed to list worker registrations: %v", err)
		return
	}
	pruned := 0
	for _, reg := range regs {
		if s.launcher.Attach(reg.PID).Alive() {
			continue
		}
		s.mu.Lock()
		_, tracked := s.workers[reg.WorkerID]
		s.mu.Unlock()
		if tracked {
			continue
		}
		if err := s.store.DeleteRegistration(reg.WorkerID); err != nil {
			logrus.Warnf("Failed to prune orphaned registration %s: %v", reg.WorkerID, err)
			continue
		}
		pruned++
	}
	if pruned > 0 {
		logrus.Infof("Pruned %d orphaned worker registration(s)", pruned)
	}
}

func (s *Supervisor) accountHasRunningLocked(accountID uint) bool {
	for _, w := range s.workers {
		if w.AccountID == accountID && w.handle.Alive() {
			return true
		}
	}
	return false
}

// Start validates the account and spawns a worker for it, enforcing the
// one-live-worker-per-account invariant against both the in-memory table and
// the durable registry.
func (s *Supervisor) Start(accountID uint) (WorkerInfo, error) {
	account, err := s.store.GetActiveAccount(accountID)
	if err != nil {
		return WorkerInfo{}, err
	}
	if account == nil {
		return WorkerInfo{}, ErrAccountNotFound
	}
	if account.SessionPath == "" {
		return WorkerInfo{}, ErrNoSession
	}

	s.mu.Lock()
	s.pruneDeadLocked()
	s.mu.Unlock()
	s.pruneOrphanRows()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountHasRunningLocked(accountID) {
		return WorkerInfo{}, ErrAlreadyRunning
	}
	// Durable rows left by another control-plane instance count too.
	regs, err := s.store.ListRegistrationsByAccount(accountID)
	if err != nil {
		return WorkerInfo{}, err
	}
	for _, reg := range regs {
		if s.launcher.Attach(reg.PID).Alive() {
			return WorkerInfo{}, ErrAlreadyRunning
		}
		if err := s.store.DeleteRegistration(reg.WorkerID); err != nil {
			logrus.Warnf("Failed to delete stale registration %s: %v", reg.WorkerID, err)
		}
	}

	entry, err := s.spawnLocked(account.UserID, accountID, account.SessionPath)
	if err != nil {
		return WorkerInfo{}, err
	}
	return s.infoFor(entry), nil
}

// spawnLocked spawns a worker process and records it in both tables. Caller
// holds s.mu.
func (s *Supervisor) spawnLocked(userID, accountID uint, sessionPath string) (*workerEntry, error) {
	workerID := s.nextWorkerID()
	handle, err := s.launcher.Spawn(SpawnSpec{
		WorkerID:    workerID,
		UserID:      userID,
		AccountID:   accountID,
		SessionPath: sessionPath,
	})
	if err != nil {
		return nil, err
	}
	entry := &workerEntry{
		ID:          workerID,
		UserID:      userID,
		AccountID:   accountID,
		SessionPath: sessionPath,
		handle:      handle,
		StartedAt:   time.Now().UTC(),
	}
	s.workers[workerID] = entry
	s.updateGauge()
	if err := s.store.CreateRegistration(&models.WorkerRegistration{
		WorkerID:    workerID,
		UserID:      userID,
		AccountID:   accountID,
		SessionPath: sessionPath,
		PID:         handle.PID(),
		CreatedAt:   entry.StartedAt,
	}); err != nil {
		logrus.Warnf("Failed to persist registration for worker %s: %v", workerID, err)
	}
	logrus.Infof("Spawned worker %s for account_id=%d pid=%d", workerID, accountID, handle.PID())
	return entry, nil
}

// terminateEntry runs the cooperative stop sequence: graceful terminate, wait
// up to the grace period, then force kill. In-flight delivery is not
// guaranteed to complete.
func (s *Supervisor) terminateEntry(entry *workerEntry) {
	if !entry.handle.Alive() {
		return
	}
	if err := entry.handle.Terminate(); err != nil {
		logrus.Warnf("Failed to signal worker %s: %v", entry.ID, err)
	}
	deadline := time.Now().Add(s.grace)
	for time.Now().Before(deadline) {
		if !entry.handle.Alive() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	logrus.Warnf("Worker %s did not stop within %v, killing", entry.ID, s.grace)
	if err := entry.handle.Kill(); err != nil {
		logrus.Warnf("Failed to kill worker %s: %v", entry.ID, err)
	}
}

// Stop terminates one worker and removes it from both tables.
func (s *Supervisor) Stop(workerID string) error {
	s.mu.Lock()
	entry, ok := s.workers[workerID]
	if ok {
		delete(s.workers, workerID)
	}
	s.updateGauge()
	s.mu.Unlock()
	if !ok {
		return ErrWorkerNotFound
	}
	s.terminateEntry(entry)
	return s.store.DeleteRegistration(workerID)
}

// StopAccount terminates every worker of one account.
func (s *Supervisor) StopAccount(accountID uint) {
	s.mu.Lock()
	var toStop []*workerEntry
	for id, w := range s.workers {
		if w.AccountID == accountID {
			toStop = append(toStop, w)
			delete(s.workers, id)
		}
	}
	s.updateGauge()
	s.mu.Unlock()
	for _, entry := range toStop {
		s.terminateEntry(entry)
		if err := s.store.DeleteRegistration(entry.ID); err != nil {
			logrus.Warnf("Failed to delete registration %s: %v", entry.ID, err)
		}
	}
}

// RestartForAccount is the best-effort hook fired after a mapping change so
// new rules take effect without manual intervention. accountID nil restarts
// every active account of the user that has a session. Another actor
// starting or stopping the same account concurrently is a benign race:
// duplicate attempts are logged, never surfaced as failures.
func (s *Supervisor) RestartForAccount(userID uint, accountID *uint) {
	s.mu.Lock()
	s.pruneDeadLocked()
	s.mu.Unlock()
	s.pruneOrphanRows()

	var accounts []models.TelegramAccount
	if accountID != nil {
		account, err := s.store.GetActiveAccount(*accountID)
		if err != nil || account == nil {
			logrus.Warnf("Restart skipped, account %d unavailable: %v", *accountID, err)
			return
		}
		accounts = []models.TelegramAccount{*account}
	} else {
		var err error
		accounts, err = s.store.ListActiveAccountsForUser(userID)
		if err != nil {
			logrus.Warnf("Restart skipped, cannot list accounts for user %d: %v", userID, err)
			return
		}
	}

	for _, account := range accounts {
		if account.SessionPath == "" {
			continue
		}
		s.mu.Lock()
		running := s.accountHasRunningLocked(account.ID)
		s.mu.Unlock()
		if running {
			s.StopAccount(account.ID)
		}
		s.mu.Lock()
		if !s.accountHasRunningLocked(account.ID) {
			if _, err := s.spawnLocked(account.UserID, account.ID, account.SessionPath); err != nil {
				logrus.Warnf("Failed to start/restart worker for account %d after mapping change: %v",
					account.ID, err)
			}
		}
		s.mu.Unlock()
	}
}

// RestoreOnBoot rebuilds the worker table from the durable registry after a
// control-plane restart. Rows with a live pid are reattached; rows with a
// dead pid (including workers stopped by TerminateAll) are replaced by a
// freshly spawned worker, so the durable table is the source of truth for
// what should be running.
func (s *Supervisor) RestoreOnBoot() error {
	regs, err := s.store.ListRegistrations()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	maxNum := 0
	for _, reg := range regs {
		if num, ok := workerNumber(reg.WorkerID); ok && num > maxNum {
			maxNum = num
		}
	}
	if maxNum > s.counter {
		s.counter = maxNum
	}
	for _, reg := range regs {
		handle := s.launcher.Attach(reg.PID)
		if handle.Alive() {
			s.workers[reg.WorkerID] = &workerEntry{
				ID:          reg.WorkerID,
				UserID:      reg.UserID,
				AccountID:   reg.AccountID,
				SessionPath: reg.SessionPath,
				handle:      handle,
				StartedAt:   reg.CreatedAt,
			}
			logrus.Infof("Reattached worker %s pid=%d for account_id=%d", reg.WorkerID, reg.PID, reg.AccountID)
			continue
		}
		if err := s.store.DeleteRegistration(reg.WorkerID); err != nil {
			logrus.Warnf("Failed to delete stale registration %s: %v", reg.WorkerID, err)
		}
		if _, err := s.spawnLocked(reg.UserID, reg.AccountID, reg.SessionPath); err != nil {
			logrus.Warnf("Failed to respawn worker for account %d: %v", reg.AccountID, err)
		}
	}
	s.updateGauge()
	return nil
}

// TerminateAll stops every worker on graceful shutdown but keeps the durable
// rows, so the next boot respawns workers for the same accounts.
func (s *Supervisor) TerminateAll() {
	s.mu.Lock()
	entries := make([]*workerEntry, 0, len(s.workers))
	for _, w := range s.workers {
		entries = append(entries, w)
	}
	s.workers = make(map[string]*workerEntry)
	s.updateGauge()
	s.mu.Unlock()
	for _, entry := range entries {
		s.terminateEntry(entry)
	}
	if len(entries) > 0 {
		logrus.Infof("Terminated %d worker(s), registry rows kept for respawn on next boot", len(entries))
	}
}

// List prunes dead workers and returns the current table.
func (s *Supervisor) List() []WorkerInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pruneDeadLocked()
	infos := make([]WorkerInfo, 0, len(s.workers))
	for _, w := range s.workers {
		infos = append(infos, s.infoFor(w))
	}
	return infos
}

// Get returns one worker by id.
func (s *Supervisor) Get(workerID string) (WorkerInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.workers[workerID]
	if !ok {
		return WorkerInfo{}, false
	}
	return s.infoFor(entry), true
}

func (s *Supervisor) infoFor(entry *workerEntry) WorkerInfo {
	return WorkerInfo{
		ID:          entry.ID,
		UserID:      entry.UserID,
		AccountID:   entry.AccountID,
		SessionPath: entry.SessionPath,
		PID:         entry.handle.PID(),
		Running:     entry.handle.Alive(),
		StartedAt:   entry.StartedAt,
	}
}

func workerNumber(workerID string) (int, bool) {
	if !strings.HasPrefix(workerID, "w") {
		return 0, false
	}
	num, err := strconv.Atoi(workerID[1:])
	if err != nil {
		return 0, false
	}
	return num, true
}
