package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BackupScheduler takes periodic store backups while the watcher runs.
type BackupScheduler struct {
	manager *BackupManager
	config  *SchedulerConfig
	logger  *slog.Logger

	mu           sync.RWMutex
	lastBackup   time.Time
	lastError    error
	backupCount  int
	failureCount int
}

// SchedulerConfig holds configuration for the backup scheduler.
type SchedulerConfig struct {
	// Interval is how often to run backups.
	Interval time.Duration

	// BackupConfig is used for each backup. BackupName is ignored.
	BackupConfig *BackupConfig

	// Keep is the number of backups retained after each successful run
	// (0 keeps all).
	Keep int

	// StartImmediately runs a backup as soon as Run is called.
	StartImmediately bool

	// OnBackupComplete is called after each backup attempt. Optional.
	OnBackupComplete func(backupPath string, err error)

	Logger *slog.Logger
}

// DefaultSchedulerConfig returns a scheduler config with daily backups,
// keeping the last week.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Interval:     24 * time.Hour,
		BackupConfig: DefaultBackupConfig(),
		Keep:         7,
	}
}

// NewBackupScheduler creates a new backup scheduler.
func NewBackupScheduler(manager *BackupManager, config *SchedulerConfig) *BackupScheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if config.BackupConfig == nil {
		config.BackupConfig = DefaultBackupConfig()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BackupScheduler{manager: manager, config: config, logger: logger}
}

// Run takes a backup every Interval until ctx is cancelled.
func (s *BackupScheduler) Run(ctx context.Context) error {
	if s.config.Interval <= 0 {
		return fmt.Errorf("backup interval must be positive: %s", s.config.Interval)
	}

	if s.config.StartImmediately {
		s.runBackup()
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.runBackup()
		}
	}
}

// runBackup executes one backup, prunes old ones and updates statistics.
func (s *BackupScheduler) runBackup() {
	bc := *s.config.BackupConfig
	bc.BackupName = ""
	backupPath, err := s.manager.Backup(&bc)

	if err == nil && s.config.Keep > 0 {
		removed, pruneErr := s.manager.Prune(bc.BackupDir, s.config.Keep)
		if pruneErr != nil {
			s.logger.Warn("Failed to prune backups", "error", pruneErr)
		} else if removed > 0 {
			s.logger.Debug("Pruned old backups", "removed", removed)
		}
	}

	s.mu.Lock()
	s.lastBackup = time.Now()
	s.lastError = err
	if err != nil {
		s.failureCount++
	} else {
		s.backupCount++
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Error("Scheduled backup failed", "error", err)
	} else {
		s.logger.Info("Scheduled backup created", "path", backupPath)
	}
	if s.config.OnBackupComplete != nil {
		s.config.OnBackupComplete(backupPath, err)
	}
}

// SchedulerStatus contains information about the scheduler state.
type SchedulerStatus struct {
	Interval     time.Duration
	LastBackup   time.Time
	NextBackup   time.Time
	BackupCount  int
	FailureCount int
	LastError    error
}

// Status returns the current scheduler status.
func (s *BackupScheduler) Status() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &SchedulerStatus{
		Interval:     s.config.Interval,
		LastBackup:   s.lastBackup,
		BackupCount:  s.backupCount,
		FailureCount: s.failureCount,
		LastError:    s.lastError,
	}
	if !s.lastBackup.IsZero() {
		status.NextBackup = s.lastBackup.Add(s.config.Interval)
	}
	return status
}
