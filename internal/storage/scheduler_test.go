package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewBackupScheduler_Defaults(t *testing.T) {
	s := NewBackupScheduler(NewBackupManager(filepath.Join(t.TempDir(), "a.db")), nil)
	if s.config.Interval != 24*time.Hour {
		t.Errorf("expected default interval 24h, got %v", s.config.Interval)
	}
	if s.config.Keep != 7 {
		t.Errorf("expected default keep 7, got %d", s.config.Keep)
	}

	s = NewBackupScheduler(NewBackupManager("a.db"), &SchedulerConfig{Interval: time.Hour})
	if s.config.BackupConfig == nil {
		t.Error("nil backup config should be defaulted")
	}
}

func TestBackupScheduler_RunRejectsZeroInterval(t *testing.T) {
	s := NewBackupScheduler(NewBackupManager("a.db"), &SchedulerConfig{})
	if err := s.Run(context.Background()); err == nil {
		t.Error("expected error for zero interval")
	}
}

func TestBackupScheduler_RunBackupsAndPrune(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "achievements.db")
	seedStore(t, dbPath, "Halo 3")
	bm := NewBackupManager(dbPath)

	// Pre-existing older backups.
	for _, name := range []string{"old1.db", "old2.db"} {
		path := filepath.Join(bm.GetBackupDir(), name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
		past := time.Now().Add(-48 * time.Hour)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatal(err)
		}
	}

	done := make(chan error, 1)
	ctx, cancel := context.WithCancel(context.Background())
	s := NewBackupScheduler(bm, &SchedulerConfig{
		Interval:         time.Hour,
		BackupConfig:     &BackupConfig{Compress: true, BackupName: "ignored"},
		Keep:             2,
		StartImmediately: true,
		OnBackupComplete: func(_ string, err error) {
			done <- err
			cancel()
		},
	})

	if err := s.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("backup failed: %v", err)
	}

	status := s.Status()
	if status.BackupCount != 1 || status.FailureCount != 0 {
		t.Errorf("counts = %d/%d, want 1/0", status.BackupCount, status.FailureCount)
	}
	if !status.NextBackup.Equal(status.LastBackup.Add(time.Hour)) {
		t.Errorf("next backup %v not one interval after %v", status.NextBackup, status.LastBackup)
	}

	backups, err := bm.ListBackups("")
	if err != nil {
		t.Fatal(err)
	}
	if len(backups) != 2 {
		t.Fatalf("expected 2 backups after prune, got %d", len(backups))
	}
	if !backups[0].Compressed || backups[1].Name != "old1.db" && backups[1].Name != "old2.db" {
		t.Errorf("unexpected backups kept: %s, %s", backups[0].Name, backups[1].Name)
	}
	if _, err := os.Stat(filepath.Join(bm.GetBackupDir(), "ignored.db.lz4")); !errors.Is(err, os.ErrNotExist) {
		t.Error("scheduled backups should use timestamped names")
	}
}

func TestBackupManager_Prune(t *testing.T) {
	bm := NewBackupManager(filepath.Join(t.TempDir(), "a.db"))
	if n, err := bm.Prune("", 3); err != nil || n != 0 {
		t.Errorf("prune of missing dir = %d, %v", n, err)
	}
	if n, err := bm.Prune("", 0); err != nil || n != 0 {
		t.Errorf("prune with keep 0 = %d, %v", n, err)
	}
}
