package storage

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"
)

const (
	backupExt           = ".db"
	compressedBackupExt = ".db.lz4"
)

// BackupManager handles store backup and restore operations.
type BackupManager struct {
	dbPath string
}

// NewBackupManager creates a new backup manager for the given database path.
func NewBackupManager(dbPath string) *BackupManager {
	return &BackupManager{
		dbPath: dbPath,
	}
}

// BackupConfig holds configuration for backup operations.
type BackupConfig struct {
	// BackupDir is the directory where backups will be stored.
	// If empty, defaults to a "backups" subdirectory in the database directory.
	BackupDir string

	// BackupName is the name of the backup file (without extension).
	// If empty, a timestamp-based name will be generated.
	BackupName string

	// Compress writes an lz4 frame (.db.lz4) instead of a plain copy.
	Compress bool

	// VerifyBackup indicates whether to verify the backup after creation.
	VerifyBackup bool
}

// DefaultBackupConfig returns a BackupConfig with compressed, verified backups.
func DefaultBackupConfig() *BackupConfig {
	return &BackupConfig{
		Compress:     true,
		VerifyBackup: true,
	}
}

// GetBackupDir returns the default backup directory path.
func (bm *BackupManager) GetBackupDir() string {
	return filepath.Join(filepath.Dir(bm.dbPath), "backups")
}

// Backup snapshots the database with VACUUM INTO and returns the backup path.
func (bm *BackupManager) Backup(config *BackupConfig) (string, error) {
	if config == nil {
		config = DefaultBackupConfig()
	}

	backupDir := config.BackupDir
	if backupDir == "" {
		backupDir = bm.GetBackupDir()
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	backupName := config.BackupName
	if backupName == "" {
		backupName = "backup_" + time.Now().Format("20060102_150405")
	}
	snapshotPath := filepath.Join(backupDir, backupName+backupExt)

	if err := bm.snapshot(snapshotPath); err != nil {
		return "", err
	}

	if config.VerifyBackup {
		if err := bm.VerifyBackup(snapshotPath); err != nil {
			_ = os.Remove(snapshotPath)
			return "", fmt.Errorf("backup verification failed: %w", err)
		}
	}

	if !config.Compress {
		return snapshotPath, nil
	}

	compressedPath := filepath.Join(backupDir, backupName+compressedBackupExt)
	if err := compressFile(snapshotPath, compressedPath); err != nil {
		_ = os.Remove(snapshotPath)
		return "", err
	}
	if err := os.Remove(snapshotPath); err != nil {
		return "", fmt.Errorf("failed to remove uncompressed snapshot: %w", err)
	}
	return compressedPath, nil
}

// snapshot writes a consistent copy of the database to path.
func (bm *BackupManager) snapshot(path string) error {
	sourceDB, err := sql.Open("sqlite", bm.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer func() {
		_ = sourceDB.Close()
	}()

	// VACUUM INTO refuses to overwrite.
	_ = os.Remove(path)
	if _, err := sourceDB.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to snapshot database: %w", err)
	}
	return nil
}

var walSuffixes = []string{"-wal", "-shm"}

// Restore replaces the database with a backup. The current database is kept
// next to it with an .old.<timestamp> suffix. Callers must close open
// connections first.
func (bm *BackupManager) Restore(backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup file not available: %w", err)
	}

	tempPath := bm.dbPath + ".restore.tmp"
	var err error
	if strings.HasSuffix(backupPath, compressedBackupExt) {
		err = decompressFile(backupPath, tempPath)
	} else {
		err = copyFile(backupPath, tempPath)
	}
	if err != nil {
		_ = os.Remove(tempPath)
		return err
	}

	if err := bm.VerifyBackup(tempPath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("restored database verification failed: %w", err)
	}

	// Move the current database aside together with its WAL side files so
	// the kept copy still holds un-checkpointed pages.
	if _, err := os.Stat(bm.dbPath); err == nil {
		oldPath := bm.dbPath + ".old." + time.Now().Format("20060102_150405")
		if err := os.Rename(bm.dbPath, oldPath); err != nil {
			_ = os.Remove(tempPath)
			return fmt.Errorf("failed to move current database aside: %w", err)
		}
		for _, suffix := range walSuffixes {
			if err := os.Rename(bm.dbPath+suffix, oldPath+suffix); err != nil && !os.IsNotExist(err) {
				_ = os.Remove(tempPath)
				return fmt.Errorf("failed to move %s aside: %w", suffix, err)
			}
		}
	} else {
		// Stray side files without a database would be replayed into the
		// restored one.
		for _, suffix := range walSuffixes {
			_ = os.Remove(bm.dbPath + suffix)
		}
	}

	if err := os.Rename(tempPath, bm.dbPath); err != nil {
		return fmt.Errorf("failed to replace database with restored backup: %w", err)
	}
	return nil
}

// VerifyBackup checks that path is a readable SQLite database holding the
// achievement store schema. Compressed backups are checked after
// decompressing to a temp file.
func (bm *BackupManager) VerifyBackup(path string) error {
	if strings.HasSuffix(path, compressedBackupExt) {
		tmp, err := os.CreateTemp(filepath.Dir(path), "verify-*.db")
		if err != nil {
			return fmt.Errorf("failed to create temp file: %w", err)
		}
		tmpPath := tmp.Name()
		_ = tmp.Close()
		defer func() { _ = os.Remove(tmpPath) }()

		if err := decompressFile(path, tmpPath); err != nil {
			return err
		}
		path = tmpPath
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("failed to open backup as database: %w", err)
	}
	defer func() {
		_ = db.Close()
	}()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to query backup database: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check failed: %s", result)
	}

	var tables int
	if err := db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'achievement_sets'",
	).Scan(&tables); err != nil {
		return fmt.Errorf("failed to inspect backup schema: %w", err)
	}
	if tables == 0 {
		return errors.New("backup has no achievement_sets table")
	}
	return nil
}

// BackupInfo contains information about a backup file.
type BackupInfo struct {
	Path       string
	Name       string
	Size       int64
	ModTime    time.Time
	Compressed bool
	Checksum   string
}

// ListBackups returns the backups in backupDir (default directory when
// empty), newest first.
func (bm *BackupManager) ListBackups(backupDir string) ([]BackupInfo, error) {
	if backupDir == "" {
		backupDir = bm.GetBackupDir()
	}

	entries, err := os.ReadDir(backupDir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []BackupInfo{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []BackupInfo{}
	for _, entry := range entries {
		name := entry.Name()
		compressed := strings.HasSuffix(name, compressedBackupExt)
		if entry.IsDir() || (!compressed && filepath.Ext(name) != backupExt) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		backupPath := filepath.Join(backupDir, name)
		checksum, err := calculateChecksum(backupPath)
		if err != nil {
			checksum = "unknown"
		}

		backups = append(backups, BackupInfo{
			Path:       backupPath,
			Name:       name,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
			Compressed: compressed,
			Checksum:   checksum,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].ModTime.After(backups[j].ModTime)
	})
	return backups, nil
}

// Prune removes all but the keep newest backups in backupDir (default
// directory when empty) and returns how many were removed.
func (bm *BackupManager) Prune(backupDir string, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	backups, err := bm.ListBackups(backupDir)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, b := range backups[min(keep, len(backups)):] {
		if err := os.Remove(b.Path); err != nil {
			return removed, fmt.Errorf("failed to remove backup %s: %w", b.Name, err)
		}
		removed++
	}
	return removed, nil
}

// calculateChecksum returns the hex BLAKE3 digest of a file.
func calculateChecksum(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = file.Close()
	}()

	hash := blake3.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

func compressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create compressed backup: %w", err)
	}

	zw := lz4.NewWriter(out)
	if err := zw.Apply(lz4.ChecksumOption(true), lz4.CompressionLevelOption(lz4.Level5)); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to configure compressor: %w", err)
	}
	if _, err := io.Copy(zw, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to compress backup: %w", err)
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("failed to finish compressed backup: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("failed to close compressed backup: %w", err)
	}
	return nil
}

func decompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open compressed backup: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}
	if _, err := io.Copy(out, lz4.NewReader(in)); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to decompress backup: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close restore file: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open backup file: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close restore file: %w", err)
	}
	return nil
}
