package achievements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrVerificationFailed is returned when the freshly written temp file does
	// not read back as the set that was written.
	ErrVerificationFailed = errors.New("achievement set verification failed")

	// ErrIO wraps underlying filesystem faults during load or commit.
	ErrIO = errors.New("achievement set i/o failure")
)

// Store makes a committed set visible to the frontend.
type Store interface {
	UpsertSet(ctx context.Context, titleKey string, set *AchievementSet) error
}

// PersisterConfig configures a Persister.
type PersisterConfig struct {
	// Dir holds one <titleKey>.json file per game.
	Dir string

	// Store is notified after each successful commit. Optional.
	Store Store

	Logger *slog.Logger
}

// Persister writes record sets with a write, verify, replace cycle so that
// readers of the final file never observe a partial write.
type Persister struct {
	dir    string
	store  Store
	logger *slog.Logger

	// beforeVerify runs between writing and reading back the temp file.
	beforeVerify func(tempPath string) error
}

// NewPersister creates a Persister.
func NewPersister(cfg PersisterConfig) *Persister {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Persister{
		dir:    cfg.Dir,
		store:  cfg.Store,
		logger: logger,
	}
}

// Path returns the final file path for titleKey.
func (p *Persister) Path(titleKey string) string {
	return filepath.Join(p.dir, titleKey+".json")
}

func (p *Persister) tempPath(titleKey string) string {
	return filepath.Join(p.dir, titleKey+".temp.json")
}

func validateKey(titleKey string) error {
	if titleKey == "" || titleKey == "." || titleKey == ".." || strings.ContainsAny(titleKey, `/\`) {
		return fmt.Errorf("invalid title key %q", titleKey)
	}
	return nil
}

// Load reads the persisted set for titleKey. found is false when no file
// exists yet.
func (p *Persister) Load(titleKey string) (set *AchievementSet, found bool, err error) {
	if err := validateKey(titleKey); err != nil {
		return nil, false, err
	}

	data, err := os.ReadFile(p.Path(titleKey))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: read %s: %w", ErrIO, titleKey, err)
	}

	set = &AchievementSet{}
	if err := json.Unmarshal(data, set); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", titleKey, err)
	}
	return set, true, nil
}

// Commit persists set under titleKey. On any failure the temp file is removed
// and the existing final file is left as it was.
func (p *Persister) Commit(ctx context.Context, titleKey string, set *AchievementSet) error {
	if err := validateKey(titleKey); err != nil {
		return err
	}
	if set == nil {
		return fmt.Errorf("commit %s: nil achievement set", titleKey)
	}

	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", titleKey, err)
	}

	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrIO, p.dir, err)
	}

	tempPath := p.tempPath(titleKey)
	discard := func() {
		if err := os.Remove(tempPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("Failed to remove temp file", "path", tempPath, "error", err)
		}
	}

	if err := writeFileSync(tempPath, data); err != nil {
		discard()
		return fmt.Errorf("%w: write %s: %w", ErrIO, tempPath, err)
	}

	if p.beforeVerify != nil {
		if err := p.beforeVerify(tempPath); err != nil {
			discard()
			return fmt.Errorf("%w: %w", ErrIO, err)
		}
	}

	if err := verify(tempPath, set); err != nil {
		discard()
		return err
	}

	finalPath := p.Path(titleKey)
	if err := os.Rename(tempPath, finalPath); err != nil {
		discard()
		return fmt.Errorf("%w: replace %s: %w", ErrIO, finalPath, err)
	}

	p.logger.Debug("Committed achievement set",
		"title", titleKey, "name", set.Name,
		"items", len(set.Items), "unlocked", set.UnlockedCount())

	if p.store != nil {
		if err := p.store.UpsertSet(ctx, titleKey, set); err != nil {
			return fmt.Errorf("notify store for %s: %w", titleKey, err)
		}
	}
	return nil
}

// verify reads path back and checks it decodes to a usable copy of want.
func verify(path string, want *AchievementSet) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read back %s: %w", ErrIO, path, err)
	}

	var got AchievementSet
	if err := json.Unmarshal(data, &got); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrVerificationFailed, path, err)
	}
	if got.Name != want.Name || got.ID != want.ID || len(got.Items) != len(want.Items) {
		return fmt.Errorf("%w: %s: got %q with %d items, want %q with %d items",
			ErrVerificationFailed, path, got.Name, len(got.Items), want.Name, len(want.Items))
	}
	return nil
}

func writeFileSync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
