package achievements

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type recordingStore struct {
	keys []string
	sets []*AchievementSet
	err  error
}

func (s *recordingStore) UpsertSet(_ context.Context, titleKey string, set *AchievementSet) error {
	s.keys = append(s.keys, titleKey)
	s.sets = append(s.sets, set)
	return s.err
}

func sampleSet(name string, n int) *AchievementSet {
	unlock := time.Date(2010, 6, 15, 12, 30, 45, 0, time.UTC)
	set := &AchievementSet{
		ID:              GameID(name),
		Name:            name,
		DateLastRefresh: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		IsManual:        true,
	}
	for i := 0; i < n; i++ {
		a := Achievement{Name: string(rune('A' + i)), Description: "desc", Percent: 70}
		if i == 0 {
			a.DateUnlocked = &unlock
		}
		set.Items = append(set.Items, a)
	}
	return set
}

func TestPersister_CommitAndLoad(t *testing.T) {
	dir := t.TempDir()
	store := &recordingStore{}
	p := NewPersister(PersisterConfig{Dir: dir, Store: store})
	set := sampleSet("Halo 3", 3)
	key := set.ID.String()

	if err := p.Commit(context.Background(), key, set); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, key+".temp.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file should be gone after commit, stat err = %v", err)
	}

	loaded, found, err := p.Load(key)
	if err != nil || !found {
		t.Fatalf("Load: found=%v err=%v", found, err)
	}
	if loaded.Name != "Halo 3" || len(loaded.Items) != 3 {
		t.Errorf("unexpected loaded set: %+v", loaded)
	}
	if !loaded.Items[0].DateUnlocked.Equal(*set.Items[0].DateUnlocked) {
		t.Errorf("unlock time = %v, want %v", loaded.Items[0].DateUnlocked, set.Items[0].DateUnlocked)
	}
	if loaded.Items[1].DateUnlocked != nil {
		t.Errorf("locked item gained an unlock time: %v", loaded.Items[1].DateUnlocked)
	}

	if len(store.keys) != 1 || store.keys[0] != key {
		t.Errorf("store notified with %v, want [%s]", store.keys, key)
	}
}

func TestPersister_LoadMissing(t *testing.T) {
	p := NewPersister(PersisterConfig{Dir: t.TempDir()})
	set, found, err := p.Load("nothing-here")
	if err != nil || found || set != nil {
		t.Errorf("Load missing = (%v, %v, %v), want (nil, false, nil)", set, found, err)
	}
}

func TestPersister_VerificationFailureKeepsFinal(t *testing.T) {
	tests := []struct {
		name    string
		corrupt []byte
	}{
		{"not json", []byte(`{"id": "trunc`)},
		{"unusable structure", []byte(`{}`)},
		{"empty file", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			store := &recordingStore{}
			p := NewPersister(PersisterConfig{Dir: dir, Store: store})
			key := "halo3"

			if err := p.Commit(context.Background(), key, sampleSet("Halo 3", 2)); err != nil {
				t.Fatalf("initial Commit: %v", err)
			}
			before, err := os.ReadFile(p.Path(key))
			if err != nil {
				t.Fatalf("read final: %v", err)
			}

			p.beforeVerify = func(path string) error {
				return os.WriteFile(path, tt.corrupt, 0o644)
			}
			err = p.Commit(context.Background(), key, sampleSet("Halo 3", 5))
			if !errors.Is(err, ErrVerificationFailed) {
				t.Fatalf("expected ErrVerificationFailed, got %v", err)
			}

			after, err := os.ReadFile(p.Path(key))
			if err != nil {
				t.Fatalf("read final after failure: %v", err)
			}
			if !bytes.Equal(before, after) {
				t.Error("final file changed after failed commit")
			}
			if _, err := os.Stat(filepath.Join(dir, key+".temp.json")); !errors.Is(err, os.ErrNotExist) {
				t.Errorf("temp file left behind, stat err = %v", err)
			}
			if len(store.keys) != 1 {
				t.Errorf("store notified %d times, want 1", len(store.keys))
			}
		})
	}
}

func TestPersister_VerificationFailureWithoutFinal(t *testing.T) {
	dir := t.TempDir()
	p := NewPersister(PersisterConfig{Dir: dir})
	p.beforeVerify = func(path string) error {
		return os.WriteFile(path, []byte("garbage"), 0o644)
	}

	err := p.Commit(context.Background(), "k", sampleSet("G", 1))
	if !errors.Is(err, ErrVerificationFailed) {
		t.Fatalf("expected ErrVerificationFailed, got %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}

func TestPersister_IOFailure(t *testing.T) {
	dir := t.TempDir()
	// A directory squatting on the final path makes the replace step fail.
	p := NewPersister(PersisterConfig{Dir: dir})
	if err := os.MkdirAll(filepath.Join(p.Path("k"), "child"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err := p.Commit(context.Background(), "k", sampleSet("G", 1))
	if !errors.Is(err, ErrIO) {
		t.Fatalf("expected ErrIO, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "k.temp.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp file left behind, stat err = %v", err)
	}
}

func TestPersister_StoreError(t *testing.T) {
	store := &recordingStore{err: errors.New("db locked")}
	p := NewPersister(PersisterConfig{Dir: t.TempDir(), Store: store})

	err := p.Commit(context.Background(), "k", sampleSet("G", 1))
	if err == nil {
		t.Fatal("expected store error to propagate")
	}
	if _, statErr := os.Stat(p.Path("k")); statErr != nil {
		t.Errorf("final file should still be committed: %v", statErr)
	}
}

func TestPersister_InvalidKey(t *testing.T) {
	p := NewPersister(PersisterConfig{Dir: t.TempDir()})
	for _, key := range []string{"", "..", "a/b", `a\b`} {
		if err := p.Commit(context.Background(), key, sampleSet("G", 1)); err == nil {
			t.Errorf("Commit(%q) should fail", key)
		}
		if _, _, err := p.Load(key); err == nil {
			t.Errorf("Load(%q) should fail", key)
		}
	}
}
