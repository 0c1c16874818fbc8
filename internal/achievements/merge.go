package achievements

import (
	"time"

	"github.com/google/uuid"
)

// Merger combines a fresh decode with the previously persisted set for the
// same title. Unlock state only moves forward: an unlock already on record is
// never cleared or replaced by a later decode.
type Merger struct {
	// Now supplies the refresh timestamp. Defaults to time.Now.
	Now func() time.Time
}

// NewMerger returns a Merger using the wall clock.
func NewMerger() *Merger {
	return &Merger{Now: time.Now}
}

// Merge returns the merged set for game. prev may be nil when nothing has been
// persisted yet. Fresh items come first in decode order, followed by items
// only known from prev. Every unlock time in the result is in whole seconds
// UTC, so merging the same decode again returns the same set.
func (m *Merger) Merge(prev *AchievementSet, fresh []Achievement, game Game) *AchievementSet {
	now := time.Now
	if m != nil && m.Now != nil {
		now = m.Now
	}

	prior := make(map[string]Achievement)
	var priorOrder []string
	if prev != nil {
		for _, a := range prev.Items {
			if _, dup := prior[a.Name]; dup {
				continue
			}
			prior[a.Name] = a
			priorOrder = append(priorOrder, a.Name)
		}
	}

	items := make([]Achievement, 0, len(fresh)+len(priorOrder))
	seen := make(map[string]bool, len(fresh))
	for _, f := range fresh {
		seen[f.Name] = true
		p, ok := prior[f.Name]
		if !ok || !p.Unlocked() {
			items = append(items, withCanonicalUnlock(f))
			continue
		}

		merged := f
		unlocked := canonicalTime(*p.DateUnlocked)
		merged.DateUnlocked = &unlocked
		if !f.Unlocked() {
			// The fresh decode only knows the locked text.
			merged.Description = p.Description
		}
		items = append(items, merged)
	}

	for _, name := range priorOrder {
		if !seen[name] {
			items = append(items, withCanonicalUnlock(prior[name]))
		}
	}

	id := game.ID
	if id == uuid.Nil && prev != nil {
		id = prev.ID
	}
	if id == uuid.Nil {
		id = GameID(game.Name)
	}
	name := game.Name
	if name == "" && prev != nil {
		name = prev.Name
	}

	return &AchievementSet{
		ID:              id,
		Name:            name,
		DateLastRefresh: now().UTC(),
		IsManual:        true,
		Items:           items,
	}
}

func withCanonicalUnlock(a Achievement) Achievement {
	if a.DateUnlocked != nil {
		t := canonicalTime(*a.DateUnlocked)
		a.DateUnlocked = &t
	}
	return a
}

// canonicalTime round-trips t through its persisted text form so a kept
// unlock time compares equal to what a reader of the file would parse.
func canonicalTime(t time.Time) time.Time {
	parsed, err := time.Parse(time.RFC3339, t.UTC().Format(time.RFC3339))
	if err != nil {
		return t.UTC().Truncate(time.Second)
	}
	return parsed
}
