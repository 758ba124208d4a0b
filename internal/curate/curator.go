// Package curate deterministically selects a user's daily problems.
//
// All randomness for one calendar date flows from a single seed: the
// integer formed by the date string with its separators removed
// (2024-05-01 → 20240501). Re-running curation for the same date and the
// same preference/catalog snapshot therefore reproduces the same
// selection, which both the reward path and the UI rely on.
package curate

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sort"
	"strconv"
	"strings"

	"github.com/gameleet/gameleet-engine/internal/catalog"
)

// Preferences is the snapshot of a user's curation settings.
type Preferences struct {
	SetType   string // default | topics | sheet
	Topics    []string
	Sheet     string
	AllowPaid bool
}

// Fingerprint returns a short stable key for cache lookups. Two
// preference snapshots that curate identically share a fingerprint.
func (p Preferences) Fingerprint() string {
	topics := append([]string(nil), p.Topics...)
	sort.Strings(topics)
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%s|%t", p.SetType, strings.Join(topics, ","), p.Sheet, p.AllowPaid)
	return strconv.FormatUint(h.Sum64(), 16)
}

// Selection maps the three daily slots to at most one problem each. For
// sheet mode the slots are positional rather than difficulty-bound, as
// in the difficulty case slot order is Easy, Medium, Hard.
type Selection struct {
	Easy   *catalog.Problem
	Medium *catalog.Problem
	Hard   *catalog.Problem
}

// Slots returns the three slots in fixed order, including nil ones.
func (s Selection) Slots() []*catalog.Problem {
	return []*catalog.Problem{s.Easy, s.Medium, s.Hard}
}

// Slugs returns the slugs of all filled slots, deduplicated.
func (s Selection) Slugs() []string {
	var out []string
	seen := make(map[string]bool)
	for _, p := range s.Slots() {
		if p != nil && !seen[p.Slug] {
			seen[p.Slug] = true
			out = append(out, p.Slug)
		}
	}
	return out
}

// Seed converts an ISO date to the curation seed.
func Seed(date string) (int64, error) {
	n, err := strconv.ParseInt(strings.ReplaceAll(date, "-", ""), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("curate: bad date %q: %w", date, err)
	}
	return n, nil
}

// Curate picks the selection for one date from an eligibility pool. The
// pool must already reflect the user's paid/topic/sheet filters and be
// in a stable order; draws consume the single seeded source in document
// order. An empty pool yields an empty selection, not an error.
func Curate(date string, prefs Preferences, pool []catalog.Problem) (Selection, error) {
	seed, err := Seed(date)
	if err != nil {
		return Selection{}, err
	}
	rng := rand.New(rand.NewSource(seed))

	if len(pool) == 0 {
		return Selection{}, nil
	}

	var picks []*catalog.Problem
	if prefs.SetType == "sheet" {
		picks = drawSheet(rng, pool)
	} else {
		picks = drawByDifficulty(rng, pool)
	}

	return Selection{Easy: picks[0], Medium: picks[1], Hard: picks[2]}, nil
}

// drawByDifficulty draws one problem per difficulty in Easy, Medium,
// Hard order, then fills empty slots from the remaining union pool, and
// only repeats problems when the whole pool is smaller than three.
func drawByDifficulty(rng *rand.Rand, pool []catalog.Problem) []*catalog.Problem {
	byDiff := map[string][]catalog.Problem{}
	for _, p := range pool {
		d := p.Difficulty
		if d == "Med" { // ingestion inconsistency seen in the wild
			d = catalog.DifficultyMedium
		}
		byDiff[d] = append(byDiff[d], p)
	}

	order := []string{catalog.DifficultyEasy, catalog.DifficultyMedium, catalog.DifficultyHard}
	picks := make([]*catalog.Problem, 3)
	for i, diff := range order {
		bucket := byDiff[diff]
		if len(bucket) == 0 {
			continue
		}
		idx := rng.Intn(len(bucket))
		p := bucket[idx]
		picks[i] = &p
		byDiff[diff] = append(bucket[:idx], bucket[idx+1:]...)
	}

	// Union of the leftovers, preserving difficulty order for stability.
	var remaining []catalog.Problem
	for _, diff := range order {
		remaining = append(remaining, byDiff[diff]...)
	}
	for i := range picks {
		if picks[i] != nil || len(remaining) == 0 {
			continue
		}
		idx := rng.Intn(len(remaining))
		p := remaining[idx]
		picks[i] = &p
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}

	// Last resort: the pool itself has fewer than three problems.
	for i := range picks {
		if picks[i] == nil {
			p := pool[rng.Intn(len(pool))]
			picks[i] = &p
		}
	}
	return picks
}

// drawSheet draws three problems uniformly without replacement, falling
// back to repeats only when the sheet pool has fewer than three members.
func drawSheet(rng *rand.Rand, pool []catalog.Problem) []*catalog.Problem {
	picks := make([]*catalog.Problem, 3)
	if len(pool) >= 3 {
		rest := append([]catalog.Problem(nil), pool...)
		for i := 0; i < 3; i++ {
			idx := rng.Intn(len(rest))
			p := rest[idx]
			picks[i] = &p
			rest = append(rest[:idx], rest[idx+1:]...)
		}
		return picks
	}
	for i := range pool {
		p := pool[i]
		picks[i] = &p
	}
	for i := len(pool); i < 3; i++ {
		p := pool[rng.Intn(len(pool))]
		picks[i] = &p
	}
	return picks
}

// PoolSource supplies the eligible catalog slice for a filter.
type PoolSource interface {
	Eligible(ctx context.Context, f catalog.Filter) ([]catalog.Problem, error)
}

// SelectionCache is an optional read-through cache keyed by
// (date, preference fingerprint).
type SelectionCache interface {
	Get(ctx context.Context, date, fingerprint string) (*Selection, bool)
	Put(ctx context.Context, date, fingerprint string, sel Selection)
}

// Curator binds the pure Curate function to a catalog, the configured
// sheets, and an optional cache.
type Curator struct {
	source PoolSource
	sheets map[string][]string
	cache  SelectionCache
}

func NewCurator(source PoolSource, sheets map[string][]string, cache SelectionCache) *Curator {
	return &Curator{source: source, sheets: sheets, cache: cache}
}

// For returns the selection for (date, prefs), consulting the cache
// first and repopulating it on a miss.
func (c *Curator) For(ctx context.Context, date string, prefs Preferences) (Selection, error) {
	fp := prefs.Fingerprint()
	if c.cache != nil {
		if sel, ok := c.cache.Get(ctx, date, fp); ok {
			return *sel, nil
		}
	}

	f := catalog.Filter{AllowPaid: prefs.AllowPaid}
	switch prefs.SetType {
	case "topics":
		f.Topics = prefs.Topics
	case "sheet":
		// An unknown or empty sheet leaves the pool unrestricted.
		if slugs := c.sheets[prefs.Sheet]; len(slugs) > 0 {
			f.Slugs = slugs
		}
	}

	pool, err := c.source.Eligible(ctx, f)
	if err != nil {
		return Selection{}, err
	}
	sel, err := Curate(date, prefs, pool)
	if err != nil {
		return Selection{}, err
	}
	if c.cache != nil {
		c.cache.Put(ctx, date, fp, sel)
	}
	return sel, nil
}
