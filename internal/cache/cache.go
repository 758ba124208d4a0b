// Package cache is a Redis-backed selection cache. Entries expire at
// local midnight so a stale day's curation can never leak into the
// next. Every operation fails open: a Redis outage degrades to
// recomputing selections, never to an error.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gameleet/gameleet-engine/internal/curate"
)

type SelectionCache struct {
	rdb *redis.Client
	loc *time.Location
	now func() time.Time
}

func New(addr, password string, db int, loc *time.Location) *SelectionCache {
	return &SelectionCache{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		loc: loc,
		now: time.Now,
	}
}

// Ping verifies connectivity so startup can warn before the first pass.
func (c *SelectionCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *SelectionCache) Close() error {
	return c.rdb.Close()
}

func key(date, fingerprint string) string {
	return "curated:" + date + ":" + fingerprint
}

func (c *SelectionCache) Get(ctx context.Context, date, fingerprint string) (*curate.Selection, bool) {
	raw, err := c.rdb.Get(ctx, key(date, fingerprint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			log.Printf("cache: get %s: %v", key(date, fingerprint), err)
		}
		return nil, false
	}
	var sel curate.Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		log.Printf("cache: decode %s: %v", key(date, fingerprint), err)
		return nil, false
	}
	return &sel, true
}

func (c *SelectionCache) Put(ctx context.Context, date, fingerprint string, sel curate.Selection) {
	raw, err := json.Marshal(sel)
	if err != nil {
		log.Printf("cache: encode %s: %v", key(date, fingerprint), err)
		return
	}
	if err := c.rdb.Set(ctx, key(date, fingerprint), raw, c.untilMidnight()).Err(); err != nil {
		log.Printf("cache: set %s: %v", key(date, fingerprint), err)
	}
}

// untilMidnight is the remaining lifetime of today's entries.
func (c *SelectionCache) untilMidnight() time.Duration {
	now := c.now().In(c.loc)
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc).AddDate(0, 0, 1)
	d := midnight.Sub(now)
	if d < time.Minute {
		d = time.Minute
	}
	return d
}
