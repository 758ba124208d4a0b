// Package classify judges submission activity against the evaluation
// window. The "day" is anchored to a fixed cutover wall-clock time in
// the reference zone, not to calendar midnight: before the cutover the
// window opened at yesterday's cutover instant.
package classify

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/gameleet/gameleet-engine/internal/leetcode"
)

type Status string

const (
	Unattempted Status = "unattempted"
	Attempted   Status = "attempted"
	Completed   Status = "completed"
)

// Credentials identify the user on the submission provider. Empty
// values degrade every classification to a safe default.
type Credentials struct {
	Username string
	Session  string
}

// Feed is the submission-provider surface the classifier consumes.
type Feed interface {
	RecentSubmissions(ctx context.Context, username, session string, limit int) ([]leetcode.Submission, error)
	RecentAccepted(ctx context.Context, username string, limit int) ([]leetcode.Submission, error)
}

type Classifier struct {
	feed        Feed
	loc         *time.Location
	cutoverHour int
	cutoverMin  int
	feedLimit   int
	acLimit     int
	now         func() time.Time
}

// New builds a classifier anchored to the given zone and "HH:MM"
// cutover.
func New(feed Feed, loc *time.Location, cutover string, feedLimit, acLimit int) (*Classifier, error) {
	h, m, err := ParseClock(cutover)
	if err != nil {
		return nil, err
	}
	if feedLimit <= 0 {
		feedLimit = 30
	}
	if acLimit <= 0 {
		acLimit = 15
	}
	return &Classifier{
		feed:        feed,
		loc:         loc,
		cutoverHour: h,
		cutoverMin:  m,
		feedLimit:   feedLimit,
		acLimit:     acLimit,
		now:         time.Now,
	}, nil
}

// ParseClock parses a "HH:MM" wall-clock string.
func ParseClock(s string) (hour, min int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("classify: bad clock %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err == nil {
		min, err = strconv.Atoi(parts[1])
	}
	if err != nil || hour < 0 || hour > 23 || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("classify: bad clock %q", s)
	}
	return hour, min, nil
}

// WindowStart returns the opening instant of the evaluation window
// containing now.
func (c *Classifier) WindowStart(now time.Time) time.Time {
	now = now.In(c.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), c.cutoverHour, c.cutoverMin, 0, 0, c.loc)
	if now.Before(start) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// Classify resolves each target slug to unattempted/attempted/completed
// relative to the current window. It fails open: missing credentials or
// a provider failure resolve every slug to unattempted, never to an
// error.
func (c *Classifier) Classify(ctx context.Context, creds Credentials, slugs []string) map[string]Status {
	statuses := make(map[string]Status, len(slugs))
	for _, s := range slugs {
		statuses[s] = Unattempted
	}
	if creds.Username == "" || len(slugs) == 0 {
		return statuses
	}

	subs, err := c.feed.RecentSubmissions(ctx, creds.Username, creds.Session, c.feedLimit)
	if err != nil {
		log.Printf("classify: submission feed for %s: %v", creds.Username, err)
		return statuses
	}

	windowStart := c.WindowStart(c.now()).Unix()
	for _, sub := range subs {
		cur, tracked := statuses[sub.Slug]
		if !tracked || sub.Timestamp < windowStart {
			continue
		}
		if sub.Status == leetcode.StatusAccepted {
			statuses[sub.Slug] = Completed
		} else if cur != Completed {
			statuses[sub.Slug] = Attempted
		}
	}
	return statuses
}

// SolvedToday is the coarse signal behind streak continuation: whether
// the most recent accepted submission falls on today's calendar date in
// the reference zone. It fails open to false.
func (c *Classifier) SolvedToday(ctx context.Context, creds Credentials) bool {
	if creds.Username == "" {
		return false
	}
	subs, err := c.feed.RecentAccepted(ctx, creds.Username, c.acLimit)
	if err != nil {
		log.Printf("classify: accepted feed for %s: %v", creds.Username, err)
		return false
	}
	if len(subs) == 0 {
		return false
	}

	latest := time.Unix(subs[0].Timestamp, 0).In(c.loc)
	today := c.now().In(c.loc)
	return latest.Year() == today.Year() && latest.YearDay() == today.YearDay()
}
