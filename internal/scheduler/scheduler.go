// Package scheduler drives the three daily passes off a minute tick in
// the reference time zone. Each pass fires at a fixed wall-clock time
// and is guarded so a delayed or restarted loop cannot run it twice on
// the same date.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gameleet/gameleet-engine/internal/classify"
)

// Jobs is the work surface the scheduler drives.
type Jobs interface {
	EvaluateAll(ctx context.Context) error
	SendReminders(ctx context.Context) error
	ResetDaily(ctx context.Context) error
}

type passKind string

const (
	passRemind   passKind = "remind"
	passEvaluate passKind = "evaluate"
	passReset    passKind = "reset"
)

type pass struct {
	kind passKind
	hour int
	min  int
	run  func(context.Context) error
}

type Scheduler struct {
	jobs    Jobs
	loc     *time.Location
	passes  []pass
	lastRun map[passKind]string // pass -> ISO date it last ran
	now     func() time.Time
}

// New builds a scheduler from "HH:MM" wall-clock strings for the
// reminder, evaluation, and reset passes.
func New(jobs Jobs, loc *time.Location, remindAt, evaluateAt, resetAt string) (*Scheduler, error) {
	s := &Scheduler{
		jobs:    jobs,
		loc:     loc,
		lastRun: make(map[passKind]string),
		now:     time.Now,
	}
	for _, p := range []struct {
		kind passKind
		at   string
		run  func(context.Context) error
	}{
		{passRemind, remindAt, jobs.SendReminders},
		{passEvaluate, evaluateAt, jobs.EvaluateAll},
		{passReset, resetAt, jobs.ResetDaily},
	} {
		h, m, err := classify.ParseClock(p.at)
		if err != nil {
			return nil, fmt.Errorf("scheduler: %s pass: %w", p.kind, err)
		}
		s.passes = append(s.passes, pass{kind: p.kind, hour: h, min: m, run: p.run})
	}
	return s, nil
}

// nextFire computes the next instant at or after now when the pass
// should run. Explicit next-fire arithmetic avoids the double-fire and
// missed-fire edge cases of matching wall-clock strings.
func (p pass) nextFire(now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	fire := time.Date(now.Year(), now.Month(), now.Day(), p.hour, p.min, 0, 0, loc)
	if !fire.After(now) {
		fire = fire.AddDate(0, 0, 1)
	}
	return fire
}

// due returns the passes whose fire instant on now's date has elapsed
// and that have not yet run on that date. A pass is elapsed exactly when
// its next fire falls on a later date, so a tick that lands late still
// picks up the pass it slept through.
func (s *Scheduler) due(now time.Time) []pass {
	now = now.In(s.loc)
	date := now.Format("2006-01-02")
	var out []pass
	for _, p := range s.passes {
		if s.lastRun[p.kind] == date {
			continue
		}
		if p.nextFire(now, s.loc).Format("2006-01-02") != date {
			out = append(out, p)
		}
	}
	return out
}

func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	date := now.In(s.loc).Format("2006-01-02")
	for _, p := range s.due(now) {
		s.lastRun[p.kind] = date
		log.Printf("scheduler: running %s pass", p.kind)
		if err := p.run(ctx); err != nil {
			log.Printf("scheduler: %s pass: %v", p.kind, err)
		}
	}
}

// Run ticks once per minute until the context is cancelled. Passes run
// on the tick goroutine; the jobs themselves fan out internally.
func (s *Scheduler) Run(ctx context.Context) {
	log.Printf("scheduler: started in %s", s.loc)
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("scheduler: stopped")
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}
