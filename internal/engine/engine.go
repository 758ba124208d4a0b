// Package engine is the accountability core: once per evaluation day it
// curates, classifies, rewards, advances streak and lives, and decides
// between mitigation and penalty for every user.
package engine

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gameleet/gameleet-engine/internal/catalog"
	"github.com/gameleet/gameleet-engine/internal/classify"
	"github.com/gameleet/gameleet-engine/internal/curate"
	"github.com/gameleet/gameleet-engine/internal/leetcode"
	"github.com/gameleet/gameleet-engine/internal/penalty"
	"github.com/gameleet/gameleet-engine/internal/store"
)

const lifeGainThreshold = 7

// Reward is a coin/xp credit pair.
type Reward struct {
	Coins int
	XP    int
}

var rewardTable = map[string]Reward{
	catalog.DifficultyEasy:   {Coins: 10, XP: 50},
	catalog.DifficultyMedium: {Coins: 25, XP: 100},
	catalog.DifficultyHard:   {Coins: 50, XP: 200},
}

var dailyBonus = Reward{Coins: 30, XP: 150}

// Curator produces the day's selection for a preference snapshot.
type Curator interface {
	For(ctx context.Context, date string, prefs curate.Preferences) (curate.Selection, error)
}

// Classifier judges submission activity; both methods fail open.
type Classifier interface {
	Classify(ctx context.Context, creds classify.Credentials, slugs []string) map[string]classify.Status
	SolvedToday(ctx context.Context, creds classify.Credentials) bool
}

// DailyProvider fetches the platform-wide daily challenge.
type DailyProvider interface {
	DailyProblem(ctx context.Context) leetcode.DailyProblem
}

// Rewards is the ledger surface: at-most-once grants plus the summed
// balance they add up to.
type Rewards interface {
	Grant(ctx context.Context, userID uint, key string, coins, xp int) (bool, error)
	Totals(ctx context.Context, userID uint) (coins, xp int, err error)
}

// DailyRewardKey names the ledger key for a daily-bonus grant, distinct
// from the curated key for the same problem.
type DailyRewardKey func(problemID string) string

// PenaltyExecutor fires the consequence trade.
type PenaltyExecutor interface {
	Execute(ctx context.Context, u *store.User, p *store.Progress) (*penalty.Result, error)
}

// Mailer sends reminder nudges, best effort.
type Mailer interface {
	SendReminder(ctx context.Context, to, name string, links []string) error
}

// PassResult summarizes one scheduler-driven sweep for the status API.
type PassResult struct {
	Kind       string    `json:"kind"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Users      int       `json:"users"`
	Errors     int       `json:"errors"`
}

type Evaluator struct {
	store         *store.Store
	curator       Curator
	classifier    Classifier
	daily         DailyProvider
	rewards       Rewards
	dailyKey      DailyRewardKey
	penalty       PenaltyExecutor
	mailer        Mailer
	loc           *time.Location
	maxConcurrent int
	now           func() time.Time

	mu     sync.Mutex
	passes []PassResult
}

func NewEvaluator(st *store.Store, curator Curator, classifier Classifier, daily DailyProvider,
	rewards Rewards, dailyKey DailyRewardKey, pen PenaltyExecutor, mailer Mailer,
	loc *time.Location, maxConcurrent int) *Evaluator {
	if maxConcurrent <= 0 {
		maxConcurrent = 8
	}
	return &Evaluator{
		store:         st,
		curator:       curator,
		classifier:    classifier,
		daily:         daily,
		rewards:       rewards,
		dailyKey:      dailyKey,
		penalty:       pen,
		mailer:        mailer,
		loc:           loc,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

func (e *Evaluator) today() string {
	return e.now().In(e.loc).Format("2006-01-02")
}

func yesterday(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format("2006-01-02")
}

func preferences(u *store.User, p *store.Progress) curate.Preferences {
	var topics []string
	if p.ProblemSetTopics != "" {
		topics = splitTopics(p.ProblemSetTopics)
	}
	return curate.Preferences{
		SetType:   p.ProblemSetType,
		Topics:    topics,
		Sheet:     p.ProblemSetSheet,
		AllowPaid: u.AllowPaid,
	}
}

func splitTopics(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// EvaluateUser runs the full per-day state transition for one user. The
// per-user lock makes the whole evaluation a single logical unit;
// concurrent sweeps for the same user serialize here.
func (e *Evaluator) EvaluateUser(ctx context.Context, u *store.User) error {
	unlock := e.store.Lock(u.ID)
	defer unlock()

	prog, err := e.store.ProgressFor(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("engine: load progress for %s: %w", u.PublicID, err)
	}
	if prog == nil {
		log.Printf("engine: no progress row for %s, skipping", u.PublicID)
		return nil
	}

	today := e.today()
	creds := classify.Credentials{Username: u.LeetcodeUsername, Session: u.LeetcodeSession}

	sel, err := e.curator.For(ctx, today, preferences(u, prog))
	if err != nil {
		return fmt.Errorf("engine: curate for %s: %w", u.PublicID, err)
	}
	statuses := e.classifier.Classify(ctx, creds, sel.Slugs())

	e.grantCuratedRewards(ctx, u, sel, statuses)
	e.grantDailyBonus(ctx, u, creds)
	credited, err := e.syncRewardTotals(ctx, u, prog)
	if err != nil {
		// Grants are already ledgered; the balance lands on a later pass.
		log.Printf("engine: %v", err)
	}

	// Re-entry for an already-advanced day persists late reward credit
	// and nothing else.
	if prog.LastActivityDate == today {
		if credited {
			return e.store.SaveProgress(ctx, prog)
		}
		return nil
	}

	if e.classifier.SolvedToday(ctx, creds) {
		return e.advanceStreak(ctx, u, prog, today)
	}

	if credited {
		if err := e.store.SaveProgress(ctx, prog); err != nil {
			return fmt.Errorf("engine: persist rewards for %s: %w", u.PublicID, err)
		}
	}
	return e.evaluatePenalty(ctx, u, prog)
}

func (e *Evaluator) grantCuratedRewards(ctx context.Context, u *store.User,
	sel curate.Selection, statuses map[string]classify.Status) {
	for _, p := range sel.Slots() {
		if p == nil || statuses[p.Slug] != classify.Completed {
			continue
		}
		r, ok := rewardTable[p.Difficulty]
		if !ok {
			log.Printf("engine: no reward entry for difficulty %q", p.Difficulty)
			continue
		}
		granted, err := e.rewards.Grant(ctx, u.ID, strconv.Itoa(p.ID), r.Coins, r.XP)
		if err != nil {
			log.Printf("engine: grant %s for %s: %v", p.Slug, u.PublicID, err)
			continue
		}
		if granted {
			log.Printf("engine: rewarded %s to %s (+%d coins +%d xp)", p.Slug, u.PublicID, r.Coins, r.XP)
		}
	}
}

func (e *Evaluator) grantDailyBonus(ctx context.Context, u *store.User, creds classify.Credentials) {
	daily := e.daily.DailyProblem(ctx)
	if daily.Slug == "" || daily.ID == "" {
		return
	}
	if e.classifier.Classify(ctx, creds, []string{daily.Slug})[daily.Slug] != classify.Completed {
		return
	}
	granted, err := e.rewards.Grant(ctx, u.ID, e.dailyKey(daily.ID), dailyBonus.Coins, dailyBonus.XP)
	if err != nil {
		log.Printf("engine: daily bonus for %s: %v", u.PublicID, err)
		return
	}
	if granted {
		log.Printf("engine: daily bonus %s to %s", daily.Slug, u.PublicID)
	}
}

// syncRewardTotals copies the ledger sums onto the progress balances.
// The balances are always derived, never incremented, so a grant whose
// progress write was lost is picked up again on the next pass.
func (e *Evaluator) syncRewardTotals(ctx context.Context, u *store.User, prog *store.Progress) (bool, error) {
	coins, xp, err := e.rewards.Totals(ctx, u.ID)
	if err != nil {
		return false, fmt.Errorf("reward totals for %s: %w", u.PublicID, err)
	}
	if coins == prog.Gamcoins && xp == prog.TotalXP {
		return false, nil
	}
	prog.Gamcoins = coins
	prog.TotalXP = xp
	return true, nil
}

func (e *Evaluator) advanceStreak(ctx context.Context, u *store.User, prog *store.Progress, today string) error {
	if prog.LastActivityDate == yesterday(today) {
		prog.CurrentStreak++
	} else {
		prog.CurrentStreak = 1
	}
	if prog.CurrentStreak > prog.MaxStreak {
		prog.MaxStreak = prog.CurrentStreak
	}
	prog.ProblemsSolved++
	prog.ProblemsSinceLastLife++
	prog.LastActivityDate = today

	if prog.ProblemsSinceLastLife >= lifeGainThreshold {
		if prog.Lives < store.LifeCap(prog.DifficultyMode) {
			prog.Lives++
			log.Printf("engine: %s gained a life (%d)", u.PublicID, prog.Lives)
		}
		prog.ProblemsSinceLastLife = 0
	}

	if err := e.store.SaveProgress(ctx, prog); err != nil {
		return fmt.Errorf("engine: advance streak for %s: %w", u.PublicID, err)
	}
	log.Printf("engine: %s solved today, streak %d", u.PublicID, prog.CurrentStreak)
	return nil
}

func (e *Evaluator) evaluatePenalty(ctx context.Context, u *store.User, prog *store.Progress) error {
	due := false
	switch prog.DifficultyMode {
	case store.ModeSandbox:
		return nil
	case store.ModeHardcore, store.ModeGod:
		due = true
	default:
		if prog.Lives > 0 {
			prog.Lives--
			// The decrement is persisted before the trade so a crash in
			// between re-enters at lives==0, which is still penalty-due.
			if err := e.store.SaveProgress(ctx, prog); err != nil {
				return fmt.Errorf("engine: spend life for %s: %w", u.PublicID, err)
			}
			log.Printf("engine: %s missed the day, lives now %d", u.PublicID, prog.Lives)
			due = prog.Lives == 0
		} else {
			due = true
		}
	}
	if !due {
		return nil
	}

	consumed, err := e.store.ConsumeItem(ctx, u.ID, store.ItemStreakFreeze)
	if err != nil {
		log.Printf("engine: consume freeze for %s: %v", u.PublicID, err)
	}
	if consumed {
		log.Printf("engine: streak freeze absorbed the penalty for %s", u.PublicID)
		return nil
	}

	prog.CurrentStreak = 0
	if err := e.store.SaveProgress(ctx, prog); err != nil {
		return fmt.Errorf("engine: reset streak for %s: %w", u.PublicID, err)
	}
	if e.penalty != nil {
		if _, err := e.penalty.Execute(ctx, u, prog); err != nil {
			log.Printf("engine: penalty for %s: %v", u.PublicID, err)
		}
	}
	return nil
}

// EvaluateAll sweeps the state machine over every user. One user's
// failure is logged and counted, never propagated.
func (e *Evaluator) EvaluateAll(ctx context.Context) error {
	started := e.now()
	users, err := e.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("engine: list users: %w", err)
	}

	var errCount int
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.maxConcurrent)
	for i := range users {
		u := users[i]
		g.Go(func() error {
			if err := e.EvaluateUser(gctx, &u); err != nil {
				log.Printf("engine: evaluate %s: %v", u.PublicID, err)
				mu.Lock()
				errCount++
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	e.recordPass(PassResult{
		Kind:       "evaluate",
		StartedAt:  started,
		FinishedAt: e.now(),
		Users:      len(users),
		Errors:     errCount,
	})
	log.Printf("engine: evaluation pass done, %d users, %d errors", len(users), errCount)
	return nil
}

// SendReminders nudges every notification-accepting user who has not
// solved anything yet today.
func (e *Evaluator) SendReminders(ctx context.Context) error {
	started := e.now()
	users, err := e.store.Users(ctx)
	if err != nil {
		return fmt.Errorf("engine: list users: %w", err)
	}
	today := e.today()

	sent, failed := 0, 0
	for i := range users {
		u := &users[i]
		if !u.AllowNotifications || e.mailer == nil {
			continue
		}
		creds := classify.Credentials{Username: u.LeetcodeUsername, Session: u.LeetcodeSession}
		if e.classifier.SolvedToday(ctx, creds) {
			continue
		}

		prog, err := e.store.ProgressFor(ctx, u.ID)
		if err != nil || prog == nil {
			continue
		}
		sel, err := e.curator.For(ctx, today, preferences(u, prog))
		if err != nil {
			log.Printf("engine: remind curate for %s: %v", u.PublicID, err)
			continue
		}
		links := make([]string, 0, 3)
		for _, slug := range sel.Slugs() {
			links = append(links, "https://leetcode.com/problems/"+slug+"/")
		}
		if len(links) == 0 {
			links = append(links, leetcode.FallbackLink)
		}
		if err := e.mailer.SendReminder(ctx, u.Email, u.Name, links); err != nil {
			log.Printf("engine: remind %s: %v", u.Email, err)
			failed++
			continue
		}
		sent++
	}

	e.recordPass(PassResult{
		Kind:       "remind",
		StartedAt:  started,
		FinishedAt: e.now(),
		Users:      sent,
		Errors:     failed,
	})
	log.Printf("engine: reminder pass done, %d sent, %d failed", sent, failed)
	return nil
}

// ResetDaily zeroes the per-day counters for all users.
func (e *Evaluator) ResetDaily(ctx context.Context) error {
	started := e.now()
	err := e.store.ResetDailyCounters(ctx)
	res := PassResult{Kind: "reset", StartedAt: started, FinishedAt: e.now()}
	if err != nil {
		res.Errors = 1
	}
	e.recordPass(res)
	return err
}

const passHistory = 20

func (e *Evaluator) recordPass(r PassResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passes = append(e.passes, r)
	if len(e.passes) > passHistory {
		e.passes = e.passes[len(e.passes)-passHistory:]
	}
}

// RecentPasses returns the pass history, newest last.
func (e *Evaluator) RecentPasses() []PassResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]PassResult, len(e.passes))
	copy(out, e.passes)
	return out
}
