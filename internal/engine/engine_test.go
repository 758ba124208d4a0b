package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/gameleet/gameleet-engine/internal/catalog"
	"github.com/gameleet/gameleet-engine/internal/classify"
	"github.com/gameleet/gameleet-engine/internal/curate"
	"github.com/gameleet/gameleet-engine/internal/ledger"
	"github.com/gameleet/gameleet-engine/internal/leetcode"
	"github.com/gameleet/gameleet-engine/internal/penalty"
	"github.com/gameleet/gameleet-engine/internal/store"
)

type stubCurator struct {
	sel curate.Selection
}

func (c *stubCurator) For(ctx context.Context, date string, prefs curate.Preferences) (curate.Selection, error) {
	return c.sel, nil
}

type stubClassifier struct {
	statuses map[string]classify.Status
	solved   bool
}

func (c *stubClassifier) Classify(ctx context.Context, creds classify.Credentials, slugs []string) map[string]classify.Status {
	out := make(map[string]classify.Status, len(slugs))
	for _, s := range slugs {
		if st, ok := c.statuses[s]; ok {
			out[s] = st
		} else {
			out[s] = classify.Unattempted
		}
	}
	return out
}

func (c *stubClassifier) SolvedToday(ctx context.Context, creds classify.Credentials) bool {
	return c.solved
}

type stubDaily struct {
	dp leetcode.DailyProblem
}

func (d *stubDaily) DailyProblem(ctx context.Context) leetcode.DailyProblem { return d.dp }

type stubPenalty struct {
	calls int
}

func (p *stubPenalty) Execute(ctx context.Context, u *store.User, prog *store.Progress) (*penalty.Result, error) {
	p.calls++
	return &penalty.Result{Symbol: "IDEA", Qty: 1, OrderID: "order-1"}, nil
}

type fixture struct {
	st         *store.Store
	user       *store.User
	evaluator  *Evaluator
	classifier *stubClassifier
	penalty    *stubPenalty
	ctx        context.Context
}

var (
	easyProblem = catalog.Problem{ID: 1, Slug: "two-sum", Difficulty: catalog.DifficultyEasy}
	hardProblem = catalog.Problem{ID: 3, Slug: "word-break", Difficulty: catalog.DifficultyHard}
)

func newFixture(t *testing.T, sel curate.Selection, daily leetcode.DailyProblem) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	led, err := ledger.New(st.DB())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	ctx := context.Background()
	u, err := st.RegisterUser(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	cls := &stubClassifier{statuses: map[string]classify.Status{}}
	pen := &stubPenalty{}
	e := NewEvaluator(st, &stubCurator{sel: sel}, cls, &stubDaily{dp: daily},
		led, ledger.DailyKey, pen, nil, loc, 4)
	e.now = func() time.Time { return time.Date(2024, 5, 2, 16, 0, 0, 0, loc) }

	return &fixture{st: st, user: u, evaluator: e, classifier: cls, penalty: pen, ctx: ctx}
}

func (f *fixture) progress(t *testing.T) *store.Progress {
	t.Helper()
	p, err := f.st.ProgressFor(f.ctx, f.user.ID)
	if err != nil || p == nil {
		t.Fatalf("progress: %v %v", p, err)
	}
	return p
}

func (f *fixture) setProgress(t *testing.T, mutate func(*store.Progress)) {
	t.Helper()
	p := f.progress(t)
	mutate(p)
	if err := f.st.SaveProgress(f.ctx, p); err != nil {
		t.Fatalf("save progress: %v", err)
	}
}

// dropFreeze removes the starter streak-freeze so penalty paths run
// unmitigated.
func (f *fixture) dropFreeze(t *testing.T) {
	t.Helper()
	ok, err := f.st.ConsumeItem(f.ctx, f.user.ID, store.ItemStreakFreeze)
	if err != nil || !ok {
		t.Fatalf("drop freeze: %v %v", ok, err)
	}
}

func TestRewardIdempotent(t *testing.T) {
	f := newFixture(t, curate.Selection{Easy: &easyProblem}, leetcode.DailyProblem{})
	f.classifier.statuses["two-sum"] = classify.Completed
	f.classifier.solved = true

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Gamcoins != 10 || p.TotalXP != 50 {
		t.Errorf("after first run: %d coins %d xp, want 10/50", p.Gamcoins, p.TotalXP)
	}
	if p.CurrentStreak != 1 || p.ProblemsSolved != 1 {
		t.Errorf("streak=%d solved=%d, want 1/1", p.CurrentStreak, p.ProblemsSolved)
	}

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	p = f.progress(t)
	if p.Gamcoins != 10 || p.TotalXP != 50 {
		t.Errorf("after re-run: %d coins %d xp, double credit", p.Gamcoins, p.TotalXP)
	}
	if p.CurrentStreak != 1 || p.ProblemsSolved != 1 {
		t.Errorf("re-run advanced the streak: streak=%d solved=%d", p.CurrentStreak, p.ProblemsSolved)
	}
}

func TestRewardCreditHealsAfterLostWrite(t *testing.T) {
	f := newFixture(t, curate.Selection{Easy: &easyProblem}, leetcode.DailyProblem{})
	f.classifier.statuses["two-sum"] = classify.Completed
	f.classifier.solved = true

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	// The ledger row landed but the balance write went missing.
	f.setProgress(t, func(p *store.Progress) {
		p.Gamcoins = 0
		p.TotalXP = 0
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Gamcoins != 10 || p.TotalXP != 50 {
		t.Errorf("coins=%d xp=%d after re-run, want restored 10/50", p.Gamcoins, p.TotalXP)
	}
}

func TestStreakContinuity(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.classifier.solved = true

	// Solved yesterday: streak extends.
	f.setProgress(t, func(p *store.Progress) {
		p.CurrentStreak = 4
		p.MaxStreak = 4
		p.LastActivityDate = "2024-05-01"
	})
	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.CurrentStreak != 5 || p.MaxStreak != 5 {
		t.Errorf("streak=%d max=%d, want 5/5", p.CurrentStreak, p.MaxStreak)
	}
	if p.LastActivityDate != "2024-05-02" {
		t.Errorf("last activity = %s", p.LastActivityDate)
	}

	// Gap of two days: streak restarts at 1.
	f.setProgress(t, func(p *store.Progress) {
		p.CurrentStreak = 9
		p.MaxStreak = 9
		p.LastActivityDate = "2024-04-30"
	})
	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p = f.progress(t)
	if p.CurrentStreak != 1 {
		t.Errorf("streak after gap = %d, want 1", p.CurrentStreak)
	}
	if p.MaxStreak != 9 {
		t.Errorf("max streak = %d, must survive the reset", p.MaxStreak)
	}
}

func TestLifeGainAtThreshold(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.classifier.solved = true
	f.setProgress(t, func(p *store.Progress) {
		p.Lives = 3
		p.ProblemsSinceLastLife = 6
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Lives != 4 {
		t.Errorf("lives = %d, want 4", p.Lives)
	}
	if p.ProblemsSinceLastLife != 0 {
		t.Errorf("counter = %d, want reset to 0", p.ProblemsSinceLastLife)
	}
}

func TestLifeGainCappedAtMode(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.classifier.solved = true
	f.setProgress(t, func(p *store.Progress) {
		p.Lives = 5
		p.ProblemsSinceLastLife = 6
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Lives != 5 {
		t.Errorf("lives = %d, grant at cap must be a no-op", p.Lives)
	}
	if p.ProblemsSinceLastLife != 0 {
		t.Errorf("counter = %d, still resets at cap", p.ProblemsSinceLastLife)
	}
}

func TestLastLifeTriggersPenalty(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.dropFreeze(t)
	f.setProgress(t, func(p *store.Progress) {
		p.Lives = 1
		p.CurrentStreak = 6
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Lives != 0 {
		t.Errorf("lives = %d, want 0", p.Lives)
	}
	if f.penalty.calls != 1 {
		t.Errorf("penalty calls = %d, want exactly 1", f.penalty.calls)
	}
	if p.CurrentStreak != 0 {
		t.Errorf("streak = %d, want reset to 0", p.CurrentStreak)
	}
}

func TestLifeBufferAbsorbsMissedDay(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.dropFreeze(t)
	f.setProgress(t, func(p *store.Progress) {
		p.Lives = 3
		p.CurrentStreak = 6
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Lives != 2 {
		t.Errorf("lives = %d, want 2", p.Lives)
	}
	if f.penalty.calls != 0 {
		t.Errorf("penalty calls = %d, want 0 while lives remain", f.penalty.calls)
	}
	if p.CurrentStreak != 6 {
		t.Errorf("streak = %d, must be untouched while buffered", p.CurrentStreak)
	}
}

func TestSandboxHasNoConsequences(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.setProgress(t, func(p *store.Progress) {
		p.DifficultyMode = store.ModeSandbox
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	if p.Lives != 0 || f.penalty.calls != 0 {
		t.Errorf("sandbox: lives=%d penalties=%d, want no change", p.Lives, f.penalty.calls)
	}
}

func TestHardcorePenaltyImmediate(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.dropFreeze(t)
	f.setProgress(t, func(p *store.Progress) {
		p.DifficultyMode = store.ModeHardcore
		p.Lives = 1
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if f.penalty.calls != 1 {
		t.Errorf("penalty calls = %d, hardcore misses are punished immediately", f.penalty.calls)
	}
}

func TestFreezeTakesPrecedenceOverPenalty(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	// Registration grants one starter freeze; keep it.
	f.setProgress(t, func(p *store.Progress) {
		p.Lives = 0
		p.CurrentStreak = 12
	})

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if f.penalty.calls != 0 {
		t.Error("freeze present: penalty executor must not run")
	}
	qty, err := f.st.ItemQuantity(f.ctx, f.user.ID, store.ItemStreakFreeze)
	if err != nil {
		t.Fatalf("item quantity: %v", err)
	}
	if qty != 0 {
		t.Errorf("freeze quantity = %d, want exactly one consumed", qty)
	}
	if p := f.progress(t); p.CurrentStreak != 12 {
		t.Errorf("streak = %d, freeze must preserve it", p.CurrentStreak)
	}
}

func TestDailyBonusStacksWithCuratedReward(t *testing.T) {
	daily := leetcode.DailyProblem{Slug: "word-break", ID: "3", Title: "Word Break"}
	f := newFixture(t, curate.Selection{Hard: &hardProblem}, daily)
	f.classifier.statuses["word-break"] = classify.Completed
	f.classifier.solved = true

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	p := f.progress(t)
	// Curated hard (50/200) plus daily bonus (30/150) under distinct
	// ledger keys.
	if p.Gamcoins != 80 || p.TotalXP != 350 {
		t.Errorf("coins=%d xp=%d, want 80/350", p.Gamcoins, p.TotalXP)
	}

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("re-evaluate: %v", err)
	}
	if p = f.progress(t); p.Gamcoins != 80 || p.TotalXP != 350 {
		t.Errorf("re-run changed totals to %d/%d", p.Gamcoins, p.TotalXP)
	}
}

func TestDailyBonusSkippedWithoutSlug(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{Link: leetcode.FallbackLink})
	f.classifier.solved = true

	if err := f.evaluator.EvaluateUser(f.ctx, f.user); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if p := f.progress(t); p.Gamcoins != 0 {
		t.Errorf("coins = %d, fallback daily must not be rewarded", p.Gamcoins)
	}
}

func TestEvaluateAllIsolatesUsers(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	if _, err := f.st.RegisterUser(f.ctx, "bob@example.com", "Bob"); err != nil {
		t.Fatalf("register bob: %v", err)
	}

	if err := f.evaluator.EvaluateAll(f.ctx); err != nil {
		t.Fatalf("EvaluateAll: %v", err)
	}
	passes := f.evaluator.RecentPasses()
	if len(passes) != 1 {
		t.Fatalf("passes = %d, want 1", len(passes))
	}
	if passes[0].Kind != "evaluate" || passes[0].Users != 2 {
		t.Errorf("pass = %+v, want evaluate over 2 users", passes[0])
	}
}

func TestResetDaily(t *testing.T) {
	f := newFixture(t, curate.Selection{}, leetcode.DailyProblem{})
	f.setProgress(t, func(p *store.Progress) { p.PowerupsUsedToday = 3 })

	if err := f.evaluator.ResetDaily(f.ctx); err != nil {
		t.Fatalf("ResetDaily: %v", err)
	}
	if p := f.progress(t); p.PowerupsUsedToday != 0 {
		t.Errorf("powerups = %d, want 0", p.PowerupsUsedToday)
	}
}
