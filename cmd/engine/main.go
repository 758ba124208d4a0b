package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gameleet/gameleet-engine/internal/api"
	"github.com/gameleet/gameleet-engine/internal/cache"
	"github.com/gameleet/gameleet-engine/internal/catalog"
	"github.com/gameleet/gameleet-engine/internal/classify"
	"github.com/gameleet/gameleet-engine/internal/config"
	"github.com/gameleet/gameleet-engine/internal/curate"
	"github.com/gameleet/gameleet-engine/internal/engine"
	"github.com/gameleet/gameleet-engine/internal/kite"
	"github.com/gameleet/gameleet-engine/internal/ledger"
	"github.com/gameleet/gameleet-engine/internal/leetcode"
	"github.com/gameleet/gameleet-engine/internal/notify"
	"github.com/gameleet/gameleet-engine/internal/penalty"
	"github.com/gameleet/gameleet-engine/internal/scheduler"
	"github.com/gameleet/gameleet-engine/internal/store"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run a single evaluation pass and exit")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		log.Fatalf("timezone %q: %v", cfg.Timezone, err)
	}

	log.Printf("gameleet-engine starting (tz=%s dry_run=%t evaluate_at=%s)",
		cfg.Timezone, cfg.DryRun, cfg.Schedule.EvaluateTime)

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}
	cat, err := catalog.New(st.DB())
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	led, err := ledger.New(st.DB())
	if err != nil {
		log.Fatalf("ledger: %v", err)
	}

	sheets := make(map[string][]string, len(cfg.Sheets))
	for id, path := range cfg.Sheets {
		slugs, err := catalog.LoadSheet(path)
		if err != nil {
			log.Printf("warning: sheet %s: %v", id, err)
			continue
		}
		sheets[id] = slugs
		log.Printf("loaded sheet %s with %d problems", id, len(slugs))
	}

	var selCache curate.SelectionCache
	if cfg.Cache.Enabled {
		rc := cache.New(cfg.Cache.Addr, cfg.Cache.Password, cfg.Cache.DB, loc)
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			log.Printf("warning: redis unreachable, running uncached: %v", err)
		} else {
			selCache = rc
			defer rc.Close()
		}
		cancel()
	}

	curator := curate.NewCurator(cat, sheets, selCache)

	lc := leetcode.NewClient(cfg.LeetCode.BaseURL, cfg.LeetCode.Timeout)
	classifier, err := classify.New(lc, loc, cfg.LeetCode.Cutover,
		cfg.LeetCode.FeedLimit, cfg.LeetCode.AcceptedFeedLimit)
	if err != nil {
		log.Fatalf("classifier: %v", err)
	}

	mailer := notify.NewNotifier(cfg.Email.APIKey, cfg.Email.From)
	if !mailer.Enabled() {
		log.Println("email credentials missing: notifications disabled")
	}

	venues := func(apiKey, accessToken string) penalty.Venue {
		return kite.NewClient(cfg.Kite.BaseURL, apiKey, accessToken, cfg.Kite.Timeout)
	}
	executor := penalty.NewExecutor(venues, mailer,
		cfg.Penalty.Instruments, cfg.Penalty.DefaultRiskAmount, cfg.DryRun)

	ev := engine.NewEvaluator(st, curator, classifier, lc, led, ledger.DailyKey,
		executor, mailer, loc, cfg.Schedule.MaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *once {
		if err := ev.EvaluateAll(ctx); err != nil {
			log.Fatalf("evaluation: %v", err)
		}
		return
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.NewServer(cfg.API.Addr, ev, st, cfg.Timezone, cfg.DryRun)
		if err := apiServer.Start(ctx); err != nil {
			log.Printf("warning: api server failed to start: %v", err)
		}
	}

	sched, err := scheduler.New(ev, loc,
		cfg.Schedule.ReminderTime, cfg.Schedule.EvaluateTime, cfg.Schedule.ResetTime)
	if err != nil {
		log.Fatalf("scheduler: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	sched.Run(ctx)

	if apiServer != nil {
		_ = apiServer.Shutdown(context.Background())
	}
}
