// Command register provisions a user in the engine database: identity,
// LeetCode account, and optional Kite Connect credentials for the
// penalty path.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/gameleet/gameleet-engine/internal/config"
	"github.com/gameleet/gameleet-engine/internal/store"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	email := flag.String("email", "", "user email (required)")
	name := flag.String("name", "", "display name")
	username := flag.String("leetcode", "", "LeetCode username")
	flag.Parse()

	_ = godotenv.Load()

	if *email == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFile(*cfgPath)
	if err != nil {
		log.Printf("warning: config file: %v, using defaults", err)
		cfg = config.Default()
	}
	cfg.ApplyEnv()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	ctx := context.Background()
	u, err := st.RegisterUser(ctx, strings.TrimSpace(*email), strings.TrimSpace(*name))
	if err != nil {
		log.Fatalf("register: %v", err)
	}

	if *username != "" {
		u.LeetcodeUsername = strings.TrimSpace(*username)
	}
	if v := os.Getenv("LEETCODE_SESSION"); v != "" {
		u.LeetcodeSession = v
	}
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		u.KiteAPIKey = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		u.KiteAccessToken = v
	}
	if err := st.DB().WithContext(ctx).Save(u).Error; err != nil {
		log.Fatalf("save credentials: %v", err)
	}

	fmt.Printf("registered %s (%s)\n", u.Email, u.PublicID)
	if u.LeetcodeUsername == "" {
		fmt.Println("no LeetCode username set: evaluations will treat this user as inactive")
	}
	if u.KiteAPIKey == "" {
		fmt.Println("no Kite credentials set: penalties will be skipped for this user")
	}
}
