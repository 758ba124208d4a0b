package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DatabasePath string `yaml:"database_path"`
	Timezone     string `yaml:"timezone"`
	DryRun       bool   `yaml:"dry_run"`

	LeetCode LeetCodeConfig `yaml:"leetcode"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Penalty  PenaltyConfig  `yaml:"penalty"`
	Kite     KiteConfig     `yaml:"kite"`
	Email    EmailConfig    `yaml:"email"`
	Cache    CacheConfig    `yaml:"cache"`
	API      APIConfig      `yaml:"api"`

	// Sheets maps a sheet id (e.g. "neetcode150") to the JSON file
	// holding its problem list.
	Sheets map[string]string `yaml:"sheets"`
}

type LeetCodeConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`

	// Cutover is the wall-clock time of day, in the reference zone, at
	// which a new evaluation window begins.
	Cutover string `yaml:"cutover"`

	// FeedLimit bounds the recent-submission feed used for per-slug
	// classification; AcceptedFeedLimit bounds the accepted-only feed
	// behind the coarse solved-today signal.
	FeedLimit         int `yaml:"feed_limit"`
	AcceptedFeedLimit int `yaml:"accepted_feed_limit"`
}

type ScheduleConfig struct {
	ReminderTime  string `yaml:"reminder_time"`
	EvaluateTime  string `yaml:"evaluate_time"`
	ResetTime     string `yaml:"reset_time"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type PenaltyConfig struct {
	// Instruments is the pool of high-volatility NSE symbols a penalty
	// trade is drawn from.
	Instruments       []string `yaml:"instruments"`
	DefaultRiskAmount float64  `yaml:"default_risk_amount"`
}

type KiteConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type EmailConfig struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
}

type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

func Default() Config {
	return Config{
		DatabasePath: "gameleet.db",
		Timezone:     "Asia/Kolkata",
		DryRun:       false,
		LeetCode: LeetCodeConfig{
			BaseURL:           "https://leetcode.com/graphql/",
			Timeout:           15 * time.Second,
			Cutover:           "15:30",
			FeedLimit:         30,
			AcceptedFeedLimit: 15,
		},
		Schedule: ScheduleConfig{
			ReminderTime:  "11:00",
			EvaluateTime:  "15:30",
			ResetTime:     "00:00",
			MaxConcurrent: 8,
		},
		Penalty: PenaltyConfig{
			Instruments:       []string{"IDEA", "YESBANK", "SUZLON", "RPOWER", "IRFC"},
			DefaultRiskAmount: 100,
		},
		Kite: KiteConfig{
			BaseURL: "https://api.kite.trade",
			Timeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			Addr: "localhost:6379",
		},
		API: APIConfig{
			Addr: ":8080",
		},
	}
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) ApplyEnv() {
	if v := os.Getenv("GAMELEET_DB"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("GAMELEET_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("GAMELEET_DRY_RUN"); v != "" {
		c.DryRun = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("RESEND_API_KEY"); v != "" {
		c.Email.APIKey = v
	}
	if v := os.Getenv("GAMELEET_EMAIL_FROM"); v != "" {
		c.Email.From = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Cache.Password = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Cache.DB = n
		}
	}
}
