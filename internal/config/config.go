package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"BollWatch/internal/model"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Quote struct {
		Provider       string        `yaml:"provider"` // longbridge, yahoo or mock
		BaseURL        string        `yaml:"base_url"`
		AppKey         string        `yaml:"app_key"`
		AppSecret      string        `yaml:"app_secret"`
		AccessToken    string        `yaml:"access_token"`
		RequestSpacing time.Duration `yaml:"request_spacing"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout"`
		MaxAttempts    int           `yaml:"max_attempts"`
		BackoffBase    time.Duration `yaml:"backoff_base"`
		Workers        int           `yaml:"workers"`
	} `yaml:"quote"`
	Scan struct {
		Watchlist          []WatchItem `yaml:"watchlist"`
		Period             int         `yaml:"period"`
		K                  float64     `yaml:"k"`
		ProximityThreshold float64     `yaml:"proximity_threshold"`
	} `yaml:"scan"`
	Schedule struct {
		Cron       string `yaml:"cron"`
		Timezone   string `yaml:"timezone"`
		RunOnStart bool   `yaml:"run_on_start"`
	} `yaml:"schedule"`
	Email struct {
		Host     string   `yaml:"smtp_host"`
		Port     int      `yaml:"smtp_port"`
		Username string   `yaml:"smtp_user"`
		Password string   `yaml:"smtp_password"`
		From     string   `yaml:"from_email"`
		To       []string `yaml:"to_emails"`
		Title    string   `yaml:"title"`
	} `yaml:"email"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Web struct {
		Addr           string `yaml:"addr"`
		UpdatePassword string `yaml:"update_password"`
		JWTSecret      string `yaml:"jwt_secret"`
		TOTPSecret     string `yaml:"totp_secret"`
	} `yaml:"web"`
	Storage struct {
		StateDir       string `yaml:"state_dir"`
		SQLitePath     string `yaml:"sqlite_path"`
		CredentialFile string `yaml:"credential_file"`
		RedisAddr      string `yaml:"redis_addr"`
		RedisPassword  string `yaml:"redis_password"`
		RedisDB        int    `yaml:"redis_db"`
		RedisKey       string `yaml:"redis_key"`
		ParquetPath    string `yaml:"parquet_path"`
	} `yaml:"storage"`
	Proxy string `yaml:"proxy"`
	Log   struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// WatchItem is a watchlist entry. In YAML it is either a bare symbol or a
// {symbol, name} mapping.
type WatchItem model.WatchEntry

func (w *WatchItem) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		w.Symbol = strings.TrimSpace(n.Value)
		return nil
	}
	var e model.WatchEntry
	if err := n.Decode(&e); err != nil {
		return err
	}
	e.Symbol = strings.TrimSpace(e.Symbol)
	*w = WatchItem(e)
	return nil
}

// env holds environment overrides. Unset (zero) values leave the file value alone.
type env struct {
	Provider       string        `envconfig:"BOLLWATCH_QUOTE_PROVIDER"`
	BaseURL        string        `envconfig:"LONGBRIDGE_BASE_URL"`
	AppKey         string        `envconfig:"LONGBRIDGE_APP_KEY"`
	AppSecret      string        `envconfig:"LONGBRIDGE_APP_SECRET"`
	AccessToken    string        `envconfig:"LONGBRIDGE_ACCESS_TOKEN"`
	RequestSpacing time.Duration `envconfig:"BOLLWATCH_REQUEST_SPACING"`
	Workers        int           `envconfig:"BOLLWATCH_WORKERS"`
	Watchlist      []string      `envconfig:"BOLLWATCH_WATCHLIST"`
	Period         int           `envconfig:"BOLLWATCH_PERIOD"`
	K              float64       `envconfig:"BOLLWATCH_K"`
	Threshold      float64       `envconfig:"BOLLWATCH_PROXIMITY_THRESHOLD"`
	Cron           string        `envconfig:"BOLLWATCH_CRON"`
	Timezone       string        `envconfig:"BOLLWATCH_TIMEZONE"`
	RunOnStart     *bool         `envconfig:"RUN_ON_START"`
	SMTPHost       string        `envconfig:"SMTP_HOST"`
	SMTPPort       int           `envconfig:"SMTP_PORT"`
	SMTPUser       string        `envconfig:"SMTP_USER"`
	SMTPPassword   string        `envconfig:"SMTP_PASSWORD"`
	FromEmail      string        `envconfig:"FROM_EMAIL"`
	ToEmails       []string      `envconfig:"TO_EMAILS"`
	BotToken       string        `envconfig:"TELEGRAM_BOT_TOKEN"`
	ChatID         string        `envconfig:"TELEGRAM_CHAT_ID"`
	WebAddr        string        `envconfig:"BOLLWATCH_WEB_ADDR"`
	UpdatePassword string        `envconfig:"UPDATE_PASSWORD"`
	JWTSecret      string        `envconfig:"BOLLWATCH_JWT_SECRET"`
	TOTPSecret     string        `envconfig:"BOLLWATCH_TOTP_SECRET"`
	StateDir       string        `envconfig:"BOLLWATCH_STATE_DIR"`
	SQLitePath     string        `envconfig:"SQLITE_PATH"`
	RedisAddr      string        `envconfig:"REDIS_ADDR"`
	RedisPassword  string        `envconfig:"REDIS_PASSWORD"`
	Proxy          string        `envconfig:"HTTPS_PROXY"`
	LogLevel       string        `envconfig:"BOLLWATCH_LOG_LEVEL"`
}

// Load reads .env (if present) and the YAML file, then applies environment
// variable overrides and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{}
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	var e env
	if err := envconfig.Process("", &e); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	cfg.applyEnv(e)
	cfg.applyDefaults()
	return cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func (c *Config) applyEnv(e env) {
	setString(&c.Quote.Provider, e.Provider)
	setString(&c.Quote.BaseURL, e.BaseURL)
	setString(&c.Quote.AppKey, e.AppKey)
	setString(&c.Quote.AppSecret, e.AppSecret)
	setString(&c.Quote.AccessToken, e.AccessToken)
	if e.RequestSpacing != 0 {
		c.Quote.RequestSpacing = e.RequestSpacing
	}
	setInt(&c.Quote.Workers, e.Workers)
	if len(e.Watchlist) > 0 {
		c.Scan.Watchlist = nil
		for _, s := range e.Watchlist {
			if s = strings.TrimSpace(s); s != "" {
				c.Scan.Watchlist = append(c.Scan.Watchlist, WatchItem{Symbol: s})
			}
		}
	}
	setInt(&c.Scan.Period, e.Period)
	if e.K != 0 {
		c.Scan.K = e.K
	}
	if e.Threshold != 0 {
		c.Scan.ProximityThreshold = e.Threshold
	}
	setString(&c.Schedule.Cron, e.Cron)
	setString(&c.Schedule.Timezone, e.Timezone)
	if e.RunOnStart != nil {
		c.Schedule.RunOnStart = *e.RunOnStart
	}
	setString(&c.Email.Host, e.SMTPHost)
	setInt(&c.Email.Port, e.SMTPPort)
	setString(&c.Email.Username, e.SMTPUser)
	setString(&c.Email.Password, e.SMTPPassword)
	setString(&c.Email.From, e.FromEmail)
	if len(e.ToEmails) > 0 {
		c.Email.To = e.ToEmails
	}
	setString(&c.Telegram.BotToken, e.BotToken)
	setString(&c.Telegram.ChatID, e.ChatID)
	setString(&c.Web.Addr, e.WebAddr)
	setString(&c.Web.UpdatePassword, e.UpdatePassword)
	setString(&c.Web.JWTSecret, e.JWTSecret)
	setString(&c.Web.TOTPSecret, e.TOTPSecret)
	setString(&c.Storage.StateDir, e.StateDir)
	setString(&c.Storage.SQLitePath, e.SQLitePath)
	setString(&c.Storage.RedisAddr, e.RedisAddr)
	setString(&c.Storage.RedisPassword, e.RedisPassword)
	setString(&c.Proxy, e.Proxy)
	setString(&c.Log.Level, e.LogLevel)
}

func (c *Config) applyDefaults() {
	if c.Quote.Provider == "" {
		c.Quote.Provider = "longbridge"
	}
	if c.Quote.BaseURL == "" && c.Quote.Provider == "longbridge" {
		c.Quote.BaseURL = "https://openapi.longportapp.com"
	}
	if c.Quote.RequestSpacing == 0 {
		c.Quote.RequestSpacing = 250 * time.Millisecond
	}
	if c.Quote.FetchTimeout == 0 {
		c.Quote.FetchTimeout = 15 * time.Second
	}
	if c.Quote.MaxAttempts == 0 {
		c.Quote.MaxAttempts = 3
	}
	if c.Quote.BackoffBase == 0 {
		c.Quote.BackoffBase = time.Second
	}
	if c.Quote.Workers == 0 {
		c.Quote.Workers = 1
	}
	if c.Scan.Period == 0 {
		c.Scan.Period = 20
	}
	if c.Scan.K == 0 {
		c.Scan.K = 2.0
	}
	if c.Scan.ProximityThreshold == 0 {
		c.Scan.ProximityThreshold = 0.02
	}
	if c.Schedule.Cron == "" {
		c.Schedule.Cron = "0 0 11 * * *"
	}
	if c.Schedule.Timezone == "" {
		c.Schedule.Timezone = "Asia/Shanghai"
	}
	if c.Email.Port == 0 {
		c.Email.Port = 587
	}
	if c.Web.Addr == "" {
		c.Web.Addr = ":8080"
	}
	if c.Storage.StateDir == "" {
		c.Storage.StateDir = "data"
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = c.Storage.StateDir + "/bollwatch.db"
	}
	if c.Storage.CredentialFile == "" {
		c.Storage.CredentialFile = c.Storage.StateDir + "/credential.json"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all required fields are set.
func (c *Config) Validate() error {
	if len(c.Scan.Watchlist) == 0 {
		return fmt.Errorf("scan.watchlist is required")
	}
	seen := make(map[string]bool, len(c.Scan.Watchlist))
	for _, w := range c.Scan.Watchlist {
		if w.Symbol == "" {
			return fmt.Errorf("scan.watchlist contains an empty symbol")
		}
		if seen[w.Symbol] {
			return fmt.Errorf("scan.watchlist lists %s twice", w.Symbol)
		}
		seen[w.Symbol] = true
	}
	if c.Scan.Period < 2 {
		return fmt.Errorf("scan.period must be at least 2")
	}
	if c.Scan.K < 0 {
		return fmt.Errorf("scan.k must not be negative")
	}
	if c.Scan.ProximityThreshold < 0 || c.Scan.ProximityThreshold > 0.5 {
		return fmt.Errorf("scan.proximity_threshold must be in [0, 0.5]")
	}
	switch c.Quote.Provider {
	case "longbridge":
		if c.Quote.AppKey == "" || c.Quote.AppSecret == "" {
			return fmt.Errorf("quote.app_key and quote.app_secret are required for longbridge")
		}
	case "yahoo", "mock":
	default:
		return fmt.Errorf("unknown quote.provider %q", c.Quote.Provider)
	}
	if c.Quote.Workers < 1 {
		return fmt.Errorf("quote.workers must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Email.Host != "" && (c.Email.From == "" || len(c.Email.To) == 0) {
		return fmt.Errorf("email.from_email and email.to_emails are required when smtp_host is set")
	}
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		return fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together")
	}
	return nil
}

// Watchlist returns the configured symbols in order.
func (c *Config) Watchlist() []model.WatchEntry {
	out := make([]model.WatchEntry, len(c.Scan.Watchlist))
	for i, w := range c.Scan.Watchlist {
		out[i] = model.WatchEntry(w)
	}
	return out
}

// Params returns the indicator parameters.
func (c *Config) Params() model.ScanParams {
	return model.ScanParams{Period: c.Scan.Period, K: c.Scan.K, Threshold: c.Scan.ProximityThreshold}
}

// Location resolves schedule.timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule.timezone: %w", err)
	}
	return loc, nil
}
