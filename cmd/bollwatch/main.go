package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"BollWatch/internal/collector"
	"BollWatch/internal/config"
	"BollWatch/internal/credential"
	"BollWatch/internal/export"
	"BollWatch/internal/metrics"
	"BollWatch/internal/model"
	"BollWatch/internal/notifier"
	"BollWatch/internal/scanner"
	"BollWatch/internal/scheduler"
	"BollWatch/internal/store"
	"BollWatch/internal/web"

	"github.com/gin-gonic/gin"
	kitlog "github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stdout))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)
	log.SetOutput(kitlog.NewStdlibAdapter(logger))
	log.SetFlags(log.Lshortfile)
	log.Println("[INFO] BollWatch starting...")

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}
	loc, _ := cfg.Location()
	srcLogger := level.NewFilter(kitlog.With(logger, "component", "quote"), levelOption(cfg.Log.Level))
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(reg)

	// Credential
	creds, err := credential.NewStore(cfg.Storage.CredentialFile, model.Credential{
		AppKey:      cfg.Quote.AppKey,
		AppSecret:   cfg.Quote.AppSecret,
		AccessToken: cfg.Quote.AccessToken,
	})
	if err != nil {
		log.Fatalf("[FATAL] init credential store: %v", err)
	}

	// Quote source
	var src collector.Source
	switch cfg.Quote.Provider {
	case "yahoo":
		src = collector.NewYahooSource(cfg.Quote.BaseURL, cfg.Proxy)
	case "mock":
		src = &collector.MockSource{}
	default:
		src = collector.NewLongBridgeSource(cfg.Quote.BaseURL, creds, cfg.Proxy)
	}
	log.Printf("[INFO] quote source: %s", src.Name())
	src = collector.NewLoggingSource(srcLogger, src)
	src = collector.NewInstrumentingSource(m.FetchCounter(), m.FetchHistogram(), src)

	policy := collector.DefaultRetryPolicy()
	policy.MaxAttempts = cfg.Quote.MaxAttempts
	policy.Base = cfg.Quote.BackoffBase
	col := collector.NewCollector(src, collector.Options{
		Retry:          policy,
		FetchTimeout:   cfg.Quote.FetchTimeout,
		RequestSpacing: cfg.Quote.RequestSpacing,
	})

	// Result store: memory in front of SQLite and, optionally, Redis
	var durable []store.Store
	sqliteStore, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Printf("[WARN] init sqlite store failed, report will not survive restarts: %v", err)
	} else {
		durable = append(durable, sqliteStore)
		defer sqliteStore.Close()
	}
	if cfg.Storage.RedisAddr != "" {
		rs, err := store.NewRedisStore(store.RedisConfig{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
			Key:      cfg.Storage.RedisKey,
		})
		if err != nil {
			log.Printf("[WARN] init redis store failed, skipping: %v", err)
		} else {
			durable = append(durable, rs)
			defer rs.Close()
		}
	}
	results := store.NewCached(durable...)
	if err := results.Warm(ctx); err != nil {
		log.Printf("[WARN] warm report cache: %v", err)
	}

	// Notifiers
	hub := web.NewHub()
	var notifiers []notifier.Notifier
	if cfg.Email.Host != "" {
		notifiers = append(notifiers, notifier.NewEmailNotifier(notifier.EmailConfig{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			Title:    cfg.Email.Title,
		}))
	}
	var tn *notifier.TelegramNotifier
	if cfg.Telegram.BotToken != "" {
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		notifiers = append(notifiers, tn)
	}
	parquetPath := cfg.Storage.ParquetPath
	if parquetPath == "" {
		parquetPath = filepath.Join(cfg.Storage.StateDir, "latest_report.parquet")
	}
	notifiers = append(notifiers, export.NewParquetExporter(parquetPath), hub)

	// Scanner
	sc := scanner.NewScanner(ctx, cfg.Watchlist(), cfg.Params(), col, results)
	sc.Workers = cfg.Quote.Workers
	sc.Notifier = notifier.NewMulti(m, notifiers...)
	sc.Credentials = creds
	sc.Metrics = m

	// Scheduler
	sched := scheduler.NewScheduler(ctx, sc, results, loc)
	sched.Credentials = creds
	if err := sched.Register(cfg.Schedule.Cron); err != nil {
		log.Fatalf("[FATAL] register cron task: %v", err)
	}
	sched.Start()

	// Web
	srv := web.NewServer(cfg.Web.Addr, web.Deps{
		Runner:   sc,
		Store:    results,
		Schedule: sched,
		Tokens:   creds,
		Auth: web.NewAuth(web.AuthConfig{
			Password:   cfg.Web.UpdatePassword,
			JWTSecret:  cfg.Web.JWTSecret,
			TOTPSecret: cfg.Web.TOTPSecret,
		}),
		Hub:      hub,
		Gatherer: reg,
		Title:    cfg.Email.Title,
	})
	go func() {
		if err := srv.Start(ctx); err != nil {
			log.Fatalf("[FATAL] web server: %v", err)
		}
	}()

	// Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if cfg.Schedule.RunOnStart {
		log.Println("[INFO] run_on_start enabled, executing scan now")
		go sched.RunNow()
	}

	log.Println("[INFO] BollWatch is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	sched.Stop()
	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("[WARN] web server shutdown: %v", err)
	}
	sc.Wait()
	log.Println("[INFO] BollWatch stopped")
}

func levelOption(s string) level.Option {
	switch s {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	default:
		return level.AllowInfo()
	}
}
