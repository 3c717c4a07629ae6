package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"daily_digest/internal/backup"
	"daily_digest/internal/collector/hackernews"
	"daily_digest/internal/collector/rss"
	"daily_digest/internal/collector/weixinsearch"
	"daily_digest/internal/config"
	"daily_digest/internal/domain"
	"daily_digest/internal/lock"
	"daily_digest/internal/notifier"
	"daily_digest/internal/pool"
	"daily_digest/internal/recap"
	"daily_digest/internal/scheduler"
	"daily_digest/internal/service"
	"daily_digest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one digest cycle and exit")
	ingestOnce := flag.Bool("ingest", false, "run one candidate harvest and exit")
	acceptURL := flag.String("accept", "", "accept the candidate with this URL into the main pool and exit")
	archiveURL := flag.String("archive", "", "archive the candidate with this URL and exit")
	category := flag.String("category", string(domain.CategoryProgramming), "category used with -archive")
	toolTags := flag.String("tags", "", "comma-separated tool tags used with -archive")
	ignoreURL := flag.String("ignore", "", "drop the candidate with this URL and exit")
	flag.Parse()

	// Setup logger
	logger := setupLogger("info")

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	// Shared pipeline state
	poolStore := pool.NewStore(cfg.Pool.Path, logger)
	guard := lock.New(cfg.Lock.Path, cfg.Lock.TTL, logger)

	// Stores
	archiveStore := postgres.NewArchiveStore(db)
	tagStore := postgres.NewTagStore(db)
	historyStore := postgres.NewHistoryStore(db)
	txManager := postgres.NewTransactionManager(db)

	// Collectors
	collectors := []service.Collector{
		weixinsearch.New(weixinsearch.Config{
			BaseURL: cfg.Collector.SearchURL,
			Timeout: cfg.Collector.Timeout,
		}, logger),
		hackernews.New(hackernews.Config{
			BaseURL:        cfg.Collector.HackerNewsURL,
			Timeout:        cfg.Collector.Timeout,
			MaxAttempts:    cfg.Collector.Retry.MaxAttempts,
			InitialBackoff: cfg.Collector.Retry.InitialBackoff,
			MaxBackoff:     cfg.Collector.Retry.MaxBackoff,
		}, logger),
	}
	if len(cfg.Collector.Feeds) > 0 {
		collectors = append(collectors, rss.New(rss.Config{
			FeedURLs: cfg.Collector.Feeds,
			Timeout:  cfg.Collector.Timeout,
		}, logger))
	}

	deliverer, closeNotifier, err := buildNotifier(cfg.Notifier, logger)
	if err != nil {
		logger.Error("failed to initialize notifier", "error", err)
		os.Exit(1)
	}
	defer closeNotifier()

	digestService := service.NewDigestService(
		poolStore,
		guard,
		collectors,
		deliverer,
		historyStore,
		cfg.Collector.Keywords,
		logger,
		cfg.Digest,
	)
	ingestService := service.NewIngestService(
		poolStore,
		guard,
		collectors,
		cfg.Collector.Keywords,
		logger,
		cfg.Ingest,
	)
	recapWriter := recap.NewWriter(archiveStore, cfg.Recap.Dir, logger)
	backupService := backup.New(cfg.Backup.RepoDir, cfg.Backup.Paths, logger)

	reviewService := service.NewReviewService(
		poolStore,
		guard,
		archiveStore,
		tagStore,
		txManager,
		recapWriter,
		logger,
		cfg.Digest.LockTimeout,
	)

	sched, err := scheduler.New(
		digestService,
		ingestService,
		backupService,
		cfg.Digest.Cron,
		cfg.Ingest.Cron,
		cfg.Backup.Cron,
		cfg.Digest.Timezone,
		logger,
	)
	if err != nil {
		logger.Error("failed to build scheduler", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	switch {
	case *acceptURL != "":
		exitOnError(logger, "accept candidate", reviewService.Accept(ctx, *acceptURL))
	case *archiveURL != "":
		exitOnError(logger, "archive candidate",
			reviewService.Archive(ctx, *archiveURL, domain.Category(*category), splitTags(*toolTags)))
	case *ignoreURL != "":
		exitOnError(logger, "ignore candidate", reviewService.Ignore(ctx, *ignoreURL))
	case *ingestOnce:
		_, err := sched.TriggerIngest(ctx)
		exitOnError(logger, "run ingest", err)
	case *once:
		_, err := sched.TriggerDigest(ctx)
		exitOnError(logger, "run digest", err)
	default:
		logger.Info("starting digest pipeline",
			"digest_cron", cfg.Digest.Cron,
			"timezone", cfg.Digest.Timezone,
			"keywords", cfg.Collector.Keywords,
		)
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			logger.Error("scheduler error", "error", err)
			os.Exit(1)
		}
	}
}

func buildNotifier(cfg config.NotifierConfig, logger *slog.Logger) (service.Notifier, func(), error) {
	switch cfg.Kind {
	case "amqp":
		n, err := notifier.NewAMQP(notifier.AMQPConfig{
			URL:        cfg.AMQP.URL,
			Exchange:   cfg.AMQP.Exchange,
			RoutingKey: cfg.AMQP.RoutingKey,
			QueueName:  cfg.AMQP.QueueName,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return n, func() { _ = n.Close() }, nil
	default:
		n := notifier.NewWebhook(notifier.WebhookConfig{
			URL:     cfg.WebhookURL,
			Timeout: cfg.Timeout,
		}, logger)
		return n, func() {}, nil
	}
}

func exitOnError(logger *slog.Logger, op string, err error) {
	if err != nil {
		logger.Error("operation failed", "op", op, "error", err)
		os.Exit(1)
	}
	logger.Info("operation completed", "op", op)
}

func splitTags(raw string) []string {
	if raw == "" {
		return nil
	}
	var tags []string
	for _, tag := range strings.Split(raw, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
