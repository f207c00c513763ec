// Package main runs a long-lived process that watches a subreddit's moderation
// log and reposts comments removed under the Source Corner rule beneath the
// thread's pinned Source Corner comment.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"source-corner-reposter/config"
	"source-corner-reposter/poll"
	"source-corner-reposter/reddit"
	"source-corner-reposter/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		slog.Error("Reposter stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := cfg.Log.SlogLevel()
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	deadLetters, cleanup, err := initDeadLetters(ctx, cfg.DeadLetter, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	baseURL := cfg.Reddit.BaseURL
	if baseURL == "" {
		baseURL = reddit.OAuthBaseURL
	}
	httpClient := reddit.NewHTTPClient(ctx, reddit.Credentials{
		ClientID:     cfg.Reddit.ClientID,
		ClientSecret: cfg.Reddit.ClientSecret,
		Username:     cfg.Reddit.Username,
		Password:     cfg.Reddit.Password,
	}, cfg.Reddit.UserAgent)
	client := reddit.New(httpClient, baseURL, cfg.Reddit.UserAgent, logger)

	opts := cfg.Options
	accounts := poll.Accounts{
		EpisodeBot:      opts.EpisodeBotAccount,
		SourceCornerBot: opts.SCBotAccount,
	}
	classifier := poll.NewClassifier(client, accounts, logger)
	scanner := poll.NewScanner(client, client, classifier, opts.Subreddit, logger)
	resolver := poll.NewResolver(client, accounts, logger)
	reposter := poll.NewReposter(resolver, client, client, poll.Templates{
		Repost:     opts.RepostTemplate,
		ParentLink: opts.ParentLinkTemplate,
		ParentNone: opts.ParentNoneTemplate,
	}, logger)

	var store poll.DeadLetterStore
	if deadLetters != nil {
		store = deadLetters
	}
	monitor := poll.New(scanner, reposter, store, opts.Interval(), logger)

	logger.Info("Reposter starting",
		"subreddit", opts.Subreddit,
		"episode_bot", opts.EpisodeBotAccount,
		"sc_bot", opts.SCBotAccount,
		"sleep_time", opts.Interval().String())

	return monitor.Run(ctx)
}

// initDeadLetters opens the dead letter store, if one is configured, and reports
// failed reposts left over from earlier runs.
func initDeadLetters(ctx context.Context, cfg config.DeadLetter, logger *slog.Logger) (*storage.Store, func(), error) {
	noop := func() {}

	var store *storage.Store
	cleanup := noop
	switch {
	case cfg.Bucket != "":
		client, err := storage.NewGCSClient(ctx, os.Getenv("GOOGLE_CREDENTIALS_JSON"))
		if err != nil {
			return nil, noop, fmt.Errorf("initialize storage client: %w", err)
		}
		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}
		store = storage.New(client, cfg.Bucket, "", logger)
		logger.Info("Recording dead letters in Cloud Storage", "bucket", cfg.Bucket)
	case cfg.LocalPath != "":
		if err := os.MkdirAll(cfg.LocalPath, 0o755); err != nil {
			return nil, noop, fmt.Errorf("create dead letter directory: %w", err)
		}
		store = storage.New(nil, "", cfg.LocalPath, logger)
		logger.Info("Recording dead letters locally", "path", cfg.LocalPath)
	default:
		logger.Info("No dead letter storage configured, failed reposts are only logged")
		return nil, noop, nil
	}

	pending, err := store.List(ctx)
	if err != nil {
		logger.Warn("Failed to list dead letters", "error", err)
	} else if len(pending) > 0 {
		logger.Warn("Failed reposts from earlier runs need manual review", "count", len(pending))
	}

	return store, cleanup, nil
}
