package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/config"
	"github.com/nfraser/mail-triage/internal/core"
	"github.com/nfraser/mail-triage/internal/di"
)

func main() {
	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	logger *zap.Logger,
	cfg *config.Config,
	pipeline *core.Pipeline,
	mail core.MailGateway,
	tasks core.TaskRepository,
	corpusRepo core.CorpusRepository,
) error {
	defer logger.Sync()

	if mail == nil {
		logger.Fatal("No mail host configured; set mail.host to run the triage daemon")
	}

	mailCfg := cfg.GetMail()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Report progress as batches run
	go func() {
		for progress := range pipeline.Progress() {
			logger.Info("Batch progress",
				zap.String("run_id", progress.RunID),
				zap.Int("done", progress.Done),
				zap.Int("total", progress.Total),
				zap.Float64("percent", progress.Percent))
		}
	}()

	ticker := time.NewTicker(mailCfg.PollInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Mail triage daemon started",
		zap.String("folder", mailCfg.Folder),
		zap.Duration("poll_interval", mailCfg.PollInterval))

	// Process once at startup, then on every tick
	processBatch(ctx, logger, cfg, pipeline, mail)

	for {
		select {
		case <-ticker.C:
			processBatch(ctx, logger, cfg, pipeline, mail)
		case sig := <-sigCh:
			logger.Info("Shutting down...", zap.String("signal", sig.String()))
			cancel()

			if err := tasks.Close(); err != nil {
				logger.Error("Failed to close task store", zap.Error(err))
			}
			if corpusRepo != nil {
				if closer, ok := corpusRepo.(interface{ Close() error }); ok && !sameStore(tasks, corpusRepo) {
					if err := closer.Close(); err != nil {
						logger.Error("Failed to close corpus store", zap.Error(err))
					}
				}
			}

			logger.Info("Shutdown complete")
			return nil
		}
	}
}

// sameStore reports whether the two repositories are one object, so a
// shared database is not closed twice.
func sameStore(tasks core.TaskRepository, corpusRepo core.CorpusRepository) bool {
	t, ok := tasks.(interface{ Close() error })
	if !ok {
		return false
	}
	c, ok := corpusRepo.(interface{ Close() error })
	if !ok {
		return false
	}
	return any(t) == any(c)
}

// processBatch fetches one batch from the mailbox and runs the
// pipeline over it. Fetch and run failures are logged, never fatal to
// the daemon.
func processBatch(
	ctx context.Context,
	logger *zap.Logger,
	cfg *config.Config,
	pipeline *core.Pipeline,
	mail core.MailGateway,
) {
	mailCfg := cfg.GetMail()

	emails, err := mail.FetchEmails(ctx, mailCfg.Folder, core.MailFilter{
		Since:      time.Now().Add(-mailCfg.FetchWindow),
		UnreadOnly: true,
		Limit:      mailCfg.FetchLimit,
	})
	if err != nil {
		logger.Error("Failed to fetch emails", zap.Error(err))
		return
	}
	if len(emails) == 0 {
		logger.Debug("No emails to process")
		return
	}

	report, err := pipeline.Run(ctx, emails)
	if err != nil {
		logger.Error("Batch run aborted", zap.Error(err))
	}
	if report == nil {
		return
	}

	logger.Info("Batch report",
		zap.String("run_id", report.RunID),
		zap.String("status", string(report.Status)),
		zap.Int("processed", report.Processed),
		zap.Int("classified", report.Classified),
		zap.Int("duplicates", report.Duplicates),
		zap.Int("auto_approved", report.AutoApproved),
		zap.Int("manual_review", report.ManualReview),
		zap.Int("tasks_created", report.TasksCreated),
		zap.Int("tasks_merged", report.TasksMerged),
		zap.Int("errors", len(report.Errors)))
}
