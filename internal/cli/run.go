package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/applockd/applockd/internal/api"
	"github.com/applockd/applockd/internal/audit"
	auditcomposite "github.com/applockd/applockd/internal/audit/composite"
	auditjsonl "github.com/applockd/applockd/internal/audit/jsonl"
	auditsqlite "github.com/applockd/applockd/internal/audit/sqlite"
	auditwebhook "github.com/applockd/applockd/internal/audit/webhook"
	"github.com/applockd/applockd/internal/config"
	"github.com/applockd/applockd/internal/credential"
	"github.com/applockd/applockd/internal/engine"
	"github.com/applockd/applockd/internal/events"
	"github.com/applockd/applockd/internal/logging"
	"github.com/applockd/applockd/internal/metrics"
	"github.com/applockd/applockd/internal/policy"
	"github.com/applockd/applockd/internal/prompt"
	"github.com/applockd/applockd/internal/resolver"
	"github.com/applockd/applockd/internal/snapshot"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring engine in the foreground",
		Long: `Run the launch-interception engine.

The engine polls the process table, challenges launches of protected
applications, and terminates them when authorization is denied or times
out. The local API serves pending challenges and verdict submission.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runEngine(cmd, cfg, configPath(cmd))
		},
	}
	return cmd
}

func runEngine(cmd *cobra.Command, cfg *config.Config, cfgPath string) error {
	logger, logCloser, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	if logCloser != nil {
		defer logCloser.Close()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := policy.Open(cfg.Store.SQLitePath)
	if err != nil {
		return fmt.Errorf("open policy store: %w", err)
	}
	defer store.Close()

	sink, err := buildSink(cfg)
	if err != nil {
		return fmt.Errorf("open audit sink: %w", err)
	}
	defer sink.Close()

	broker := events.NewBroker(logger)
	collector := metrics.New()
	verifier := credential.NewVerifier(store, logger)
	if !verifier.HasCredential(ctx) {
		logger.Warn("no master credential configured; every challenge will fail closed until 'applockd passwd set' is run")
	}

	view := policy.NewView(ctx, store, logger)

	pollInterval, _ := cfg.PollInterval()
	challengeTimeout, _ := cfg.ChallengeTimeout()
	grace, _ := cfg.KillGracePeriod()

	eng, g := engine.Build(engine.BuildOptions{
		PollInterval:     pollInterval,
		ChallengeTimeout: challengeTimeout,
		MaxAttempts:      cfg.Monitor.MaxAttempts,
		ResolverWindow:   cfg.Monitor.ResolverWindowCycles,
		KillGracePeriod:  grace,
	}, snapshot.New(), view, resolver.NewSystemLookup(), verifier, sink, broker, collector, logger)

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	// Config hot reload covers logging-free knobs only; structural changes
	// (store paths, API address) need a restart and say so.
	watcher, err := config.NewWatcher(cfgPath, 250*time.Millisecond, func(_ *config.Config, err error) {
		if err != nil {
			logger.Error("config reload failed, keeping previous config", "error", err)
			return
		}
		logger.Info("config file changed; engine-level changes apply on restart")
	})
	if err != nil {
		logger.Warn("config watcher not created", "error", err)
	} else if werr := watcher.Start(ctx); werr != nil {
		logger.Warn("config watcher not started", "error", werr)
	}

	prompter := prompt.New(g, broker, cfg.Prompt.Mode, logger)
	go prompter.Run(ctx)

	if cfg.APIEnabled() {
		app := api.NewApp(store, g, sink, broker, collector, logger)
		go func() {
			if err := app.Serve(ctx, cfg.API.Addr); err != nil {
				logger.Error("api server exited", "error", err)
			}
		}()
		logger.Info("api listening", "addr", cfg.API.Addr)
	}

	<-ctx.Done()
	return nil
}

func buildSink(cfg *config.Config) (audit.Sink, error) {
	primary, err := auditsqlite.Open(cfg.Audit.SQLitePath)
	if err != nil {
		return nil, err
	}

	var others []audit.Sink
	if cfg.AuditJSONLEnabled() {
		js, err := auditjsonl.New(cfg.Audit.Output, cfg.Audit.Rotation.MaxSizeMB, cfg.Audit.Rotation.MaxBackups)
		if err != nil {
			primary.Close()
			return nil, err
		}
		others = append(others, js)
	}
	if cfg.Audit.Webhook.URL != "" {
		flush, _ := time.ParseDuration(cfg.Audit.Webhook.FlushInterval)
		timeout, _ := time.ParseDuration(cfg.Audit.Webhook.Timeout)
		wh, err := auditwebhook.New(cfg.Audit.Webhook.URL, cfg.Audit.Webhook.BatchSize, flush, timeout, cfg.Audit.Webhook.Headers)
		if err != nil {
			primary.Close()
			return nil, err
		}
		others = append(others, wh)
	}
	return auditcomposite.New(primary, others...), nil
}
