package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/rewired-gh/mvrvdca/internal/config"
	"github.com/rewired-gh/mvrvdca/internal/feed"
	"github.com/rewired-gh/mvrvdca/internal/logger"
	"github.com/rewired-gh/mvrvdca/internal/metrics"
	"github.com/rewired-gh/mvrvdca/internal/momentum"
	"github.com/rewired-gh/mvrvdca/internal/monitor"
	"github.com/rewired-gh/mvrvdca/internal/telegram"
)

func runCmd(configPath *string) *cobra.Command {
	var (
		feedPath string
		follow   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Analyze a feed file and emit phase-change signals",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if feedPath != "" {
				cfg.Feed.Path = feedPath
			}
			if cmd.Flags().Changed("follow") {
				cfg.Feed.PollInterval = follow
			}
			if cfg.Feed.Path == "" {
				return fmt.Errorf("no feed path: set feed.path or --feed")
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&feedPath, "feed", "", "CSV feed path (overrides feed.path)")
	cmd.Flags().DurationVar(&follow, "follow", 0, "Re-read the feed at this interval (overrides feed.poll_interval)")
	return cmd
}

func run(parent context.Context, cfg *config.Config) error {
	store, err := openJournal(cfg)
	if err != nil {
		return err
	}
	defer closeJournal(store)

	analyzer, err := momentum.New(cfg.AnalyzerConfig())
	if err != nil {
		return err
	}

	opts := monitor.Options{Storage: store}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		mx, err := metrics.New(reg)
		if err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
		opts.Metrics = mx

		srv := startMetricsServer(cfg.Metrics.Listen, reg)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("Failed to stop metrics server: %v", err)
			}
		}()
	}

	var telegramClient *telegram.Client
	if cfg.Telegram.Enabled {
		telegramClient, err = telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		opts.Notifier = telegramClient
		logger.Info("Telegram client initialized successfully")
	} else {
		logger.Debug("Telegram notifications disabled")
	}

	mon := monitor.New(analyzer, monitor.Config{
		Advisory:        cfg.Monitor.Advisory,
		NotifyPhases:    cfg.NotifyPhases(),
		CooldownSamples: cfg.Monitor.CooldownSamples,
	}, opts)
	if _, err := mon.Start(cfg.Feed.Path); err != nil {
		return err
	}
	defer mon.Shutdown()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case <-sigChan:
			logger.Info("Shutdown signal received, cleaning up...")
			cancel()
		case <-ctx.Done():
		}
	}()

	if telegramClient != nil {
		telegramClient.SetStatusFunc(mon.Status)
		telegramClient.ListenForCommands(ctx)
	}

	f := &follower{path: cfg.Feed.Path, mon: mon}

	if cfg.Feed.PollInterval == 0 {
		if err := f.cycle(ctx); err != nil {
			return err
		}
		logger.Info("Final state: %s", mon.Status())
		return nil
	}

	logger.Info("Following %s (interval: %v, ema_period: %d, slope_period: %d)",
		cfg.Feed.Path, cfg.Feed.PollInterval, cfg.Analyzer.EMAPeriod, cfg.Analyzer.SlopePeriod)

	reporter := &cycleReporter{}
	if telegramClient != nil {
		reporter.notifier = telegramClient
	}

	ticker := time.NewTicker(cfg.Feed.PollInterval)
	defer ticker.Stop()

	reporter.handle(f.cycle(ctx))
	for {
		select {
		case <-ctx.Done():
			logger.Info("Service stopped")
			return nil
		case <-ticker.C:
			logger.Debug("Starting scheduled feed cycle")
			reporter.handle(f.cycle(ctx))
		}
	}
}

// cycleNotifier receives feed failure and recovery notices.
type cycleNotifier interface {
	SendError(err error) error
	SendRecovery(failures int) error
}

// cycleReporter announces the first failure of a streak and the recovery that ends it.
type cycleReporter struct {
	notifier cycleNotifier
	failures int
}

func (r *cycleReporter) handle(err error) {
	if err != nil {
		r.failures++
		logger.Error("Feed cycle failed: %v", err)
		if r.failures == 1 && r.notifier != nil {
			if sendErr := r.notifier.SendError(err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if r.failures > 0 && r.notifier != nil {
		if sendErr := r.notifier.SendRecovery(r.failures); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	r.failures = 0
}

// follower feeds rows appended to a CSV file since the previous cycle. Malformed
// rows count toward the offset so a bad line is rejected once and never re-read.
type follower struct {
	path      string
	mon       *monitor.Monitor
	processed int
}

func (f *follower) cycle(ctx context.Context) error {
	start := time.Now()

	rows, err := feed.ReadFileRows(f.path)
	if err != nil {
		return err
	}
	if len(rows) < f.processed {
		return fmt.Errorf("feed %s shrank from %d to %d rows", f.path, f.processed, len(rows))
	}

	fresh := rows[f.processed:]
	signals, rejected := 0, 0
	for _, row := range fresh {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if row.Err != nil {
			f.mon.Reject(row.Err)
			rejected++
		} else if _, sig, err := f.mon.Process(row.Reading); err != nil {
			logger.Warn("Skipping reading on line %d: %v", row.Line, err)
			rejected++
		} else if sig != nil {
			signals++
		}
		f.processed++
	}

	logger.Info("Processed %d new rows (%d rejected, %d phase changes) in %v",
		len(fresh), rejected, signals, time.Since(start))
	return nil
}

func startMetricsServer(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("Serving metrics on %s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed: %v", err)
		}
	}()
	return srv
}
