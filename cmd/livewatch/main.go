package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vodeneev/livewatch/internal/notify"
	pkgconfig "github.com/Vodeneev/livewatch/internal/pkg/config"
	"github.com/Vodeneev/livewatch/internal/pkg/health"
	"github.com/Vodeneev/livewatch/internal/pkg/logging"
	"github.com/Vodeneev/livewatch/internal/pkg/netcheck"
	"github.com/Vodeneev/livewatch/internal/pkg/performance"
	"github.com/Vodeneev/livewatch/internal/pkg/storage"
	"github.com/Vodeneev/livewatch/internal/watcher/extractor"
	"github.com/Vodeneev/livewatch/internal/watcher/fetcher"
	"github.com/Vodeneev/livewatch/internal/watcher/poller"
	"github.com/Vodeneev/livewatch/internal/watcher/sink"
)

const (
	defaultConfigPath = "configs/livewatch.yaml"
	serviceName       = "livewatch"
)

type config struct {
	configPath string
	runFor     time.Duration
}

func main() {
	if err := run(); err != nil {
		slog.Error("Watcher failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := parseFlags()
	slog.Info("Loading config", "path", cfg.configPath)

	appConfig, err := pkgconfig.Load(cfg.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	_, logCloser, err := logging.SetupLogger(&appConfig.Logging, serviceName)
	if err != nil {
		slog.Warn("Failed to setup logging, continuing with default logger", "error", err)
	} else {
		defer logCloser.Close()
	}

	ctx, cancel := createContext(cfg.runFor)
	defer cancel()
	setupSignalHandler(ctx, cancel)

	tracker := performance.NewTracker()
	proxy := appConfig.ActiveProxy()
	if proxy != nil {
		slog.Info("Using proxy", "proxy", proxy.Masked())
	}

	go logEgress(ctx, proxy)

	hub := health.NewHub()
	sinks := []sink.Sink{sink.NewLogSink(nil), hub}

	closers, extra := openSinks(ctx, appConfig, hub)
	defer func() {
		for _, c := range closers {
			c()
		}
	}()
	sinks = append(sinks, extra...)

	fanout := sink.NewFanout(sinks,
		sink.WithQueueSize(appConfig.Sinks.QueueSize),
		sink.WithPublishTimeout(appConfig.Sinks.PublishTimeout),
		sink.WithDropHook(func(string) { tracker.RecordDropped() }))
	defer fanout.Close()

	if appConfig.Health.Port > 0 {
		addr, err := health.AddrFor(appConfig.Health.Port)
		if err != nil {
			return err
		}
		if err := health.Run(ctx, addr, health.Options{
			Service:           serviceName,
			ReadHeaderTimeout: appConfig.Health.ReadHeaderTimeout,
			Hub:               hub,
			Tracker:           tracker,
			Checker:           netcheck.New(),
			Proxy:             proxy,
			Stop:              cancel,
		}); err != nil {
			return err
		}
	}

	loop := poller.New(poller.Options{
		URL:            appConfig.Watcher.URL,
		Interval:       appConfig.Watcher.Interval,
		ErrorThreshold: appConfig.Watcher.ErrorThreshold,
		Proxy:          proxy,
	}, newFetcher(appConfig, tracker), extractor.New(), fanout, poller.WithTracker(tracker))

	return loop.Run(ctx)
}

func parseFlags() config {
	var cfg config

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = defaultConfigPath
	}

	flag.StringVar(&cfg.configPath, "config", defaultConfig, "Path to config file (can be set via CONFIG_PATH env var)")
	flag.DurationVar(&cfg.runFor, "run-for", 0, "Auto-stop after duration (e.g. 10m, 2h). 0 = run until SIGINT/SIGTERM")
	flag.Parse()
	return cfg
}

func newFetcher(cfg *pkgconfig.Config, tracker *performance.Tracker) poller.Fetcher {
	opts := []fetcher.Option{
		fetcher.WithUserAgent(cfg.Fetcher.UserAgent),
		fetcher.WithTimeout(cfg.Fetcher.Timeout),
		fetcher.WithFallbackHook(func(string, error) { tracker.RecordProxyFallback() }),
	}
	if cfg.Fetcher.Mode == pkgconfig.FetchModeBrowser {
		slog.Info("Using headless browser fetcher")
		return fetcher.NewBrowserClient(opts...)
	}
	return fetcher.NewClient(opts...)
}

// openSinks connects the optional sinks. A sink that fails to connect is logged and skipped.
func openSinks(ctx context.Context, cfg *pkgconfig.Config, hub *health.Hub) (closers []func(), sinks []sink.Sink) {
	if cfg.Postgres.DSN != "" {
		store, err := storage.NewSnapshotStore(ctx, &cfg.Postgres)
		if err != nil {
			slog.Error("Postgres snapshot store disabled", "error", err)
		} else {
			if b, ok, err := store.LoadSnapshot(ctx); err != nil {
				slog.Warn("Failed to load stored snapshot", "error", err)
			} else if ok {
				hub.Restore(b)
				slog.Info("Restored last snapshot", "matches", len(b.Records), "fetched_at", b.FetchedAt)
			}
			sinks = append(sinks, store)
			closers = append(closers, func() { _ = store.Close() })
		}
	}

	if cfg.Redis.Addr != "" {
		pub, err := storage.NewRedisPublisher(ctx, &cfg.Redis)
		if err != nil {
			slog.Error("Redis publisher disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
			closers = append(closers, func() { _ = pub.Close() })
		}
	}

	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID != 0 {
		n, err := notify.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID)
		if err != nil {
			slog.Error("Telegram notifier disabled", "error", err)
		} else {
			sinks = append(sinks, n)
		}
	}

	return closers, sinks
}

// logEgress reports the direct egress IP and, with a proxy, whether it answers.
func logEgress(ctx context.Context, proxy *pkgconfig.ProxyConfig) {
	slog.Info("Direct egress", "ip", netcheck.CheckIP(ctx))
	if proxy == nil {
		return
	}
	if ok, detail := netcheck.TestProxy(ctx, proxy.URL().String()); ok {
		slog.Info("Proxy egress", "proxy", proxy.Masked(), "ip", detail)
	} else {
		slog.Warn("Proxy check failed, fetches will fall back to direct", "proxy", proxy.Masked(), "detail", detail)
	}
}

func createContext(runFor time.Duration) (context.Context, context.CancelFunc) {
	if runFor > 0 {
		return context.WithTimeout(context.Background(), runFor)
	}
	return context.WithCancel(context.Background())
}

func setupSignalHandler(ctx context.Context, cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal, stopping watcher...", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()
}
