package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/config"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/db"
	httpserver "github.com/02loveslollipop/localizador-sniffer/services/sniffer/http"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/decoder"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/ingest"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/lastseen"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/listener"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/observability"
	"github.com/02loveslollipop/localizador-sniffer/services/sniffer/internal/window"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := observability.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("sniffer stopped", "error", err)
		cancel()
		os.Exit(1)
	}
	logger.Info("sniffer shut down")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics()
	deps := httpserver.Deps{Metrics: metrics}

	var handler ingest.Handler
	switch cfg.Mode {
	case config.ModePersistent:
		storeUp := metrics.RegisterStoreUp()
		store, err := db.Connect(ctx, cfg.DatabaseURL, db.Options{
			StatementTimeout:  cfg.StatementTimeout,
			ReconnectInterval: cfg.ReconnectInterval,
			Logger:            logger,
			OnStateChange: func(up bool) {
				if up {
					storeUp.Set(1)
				} else {
					storeUp.Set(0)
				}
			},
		})
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		history, err := db.NewHistory(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer history.Close()

		var recorder ingest.Recorder
		if cfg.RedisAddr != "" {
			cache, err := lastseen.Dial(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisTTL)
			if err != nil {
				logger.Warn("last-seen cache disabled", "addr", cfg.RedisAddr, "error", err)
			} else {
				defer cache.Close()
				recorder = cache
				deps.LastSeen = cache
			}
		}

		dec, err := decoder.NewFixDecoder(cfg.Profile, cfg.CSVDeviceID)
		if err != nil {
			return err
		}
		handler = ingest.NewPersistent(dec, cfg.Routes, store, recorder, metrics, logger)
		deps.Health = store
		deps.History = history
		deps.Routes = cfg.Routes
		logger.Info("persistent sink ready", "routes", cfg.Routes.String(), "profile", cfg.Profile)

	case config.ModeWindowed:
		buf, err := window.New(cfg.WindowCapacity)
		if err != nil {
			return err
		}
		dec, err := decoder.NewValueDecoder(cfg.Profile, cfg.CSVDeviceID)
		if err != nil {
			return err
		}
		handler = ingest.NewWindowed(dec, buf, metrics)
		deps.Window = buf
		logger.Info("windowed sink ready", "capacity", cfg.WindowCapacity, "profile", cfg.Profile)
	}

	udp := listener.New(listener.Options{
		Host:       cfg.UDPHost,
		Port:       cfg.UDPPort,
		MaxPayload: cfg.MaxPayload,
		Logger:     logger,
		Metrics:    metrics,
	}, handler)
	if err := udp.Bind(); err != nil {
		return err
	}

	srv := httpserver.New(cfg, deps)
	logger.Info("http listening", "addr", cfg.ListenAddr())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return udp.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	return g.Wait()
}
