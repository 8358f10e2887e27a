package gatewatch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/retailscope/gatewatch/pkg/audit"
	"github.com/retailscope/gatewatch/pkg/bus"
	"github.com/retailscope/gatewatch/pkg/config"
	"github.com/retailscope/gatewatch/pkg/gateway"
	"github.com/retailscope/gatewatch/pkg/monitor"
	"github.com/retailscope/gatewatch/pkg/scheduler"
	"github.com/retailscope/gatewatch/pkg/store"
	"github.com/retailscope/gatewatch/pkg/telemetry"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Gatewatch gateway",
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	path := cfgFile
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := config.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format, nil)
	logger.Info("starting gatewatch",
		slog.String("version", version),
		slog.Int("port", cfg.Gateway.Port),
		slog.String("bind", cfg.Gateway.Bind),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = telemetry.WithLogger(ctx, logger)

	shutdownTracer, err := telemetry.InitTracer(ctx, telemetry.TracerConfig{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "gatewatch",
		Version:     version,
	})
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer shutdownTracer(context.Background())

	db, err := store.New(cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	trail, err := audit.New(db.DB())
	if err != nil {
		return fmt.Errorf("opening audit trail: %w", err)
	}

	b := bus.New(logger)
	defer b.Close()

	gw := gateway.New(gateway.Config{
		Bind:        cfg.Gateway.Bind,
		Port:        cfg.Gateway.Port,
		AuthToken:   cfg.Gateway.AuthToken,
		ExternalURL: cfg.Gateway.ExternalURL,
		Store:       db,
		Bus:         b,
		Audit:       trail,
		Logger:      logger,
	})

	gwErr := make(chan error, 1)
	go func() {
		gwErr <- gw.Start(ctx)
	}()

	if cfg.Upstream.Endpoint != "" {
		delay, err := cfg.Upstream.ReconnectInterval()
		if err != nil {
			return err
		}
		mon, err := monitor.New(monitor.Config{
			Endpoint:       cfg.Upstream.Endpoint,
			Origin:         cfg.Upstream.Origin,
			Transport:      cfg.Upstream.Transport,
			ReconnectDelay: delay,
			Reconnect:      cfg.Upstream.Reconnect,
			AuthToken:      cfg.Upstream.AuthToken,
			Store:          db,
			Bus:            b,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("starting monitor: %w", err)
		}
		go mon.Run(ctx)
	} else {
		logger.Info("no upstream endpoint configured, ingest only")
	}

	sched := scheduler.New()
	if cfg.Store.RetentionDays > 0 {
		if err := sched.Add(scheduler.RetentionJob(db, cfg.Store.RetentionDays, logger)); err != nil {
			return err
		}
	}
	go sched.Start(ctx)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return <-gwErr
	case err := <-gwErr:
		return err
	}
}
