package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"athand/internal/astro"
	"athand/internal/audio"
	"athand/internal/config"
	appLog "athand/internal/log"
	"athand/internal/notify"
	"athand/internal/prayer"
	"athand/internal/session"
	"athand/internal/settings"
	"athand/internal/tzres"
	"athand/internal/web"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	listen     string
	once       bool
}

func main() {
	// Load .env first, but don't error if it doesn't exist.
	_ = godotenv.Load()

	appLog.Info("athand starting", "version", "0.1.0")

	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	// CLI --listen overrides config file listen if provided.
	if flags.listen != "" {
		conf.Listen = flags.listen
	}

	appLog.Info("effective config",
		"listen", conf.Listen,
		"db_path", conf.DBPath,
		"resync", conf.ResyncCron,
		"athan_cmd_set", conf.AthanCmd != "",
		"once", flags.once,
	)

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	store, err := settings.Open(ctx, conf.DBPath)
	if err != nil {
		appLog.Error("failed to open settings store", err, "db_path", conf.DBPath)
		os.Exit(1)
	}
	defer store.Close()

	saved, err := store.Load(ctx)
	if err != nil {
		appLog.Error("failed to load settings, using defaults", err)
	}

	coord := session.New(ctx,
		prayer.NewComputer(astro.NewProvider()),
		notify.NewDesktopAlerter(),
		audio.NewExecPlayer(conf.AthanCmd),
		store,
		tzres.NewFinderResolver(),
		saved,
	)
	defer coord.Close()

	coord.Refresh(time.Now())

	if flags.once {
		snap := coord.Snapshot()
		if snap.Next != nil {
			appLog.Info("next prayer", "kind", snap.Next.Kind, "at", snap.Next.At.Format(time.RFC3339))
		} else {
			appLog.Info("no upcoming prayer")
		}
		return
	}

	// Periodic drift-guard resync on top of the midnight wake.
	resync := cron.New()
	if _, err := resync.AddFunc(conf.ResyncCron, coord.Resync); err != nil {
		appLog.Error("invalid resync cron expression", err, "resync", conf.ResyncCron)
		os.Exit(1)
	}
	resync.Start()
	defer resync.Stop()

	server := &http.Server{
		Addr:    conf.Listen,
		Handler: web.NewServer(conf, coord).Handler(),
	}
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+conf.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("HTTP server failed", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP server shutdown failed", err)
	}
	appLog.Info("athand exiting")
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/athand/config.yaml", "Path to config file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.once, "once", false, "Compute the schedule once, log the next prayer, and exit")

	flag.Parse()

	return cfg
}
