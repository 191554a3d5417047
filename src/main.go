package main

import (
	// stdlib
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	// internal
	"github.com/Robogera/detectdemo/pkg/app"
	"github.com/Robogera/detectdemo/pkg/config"
	"github.com/Robogera/detectdemo/pkg/enums"
	"github.com/Robogera/detectdemo/pkg/rpath"
	"github.com/Robogera/detectdemo/pkg/synapse"
	"github.com/Robogera/detectdemo/pkg/tracker"
	"github.com/Robogera/detectdemo/pkg/yolo"
	"github.com/Robogera/detectdemo/pkg/youtube"

	// external
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

const (
	default_cfg_path string = "../cfg/config.default.toml"
)

var cfg_path string
var write_default bool
var exe_dir string

func init() {
	var err error

	exe_dir, err = rpath.ExecutableDir()
	if err != nil {
		slog.Error("Can't find the executable's location", "error", err)
		return
	}

	flag.StringVar(
		&cfg_path, "config",
		default_cfg_path,
		"Path to config file")
	flag.BoolVar(
		&write_default, "write-default",
		false,
		"Write the default config to the -config path and exit")
}

func main() {

	// Configuration init

	flag.Parse()

	cfg_path = rpath.Convert(exe_dir, cfg_path)

	if write_default {
		if err := config.CreateDefault(cfg_path); err != nil {
			slog.Error("Can't write default config", "path", cfg_path, "error", err)
			os.Exit(1)
		}
		slog.Info("Default config written", "path", cfg_path)
		return
	}

	cfg, err := config.Unmarshal(cfg_path)
	if err != nil {
		slog.Error("Config file not loaded. Shutting down...", "provided path", cfg_path, "error", err)
		os.Exit(1)
	}
	cfg.Resolve(exe_dir)

	logger := slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevel(cfg.Logging.Level),
		TimeFormat: time.RFC3339,
		AddSource:  true, // change to false on release version
	}))

	logger.Info("Starting...")

	presets, err := tracker.LoadPresets(cfg.Tracker.PresetsDir)
	if err != nil {
		logger.Error("Tracker presets not loaded. Shutting down...", "dir", cfg.Tracker.PresetsDir, "error", err)
		os.Exit(1)
	}

	// models load on first use so a broken variant only
	// refuses detection, the demo itself still comes up
	models := yolo.NewRegistry(cfg.Models, logger)

	downloader := youtube.NewDownloader(
		youtube.NewClient(logger),
		cfg.Input.DownloadDir,
		cfg.Input.DownloadRetries,
		logger)

	var publisher synapse.Publisher = synapse.Nop{}
	if cfg.Mqtt.Enabled {
		publisher = synapse.NewMqttPublisher(
			cfg.Mqtt.Address, cfg.Mqtt.ClientID, cfg.Mqtt.Topic,
			time.Duration(cfg.Mqtt.TimeoutSec)*time.Second,
			logger)
	}

	demo := app.New(cfg, models, presets, downloader, publisher, logger)

	ctx := context.Background()
	eg, child_ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return webserver(child_ctx, logger, cfg, demo)
	})

	eg.Go(func() error {
		return reaper(child_ctx, logger, demo, cfg.Session.ReapPeriodSec)
	})

	eg.Go(func() error {
		return control(child_ctx, logger)
	})

	err = eg.Wait()
	logger.Info("Stopping", "reason", err)

	if err := demo.Close(); err != nil {
		logger.Warn("Unclean shutdown", "error", err)
	}

	logger.Info("Stopped")
}

func logLevel(level string) slog.Level {
	parsed := enums.LoggingLevels.Parse(level)
	if parsed == nil {
		slog.Warn(
			"No valid logging level provided. Defaulting to LevelError",
			"provided value", level)
		return slog.LevelError
	}
	switch *parsed {
	case enums.LoggingLevelDebug:
		return slog.LevelDebug
	case enums.LoggingLevelInfo:
		return slog.LevelInfo
	case enums.LoggingLevelWarn:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func control(ctx context.Context, logger *slog.Logger) error {
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt,
		os.Interrupt,
		syscall.SIGTERM,
		syscall.SIGINT)

	select {
	case <-ctx.Done():
		logger.Info("Control cancelled by context")
		return context.Canceled
	case <-interrupt:
		logger.Info("Cancelled by user")
		return ERR_INTERRUPTED_BY_USER
	}
}
