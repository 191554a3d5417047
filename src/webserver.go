package main

import (
	// stdlib
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	// internal
	"github.com/Robogera/detectdemo/pkg/app"
	"github.com/Robogera/detectdemo/pkg/config"
)

func webserver(
	ctx context.Context,
	parent_logger *slog.Logger,
	cfg *config.ConfigFile,
	demo *app.App,
) error {

	logger := parent_logger.With("coroutine", "webserver")

	h := &handlers{
		demo:         demo,
		run_ctx:      ctx,
		upload_limit: int64(cfg.Webserver.UploadLimitMB) << 20,
		logger:       logger,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("0.0.0.0:%d", cfg.Webserver.Port),
		Handler:      h.router(),
		ReadTimeout:  time.Duration(cfg.Webserver.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.Webserver.WriteTimeoutSec) * time.Second,
	}

	err_chan := make(chan error, 1)

	go func() {
		err_chan <- server.ListenAndServe()
	}()
	defer func() {
		shutdown_context, cancel := context.WithTimeout(
			context.Background(),
			time.Second*time.Duration(cfg.Webserver.ShutdownTimeoutSec))
		defer cancel()
		shutdown_initiated_timestamp := time.Now()
		err := server.Shutdown(shutdown_context)
		logger.Info(
			"Shut down",
			"shutdown time (sec)", time.Since(shutdown_initiated_timestamp).Seconds(),
			"error", err)
	}()

	logger.Info("Started", "port", cfg.Webserver.Port)

	select {
	case <-ctx.Done():
		logger.Info("Cancelled by context", "timeout (sec)", cfg.Webserver.ShutdownTimeoutSec)
		return context.Canceled
	case err := <-err_chan:
		logger.Error("Error", "port", cfg.Webserver.Port, "error", err)
		return err
	}
}
