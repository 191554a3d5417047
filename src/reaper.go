package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/Robogera/detectdemo/pkg/app"
)

// Drops sessions nobody has touched for a while
func reaper(ctx context.Context, parent_logger *slog.Logger, demo *app.App, reap_period_sec uint) error {
	logger := parent_logger.With("coroutine", "reaper")
	ticker := time.NewTicker(time.Second * time.Duration(max(reap_period_sec, 1)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("Reaper cancelled by context")
			return context.Canceled
		case now := <-ticker.C:
			if reaped := demo.Reap(now); len(reaped) > 0 {
				logger.Debug("Reaped", "sessions", reaped)
			}
		}
	}
}
