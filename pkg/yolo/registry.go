package yolo

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/Robogera/detectdemo/pkg/config"
	"github.com/Robogera/detectdemo/pkg/detection"
	"go.uber.org/multierr"
)

type loader func(config.ModelConfig, *slog.Logger) (detection.Model, error)

// Loads every model variant once and keeps it for the
// lifetime of the process. A failed load is remembered
// and returned on every later request
type Registry struct {
	mu       sync.Mutex
	logger   *slog.Logger
	configs  map[string]config.ModelConfig
	models   map[string]detection.Model
	failures map[string]error
	load     loader
}

func NewRegistry(models []config.ModelConfig, logger *slog.Logger) *Registry {
	return newRegistry(models, logger, func(cfg config.ModelConfig, logger *slog.Logger) (detection.Model, error) {
		return Load(cfg, logger)
	})
}

func newRegistry(models []config.ModelConfig, logger *slog.Logger, load loader) *Registry {
	configs := make(map[string]config.ModelConfig, len(models))
	for _, m := range models {
		configs[m.Name] = m
	}
	return &Registry{
		logger:   logger.With("coroutine", "models"),
		configs:  configs,
		models:   make(map[string]detection.Model),
		failures: make(map[string]error),
		load:     load,
	}
}

func (r *Registry) Variants() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.configs))
	for name := range r.configs {
		out = append(out, name)
	}
	return out
}

func (r *Registry) Get(name string) (detection.Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.models[name]; ok {
		return m, nil
	}
	if err, ok := r.failures[name]; ok {
		return nil, err
	}
	cfg, ok := r.configs[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown variant %q", ERR_BAD_MODEL, name)
	}
	m, err := r.load(cfg, r.logger)
	if err != nil {
		r.logger.Error("Model load failed", "variant", name, "error", err)
		r.failures[name] = err
		return nil, err
	}
	r.models[name] = m
	return m, nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for name, m := range r.models {
		if closer, ok := m.(io.Closer); ok {
			err = multierr.Append(err, closer.Close())
		}
		delete(r.models, name)
	}
	return err
}
