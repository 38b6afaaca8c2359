package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 500 * time.Millisecond

// Reloader watches a config file and hands every successfully parsed
// revision to onChange. Parse failures are logged and the previous
// configuration stays in effect.
type Reloader struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	logger   *slog.Logger
	debounce time.Duration
}

// NewReloader starts watching path.
func NewReloader(path string, onChange func(*Config), logger *slog.Logger) (*Reloader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}
	return &Reloader{
		watcher:  watcher,
		path:     path,
		onChange: onChange,
		logger:   logger,
		debounce: reloadDebounce,
	}, nil
}

// Run blocks until ctx is cancelled.
func (r *Reloader) Run(ctx context.Context) error {
	defer r.watcher.Close()

	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return nil

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(r.debounce, r.reload)
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (r *Reloader) reload() {
	cfg, err := Load(r.path)
	if err != nil {
		r.logger.Error("config reload failed", "path", r.path, "error", err)
		return
	}
	r.logger.Info("config reloaded", "path", r.path)
	r.onChange(cfg)
}
