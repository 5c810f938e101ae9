package config

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// reloadDebounce collapses the burst of events editors emit on save
const reloadDebounce = 500 * time.Millisecond

// ApplyFunc receives a freshly loaded configuration. The previous value is left untouched.
type ApplyFunc func(*Config) error

// Watcher reloads the configuration file on change or SIGHUP
type Watcher struct {
	path    string
	apply   ApplyFunc
	logger  zerolog.Logger
	watcher *fsnotify.Watcher
}

// NewWatcher creates a new config file watcher
func NewWatcher(path string, apply ApplyFunc, logger zerolog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: editors and config management replace the file,
	// which drops a watch placed on the file itself.
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		path:    filepath.Clean(path),
		apply:   apply,
		logger:  logger,
		watcher: fsWatcher,
	}, nil
}

// Run watches until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	w.logger.Info().Str("path", w.path).Msg("Config watcher started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Config watcher stopped")
			return

		case sig := <-sigChan:
			w.logger.Info().Str("signal", sig.String()).Msg("Received signal, reloading configuration")
			w.reload()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			w.logger.Debug().Str("op", event.Op.String()).Msg("Config file changed")

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Config watcher error")
		}
	}
}

// reload loads and applies the new configuration
func (w *Watcher) reload() {
	newCfg, err := Load(w.path)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to load new configuration - keeping current config")
		return
	}

	if err := w.apply(newCfg); err != nil {
		w.logger.Error().Err(err).Msg("Failed to apply new configuration - keeping current config")
		return
	}

	w.logger.Info().Msg("Configuration reloaded successfully")
}
