package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/m-gruen/nexus/internal/models"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the configuration when the file changes and notifies
// registered callbacks with the new value.
type Watcher struct {
	configPath string
	logger     *logrus.Logger
	mu         sync.RWMutex
	config     *models.Config
	callbacks  []func(*models.Config)
}

func NewWatcher(configPath string, logger *logrus.Logger) *Watcher {
	return &Watcher{
		configPath: configPath,
		logger:     logger,
	}
}

// OnReload registers a callback invoked with each successfully reloaded
// configuration. Register before Start.
func (w *Watcher) OnReload(cb func(*models.Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Config returns the most recently loaded configuration.
func (w *Watcher) Config() *models.Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// Start loads the configuration and watches the containing directory
// until the context ends. Watching the directory rather than the file
// survives editors that replace the file on save.
func (w *Watcher) Start(ctx context.Context) error {
	config, err := LoadConfig(w.configPath)
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.config = config
	w.mu.Unlock()

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.configPath)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return err
	}

	go func() {
		defer func() { _ = fsWatcher.Close() }()
		target := filepath.Clean(w.configPath)

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsWatcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				w.reload()
			case err, ok := <-fsWatcher.Errors:
				if !ok {
					return
				}
				w.logger.Warnf("Config watcher error: %v", err)
			}
		}
	}()

	return nil
}

func (w *Watcher) reload() {
	config, err := LoadConfig(w.configPath)
	if err != nil {
		// Keep serving the last good configuration.
		w.logger.Warnf("Config reload failed, keeping previous: %v", err)
		return
	}

	w.mu.Lock()
	w.config = config
	callbacks := make([]func(*models.Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded")
	for _, cb := range callbacks {
		cb(config)
	}
}
