package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher hot-reloads configuration when files under the config directory
// change. Enabled only in development; other environments get a no-op
// watcher.
type Watcher struct {
	basePath  string
	config    *Config
	callbacks []func(*Config)
	mu        sync.RWMutex
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewWatcher creates a watcher over the loaded configuration.
func NewWatcher(basePath string, initial *Config, logger *zap.Logger) (*Watcher, error) {
	w := &Watcher{
		basePath: basePath,
		config:   initial,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}

	if initial.Environment != Development {
		logger.Info("configuration hot reloading disabled",
			zap.String("environment", string(initial.Environment)),
		)
		return w, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	w.watcher = fsWatcher

	if err := w.watchConfigFiles(); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch config files: %w", err)
	}
	go w.watchLoop()

	logger.Info("configuration hot reloading enabled",
		zap.String("path", basePath),
	)
	return w, nil
}

// Current returns the latest loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.config
}

// OnReload registers a callback invoked with each successfully reloaded
// configuration.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Stop shuts the watcher down.
func (w *Watcher) Stop() {
	close(w.stopCh)
}

func (w *Watcher) watchConfigFiles() error {
	return filepath.Walk(w.basePath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip files we can't access
		}
		if info.IsDir() || isConfigFile(path) {
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch file",
					zap.String("path", path),
					zap.Error(err),
				)
			}
		}
		return nil
	})
}

func (w *Watcher) watchLoop() {
	defer w.watcher.Close()

	// Debounce rapid successive writes into one reload.
	var debounce *time.Timer
	const debounceDelay = 500 * time.Millisecond

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !isConfigFile(event.Name) {
				continue
			}
			w.logger.Info("configuration file changed",
				zap.String("file", event.Name),
				zap.String("operation", event.Op.String()),
			)
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("file watcher error", zap.Error(err))

		case <-w.stopCh:
			w.logger.Info("stopping configuration watcher")
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.basePath)
	if err != nil {
		// Keep the previous config on a bad reload.
		w.logger.Error("configuration reload failed", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.config = cfg
	callbacks := append([]func(*Config){}, w.callbacks...)
	w.mu.Unlock()

	w.logger.Info("configuration reloaded",
		zap.Strings("sources", cfg.LoadedFrom),
	)
	for _, fn := range callbacks {
		fn(cfg)
	}
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
