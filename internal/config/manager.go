package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay collapses the bursts of filesystem events an editor or
// atomic-write tool emits for one logical save.
const debounceDelay = 500 * time.Millisecond

// Manager loads the configuration and keeps it fresh. Readers get the
// current snapshot through an atomic pointer; a background watcher reloads
// on file changes. The watch covers the config file's directory, not the
// file itself, so rename-based replacement (editors, mounted configmaps)
// keeps working after the original inode disappears.
type Manager struct {
	current  atomic.Pointer[Config]
	path     string
	onChange []func(*Config)
	logger   *slog.Logger
	reloads  atomic.Int64
}

// NewManager loads the configuration at path. The load must succeed; a
// service should not start on a config it cannot parse.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{path: path, logger: logger}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the current configuration snapshot. Safe for concurrent use;
// callers must not mutate the returned value.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// OnChange registers a callback invoked after each successful reload.
// Register before Watch; registration is not synchronized with reloads.
func (m *Manager) OnChange(fn func(*Config)) {
	m.onChange = append(m.onChange, fn)
}

// Reload re-reads the config file and swaps it in if it parses and
// validates. On failure the current snapshot stays in place.
func (m *Manager) Reload() error {
	cfg, err := LoadFromFile(m.path)
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}

	m.current.Store(cfg)
	m.reloads.Add(1)
	m.logger.Info("configuration reloaded", "path", m.path)

	for _, fn := range m.onChange {
		fn(cfg)
	}
	return nil
}

// Reloads returns how many reloads have been applied since startup.
func (m *Manager) Reloads() int64 {
	return m.reloads.Load()
}

// Watch reloads the configuration whenever the file changes, until ctx is
// canceled. Failed reloads are logged and skipped.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		_ = watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		// The timer starts stopped; each relevant event re-arms it.
		debounce := time.NewTimer(debounceDelay)
		if !debounce.Stop() {
			<-debounce.C
		}
		defer debounce.Stop()

		base := filepath.Base(m.path)
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != base {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				debounce.Reset(debounceDelay)

			case <-debounce.C:
				if err := m.Reload(); err != nil {
					m.logger.Error("keeping current configuration", "error", err)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				m.logger.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close is kept for callers that pair Watch with an explicit shutdown;
// cancellation of the Watch context already stops the watcher.
func (m *Manager) Close() error {
	return nil
}
