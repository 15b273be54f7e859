package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Source hands out the configuration snapshot for one request.
type Source interface {
	Current() *Config
}

// Store holds the current configuration. Readers take one snapshot per
// request; Watch swaps in a new one when the file changes.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a Store holding cfg.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.Set(cfg)
	return s
}

// Current returns the snapshot in effect.
func (s *Store) Current() *Config {
	return s.current.Load()
}

// Set replaces the snapshot.
func (s *Store) Set(cfg *Config) {
	s.current.Store(cfg)
}

// Watch reloads the file at path into store whenever it changes, until ctx
// is done. A file that fails to load is logged and the previous snapshot
// stays in effect.
func Watch(ctx context.Context, path string, lookup LookupFunc, store *Store, logger *zap.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}

	// Editors often replace the file, so watch the directory.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := Load(path, lookup)
				if err != nil {
					logger.Warn("config reload failed, keeping previous", zap.String("path", path), zap.Error(err))
					continue
				}
				store.Set(cfg)
				logger.Info("config reloaded",
					zap.String("path", path),
					zap.Bool("stateful", cfg.Upstream.Stateful()),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", zap.Error(err))
			}
		}
	}()

	return nil
}
