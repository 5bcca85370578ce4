package plugin

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchDir starts an fsnotify watch over root and triggers ReloadOne
// for the owning plugin whenever a file under one of its registered
// directories changes, until ctx is cancelled. It runs in the caller's
// goroutine and returns when ctx is done or the watcher fails to start.
func (m *Manager) WatchDir(ctx context.Context, root string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(root); err != nil {
		return err
	}
	dirs, err := Discover(root)
	if err != nil {
		return err
	}
	for _, dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("plugin watcher: failed to watch directory", "dir", dir, "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			id := m.idForPath(event.Name)
			if id == "" {
				continue
			}
			logger.Info("plugin watcher: reloading plugin after change", "plugin_id", id, "path", event.Name)
			if err := m.ReloadOne(ctx, id); err != nil {
				logger.Error("plugin watcher: reload failed", "plugin_id", id, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("plugin watcher: error", "error", err)
		}
	}
}

func (m *Manager) idForPath(path string) string {
	dir := filepath.Dir(path)
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id, inst := range m.registry {
		if inst.Dir == dir {
			return id
		}
	}
	return ""
}
