package session

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/ggchat/pkg/logger"
)

// Watch keeps sess in sync with session.toml until ctx is done, so a login
// or logout from another ggchat process reaches a long-running one. Writes
// and creations reload the token; removal clears it.
func Watch(ctx context.Context, store *Store, sess *Session, log *slog.Logger) error {
	log = logger.OrNop(log)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating session watcher: %w", err)
	}
	defer watcher.Close()

	path := filepath.Clean(store.GetTarget())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watching session dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}

			switch {
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				sess.Clear()
				log.Debug("session removed, token cleared")
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				stored, err := store.Load()
				if err != nil {
					log.Warn("reloading session failed", "error", err)
					continue
				}
				sess.Set(stored.Token)
				log.Debug("session reloaded", "logged_in", stored.Token != "")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("session watcher error: %w", err)
		}
	}
}
