package customize

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce collapses the burst of events an editor save produces.
const reloadDebounce = 250 * time.Millisecond

// ErrNoFile is returned by Watch when the store was not loaded from a file.
var ErrNoFile = errors.New("customize: store has no backing file")

// Watch reloads the store whenever its file changes, until ctx is done.
// The parent directory is watched so atomic rename-over saves are seen.
// A reload that fails keeps the previous entries.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return ErrNoFile
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir, name := filepath.Split(filepath.Clean(s.path))
	if dir == "" {
		dir = "."
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}

	go s.watchLoop(ctx, w, name)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, w *fsnotify.Watcher, name string) {
	defer w.Close()

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(reloadDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("customize watcher error", "error", err)
		case <-timer.C:
			if err := s.Reload(); err != nil {
				s.logger.Error("reloading customize file", "path", s.path, "error", err)
			}
		}
	}
}
