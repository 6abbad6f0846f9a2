package layers

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry from a FileSource whenever the file changes.
// The parent directory is watched so editors that replace the file by rename
// are picked up. It blocks until ctx is done.
func Watch(ctx context.Context, r *Registry, src FileSource, log *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalogue watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	target := filepath.Clean(src.Path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	// coalesce bursts of writes into one reload
	const settle = 200 * time.Millisecond
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				pending = time.After(settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("catalogue watcher error", "err", err)
		case <-pending:
			pending = nil
			if err := r.Reload(ctx, src); err != nil {
				log.Error("catalogue reload failed; keeping previous snapshot", "path", target, "err", err)
				continue
			}
			log.Info("catalogue reloaded", "path", target, "layers", len(r.ListAll()), "version", r.Version())
		}
	}
}
