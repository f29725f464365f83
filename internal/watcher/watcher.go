// Package watcher re-runs indexing when movie metadata files change.
package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"movie-search/internal/loader"
)

// DefaultDebounce collapses the burst of events an editor or copy produces
const DefaultDebounce = 500 * time.Millisecond

// Relevant reports whether an event can change the set of indexed movies
func Relevant(ev fsnotify.Event) bool {
	if !loader.IsRecognized(ev.Name) {
		return false
	}
	return ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)
}

// Watch calls reindex after relevant changes in dir settle for debounce. It blocks until ctx is
// done or the watcher fails. A reindex error is logged and watching continues.
func Watch(ctx context.Context, dir string, debounce time.Duration, reindex func(context.Context) error) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Msg("Watching for movie changes")

	// nil until a relevant change arrives; each change restarts the wait
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !Relevant(ev) {
				continue
			}
			log.Debug().Str("file", ev.Name).Str("op", ev.Op.String()).Msg("Movie file changed")
			fire = time.After(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher failed: %w", err)
		case <-fire:
			fire = nil
			if err := reindex(ctx); err != nil {
				log.Error().Err(err).Msg("Re-index failed")
			}
		}
	}
}
