package feed

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a timing script whenever it is written. Editors often
// replace files by rename, so the parent directory is watched.
type Watcher struct {
	path     string
	onReload func(*Script)
	logger   zerolog.Logger
	watcher  *fsnotify.Watcher
}

func NewWatcher(path string, onReload func(*Script), logger zerolog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
		abs = filepath.Join(dir, filepath.Base(abs))
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:     abs,
		onReload: onReload,
		logger:   logger.With().Str("component", "feed_watcher").Str("path", abs).Logger(),
		watcher:  fw,
	}, nil
}

// Run blocks until ctx is done. onReload runs on this goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var debounce <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce = time.After(reloadDebounce)
			}

		case <-debounce:
			debounce = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		// Keep the previous script; half-written files parse on the next event.
		w.logger.Warn().Err(err).Msg("Timing reload failed")
		return
	}
	w.logger.Info().Strs("utterances", s.Names()).Msg("Timing script reloaded")
	if w.onReload != nil {
		w.onReload(s)
	}
}
