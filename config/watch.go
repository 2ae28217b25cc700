package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for more events before reloading.
const DefaultDebounce = 100 * time.Millisecond

// ReloadFunc receives the recomposed config after a change, or the error that
// prevented loading or validating it.
type ReloadFunc func(*Config, error)

// Watch reloads and validates the configs at paths whenever one of them is
// written, created or renamed, and passes the result to fn. Bursts of events
// within debounce are collapsed into one reload. Watch blocks until ctx is
// done and returns nil, or returns the error that stopped the watcher.
//
// Parent directories are watched rather than the files so that editors that
// replace files on save are followed.
func Watch(ctx context.Context, paths []string, debounce time.Duration, fn ReloadFunc) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	files := make(map[string]bool, len(paths))
	dirs := make(map[string]bool)
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !files[filepath.Clean(ev.Name)] {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fn(nil, err)
		case <-timer.C:
			fn(reload(paths))
		}
	}
}

func reload(paths []string) (*Config, error) {
	c, err := LoadAll(paths...)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
