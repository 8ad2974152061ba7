package store

import (
	"bytes"
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	watchDebounce = 300 * time.Millisecond
	pollInterval  = 15 * time.Second
)

// Watch emits the reloaded document whenever the stored bytes change.
// The file driver listens on the parent directory (editors replace files
// by rename); database drivers poll. Documents that fail to decode are
// logged and skipped. The channel closes when ctx is done.
func (s *Store) Watch(ctx context.Context) (<-chan Document, error) {
	out := make(chan Document, 1)
	changed := make(chan struct{}, 1)
	kick := func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	}

	if fb, ok := s.b.(*fileBackend); ok {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(fb.path)
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
		go s.watchFile(ctx, w, filepath.Clean(fb.path), kick)
	} else {
		go func() {
			t := time.NewTicker(pollInterval)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					kick()
				}
			}
		}()
	}

	last, _ := s.b.read(ctx)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-changed:
			}
			s.mu.Lock()
			raw, err := s.b.read(ctx)
			if err == nil && bytes.Equal(raw, last) {
				s.mu.Unlock()
				continue
			}
			var d Document
			if err == nil {
				d, err = s.decode(raw)
			}
			s.mu.Unlock()
			if err != nil {
				s.log.Warn().Err(err).Msg("settings reload failed; keeping previous")
				continue
			}
			last = raw
			select {
			case out <- d:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) watchFile(ctx context.Context, w *fsnotify.Watcher, path string, kick func()) {
	defer w.Close()

	// debounce to avoid partial writes
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, kick)
			} else {
				timer.Reset(watchDebounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.Warn().Err(err).Str("path", path).Msg("settings watch error")
		}
	}
}
