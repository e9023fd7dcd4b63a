package storage

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultReloadDebounce is how long a burst of file events must settle before
// the providers file is read again.
const DefaultReloadDebounce = 100 * time.Millisecond

// FileWatcher reloads a MemoryStore whenever its YAML seed file changes. A
// file that fails to parse leaves the previous providers in place.
type FileWatcher struct {
	path     string
	store    *MemoryStore
	enc      *Encryption
	debounce time.Duration
	onReload func()

	watcher   *fsnotify.Watcher
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// WatchMemoryStore starts watching path. onReload, when non-nil, runs after
// every successful reload.
func WatchMemoryStore(path string, store *MemoryStore, enc *Encryption, onReload func()) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve providers file: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	// Editors and volume mounts replace the file rather than writing it, so
	// the directory is watched and events are filtered by name.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	w := &FileWatcher{
		path:     abs,
		store:    store,
		enc:      enc,
		debounce: DefaultReloadDebounce,
		onReload: onReload,
		watcher:  watcher,
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *FileWatcher) run() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Str("file", w.path).Msg("providers file watcher error")
		}
	}
}

func (w *FileWatcher) reload() {
	next, err := LoadMemoryStore(w.path, w.enc)
	if err != nil {
		log.Error().Err(err).Str("file", w.path).Msg("failed to reload providers file; keeping previous registry")
		return
	}

	w.store.Replace(next)
	if w.onReload != nil {
		w.onReload()
	}
	log.Info().Str("file", w.path).Int("providers", w.store.Len()).Msg("providers file reloaded")
}

// Close stops watching and waits for the event loop to exit
func (w *FileWatcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
