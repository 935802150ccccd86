package db

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// StoreWatcher signals writes to the database files of a data directory,
// including those made by other processes.
type StoreWatcher struct {
	watcher *fsnotify.Watcher
	changes chan struct{}
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewStoreWatcher watches dataDir. Writes to the lock file are ignored.
func NewStoreWatcher(dataDir string) (*StoreWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(dataDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dataDir, err)
	}

	w := &StoreWatcher{
		watcher: watcher,
		changes: make(chan struct{}, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes emits after writes. Bursts collapse into one signal.
func (w *StoreWatcher) Changes() <-chan struct{} {
	return w.changes
}

// Errors emits watcher errors.
func (w *StoreWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and waits for its goroutine.
func (w *StoreWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *StoreWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			// tlsync.db, tlsync.db-wal and tlsync.db-journal
			if !strings.HasPrefix(filepath.Base(event.Name), dbFile) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case w.changes <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}
