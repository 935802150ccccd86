package syncconfig

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// AuthWatcher reports whether a credential is stored each time the
// credential file is created, rewritten or removed.
type AuthWatcher struct {
	watcher *fsnotify.Watcher
	path    string
	changes chan bool
	errors  chan error
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAuthWatcher watches the config directory for credential changes.
func NewAuthWatcher() (*AuthWatcher, error) {
	path, err := AuthPath()
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory: the file itself may not exist yet, and editors
	// replace files by rename.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &AuthWatcher{
		watcher: watcher,
		path:    path,
		changes: make(chan bool, 1),
		errors:  make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.wg.Add(1)
	go w.run()
	return w, nil
}

// Changes emits the credential state after every change. Only the latest
// state is buffered.
func (w *AuthWatcher) Changes() <-chan bool {
	return w.changes
}

// Errors emits watcher errors.
func (w *AuthWatcher) Errors() <-chan error {
	return w.errors
}

// Close stops the watcher and waits for its goroutine.
func (w *AuthWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *AuthWatcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			w.publish(IsAuthenticated())
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

// publish replaces any unread state with the latest one.
func (w *AuthWatcher) publish(present bool) {
	select {
	case <-w.changes:
	default:
	}
	select {
	case w.changes <- present:
	default:
	}
}
