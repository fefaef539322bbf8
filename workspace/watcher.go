package workspace

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Change reports what the watcher did with a changed path. Doc is nil when
// the file was removed.
type Change struct {
	Path string
	Doc  *Document
	Err  error
}

// Watcher reparses the files of a workspace when they change on disk.
// Events are debounced; a burst of writes to one file leads to one
// incremental reparse.
type Watcher struct {
	ws        *Workspace
	fsWatcher *fsnotify.Watcher
	debounce  time.Duration
	onChange  func([]Change)

	pendingMu sync.Mutex
	pending   map[string]bool
	timer     *time.Timer
	done      chan struct{}
}

func NewWatcher(ws *Workspace, debounce time.Duration, onChange func([]Change)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		ws:        ws,
		fsWatcher: fsw,
		debounce:  debounce,
		onChange:  onChange,
		pending:   make(map[string]bool),
		done:      make(chan struct{}),
	}, nil
}

// Start watches every directory below the workspace root and processes
// events until Close.
func (w *Watcher) Start() error {
	if err := w.watchRecursive(w.ws.RootDir()); err != nil {
		return err
	}
	go w.run()
	return nil
}

func (w *Watcher) Close() error {
	err := w.fsWatcher.Close()
	<-w.done
	w.pendingMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.pendingMu.Unlock()
	return err
}

func (w *Watcher) watchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.excluded(path) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.ws.RootDir(), path)
	if err != nil || rel == "." {
		return "", false
	}
	return rel, true
}

func (w *Watcher) excluded(path string) bool {
	rel, ok := w.rel(path)
	return ok && w.ws.Filter() != nil && w.ws.Filter().Excluded(rel)
}

func (w *Watcher) accepted(path string) bool {
	rel, ok := w.rel(path)
	if !ok {
		return false
	}
	return w.ws.Filter() == nil || w.ws.Filter().Match(rel)
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if m := w.ws.metrics; m != nil {
				m.WatcherEvents.Inc()
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.excluded(event.Name) {
						if err := w.watchRecursive(event.Name); err != nil {
							log.Warningf("watch %s: %s", event.Name, err)
						}
					}
					continue
				}
			}
			if !w.accepted(event.Name) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.schedule(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.Errorf("watcher: %s", err)
		}
	}
}

func (w *Watcher) schedule(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()
	w.pending[path] = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for path := range w.pending {
		paths = append(paths, path)
	}
	w.pending = make(map[string]bool)
	w.pendingMu.Unlock()
	sort.Strings(paths)

	changes := make([]Change, 0, len(paths))
	for _, path := range paths {
		doc, err := w.ws.ScanFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			w.ws.Remove(path)
			err = nil
		}
		changes = append(changes, Change{Path: path, Doc: doc, Err: err})
	}
	if len(changes) > 0 && w.onChange != nil {
		w.onChange(changes)
	}
}
