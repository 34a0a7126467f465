// Package notify watches a single configuration file and reports changes.
//
// The parent directory is watched rather than the file itself so that
// editors that save by rename-and-replace, and files that do not exist yet,
// are handled.
package notify

import (
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/scrypster/pinpoint/internal/logger"
)

// DefaultDebounce coalesces the burst of events a single save produces.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher calls onChange after the watched file is written, created,
// replaced or removed.
type FileWatcher struct {
	path     string
	onChange func()
	debounce time.Duration
	watcher  *fsnotify.Watcher
	done     chan struct{}
	log      *zap.SugaredLogger

	mu    sync.Mutex
	timer *time.Timer
}

// NewFileWatcher creates a watcher for path. A zero debounce uses
// DefaultDebounce.
func NewFileWatcher(path string, debounce time.Duration, onChange func()) *FileWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		debounce: debounce,
		done:     make(chan struct{}),
		log:      logger.GetLogger("notify"),
	}
}

// Start begins watching. Call Stop to clean up.
func (fw *FileWatcher) Start() error {
	if fw.path == "" || fw.path == "." {
		return errors.New("notify: no file to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(fw.path)); err != nil {
		_ = w.Close()
		return err
	}
	fw.watcher = w

	go fw.loop()
	fw.log.Infow("watching file for changes", "path", fw.path)
	return nil
}

// Stop shuts down the watcher and cancels a pending callback.
func (fw *FileWatcher) Stop() {
	if fw.watcher == nil {
		return
	}
	_ = fw.watcher.Close()
	<-fw.done

	fw.mu.Lock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.mu.Unlock()
}

func (fw *FileWatcher) loop() {
	defer close(fw.done)
	for {
		select {
		case evt, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != fw.path {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				fw.schedule()
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warnw("watcher error", "path", fw.path, "error", err)
		}
	}
}

func (fw *FileWatcher) schedule() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.timer != nil {
		fw.timer.Stop()
	}
	fw.timer = time.AfterFunc(fw.debounce, fw.onChange)
}
