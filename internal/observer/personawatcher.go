// Package observer watches persona definition files for edits so a
// long-running daemon can pick up changes without a restart.
package observer

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PersonaChangeCallback is called with the persona files that changed.
type PersonaChangeCallback func(changedFiles []string)

// PersonaWatcher monitors directories for changes to persona YAML files
type PersonaWatcher struct {
	watcher  *fsnotify.Watcher
	callback PersonaChangeCallback
	debounce time.Duration

	// Track watched directories
	dirs map[string]struct{}

	// Debounce state
	pending map[string]struct{}
	timer   *time.Timer
	mu      sync.Mutex

	cancel context.CancelFunc
}

// NewPersonaWatcher creates a new watcher for persona files
func NewPersonaWatcher(callback PersonaChangeCallback) (*PersonaWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PersonaWatcher{
		watcher:  watcher,
		callback: callback,
		debounce: 500 * time.Millisecond, // Debounce rapid changes
		dirs:     make(map[string]struct{}),
		pending:  make(map[string]struct{}),
	}

	return pw, nil
}

// AddDir starts watching a directory containing persona files
func (pw *PersonaWatcher) AddDir(dir string) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, exists := pw.dirs[dir]; exists {
		return nil // Already watching
	}

	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil // Nothing to watch
	}

	if err := pw.watcher.Add(dir); err != nil {
		return err
	}

	pw.dirs[dir] = struct{}{}
	return nil
}

// RemoveDir stops watching a directory
func (pw *PersonaWatcher) RemoveDir(dir string) {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	if _, exists := pw.dirs[dir]; !exists {
		return
	}

	pw.watcher.Remove(dir)
	delete(pw.dirs, dir)
}

// Start begins watching for file changes
func (pw *PersonaWatcher) Start(ctx context.Context) {
	ctx, pw.cancel = context.WithCancel(ctx)

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-pw.watcher.Events:
				if !ok {
					return
				}
				pw.handleEvent(event)
			case err, ok := <-pw.watcher.Errors:
				if !ok {
					return
				}
				log.Printf("persona watcher: %v", err)
			}
		}
	}()
}

// Stop stops watching for file changes
func (pw *PersonaWatcher) Stop() {
	if pw.cancel != nil {
		pw.cancel()
	}
	pw.watcher.Close()
}

func (pw *PersonaWatcher) handleEvent(event fsnotify.Event) {
	// Only care about persona definitions
	if !isPersonaFile(event.Name) {
		return
	}

	// Only care about writes and creates
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	pw.mu.Lock()
	defer pw.mu.Unlock()

	pw.pending[event.Name] = struct{}{}

	// Reset or start debounce timer
	if pw.timer != nil {
		pw.timer.Stop()
	}
	pw.timer = time.AfterFunc(pw.debounce, pw.flush)
}

func (pw *PersonaWatcher) flush() {
	pw.mu.Lock()
	pending := pw.pending
	pw.pending = make(map[string]struct{})
	pw.mu.Unlock()

	if pw.callback == nil || len(pending) == 0 {
		return
	}

	files := make([]string, 0, len(pending))
	for f := range pending {
		files = append(files, f)
	}
	pw.callback(files)
}

// SetDebounce sets the debounce duration for batching file changes
func (pw *PersonaWatcher) SetDebounce(d time.Duration) {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	pw.debounce = d
}

func isPersonaFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}
