// Package watcher turns file writes under the workspace folders into save
// events.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runonsave/internal/workspace"
	"runonsave/pkg/logger"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces the burst of writes an editor makes per save
const DefaultDebounce = 100 * time.Millisecond

var skippedDirs = map[string]bool{
	"node_modules": true,
}

// SaveHandler receives coalesced save events
type SaveHandler interface {
	HandleSave(ctx context.Context, doc workspace.Document)
}

type Watcher struct {
	workspace *workspace.Workspace
	handler   SaveHandler
	debounce  time.Duration
	logger    *logger.Logger

	// ignored holds files the daemon writes itself; their siblings named
	// <file>.* or <file>-* (temp files, sqlite journals) are ignored too
	ignored []string

	mu      sync.Mutex
	pending map[string]*pendingSave
}

// pendingSave is the debounce timer of one path. Its identity tells a
// callback whether it is still the current timer for the path.
type pendingSave struct {
	timer *time.Timer
}

func New(ws *workspace.Workspace, handler SaveHandler, debounce time.Duration, log *logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Watcher{
		workspace: ws,
		handler:   handler,
		debounce:  debounce,
		logger:    log,
		pending:   make(map[string]*pendingSave),
	}
}

// Ignore excludes paths from save events. Relative paths are resolved
// against the working directory.
func (w *Watcher) Ignore(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		w.ignored = append(w.ignored, abs)
		if dir, err := filepath.EvalSymlinks(filepath.Dir(abs)); err == nil {
			if resolved := filepath.Join(dir, filepath.Base(abs)); resolved != abs {
				w.ignored = append(w.ignored, resolved)
			}
		}
	}
}

func (w *Watcher) isIgnored(path string) bool {
	path = filepath.Clean(path)
	for _, p := range w.ignored {
		if path == p || strings.HasPrefix(path, p+".") || strings.HasPrefix(path, p+"-") {
			return true
		}
	}
	return false
}

// Run watches every workspace folder until ctx is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	folders := w.workspace.Folders()
	if len(folders) == 0 {
		return fmt.Errorf("no workspace folders to watch")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()
	defer w.stopPending()

	for _, folder := range folders {
		if err := w.addTree(fsw, folder); err != nil {
			return err
		}
	}
	w.logger.WithFields(logger.Fields{"folders": folders}).Info("Watching workspace folders")

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("File watcher error")

		case <-ctx.Done():
			w.logger.Info("Stopping file watcher")
			return nil
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, fsw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	if w.isIgnored(event.Name) {
		return
	}

	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}
	if info.IsDir() {
		if event.Has(fsnotify.Create) && !skipDir(filepath.Base(event.Name)) {
			if err := w.addTree(fsw, event.Name); err != nil {
				w.logger.WithError(err).Warn("Failed to watch new directory")
			}
		}
		return
	}
	if !info.Mode().IsRegular() {
		return
	}

	w.schedule(ctx, event.Name)
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// A timer that already fired is replaced rather than re-armed, since its
	// callback may be running
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}
	p := &pendingSave{}
	p.timer = time.AfterFunc(w.debounce, func() {
		w.fire(ctx, path, p)
	})
	w.pending[path] = p
}

// fire runs the save for path unless p has been replaced by a newer timer
func (w *Watcher) fire(ctx context.Context, path string, p *pendingSave) {
	w.mu.Lock()
	if w.pending[path] != p {
		w.mu.Unlock()
		return
	}
	delete(w.pending, path)
	w.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}

	doc, err := w.workspace.Document(path)
	if err != nil {
		w.logger.WithError(err).Warn("Failed to resolve saved document")
		return
	}
	w.logger.WithDocument(doc.Key, doc.Path).Debug("File saved")
	w.handler.HandleSave(ctx, doc)
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return fmt.Errorf("failed to walk %s: %w", root, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skipDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func skipDir(name string) bool {
	return skippedDirs[name] || strings.HasPrefix(name, ".")
}
