package discovery

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/loupelabs/loupe/internal/engine"
	"github.com/loupelabs/loupe/pkg/types"
)

// ChangeCallback receives a change kind ("created", "updated" or
// "deleted") and the file path it applies to.
type ChangeCallback func(kind, path string)

// Watcher keeps the graph current as files under a project tree change.
// Created and modified files are re-extracted, removed files have their
// entities dropped, and each save is recorded as a file_save action so
// lens activation tracks what the user is touching.
type Watcher struct {
	root     string
	engine   *engine.ContextEngine
	eligible map[string]bool
	callback ChangeCallback

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewWatcher creates a watcher for the project tree rooted at root. A nil
// extensions slice means DefaultExtensions; callback may be nil.
func NewWatcher(eng *engine.ContextEngine, root string, extensions []string, callback ChangeCallback) *Watcher {
	return &Watcher{
		root:     root,
		engine:   eng,
		eligible: extensionSet(extensions),
		callback: callback,
	}
}

// Start registers every directory under the root and begins processing
// filesystem events until Stop is called.
func (w *Watcher) Start() error {
	if w.engine == nil {
		return errors.New("engine is required")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := addDirsRecursive(fsw, w.root); err != nil {
		fsw.Close()
		return err
	}

	w.watcher = fsw
	w.done = make(chan struct{})
	go w.loop()

	log.Printf("Watching %s for changes", w.root)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *Watcher) Stop() {
	if w.watcher == nil {
		return
	}
	w.watcher.Close()
	<-w.done
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("WARNING: Watcher error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// New directories need their own watch, and any files already inside
	// them were created before the watch existed.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if skipDirs[filepath.Base(path)] {
				return
			}
			if err := addDirsRecursive(w.watcher, path); err != nil {
				log.Printf("WARNING: Failed to watch %s: %v", path, err)
			}
			w.extractTree(path)
			return
		}
	}

	if !w.eligible[strings.ToLower(filepath.Ext(path))] {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		w.extract(path, "created")
	case event.Op&fsnotify.Write != 0:
		w.extract(path, "updated")
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.remove(path)
	}
}

// extract re-extracts a changed file and records the save in the engine's
// rolling activation context.
func (w *Watcher) extract(path, kind string) {
	if _, err := w.engine.ExtractFile(context.Background(), path); err != nil {
		log.Printf("WARNING: Failed to extract %s: %v", path, err)
		return
	}

	w.engine.RecordAction(types.ActionEvent{
		Type:     types.ActionFileSave,
		Metadata: map[string]interface{}{"file": path},
	})
	w.notify(kind, path)
}

func (w *Watcher) remove(path string) {
	removed, err := w.engine.RemoveSource(context.Background(), path)
	if err != nil {
		log.Printf("WARNING: Failed to remove entities for %s: %v", path, err)
		return
	}
	if removed > 0 {
		w.notify("deleted", path)
	}
}

// extractTree indexes eligible files that already exist under dir.
func (w *Watcher) extractTree(dir string) {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if w.eligible[strings.ToLower(filepath.Ext(path))] {
			w.extract(path, "created")
		}
		return nil
	})
	if err != nil {
		log.Printf("WARNING: Failed to index %s: %v", dir, err)
	}
}

func (w *Watcher) notify(kind, path string) {
	if w.callback != nil {
		w.callback(kind, path)
	}
}

// addDirsRecursive registers dir and every subdirectory with the watcher,
// skipping directories that never hold project sources.
func addDirsRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}
