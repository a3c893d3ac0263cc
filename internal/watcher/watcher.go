// Package watcher orchestrates the filesystem side of the sync pipeline: an
// initial scan of every watched table, followed by an fsnotify-driven loop
// that coalesces bursts of write events per file and hands each settled file
// off to the sync engine, one at a time per path.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/epokhe/dbfsync/internal/syncengine"
)

// Syncer is the slice of *syncengine.Engine the watcher depends on, so tests
// can exercise the orchestration logic against a fake without touching real
// files or a real store.
type Syncer interface {
	ProcessFile(ctx context.Context, path string) error
	BulkLoad(ctx context.Context, path string) error
}

// DefaultDebounce is how long the watcher waits after the last observed
// write event for a file before processing it, so a multi-write ERP save
// only triggers one sync pass.
const DefaultDebounce = time.Second

// Watcher watches Root for writes to the tables syncengine.ClassifyTable
// recognizes and feeds settled files to Engine, one sync at a time per file;
// distinct files may be synced concurrently.
type Watcher struct {
	Root     string
	Engine   Syncer
	Logger   *logrus.Logger
	Debounce time.Duration

	fsw *fsnotify.Watcher

	mu      sync.Mutex
	timers  map[string]*time.Timer
	inFlght mapset.Set[string]

	wg   sync.WaitGroup
	done chan struct{}
}

// New builds a Watcher rooted at root, syncing through engine. Start must be
// called before it does anything.
func New(root string, engine Syncer, logger *logrus.Logger) *Watcher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Watcher{
		Root:     root,
		Engine:   engine,
		Logger:   logger,
		Debounce: DefaultDebounce,
		timers:   make(map[string]*time.Timer),
		inFlght:  mapset.NewSet[string](),
		done:     make(chan struct{}),
	}
}

// Start performs the initial scan of every watched table already present
// under Root, then begins watching for further changes. It returns once the
// initial scan and the watch registration are complete; the event loop
// itself runs in a background goroutine until Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.fsw = fsw

	if err := w.addWatchRecursive(w.Root); err != nil {
		fsw.Close()
		return err
	}

	if err := w.initialScan(ctx); err != nil {
		w.Logger.WithError(err).Warn("initial scan encountered errors")
	}

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop closes the underlying fsnotify watcher, stops any pending debounce
// timers, and waits for the event loop to exit. It does not wait for a
// ProcessFile call that a timer has already started.
func (w *Watcher) Stop() error {
	close(w.done)
	err := w.fsw.Close()

	w.mu.Lock()
	for _, t := range w.timers {
		t.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	return err
}

// addWatchRecursive registers fsnotify watches on root and every
// subdirectory beneath it; fsnotify itself only watches one directory level
// at a time.
func (w *Watcher) addWatchRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// initialScan submits every recognized table file found under Root through
// the same sync path a write event would, so a cold start mirrors the full
// current contents rather than waiting for the next write event. It does not
// call BulkLoad: that is a separate, explicitly-invoked operation for a full
// resync (see cmd/dbfsync's -bulk-load flag), not something the watcher
// triggers on its own for a table it's simply seeing for the first time.
func (w *Watcher) initialScan(ctx context.Context) error {
	return filepath.WalkDir(w.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !w.isWatchedTable(path) {
			return nil
		}
		w.Logger.WithField("path", path).Info("initial scan: processing")
		if procErr := w.Engine.ProcessFile(ctx, path); procErr != nil {
			w.Logger.WithError(procErr).WithField("path", path).Error("initial scan processing failed")
		}
		return nil
	})
}

func (w *Watcher) isWatchedTable(path string) bool {
	_, ok := syncengine.ClassifyTable(filepath.Base(path))
	return ok
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.Logger.WithError(err).Error("watcher error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addWatchRecursive(event.Name); err != nil {
				w.Logger.WithError(err).WithField("path", event.Name).Warn("failed to watch new directory")
			}
			return
		}
	}

	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}

	if !w.isWatchedTable(event.Name) {
		return
	}

	w.debounce(ctx, event.Name)
}

// debounce resets a per-path timer on every event, so a settle period with
// no further writes is what actually triggers ProcessFile — collapsing a
// burst of writes from one ERP save into a single sync pass.
func (w *Watcher) debounce(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Stop()
	}
	w.timers[path] = time.AfterFunc(w.Debounce, func() {
		w.dispatch(ctx, path)
	})
}

// dispatch runs ProcessFile for path, skipping the call entirely if path is
// already being processed so a file is never synced by two goroutines at
// once.
func (w *Watcher) dispatch(ctx context.Context, path string) {
	if !w.inFlght.Add(path) {
		return
	}
	defer w.inFlght.Remove(path)

	if err := w.Engine.ProcessFile(ctx, path); err != nil {
		w.Logger.WithError(err).WithField("path", path).Error("sync failed")
	}
}
