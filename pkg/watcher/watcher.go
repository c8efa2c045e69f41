// Package watcher keeps the document index in step with the filesystem. It
// watches the configured document roots recursively, coalesces the raw
// fsnotify stream per path, and drives batches through the same indexing
// pipeline the indexDocument tool uses.
package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/kadirpekel/mydocs-mcp/pkg/config"
	"github.com/kadirpekel/mydocs-mcp/pkg/observability"
	"github.com/kadirpekel/mydocs-mcp/pkg/store"
	"github.com/kadirpekel/mydocs-mcp/pkg/tools"
)

const incomingBuffer = 1024

// State describes the watcher lifecycle.
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateDraining
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	default:
		return "unknown"
	}
}

// Stats reports watcher activity counters.
type Stats struct {
	EventsSeen  int64     `json:"events_seen"`
	Indexed     int64     `json:"indexed"`
	Deleted     int64     `json:"deleted"`
	Renamed     int64     `json:"renamed"`
	Errors      int64     `json:"errors"`
	LastEventAt time.Time `json:"last_event_at,omitzero"`
}

type op int

const (
	opIndex op = iota
	opRemove
)

// event is one coalesced unit of pending work for a path. created marks
// paths that arrived through a Create event, which are the only candidates
// for move detection.
type event struct {
	path    string
	op      op
	created bool
	at      time.Time
}

// Watcher mirrors filesystem changes into the document store. Events are
// debounced per path (latest wins), collected into batches, and processed
// by a bounded worker pool. One collector goroutine owns the pending map;
// one event loop per fsnotify handle feeds it.
type Watcher struct {
	cfg      config.WatcherConfig
	indexer  *tools.Indexer
	store    *store.Store
	metrics  *observability.Metrics
	maxBytes int64

	mu  sync.Mutex
	fsw *fsnotify.Watcher

	incoming  chan event
	rescanCh  chan struct{}
	restartCh chan struct{}
	quit      chan struct{}
	pending   map[string]event

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  atomic.Int32

	eventsSeen atomic.Int64
	indexed    atomic.Int64
	deleted    atomic.Int64
	renamed    atomic.Int64
	errs       atomic.Int64
	lastEvent  atomic.Int64
}

// New builds a watcher over the indexer's document roots. Call Start to
// begin watching.
func New(cfg *config.Config, ix *tools.Indexer, st *store.Store, metrics *observability.Metrics) *Watcher {
	return &Watcher{
		cfg:       cfg.Watcher,
		indexer:   ix,
		store:     st,
		metrics:   metrics,
		maxBytes:  cfg.Server.MaxDocumentBytes,
		incoming:  make(chan event, incomingBuffer),
		rescanCh:  make(chan struct{}, 1),
		restartCh: make(chan struct{}, 1),
		pending:   make(map[string]event),
	}
}

// Start registers the document roots with fsnotify and launches the event
// loop and the collector. The collector begins with a full scan of the
// roots so the index converges without manual indexing. ctx bounds the
// initial directory walk only.
func (w *Watcher) Start(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("watcher is already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.state.Store(int32(StateStopped))
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	for _, root := range w.indexer.Roots() {
		if err := ctx.Err(); err != nil {
			fsw.Close()
			w.state.Store(int32(StateStopped))
			return err
		}
		if err := w.watchTree(fsw, root); err != nil {
			fsw.Close()
			w.state.Store(int32(StateStopped))
			return fmt.Errorf("failed to watch document root '%s': %w", root, err)
		}
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.quit = make(chan struct{})

	w.wg.Add(2)
	go w.eventLoop(fsw)
	go w.collector()

	w.state.Store(int32(StateRunning))
	slog.Info("filesystem watcher started",
		"roots", w.indexer.Roots(),
		"debounce", w.cfg.Debounce,
		"batch_interval", w.cfg.BatchInterval,
		"workers", w.cfg.Workers)
	return nil
}

// Stop drains the watcher: fsnotify is closed, the pending batch is flushed,
// and workers are awaited. When ctx expires first, in-flight work is
// canceled and ctx's error returned.
func (w *Watcher) Stop(ctx context.Context) error {
	if !w.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		return nil
	}

	w.mu.Lock()
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if fsw != nil {
		_ = fsw.Close()
	}
	close(w.quit)

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		w.cancel()
		<-done
		err = ctx.Err()
	}
	w.cancel()

	// A restart may have installed a fresh handle after we grabbed ours.
	w.mu.Lock()
	if w.fsw != nil {
		_ = w.fsw.Close()
		w.fsw = nil
	}
	w.mu.Unlock()

	w.state.Store(int32(StateStopped))
	slog.Info("filesystem watcher stopped",
		"events_seen", w.eventsSeen.Load(),
		"indexed", w.indexed.Load(),
		"deleted", w.deleted.Load(),
		"renamed", w.renamed.Load(),
		"errors", w.errs.Load())
	return err
}

// State returns the current lifecycle state.
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Stats returns activity counters accumulated since Start.
func (w *Watcher) Stats() Stats {
	s := Stats{
		EventsSeen: w.eventsSeen.Load(),
		Indexed:    w.indexed.Load(),
		Deleted:    w.deleted.Load(),
		Renamed:    w.renamed.Load(),
		Errors:     w.errs.Load(),
	}
	if ns := w.lastEvent.Load(); ns > 0 {
		s.LastEventAt = time.Unix(0, ns).UTC()
	}
	return s
}

// watchTree registers root and every directory below it. Walk errors on the
// root abort; failures to watch an individual subdirectory are logged and
// skipped.
func (w *Watcher) watchTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if path != root && w.ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := fsw.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
		}
		return nil
	})
}

// ignored reports whether the path's base name matches one of the configured
// ignore patterns.
func (w *Watcher) ignored(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.cfg.IgnorePatterns {
		if ok, err := filepath.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// eventLoop forwards raw fsnotify events into the collector. It exits when
// the handle closes; an unexpected close schedules a restart.
func (w *Watcher) eventLoop(fsw *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case ev, ok := <-fsw.Events:
			if !ok {
				if w.State() != StateDraining {
					slog.Warn("filesystem watch handle lost, restarting")
					signal(w.restartCh)
				}
				return
			}
			w.handleRaw(fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				if w.State() != StateDraining {
					slog.Warn("filesystem watch handle lost, restarting")
					signal(w.restartCh)
				}
				return
			}
			w.errs.Add(1)
			slog.Warn("filesystem watcher error, scheduling rescan", "error", err)
			signal(w.rescanCh)
		case <-w.quit:
			return
		}
	}
}

// handleRaw classifies one fsnotify event and forwards it. Created
// directories are registered and their contents enqueued, since files may
// land in them before the watch is in place.
func (w *Watcher) handleRaw(fsw *fsnotify.Watcher, ev fsnotify.Event) {
	w.eventsSeen.Add(1)
	w.lastEvent.Store(time.Now().UnixNano())

	if w.ignored(ev.Name) {
		return
	}

	switch {
	case ev.Op&fsnotify.Create == fsnotify.Create:
		info, err := os.Stat(ev.Name)
		if err != nil {
			return // vanished before we got to it
		}
		if info.IsDir() {
			w.watchNewDir(fsw, ev.Name)
			return
		}
		if !w.indexer.Allowed(ev.Name) {
			return
		}
		w.send(event{path: ev.Name, op: opIndex, created: true, at: time.Now()})

	case ev.Op&fsnotify.Write == fsnotify.Write:
		if !w.indexer.Allowed(ev.Name) {
			return
		}
		w.send(event{path: ev.Name, op: opIndex, at: time.Now()})

	case ev.Op&fsnotify.Remove == fsnotify.Remove,
		ev.Op&fsnotify.Rename == fsnotify.Rename:
		if !w.indexer.Allowed(ev.Name) {
			return
		}
		w.send(event{path: ev.Name, op: opRemove, at: time.Now()})
	}
}

// watchNewDir registers a directory created at runtime and enqueues any
// files already inside it.
func (w *Watcher) watchNewDir(fsw *fsnotify.Watcher, dir string) {
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if path != dir && w.ignored(path) {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if info.IsDir() {
			if err := fsw.Add(path); err != nil {
				slog.Warn("failed to watch directory", "path", path, "error", err)
			}
			return nil
		}
		if w.indexer.Allowed(path) {
			w.send(event{path: path, op: opIndex, created: true, at: time.Now()})
		}
		return nil
	})
	if err != nil {
		slog.Warn("failed to scan new directory", "path", dir, "error", err)
	}
}

// send forwards an event without blocking the event loop. A full buffer
// means we are falling behind; the event is dropped and a full rescan
// scheduled so nothing stays missed.
func (w *Watcher) send(e event) {
	select {
	case w.incoming <- e:
	default:
		slog.Warn("watcher event buffer full, scheduling rescan", "path", e.path)
		signal(w.rescanCh)
	}
}

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// collector owns the pending map. It merges incoming events (latest event
// per path wins), flushes entries that have been quiet for the debounce
// window on every batch tick, flushes early when the batch cap is reached,
// and performs rescans and restarts so they never race with a flush.
func (w *Watcher) collector() {
	defer w.wg.Done()

	w.scanRoots()

	ticker := time.NewTicker(w.cfg.BatchInterval)
	defer ticker.Stop()

	for {
		select {
		case e := <-w.incoming:
			w.merge(e)
			if len(w.pending) >= w.cfg.MaxBatch {
				w.flush(true)
			}
		case <-ticker.C:
			w.flush(false)
		case <-w.rescanCh:
			w.scanRoots()
		case <-w.restartCh:
			w.restart()
		case <-w.quit:
			for {
				select {
				case e := <-w.incoming:
					w.merge(e)
				default:
					w.flush(true)
					return
				}
			}
		}
	}
}

func (w *Watcher) merge(e event) {
	cur, ok := w.pending[e.path]
	if !ok || e.op == opRemove || cur.op == opRemove {
		w.pending[e.path] = e
		return
	}
	cur.created = cur.created || e.created
	cur.at = e.at
	w.pending[e.path] = cur
}

// scanRoots walks the document roots, registering directories (idempotent
// on an existing handle) and enqueueing every indexable file. Scan entries
// are backdated past the debounce window so the next tick flushes them.
func (w *Watcher) scanRoots() {
	w.mu.Lock()
	fsw := w.fsw
	w.mu.Unlock()

	at := time.Now().Add(-w.cfg.Debounce)
	for _, root := range w.indexer.Roots() {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil
			}
			if path != root && w.ignored(path) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				if fsw != nil {
					if err := fsw.Add(path); err != nil {
						slog.Warn("failed to watch directory", "path", path, "error", err)
					}
				}
				return nil
			}
			if !w.indexer.Allowed(path) {
				return nil
			}
			w.merge(event{path: path, op: opIndex, created: true, at: at})
			if len(w.pending) >= w.cfg.MaxBatch {
				w.flush(true)
			}
			return nil
		})
		if err != nil {
			w.errs.Add(1)
			slog.Warn("failed to scan document root", "root", root, "error", err)
		}
	}
}

// restart replaces a lost fsnotify handle and rescans the roots.
func (w *Watcher) restart() {
	if w.State() != StateRunning {
		return
	}

	w.mu.Lock()
	old := w.fsw
	w.fsw = nil
	w.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		w.errs.Add(1)
		slog.Error("failed to restart filesystem watcher", "error", err)
		return
	}
	for _, root := range w.indexer.Roots() {
		if err := w.watchTree(fsw, root); err != nil {
			slog.Warn("failed to rewatch document root", "root", root, "error", err)
		}
	}

	w.mu.Lock()
	w.fsw = fsw
	w.mu.Unlock()

	w.wg.Add(1)
	go w.eventLoop(fsw)
	w.scanRoots()
}

// flush processes every pending entry quiet for at least the debounce
// window; force ignores the window. Index work runs before removals so the
// delete half of a move lands after the rename is recognized. Within each
// phase, paths are processed by at most cfg.Workers goroutines.
func (w *Watcher) flush(force bool) {
	if len(w.pending) == 0 {
		return
	}

	now := time.Now()
	var indexes, removes []event
	for path, e := range w.pending {
		wait := w.cfg.Debounce
		if e.op == opRemove {
			// Removes wait one extra batch cycle so the create half of a
			// move is recognized first even when the two events straddle
			// a batch boundary.
			wait += w.cfg.BatchInterval
		}
		if !force && now.Sub(e.at) < wait {
			continue
		}
		delete(w.pending, path)
		if e.op == opRemove {
			removes = append(removes, e)
		} else {
			indexes = append(indexes, e)
		}
	}
	if len(indexes) == 0 && len(removes) == 0 {
		return
	}

	slog.Debug("flushing watcher batch", "index", len(indexes), "remove", len(removes))

	eg, ctx := errgroup.WithContext(w.ctx)
	eg.SetLimit(w.cfg.Workers)
	for _, e := range indexes {
		eg.Go(func() error {
			w.processIndex(ctx, e)
			return nil
		})
	}
	_ = eg.Wait()

	eg, ctx = errgroup.WithContext(w.ctx)
	eg.SetLimit(w.cfg.Workers)
	for _, e := range removes {
		eg.Go(func() error {
			w.processRemove(ctx, e)
			return nil
		})
	}
	_ = eg.Wait()
}

func (w *Watcher) processIndex(ctx context.Context, e event) {
	if ctx.Err() != nil {
		return
	}

	if e.created {
		renamed, err := w.detectMove(ctx, e.path)
		if err != nil {
			slog.Warn("move detection failed", "path", e.path, "error", err)
		}
		if renamed {
			w.renamed.Add(1)
			w.metrics.RecordWatcherEvent(ctx, "renamed")
			return
		}
	}

	outcome, err := w.indexer.IndexFile(ctx, e.path, false, nil)
	if err != nil {
		// Files legitimately vanish between the event and the flush.
		var te *tools.ToolError
		if errors.As(err, &te) && te.Code == tools.CodeFileNotFound {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		w.errs.Add(1)
		w.metrics.RecordWatcherEvent(ctx, "error")
		slog.Warn("failed to index changed file", "path", e.path, "error", err)
		return
	}
	if outcome.Status != tools.StatusUnchanged {
		w.indexed.Add(1)
	}
	w.metrics.RecordWatcherEvent(ctx, outcome.Status)
}

func (w *Watcher) processRemove(ctx context.Context, e event) {
	if ctx.Err() != nil {
		return
	}

	err := w.store.DeleteByPath(ctx, filepath.Clean(e.path))
	if err != nil {
		// Never indexed, or already renamed away by move detection.
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, context.Canceled) {
			return
		}
		w.errs.Add(1)
		w.metrics.RecordWatcherEvent(ctx, "error")
		slog.Warn("failed to remove deleted file from index", "path", e.path, "error", err)
		return
	}
	w.deleted.Add(1)
	w.metrics.RecordWatcherEvent(ctx, "deleted")
}

// detectMove recognizes a rename by content: a created file whose bytes
// match a stored document whose own file is gone is the destination of a
// move, and keeps that document's id, postings, and metadata.
func (w *Watcher) detectMove(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() > w.maxBytes {
		return false, nil // let the index pass report it
	}

	if _, _, err := w.store.GetByPath(ctx, path); err == nil {
		return false, nil // destination already indexed
	} else if !errors.Is(err, store.ErrNotFound) {
		return false, err
	}

	hash, err := hashFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	candidates, err := w.store.GetByHash(ctx, hash)
	if err != nil {
		return false, err
	}
	for _, doc := range candidates {
		if _, err := os.Stat(doc.Path); err == nil || !errors.Is(err, fs.ErrNotExist) {
			continue // source still on disk: a copy, not a move
		}
		if err := w.store.RenamePath(ctx, doc.Path, path); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue // raced with a concurrent delete
			}
			return false, err
		}
		slog.Debug("recognized moved document", "from", doc.Path, "to", path, "id", doc.ID)
		return true, nil
	}
	return false, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
