// Package watcher ingests notes dropped into <root>/<subject>/ directories.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/asknotes/internal/parser"
)

const DefaultDebounce = 500 * time.Millisecond

// IngestFunc receives one settled file.
type IngestFunc func(ctx context.Context, subjectID, fileName string, data []byte) error

type Watcher struct {
	root     string
	ingest   IngestFunc
	debounce time.Duration
	fsw      *fsnotify.Watcher

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

func New(root string, ingest IngestFunc, debounce time.Duration) (*Watcher, error) {
	if ingest == nil {
		return nil, fmt.Errorf("ingest func is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch root %s is not a directory", root)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fs watcher: %w", err)
	}
	return &Watcher{
		root:     filepath.Clean(root),
		ingest:   ingest,
		debounce: debounce,
		fsw:      fsw,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Initial ingests every supported file already present, one at a time.
func (w *Watcher) Initial(ctx context.Context) error {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(w.root, e.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			w.process(ctx, filepath.Join(w.root, e.Name(), f.Name()))
		}
	}
	return nil
}

// Run watches until ctx is done, then waits for in-flight ingestions.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	if err := w.fsw.Add(w.root); err != nil {
		return fmt.Errorf("watch %s: %w", w.root, err)
	}
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			if err := w.fsw.Add(filepath.Join(w.root, e.Name())); err != nil {
				return fmt.Errorf("watch subject dir %s: %w", e.Name(), err)
			}
		}
	}
	logger := logutil.GetLogger(ctx).With(zap.String("root", w.root))
	logger.Info("watching notes directory")
	for {
		select {
		case <-ctx.Done():
			w.stopPending()
			w.wg.Wait()
			logger.Info("notes watcher stopped")
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("fs watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
		return
	}
	if filepath.Dir(ev.Name) == w.root {
		info, err := os.Stat(ev.Name)
		if err != nil || !info.IsDir() {
			return
		}
		if err := w.fsw.Add(ev.Name); err != nil {
			logutil.GetLogger(ctx).Warn("watch new subject dir failed", zap.String("dir", ev.Name), zap.Error(err))
			return
		}
		files, _ := os.ReadDir(ev.Name)
		for _, f := range files {
			if !f.IsDir() {
				w.schedule(ctx, filepath.Join(ev.Name, f.Name()))
			}
		}
		return
	}
	w.schedule(ctx, ev.Name)
}

// schedule debounces bursts of writes to one path into a single ingestion.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if _, _, ok := w.split(path); !ok {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.wg.Add(1)
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.process(ctx, path)
	})
}

func (w *Watcher) stopPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// split maps <root>/<subject>/<file> to its parts, rejecting hidden and
// unsupported files.
func (w *Watcher) split(path string) (string, string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", "", false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 2 || parts[0] == ".." {
		return "", "", false
	}
	if strings.HasPrefix(parts[1], ".") {
		return "", "", false
	}
	if _, err := parser.Category(parts[1]); err != nil {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (w *Watcher) process(ctx context.Context, path string) {
	subjectID, fileName, ok := w.split(path)
	if !ok {
		return
	}
	logger := logutil.GetLogger(ctx).With(zap.String("subject_id", subjectID), zap.String("file_name", fileName))
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("read watched file failed", zap.Error(err))
		return
	}
	if len(data) == 0 {
		return
	}
	if err := w.ingest(ctx, subjectID, fileName, data); err != nil {
		logger.Error("ingest watched file failed", zap.Error(err))
		return
	}
	logger.Info("watched file ingested")
}
