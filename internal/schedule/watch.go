package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/Priya8975/tv-monitor/internal/domain"
	"github.com/fsnotify/fsnotify"
)

// WatchedReader caches the parsed CSV and drops the cache whenever the file
// changes on disk, so ticks only re-parse after the scraper writes.
type WatchedReader struct {
	file    *FileReader
	path    string
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu     sync.Mutex
	cached []domain.Program
	valid  bool

	done chan struct{}
}

// NewWatchedReader watches the file's directory, which keeps working when
// the file is replaced by rename.
func NewWatchedReader(path string, logger *slog.Logger) (*WatchedReader, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}

	r := &WatchedReader{
		file:    NewFileReader(abs, logger),
		path:    abs,
		watcher: w,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go r.watch()
	return r, nil
}

func (r *WatchedReader) watch() {
	defer close(r.done)
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				r.logger.Debug("schedule file changed", "path", r.path, "op", ev.Op.String())
				r.invalidate()
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.logger.Warn("schedule watcher error", "error", err)
			r.invalidate()
		}
	}
}

func (r *WatchedReader) invalidate() {
	r.mu.Lock()
	r.valid = false
	r.cached = nil
	r.mu.Unlock()
}

// ReadAll returns the cached schedule, parsing the file again only after it
// changed. Read errors are never cached.
func (r *WatchedReader) ReadAll(ctx context.Context) ([]domain.Program, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.valid {
		return append([]domain.Program(nil), r.cached...), nil
	}

	programs, err := r.file.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	r.cached = programs
	r.valid = true
	return append([]domain.Program(nil), programs...), nil
}

func (r *WatchedReader) Close() error {
	err := r.watcher.Close()
	<-r.done
	return err
}
