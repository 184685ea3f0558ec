package dataset

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the current Dataset. Readers never block; a reload builds a
// complete new snapshot and swaps it in, so a failed reload leaves the
// previous snapshot serving.
type Store struct {
	cur     atomic.Pointer[Dataset]
	sources Sources
	log     *slog.Logger
	// OnSwap, if set, runs after every successful swap.
	OnSwap func(*Dataset)
}

// NewStore returns a store serving ds.
func NewStore(ds *Dataset, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	s := &Store{log: log}
	if ds != nil {
		s.sources = ds.Sources
		s.cur.Store(ds)
	}
	return s
}

// Current returns the snapshot in service.
func (s *Store) Current() *Dataset { return s.cur.Load() }

// Swap replaces the snapshot.
func (s *Store) Swap(ds *Dataset) {
	s.cur.Store(ds)
	if s.OnSwap != nil {
		s.OnSwap(ds)
	}
}

// Reload reads the sources again and swaps the result in.
func (s *Store) Reload(ctx context.Context) error {
	ds, err := LoadDataset(ctx, s.sources)
	if err != nil {
		s.log.Warn("dataset reload failed; keeping previous snapshot", "error", err)
		return err
	}
	s.Swap(ds)
	s.log.Info("dataset reloaded",
		"version", ds.Version,
		"lab_rows", ds.Labs.Len(),
		"subject_rows", ds.Subjects.Len())
	return nil
}

// Watch reloads the dataset when a local source file changes. Events are
// debounced so an editor's write-rename sequence triggers one reload. Watch
// blocks until ctx is done.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	targets := map[string]bool{}
	dirs := map[string]bool{}
	for _, p := range []string{s.sources.Labs, s.sources.Subjects} {
		if p == "" || IsS3(p) {
			continue
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			return err
		}
		targets[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	if len(targets) == 0 {
		return errors.New("watch: no local sources to watch")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// watching directories survives atomic replace-by-rename
	for d := range dirs {
		if err := w.Add(d); err != nil {
			return err
		}
	}

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			abs, _ := filepath.Abs(ev.Name)
			if !targets[abs] || !ev.Has(fsnotify.Write|fsnotify.Create|fsnotify.Rename) {
				continue
			}
			s.log.Debug("source changed", "path", ev.Name, "op", ev.Op.String())
			timer.Reset(debounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Warn("watch error", "error", err)
		case <-timer.C:
			_ = s.Reload(ctx)
		}
	}
}
