package scenario

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Watcher reports scenario files that are written or created.
type Watcher struct {
	patterns []string
	watcher  *fsnotify.Watcher
	changes  chan string
	done     chan struct{}
	wg       sync.WaitGroup

	closeOnce sync.Once
}

// NewWatcher watches the directories that patterns can match. fsnotify is not
// recursive, so directories created after the watcher starts are not seen.
func NewWatcher(patterns []string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		patterns: patterns,
		watcher:  fsWatcher,
		changes:  make(chan string, 16),
		done:     make(chan struct{}),
	}

	for _, dir := range watchDirs(patterns) {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, err
		}
		slog.Debug("watching scenario directory", slog.String("dir", dir))
	}

	w.wg.Add(1)
	go w.watch()

	return w, nil
}

// watchDirs returns the base directory of every pattern plus all
// directories below it that a ** pattern could reach.
func watchDirs(patterns []string) []string {
	seen := make(map[string]bool)
	var dirs []string
	add := func(dir string) {
		if !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	for _, pattern := range patterns {
		base, rest := doublestar.SplitPattern(filepath.ToSlash(pattern))
		base = filepath.FromSlash(base)
		if info, err := os.Stat(base); err != nil || !info.IsDir() {
			continue
		}
		add(base)

		if rest == "" {
			continue
		}
		subdirs, err := doublestar.Glob(os.DirFS(base), "**")
		if err != nil {
			continue
		}
		for _, sub := range subdirs {
			full := filepath.Join(base, filepath.FromSlash(sub))
			if info, err := os.Stat(full); err == nil && info.IsDir() {
				add(full)
			}
		}
	}
	return dirs
}

// Changes delivers the paths of changed scenario files.
func (w *Watcher) Changes() <-chan string {
	return w.changes
}

func (w *Watcher) watch() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			select {
			case w.changes <- event.Name:
			default:
				slog.Debug("scenario change dropped", slog.String("path", event.Name))
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("scenario watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) matches(path string) bool {
	if _, err := FormatOf(path); err != nil {
		return false
	}
	for _, pattern := range w.patterns {
		if ok, _ := doublestar.PathMatch(pattern, path); ok {
			return true
		}
	}
	return false
}

// Close stops watching. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}
