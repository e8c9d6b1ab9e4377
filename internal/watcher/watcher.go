// Package watcher reports files appearing and changing under a content root.
// Events are debounced and delivered as one Batch per directory.
package watcher

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/assetcache/internal/log"
)

// Batch lists the paths that appeared or changed in Dir during one debounce
// window. A path that both appeared and changed is listed as appeared.
type Batch struct {
	Dir      string
	Appeared []string
	Changed  []string
}

// Watcher monitors a directory tree and sends batches of file events.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	debounce  time.Duration
	filter    func(path string) bool
	batches   chan Batch
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	Root        string
	DebounceDur time.Duration

	// Filter selects the files worth reporting. Nil reports every file.
	Filter func(path string) bool
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(root string) Config {
	return Config{
		Root:        root,
		DebounceDur: 200 * time.Millisecond,
	}
}

// New creates a new tree watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	filter := cfg.Filter
	if filter == nil {
		filter = func(string) bool { return true }
	}

	return &Watcher{
		fsWatcher: fsw,
		root:      filepath.Clean(cfg.Root),
		debounce:  cfg.DebounceDur,
		filter:    filter,
		batches:   make(chan Batch, 16),
		done:      make(chan struct{}),
	}, nil
}

// Start watches every directory under the root and returns the channel that
// receives batches. The channel is closed when the watcher stops.
func (w *Watcher) Start() (<-chan Batch, error) {
	if err := w.addTree(w.root, nil); err != nil {
		return nil, fmt.Errorf("watching %s: %w", w.root, err)
	}

	go w.loop()

	return w.batches, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// addTree watches dir and its subdirectories. When found is non-nil, files
// already inside are added to it; they were created before the directory
// could be watched.
func (w *Watcher) addTree(dir string, found *pending) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			log.Warn(log.CatWatcher, "Skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(path) {
				return filepath.SkipDir
			}
			if err := w.fsWatcher.Add(path); err != nil {
				log.Warn(log.CatWatcher, "Cannot watch directory", "path", path, "error", err)
			}
			return nil
		}
		if found != nil && w.relevant(path) {
			found.appeared(path)
		}
		return nil
	})
}

func hidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}

func (w *Watcher) relevant(path string) bool {
	return !hidden(path) && w.filter(path)
}

// pending accumulates events until the debounce timer fires.
type pending struct {
	appearedSet map[string]bool
	changedSet  map[string]bool
}

func newPending() *pending {
	return &pending{appearedSet: map[string]bool{}, changedSet: map[string]bool{}}
}

func (p *pending) appeared(path string) {
	p.appearedSet[path] = true
	delete(p.changedSet, path)
}

func (p *pending) changed(path string) {
	if !p.appearedSet[path] {
		p.changedSet[path] = true
	}
}

func (p *pending) empty() bool {
	return len(p.appearedSet) == 0 && len(p.changedSet) == 0
}

// batches groups the pending paths by directory, sorted for stable output.
func (p *pending) batches() []Batch {
	byDir := map[string]*Batch{}
	get := func(path string) *Batch {
		dir := filepath.Dir(path)
		b, ok := byDir[dir]
		if !ok {
			b = &Batch{Dir: dir}
			byDir[dir] = b
		}
		return b
	}
	for path := range p.appearedSet {
		b := get(path)
		b.Appeared = append(b.Appeared, path)
	}
	for path := range p.changedSet {
		b := get(path)
		b.Changed = append(b.Changed, path)
	}

	out := make([]Batch, 0, len(byDir))
	for _, b := range byDir {
		sort.Strings(b.Appeared)
		sort.Strings(b.Changed)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	defer close(w.batches)

	var timer *time.Timer
	acc := newPending()

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !w.collect(event, acc) {
				continue
			}

			// Reset or start debounce timer
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			timer = nil
			if acc.empty() {
				continue
			}
			for _, b := range acc.batches() {
				select {
				case w.batches <- b:
				case <-w.done:
					return
				}
			}
			acc = newPending()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			log.ErrorErr(log.CatWatcher, "Watcher error", err)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// collect records event in acc and reports whether anything was recorded.
func (w *Watcher) collect(event fsnotify.Event, acc *pending) bool {
	path := filepath.Clean(event.Name)
	switch {
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.IsDir() {
			if hidden(path) {
				return false
			}
			before := len(acc.appearedSet)
			if err := w.addTree(path, acc); err != nil {
				log.Warn(log.CatWatcher, "Cannot watch new directory", "path", path, "error", err)
			}
			return len(acc.appearedSet) > before
		}
		if !w.relevant(path) {
			return false
		}
		acc.appeared(path)
		log.Debug(log.CatWatcher, "Appeared", "path", path)
		return true

	case event.Op&fsnotify.Write != 0:
		if !w.relevant(path) {
			return false
		}
		acc.changed(path)
		log.Debug(log.CatWatcher, "Changed", "path", path)
		return true

	default:
		return false
	}
}
