// Package identity maintains the bidirectional mapping between stable item
// identifiers and the paths of their external sources.
package identity

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/log"
)

// Record binds one identifier to one path.
type Record struct {
	ID   asset.ID
	Path string
}

// Repository persists records so identities survive restarts.
type Repository interface {
	Save(rec Record) error
	Delete(id asset.ID) error
	FindAll() ([]Record, error)
}

// Normalize returns the canonical spelling of path: absolute and cleaned.
func Normalize(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// Key returns the comparison key for path. On hosts with case-insensitive
// file systems two spellings differing only in case share a key.
func Key(path string) string {
	p := Normalize(path)
	if caseInsensitive {
		p = strings.ToLower(p)
	}
	return p
}

var caseInsensitive = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

// Registry is the in-memory identifier <-> path index. It never touches the
// file system; an optional Repository receives every change.
type Registry struct {
	mu     sync.RWMutex
	byID   map[asset.ID]string
	byPath map[string]asset.ID
	repo   Repository
}

// NewRegistry creates a registry. repo may be nil.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		byID:   make(map[asset.ID]string),
		byPath: make(map[string]asset.ID),
		repo:   repo,
	}
}

// Load hydrates the registry from its repository. Records are applied in
// order, so later bindings of a path win.
func (r *Registry) Load() (int, error) {
	if r.repo == nil {
		return 0, nil
	}
	records, err := r.repo.FindAll()
	if err != nil {
		return 0, fmt.Errorf("loading location records: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range records {
		r.bind(rec.ID, Normalize(rec.Path))
	}
	log.Info(log.CatRegistry, "Loaded location records", "count", len(records))
	return len(records), nil
}

// Register binds id to path. If id is already bound to a different path the
// call fails with a DuplicateIdentifierError unless overwrite is set. A path
// bound to another id moves to id.
func (r *Registry) Register(id asset.ID, path string, overwrite bool) error {
	if !id.IsValid() {
		return fmt.Errorf("register %q: invalid identifier", id)
	}
	path = Normalize(path)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byID[id]; ok && Key(existing) != Key(path) && !overwrite {
		return &asset.DuplicateIdentifierError{ID: id, Existing: existing, Requested: path}
	}
	displaced := r.bind(id, path)
	if displaced != "" {
		log.Warn(log.CatRegistry, "Path moved to a new identifier", "path", path, "from", displaced, "to", id)
	}
	log.Debug(log.CatRegistry, "Registered", "id", id, "path", path)

	if r.repo != nil {
		if displaced != "" {
			r.persistDelete(displaced)
		}
		if err := r.repo.Save(Record{ID: id, Path: path}); err != nil {
			log.ErrorErr(log.CatDB, "Failed to persist location", err, "id", id, "path", path)
		}
	}
	return nil
}

// bind sets both directions and returns the id that previously owned path.
// Callers hold the write lock.
func (r *Registry) bind(id asset.ID, path string) asset.ID {
	key := Key(path)
	if old, ok := r.byID[id]; ok {
		delete(r.byPath, Key(old))
	}
	var displaced asset.ID
	if other, ok := r.byPath[key]; ok && other != id {
		delete(r.byID, other)
		displaced = other
	}
	r.byID[id] = path
	r.byPath[key] = id
	return displaced
}

// Resolve returns the path bound to id.
func (r *Registry) Resolve(id asset.ID) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	path, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", asset.ErrUnknownIdentifier, id)
	}
	return path, nil
}

// ResolveByPath returns the identifier bound to path.
func (r *Registry) ResolveByPath(path string) (asset.ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPath[Key(path)]
	if !ok {
		return "", fmt.Errorf("%w: %s", asset.ErrNotFound, path)
	}
	return id, nil
}

// Contains reports whether id has a location record.
func (r *Registry) Contains(id asset.ID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byID[id]
	return ok
}

// Remove deletes id's record in both directions. Unknown ids are ignored.
func (r *Registry) Remove(id asset.ID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	path, ok := r.byID[id]
	if !ok {
		return
	}
	delete(r.byID, id)
	delete(r.byPath, Key(path))
	log.Debug(log.CatRegistry, "Removed", "id", id, "path", path)
	if r.repo != nil {
		r.persistDelete(id)
	}
}

func (r *Registry) persistDelete(id asset.ID) {
	if err := r.repo.Delete(id); err != nil {
		log.ErrorErr(log.CatDB, "Failed to delete location", err, "id", id)
	}
}

// Len returns the number of records.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Records returns all records sorted by path.
func (r *Registry) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Record, 0, len(r.byID))
	for id, path := range r.byID {
		out = append(out, Record{ID: id, Path: path})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].ID < out[j].ID
	})
	return out
}
