package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/identity"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/pubsub"
	"github.com/zjrosen/assetcache/internal/tracing"
)

// Remove deletes id's source, its location record, and its artifact. If the
// artifact cannot be detached from its owner collection, because the owner
// is gone or other artifacts reference it, Remove fails with a DetachError
// and nothing is deleted.
func (p *Pipeline) Remove(ctx context.Context, id asset.ID) (err error) {
	ctx, span := p.start(ctx, "remove", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()

	path, err := p.registry.Resolve(id)
	if err != nil {
		return err
	}
	annotate(ctx, path, binding.ExtensionOf(path))

	if h, ok := p.store.Get(id); ok {
		if err := p.env.Index.CanDetach(h.Node()); err != nil {
			return err
		}
	}
	if err := p.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &asset.SourceError{Path: path, Err: err}
	}
	// Unregister first so a rebuild finishing late cannot reinstall.
	p.registry.Remove(id)
	p.store.Evict(id)
	p.forget(id)

	p.publish(pubsub.DeletedEvent, Change{ID: id, Path: path, State: asset.StateUnloaded})
	log.Info(log.CatPipeline, "Removed item", "id", id, "path", path)
	return nil
}

// Rename moves id's source to newPath and rebinds the identifier. The kind
// cannot change, and newPath must not belong to another item or exist.
func (p *Pipeline) Rename(ctx context.Context, id asset.ID, newPath string) (err error) {
	ctx, span := p.start(ctx, "rename", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()

	oldPath, err := p.registry.Resolve(id)
	if err != nil {
		return err
	}
	newPath = identity.Normalize(newPath)
	annotate(ctx, newPath, binding.ExtensionOf(oldPath))
	if identity.Key(newPath) == identity.Key(oldPath) {
		return nil
	}
	if binding.ExtensionOf(newPath) != binding.ExtensionOf(oldPath) {
		return fmt.Errorf("rename %s: extension of %s does not match %s", id, newPath, oldPath)
	}
	if owner, rerr := p.registry.ResolveByPath(newPath); rerr == nil {
		return fmt.Errorf("rename %s: %w (%s)", id, asset.ErrPathInUse, owner)
	}
	exists, err := afero.Exists(p.fs, newPath)
	if err != nil {
		return &asset.SourceError{Path: newPath, Err: err}
	}
	if exists {
		return fmt.Errorf("rename %s: %w (file exists)", id, asset.ErrPathInUse)
	}

	if err := p.fs.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		return &asset.SourceError{Path: newPath, Err: err}
	}
	if err := p.fs.Rename(oldPath, newPath); err != nil {
		return &asset.SourceError{Path: oldPath, Err: err}
	}
	if err := p.registry.Register(id, newPath, true); err != nil {
		return err
	}
	p.publish(pubsub.UpdatedEvent, Change{ID: id, Path: newPath, State: p.State(id)})
	log.Info(log.CatPipeline, "Renamed item", "id", id, "from", oldPath, "to", newPath)
	return nil
}
