package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
	"github.com/zjrosen/assetcache/internal/identity"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/pubsub"
	"github.com/zjrosen/assetcache/internal/store"
	"github.com/zjrosen/assetcache/internal/tracing"
)

// LoadFromSource reads id's source, derives its artifact, and installs it.
// On a read or transform failure the item is left without an artifact, a
// message is recorded, and the error is returned.
func (p *Pipeline) LoadFromSource(ctx context.Context, id asset.ID) (h store.Handle, err error) {
	ctx, span := p.start(ctx, "load", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()
	return p.load(ctx, id)
}

// Reload re-derives id from the source on disk, discarding uncommitted edits.
func (p *Pipeline) Reload(ctx context.Context, id asset.ID) (h store.Handle, err error) {
	ctx, span := p.start(ctx, "reload", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()
	return p.load(ctx, id)
}

// ReloadPath reloads the item registered at path.
func (p *Pipeline) ReloadPath(ctx context.Context, path string) (store.Handle, error) {
	id, err := p.registry.ResolveByPath(path)
	if err != nil {
		return store.Handle{}, err
	}
	return p.Reload(ctx, id)
}

// Acquire returns id's artifact, loading it from source when absent.
func (p *Pipeline) Acquire(ctx context.Context, id asset.ID) (store.Handle, error) {
	if h, ok := p.store.Get(id); ok {
		return h, nil
	}
	unlock := p.locks.lock(id)
	defer unlock()
	// Another caller may have loaded it while we waited.
	if h, ok := p.store.Get(id); ok {
		return h, nil
	}

	ctx, span := p.start(ctx, "acquire", id)
	h, err := p.load(ctx, id)
	tracing.End(span, err)
	return h, err
}

// OnSourceEdited rebuilds id from src, the full edited source text. The
// current artifact is evicted before processing starts; if processing fails
// the item is left without one. The source on disk is not touched.
func (p *Pipeline) OnSourceEdited(ctx context.Context, id asset.ID, src []byte) (h store.Handle, err error) {
	ctx, span := p.start(ctx, "edit", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()

	path, err := p.registry.Resolve(id)
	if err != nil {
		return store.Handle{}, err
	}
	b, err := p.bindings.ForPath(path)
	if err != nil {
		p.fail(ctx, id, path, err)
		return store.Handle{}, err
	}
	annotate(ctx, path, b.Extension)
	return p.rebuild(ctx, id, path, b, src)
}

// Discover registers and loads a newly appeared path. A path that already
// has a record keeps its identifier. Otherwise the identifier embedded in the
// artifact is adopted when present, taking over any previous binding of that
// identifier; items without one get a fresh identifier. A transform failure
// still registers the path, leaving the item without an artifact.
func (p *Pipeline) Discover(ctx context.Context, path string) (id asset.ID, h store.Handle, err error) {
	path = identity.Normalize(path)
	ctx, span := p.start(ctx, "discover", "")
	defer func() {
		if id != "" {
			span.SetAttributes(attribute.String(tracing.AttrAssetID, id.String()))
		}
		tracing.End(span, err)
	}()

	if existing, rerr := p.registry.ResolveByPath(path); rerr == nil {
		unlock := p.locks.lock(existing)
		defer unlock()
		h, err = p.load(ctx, existing)
		return existing, h, err
	}

	b, err := p.bindings.ForPath(path)
	if err != nil {
		return "", store.Handle{}, err
	}
	annotate(ctx, path, b.Extension)
	src, err := p.readSource(path)
	if err != nil {
		return "", store.Handle{}, err
	}

	root, perr := b.Process(ctx, p.env, src)
	id = asset.NewID()
	if perr == nil && root != nil && root.UUID().IsValid() {
		id = root.UUID()
		if prev, rerr := p.registry.Resolve(id); rerr == nil {
			log.Warn(log.CatPipeline, "Embedded identifier moved to a new path", "id", id, "from", prev, "to", path)
		}
	}

	unlock := p.locks.lock(id)
	defer unlock()
	if err := p.registry.Register(id, path, true); err != nil {
		return "", store.Handle{}, err
	}
	p.publish(pubsub.CreatedEvent, Change{ID: id, Path: path, State: asset.StateUnloaded})
	log.Info(log.CatPipeline, "Discovered item", "id", id, "path", path, "kind", b.Extension)

	if err := p.invalidate(ctx, id); err != nil {
		return id, store.Handle{}, err
	}
	h, err = p.finish(ctx, id, path, root, perr)
	return id, h, err
}

// CreateDefault writes the default source of kind ext to path, registers a
// fresh identifier for it, and loads it. The extension is appended to path
// when missing.
func (p *Pipeline) CreateDefault(ctx context.Context, ext, path string) (id asset.ID, h store.Handle, err error) {
	ctx, span := p.start(ctx, "create", "")
	defer func() {
		if id != "" {
			span.SetAttributes(attribute.String(tracing.AttrAssetID, id.String()))
		}
		tracing.End(span, err)
	}()

	b, err := p.bindings.Lookup(ext)
	if err != nil {
		return "", store.Handle{}, err
	}
	if binding.ExtensionOf(path) != b.Extension {
		path += "." + b.Extension
	}
	path = identity.Normalize(path)
	annotate(ctx, path, b.Extension)

	if owner, rerr := p.registry.ResolveByPath(path); rerr == nil {
		return "", store.Handle{}, fmt.Errorf("create %s: %w (%s)", path, asset.ErrPathInUse, owner)
	}
	exists, err := afero.Exists(p.fs, path)
	if err != nil {
		return "", store.Handle{}, &asset.SourceError{Path: path, Err: err}
	}
	if exists {
		return "", store.Handle{}, fmt.Errorf("create %s: %w (file exists)", path, asset.ErrPathInUse)
	}
	if err := p.writeSource(path, b.DefaultSource); err != nil {
		return "", store.Handle{}, err
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventSourceWritten)

	id = asset.NewID()
	unlock := p.locks.lock(id)
	defer unlock()
	if err := p.registry.Register(id, path, false); err != nil {
		return "", store.Handle{}, err
	}
	p.publish(pubsub.CreatedEvent, Change{ID: id, Path: path, State: asset.StateUnloaded})
	log.Info(log.CatPipeline, "Created item", "id", id, "path", path, "kind", b.Extension)

	h, err = p.load(ctx, id)
	return id, h, err
}

// load derives id from its source on disk. Callers hold id's lock.
func (p *Pipeline) load(ctx context.Context, id asset.ID) (store.Handle, error) {
	path, err := p.registry.Resolve(id)
	if err != nil {
		return store.Handle{}, err
	}
	b, err := p.bindings.ForPath(path)
	if err != nil {
		p.fail(ctx, id, path, err)
		return store.Handle{}, err
	}
	annotate(ctx, path, b.Extension)

	src, err := p.readSource(path)
	if err != nil {
		p.fail(ctx, id, path, err)
		return store.Handle{}, err
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventSourceRead, trace.WithAttributes(attribute.Int("bytes", len(src))))
	return p.rebuild(ctx, id, path, b, src)
}

// rebuild evicts id's artifact, then processes src and installs the result.
func (p *Pipeline) rebuild(ctx context.Context, id asset.ID, path string, b binding.Binding, src []byte) (store.Handle, error) {
	if err := p.invalidate(ctx, id); err != nil {
		return store.Handle{}, err
	}
	root, err := b.Process(ctx, p.env, src)
	return p.finish(ctx, id, path, root, err)
}

// invalidate evicts id's artifact and marks it as rebuilding.
func (p *Pipeline) invalidate(ctx context.Context, id asset.ID) error {
	if err := p.transition(id, asset.StateDirty); err != nil {
		return err
	}
	if p.store.Evict(id) {
		trace.SpanFromContext(ctx).AddEvent(tracing.EventEvicted)
	}
	p.publish(pubsub.UpdatedEvent, Change{ID: id, State: asset.StateDirty})
	return p.transition(id, asset.StateRebuilding)
}

// finish installs the processed root, or records why there is none.
func (p *Pipeline) finish(ctx context.Context, id asset.ID, path string, root *graph.Node, processErr error) (store.Handle, error) {
	if processErr != nil {
		p.fail(ctx, id, path, processErr)
		return store.Handle{}, processErr
	}
	h, err := p.install(ctx, id, root)
	if errors.Is(err, asset.ErrUnknownIdentifier) {
		// Removed while rebuilding; the store discarded the artifact.
		p.forget(id)
		return store.Handle{}, err
	}
	if err != nil {
		p.fail(ctx, id, path, err)
		return store.Handle{}, err
	}
	if err := p.transition(id, asset.StateLoaded); err != nil {
		return store.Handle{}, err
	}
	p.clearMessages(id)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String(tracing.AttrAssetState, asset.StateLoaded.String()),
		attribute.Int64(tracing.AttrGeneration, int64(h.Generation())),
	)
	p.publish(pubsub.UpdatedEvent, Change{ID: id, Path: path, State: asset.StateLoaded, Generation: h.Generation()})
	log.Debug(log.CatPipeline, "Loaded", "id", id, "path", path, "type", root.Type())
	return h, nil
}

// install stamps root with id, attaches it to the parent collection, and puts
// it in the store.
func (p *Pipeline) install(ctx context.Context, id asset.ID, root *graph.Node) (store.Handle, error) {
	if root == nil {
		return store.Handle{}, &asset.TransformError{Op: "process", Err: errors.New("no artifact produced")}
	}
	if embedded := root.UUID(); embedded != id {
		if embedded != "" {
			log.Warn(log.CatPipeline, "Artifact carries a different identifier; restamping", "id", id, "embedded", embedded)
		}
		root.SetUUID(id)
	}
	if root.Owner() == "" {
		if err := p.env.Parent.Attach(root); err != nil {
			return store.Handle{}, err
		}
	}
	h, err := p.store.Put(id, root)
	if err != nil {
		trace.SpanFromContext(ctx).AddEvent(tracing.EventDiscarded)
		return store.Handle{}, err
	}
	trace.SpanFromContext(ctx).AddEvent(tracing.EventInstalled)
	return h, nil
}

// fail leaves id without an artifact and records err.
func (p *Pipeline) fail(ctx context.Context, id asset.ID, path string, err error) {
	if p.store.Evict(id) {
		trace.SpanFromContext(ctx).AddEvent(tracing.EventEvicted)
	}
	p.markMissing(id)
	msg := p.record(id, path, asset.SeverityError, err)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String(tracing.AttrAssetState, asset.StateUnloaded.String()))
	p.publish(pubsub.FailedEvent, Change{ID: id, Path: path, State: asset.StateUnloaded, Message: &msg})
	log.Warn(log.CatPipeline, "Item left without artifact", "id", id, "path", path, "error", err)
}
