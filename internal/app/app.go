// Package app wires the registry, store, pipeline, and scan coordinator
// into one application that the CLI commands drive.
package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/config"
	"github.com/zjrosen/assetcache/internal/graph"
	"github.com/zjrosen/assetcache/internal/identity"
	"github.com/zjrosen/assetcache/internal/infrastructure/sqlite"
	"github.com/zjrosen/assetcache/internal/kinds"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/pipeline"
	"github.com/zjrosen/assetcache/internal/presentation"
	"github.com/zjrosen/assetcache/internal/scan"
	"github.com/zjrosen/assetcache/internal/store"
	"github.com/zjrosen/assetcache/internal/tracing"
	"github.com/zjrosen/assetcache/internal/watcher"
)

// ParentCollection names the collection artifacts are attached to.
const ParentCollection = "assets"

// ErrAmbiguous is returned when a short identifier matches several items.
var ErrAmbiguous = errors.New("ambiguous identifier")

// App is the running application.
type App struct {
	cfg      config.Config
	root     string
	fs       afero.Fs
	db       *sqlite.DB
	tracing  *tracing.Provider
	registry *identity.Registry
	store    *store.Store
	bindings *binding.Registry
	pipeline *pipeline.Pipeline
	scanner  *scan.Coordinator
}

// Option customizes New.
type Option func(*options)

type options struct {
	fs afero.Fs
}

// WithFs replaces the OS file system. The location index and the watcher
// always use the OS.
func WithFs(fs afero.Fs) Option {
	return func(o *options) { o.fs = fs }
}

// New builds an App from cfg. The caller must Close it.
func New(cfg config.Config, opts ...Option) (a *App, err error) {
	o := options{fs: afero.NewOsFs()}
	for _, opt := range opts {
		opt(&o)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a = &App{cfg: cfg, root: identity.Normalize(cfg.Root), fs: o.fs}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.tracing, err = tracing.NewProvider(tracing.Config{
		Enabled:      cfg.Tracing.Enabled,
		Exporter:     cfg.Tracing.Exporter,
		FilePath:     cfg.Tracing.FilePath,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		SampleRate:   cfg.Tracing.SampleRate,
		ServiceName:  "assetcache",
	})
	if err != nil {
		return nil, fmt.Errorf("creating tracing provider: %w", err)
	}

	var repo identity.Repository
	if cfg.Index.Enabled {
		a.db, err = sqlite.NewDB(cfg.IndexPath())
		if err != nil {
			return nil, fmt.Errorf("opening location index: %w", err)
		}
		repo = a.db.LocationRepository()
	}
	a.registry = identity.NewRegistry(repo)
	n, err := a.registry.Load()
	if err != nil {
		return nil, fmt.Errorf("loading location index: %w", err)
	}

	types := graph.NewTypes()
	if err := kinds.RegisterTypes(types); err != nil {
		return nil, err
	}
	env := binding.NewEnv(types, ParentCollection)
	a.bindings = binding.NewRegistry()
	if err := kinds.Register(a.bindings, kinds.Options{PrettyEnvelopes: cfg.Envelope.Pretty}, cfg.Extensions); err != nil {
		return nil, err
	}

	a.store = store.New(a.registry, store.WithTeardown(pipeline.Teardown(env)))
	a.pipeline, err = pipeline.New(pipeline.Config{
		Fs:       a.fs,
		Registry: a.registry,
		Store:    a.store,
		Bindings: a.bindings,
		Env:      env,
		Tracer:   a.tracing.Tracer(),
	})
	if err != nil {
		return nil, err
	}
	a.scanner, err = scan.New(scan.Config{
		Fs:          a.fs,
		Pipeline:    a.pipeline,
		Store:       a.store,
		Filter:      a.filter(),
		Concurrency: cfg.Scan.Concurrency,
		Tracer:      a.tracing.Tracer(),
	})
	if err != nil {
		return nil, err
	}

	log.Info(log.CatConfig, "Application ready", "root", a.root, "records", n, "kinds", strings.Join(a.bindings.Extensions(), ","))
	return a, nil
}

// Close releases the pipeline, flushes traces, and closes the index.
func (a *App) Close() {
	if a.pipeline != nil {
		a.pipeline.Close()
	}
	if a.store != nil {
		a.store.Flush()
	}
	if a.tracing != nil {
		if err := a.tracing.Shutdown(context.Background()); err != nil {
			log.ErrorErr(log.CatTrace, "Tracing shutdown failed", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.ErrorErr(log.CatDB, "Closing location index failed", err)
		}
	}
}

// Root returns the normalized root directory.
func (a *App) Root() string { return a.root }

// Config returns the configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }

// Pipeline returns the derivation pipeline.
func (a *App) Pipeline() *pipeline.Pipeline { return a.pipeline }

// Bindings returns the registered kinds.
func (a *App) Bindings() *binding.Registry { return a.bindings }

func (a *App) filter() scan.Filter {
	return scan.ExtensionFilter(a.bindings.Extensions()...)
}

// Populate prunes index records whose source is gone, then loads every
// tracked file under the root.
func (a *App) Populate(ctx context.Context) (scan.Report, error) {
	pruned := a.Prune(ctx)
	rep, err := a.scanner.Populate(ctx, a.root)
	if pruned > 0 {
		log.Info(log.CatScan, "Pruned missing items", "count", pruned)
	}
	return rep, err
}

// Prune forgets every registered item whose source file no longer exists
// and returns how many were removed.
func (a *App) Prune(ctx context.Context) int {
	pruned := 0
	for _, rec := range a.registry.Records() {
		if ok, err := afero.Exists(a.fs, rec.Path); err != nil || ok {
			continue
		}
		if err := a.pipeline.Remove(ctx, rec.ID); err != nil {
			log.Warn(log.CatScan, "Could not prune missing item", "id", rec.ID, "path", rec.Path, "error", err)
			continue
		}
		pruned++
	}
	return pruned
}

// Watch populates the tree, then feeds file system changes through the scan
// coordinator until ctx is done. onReport receives each non-empty pass.
func (a *App) Watch(ctx context.Context, onReport func(watcher.Batch, scan.Report)) error {
	wcfg := watcher.DefaultConfig(a.root)
	if a.cfg.Watch.Debounce > 0 {
		wcfg.DebounceDur = a.cfg.Watch.Debounce
	}
	wcfg.Filter = a.filter()

	w, err := watcher.New(wcfg)
	if err != nil {
		return err
	}
	batches, err := w.Start()
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Stop(); err != nil {
			log.ErrorErr(log.CatWatcher, "Stopping watcher failed", err)
		}
	}()

	rep, err := a.Populate(ctx)
	if err != nil {
		return err
	}
	onReport(watcher.Batch{Dir: a.root}, rep)
	return a.scanner.Run(ctx, batches, onReport)
}

// Resolve turns a command argument into an identifier. arg may be a full
// identifier, a unique identifier prefix, or a path. A path to an untracked
// file of a known kind is discovered.
func (a *App) Resolve(ctx context.Context, arg string) (asset.ID, error) {
	if id, err := asset.ParseID(arg); err == nil {
		if a.registry.Contains(id) {
			return id, nil
		}
		return "", fmt.Errorf("%s: %w", arg, asset.ErrUnknownIdentifier)
	}

	if id, err := a.registry.ResolveByPath(arg); err == nil {
		return id, nil
	}
	if ok, _ := afero.Exists(a.fs, identity.Normalize(arg)); ok && a.bindings.Handles(arg) {
		id, _, err := a.pipeline.Discover(ctx, arg)
		return id, err
	}

	if len(arg) >= 4 && !strings.ContainsAny(arg, `/\.`) {
		var matches []asset.ID
		for _, rec := range a.registry.Records() {
			if strings.HasPrefix(string(rec.ID), strings.ToLower(arg)) {
				matches = append(matches, rec.ID)
			}
		}
		switch len(matches) {
		case 1:
			return matches[0], nil
		case 0:
		default:
			return "", fmt.Errorf("%s matches %d items: %w", arg, len(matches), ErrAmbiguous)
		}
	}
	return "", fmt.Errorf("%s: %w", arg, asset.ErrNotFound)
}

// Items lists every registered item sorted by path.
func (a *App) Items() []presentation.ItemDTO {
	recs := a.registry.Records()
	items := make([]presentation.ItemDTO, 0, len(recs))
	for _, rec := range recs {
		items = append(items, a.item(rec.ID, rec.Path))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
	return items
}

// Item describes one registered item.
func (a *App) Item(id asset.ID) (presentation.ItemDTO, error) {
	path, err := a.registry.Resolve(id)
	if err != nil {
		return presentation.ItemDTO{}, err
	}
	return a.item(id, path), nil
}

func (a *App) item(id asset.ID, path string) presentation.ItemDTO {
	dto := presentation.ItemDTO{
		ID:       id,
		Path:     path,
		Kind:     binding.ExtensionOf(path),
		State:    a.pipeline.State(id),
		Messages: len(a.pipeline.Messages(id)),
	}
	if h, ok := a.store.Get(id); ok {
		dto.Generation = h.Generation()
	}
	return dto
}
