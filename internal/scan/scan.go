// Package scan discovers content items under a root and feeds them to the
// pipeline, both for the initial population and for paths reported later by
// a watcher.
package scan

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/store"
	"github.com/zjrosen/assetcache/internal/tracing"
	"github.com/zjrosen/assetcache/internal/watcher"
)

// Filter selects the paths a scan reports.
type Filter func(path string) bool

// ExtensionFilter matches paths whose extension, compared case-insensitively
// and without the dot, is one of exts.
func ExtensionFilter(exts ...string) Filter {
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		set[strings.ToLower(strings.TrimPrefix(ext, "."))] = true
	}
	return func(path string) bool {
		ext := filepath.Ext(path)
		return ext != "" && set[strings.ToLower(ext[1:])]
	}
}

// ScanTree yields the files under root accepted by filter, depth first: a
// directory is finished before its later siblings. Unreadable directories are
// logged and skipped. Hidden entries are not visited: dot-files and everything
// under a dot-directory (the .assetcache index directory, .git) are never
// yielded, so matching files there are never discovered.
func ScanTree(fsys afero.Fs, root string, filter Filter) iter.Seq[string] {
	return func(yield func(string) bool) {
		walk(fsys, filepath.Clean(root), filter, yield)
	}
}

// walk returns false once yield asks to stop.
func walk(fsys afero.Fs, dir string, filter Filter, yield func(string) bool) bool {
	entries, err := afero.ReadDir(fsys, dir)
	if err != nil {
		log.Warn(log.CatScan, "Skipping unreadable directory", "dir", dir, "error", err)
		return true
	}
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if !walk(fsys, path, filter, yield) {
				return false
			}
			continue
		}
		if filter != nil && !filter(path) {
			continue
		}
		if !yield(path) {
			return false
		}
	}
	return true
}

// Pipeline is the part of the derivation pipeline the coordinator drives.
type Pipeline interface {
	Discover(ctx context.Context, path string) (asset.ID, store.Handle, error)
	ReloadPath(ctx context.Context, path string) (store.Handle, error)
}

// Failure is one path the coordinator could not load.
type Failure struct {
	Path string `json:"path"`
	ID   string `json:"id,omitempty"`
	Err  string `json:"error"`
}

// Report summarizes one coordinator pass.
type Report struct {
	Loaded   []string  `json:"loaded,omitempty"`
	Skipped  []string  `json:"skipped,omitempty"`
	Failures []Failure `json:"failures,omitempty"`
}

// Merge appends other to r.
func (r *Report) Merge(other Report) {
	r.Loaded = append(r.Loaded, other.Loaded...)
	r.Skipped = append(r.Skipped, other.Skipped...)
	r.Failures = append(r.Failures, other.Failures...)
}

func (r *Report) sort() {
	sort.Strings(r.Loaded)
	sort.Strings(r.Skipped)
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Path < r.Failures[j].Path })
}

// Config holds the collaborators of a Coordinator.
type Config struct {
	Fs       afero.Fs
	Pipeline Pipeline
	Store    *store.Store
	Filter   Filter

	// Concurrency bounds parallel loads during Populate. Values below 1 mean 1.
	Concurrency int

	Tracer trace.Tracer
}

// Coordinator drives discovery into the pipeline.
type Coordinator struct {
	fs          afero.Fs
	pipeline    Pipeline
	store       *store.Store
	filter      Filter
	concurrency int
	tracer      trace.Tracer
}

// New creates a coordinator.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Fs == nil || cfg.Pipeline == nil || cfg.Store == nil {
		return nil, fmt.Errorf("scan: file system, pipeline and store are required")
	}
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{
		fs:          cfg.Fs,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		filter:      cfg.Filter,
		concurrency: concurrency,
		tracer:      cfg.Tracer,
	}, nil
}

func (c *Coordinator) accepts(path string) bool {
	return c.filter == nil || c.filter(path)
}

// OnPathsAppeared loads each accepted path that has no live artifact yet.
// Failures are reported and never stop the remaining paths.
func (c *Coordinator) OnPathsAppeared(ctx context.Context, dir string, paths []string) Report {
	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanPrefixScan+"appeared",
		attribute.String(tracing.AttrScanRoot, dir),
		attribute.Int(tracing.AttrScanCount, len(paths)),
	)
	defer tracing.End(span, nil)

	var rep Report
	for _, path := range paths {
		if !c.accepts(path) {
			continue
		}
		if c.store.Contains(path) {
			rep.Skipped = append(rep.Skipped, path)
			continue
		}
		id, _, err := c.pipeline.Discover(ctx, path)
		if err != nil {
			rep.Failures = append(rep.Failures, failure(path, id, err))
			continue
		}
		rep.Loaded = append(rep.Loaded, path)
	}
	rep.sort()
	log.Debug(log.CatScan, "Paths appeared", "dir", dir, "loaded", len(rep.Loaded), "skipped", len(rep.Skipped), "failed", len(rep.Failures))
	return rep
}

// OnPathsChanged reloads accepted paths that belong to registered items.
// Unregistered paths are skipped.
func (c *Coordinator) OnPathsChanged(ctx context.Context, dir string, paths []string) Report {
	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanPrefixScan+"changed",
		attribute.String(tracing.AttrScanRoot, dir),
		attribute.Int(tracing.AttrScanCount, len(paths)),
	)
	defer tracing.End(span, nil)

	var rep Report
	for _, path := range paths {
		if !c.accepts(path) {
			continue
		}
		_, err := c.pipeline.ReloadPath(ctx, path)
		switch {
		case errors.Is(err, asset.ErrNotFound):
			rep.Skipped = append(rep.Skipped, path)
		case err != nil:
			rep.Failures = append(rep.Failures, failure(path, "", err))
		default:
			rep.Loaded = append(rep.Loaded, path)
		}
	}
	rep.sort()
	return rep
}

// Populate loads every accepted file under root, at most Concurrency at a
// time. Item failures are reported, not returned; the error is non-nil only
// when root cannot be scanned or ctx ends.
func (c *Coordinator) Populate(ctx context.Context, root string) (rep Report, err error) {
	ctx, span := tracing.Start(ctx, c.tracer, tracing.SpanPrefixScan+"populate",
		attribute.String(tracing.AttrScanRoot, root),
	)
	defer func() { tracing.End(span, err) }()

	info, err := c.fs.Stat(root)
	if err != nil {
		return Report{}, fmt.Errorf("scan %s: %w", root, err)
	}
	if !info.IsDir() {
		return Report{}, fmt.Errorf("scan %s: %w", root, os.ErrInvalid)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	count := 0
	for path := range ScanTree(c.fs, root, c.filter) {
		if gctx.Err() != nil {
			break
		}
		count++
		g.Go(func() error {
			sub := c.OnPathsAppeared(gctx, filepath.Dir(path), []string{path})
			mu.Lock()
			rep.Merge(sub)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return rep, err
	}
	if err := ctx.Err(); err != nil {
		return rep, err
	}
	rep.sort()
	span.SetAttributes(attribute.Int(tracing.AttrScanCount, count))
	log.Info(log.CatScan, "Populated", "root", root, "found", count, "loaded", len(rep.Loaded), "failed", len(rep.Failures))
	return rep, nil
}

// Run feeds watcher batches into the hooks until ctx ends or batches closes.
// Each batch's report is passed to onReport when it is non-nil.
func (c *Coordinator) Run(ctx context.Context, batches <-chan watcher.Batch, onReport func(watcher.Batch, Report)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-batches:
			if !ok {
				return nil
			}
			rep := c.OnPathsAppeared(ctx, b.Dir, b.Appeared)
			rep.Merge(c.OnPathsChanged(ctx, b.Dir, b.Changed))
			for _, f := range rep.Failures {
				log.Warn(log.CatScan, "Load failed", "path", f.Path, "error", f.Err)
			}
			if onReport != nil {
				onReport(b, rep)
			}
		}
	}
}

func failure(path string, id asset.ID, err error) Failure {
	return Failure{Path: path, ID: id.String(), Err: err.Error()}
}
