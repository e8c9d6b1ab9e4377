// Package pipeline derives artifacts from external sources and keeps them in
// step with edits.
//
// Each registered item moves through the load states defined in the asset
// package. A rebuild always evicts the current artifact before the kind's
// process runs, so readers see either the newest artifact or none. When
// reading or processing fails the item is left without an artifact and a
// message describing the failure is recorded for it.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

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

// Config holds the collaborators of a Pipeline.
type Config struct {
	Fs       afero.Fs
	Registry *identity.Registry
	Store    *store.Store
	Bindings *binding.Registry
	Env      *binding.Env

	// Tracer is optional; nil disables spans.
	Tracer trace.Tracer

	// FileMode is applied to sources written by CreateDefault and CommitEdit.
	// Zero means 0644.
	FileMode os.FileMode

	// EventBuffer is the per-subscriber change buffer. Zero uses the broker
	// default.
	EventBuffer int
}

// Change is the payload of pipeline events.
type Change struct {
	ID         asset.ID
	Path       string
	State      asset.LoadState
	Generation uint64

	// Message is set on FailedEvent.
	Message *asset.Message
}

// Pipeline drives derivation for every registered item.
type Pipeline struct {
	fs       afero.Fs
	registry *identity.Registry
	store    *store.Store
	bindings *binding.Registry
	env      *binding.Env
	tracer   trace.Tracer
	fileMode os.FileMode

	locks keyedMutex

	mu       sync.RWMutex
	states   map[asset.ID]asset.LoadState
	messages map[asset.ID][]asset.Message

	events *pubsub.Broker[Change]
	now    func() time.Time
}

// New creates a pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Fs == nil:
		return nil, fmt.Errorf("pipeline: file system is required")
	case cfg.Registry == nil:
		return nil, fmt.Errorf("pipeline: identity registry is required")
	case cfg.Store == nil:
		return nil, fmt.Errorf("pipeline: artifact store is required")
	case cfg.Bindings == nil:
		return nil, fmt.Errorf("pipeline: binding registry is required")
	case cfg.Env == nil:
		return nil, fmt.Errorf("pipeline: environment is required")
	}
	mode := cfg.FileMode
	if mode == 0 {
		mode = 0644
	}
	events := pubsub.NewBroker[Change]()
	if cfg.EventBuffer > 0 {
		events = pubsub.NewBrokerWithBuffer[Change](cfg.EventBuffer)
	}
	return &Pipeline{
		fs:       cfg.Fs,
		registry: cfg.Registry,
		store:    cfg.Store,
		bindings: cfg.Bindings,
		env:      cfg.Env,
		tracer:   cfg.Tracer,
		fileMode: mode,
		locks:    keyedMutex{locks: make(map[asset.ID]*refLock)},
		states:   make(map[asset.ID]asset.LoadState),
		messages: make(map[asset.ID][]asset.Message),
		events:   events,
		now:      time.Now,
	}, nil
}

// Teardown returns the store teardown that detaches released artifacts from
// their owner collection in env.
func Teardown(env *binding.Env) store.TeardownFunc {
	return func(id asset.ID, node *graph.Node) {
		if node.Owner() == "" {
			return
		}
		if err := env.Index.Detach(node); err != nil {
			log.Debug(log.CatPipeline, "Released artifact was not attached", "id", id, "error", err)
		}
	}
}

// Close shuts down the event broker.
func (p *Pipeline) Close() {
	if n := p.events.Dropped(); n > 0 {
		log.Warn(log.CatPipeline, "Slow subscribers missed changes", "dropped", n)
	}
	p.events.Close()
}

// Subscribe returns a channel of changes, optionally limited to types. The
// channel closes when ctx is done or the pipeline is closed.
func (p *Pipeline) Subscribe(ctx context.Context, types ...pubsub.EventType) <-chan pubsub.Event[Change] {
	return p.events.Subscribe(ctx, types...)
}

// Env returns the environment handed to transforms.
func (p *Pipeline) Env() *binding.Env {
	return p.env
}

// State returns the load state of id. Unknown items report Unloaded.
func (p *Pipeline) State(id asset.ID) asset.LoadState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.states[id]; ok {
		return s
	}
	return asset.StateUnloaded
}

// transition moves id to target, refusing moves the state table forbids.
func (p *Pipeline) transition(id asset.ID, target asset.LoadState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	current, ok := p.states[id]
	if !ok {
		current = asset.StateUnloaded
	}
	if current == target {
		return nil
	}
	if !current.CanTransitionTo(target) {
		return fmt.Errorf("invalid state transition for %s: %s -> %s", id, current, target)
	}
	p.states[id] = target
	return nil
}

// markMissing leaves id without an artifact.
func (p *Pipeline) markMissing(id asset.ID) {
	p.mu.Lock()
	p.states[id] = asset.StateUnloaded
	p.mu.Unlock()
}

func (p *Pipeline) forget(id asset.ID) {
	p.mu.Lock()
	delete(p.states, id)
	delete(p.messages, id)
	p.mu.Unlock()
}

func (p *Pipeline) publish(t pubsub.EventType, c Change) {
	if p.events.SubscriberCount() == 0 {
		return
	}
	p.events.Publish(t, c)
}

// start opens the span for op and tags it with id.
func (p *Pipeline) start(ctx context.Context, op string, id asset.ID) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{}
	if id != "" {
		attrs = append(attrs, attribute.String(tracing.AttrAssetID, id.String()))
	}
	return tracing.Start(ctx, p.tracer, tracing.SpanPrefixPipeline+op, attrs...)
}

func annotate(ctx context.Context, path, kind string) {
	span := trace.SpanFromContext(ctx)
	if path != "" {
		span.SetAttributes(attribute.String(tracing.AttrAssetPath, path))
	}
	if kind != "" {
		span.SetAttributes(attribute.String(tracing.AttrAssetKind, kind))
	}
}

// keyedMutex hands out one mutex per item, dropping it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[asset.ID]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(id asset.ID) func() {
	k.mu.Lock()
	l, ok := k.locks[id]
	if !ok {
		l = &refLock{}
		k.locks[id] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, id)
		}
		k.mu.Unlock()
	}
}
