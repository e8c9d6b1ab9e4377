package testutil

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
	"github.com/zjrosen/assetcache/internal/identity"
	"github.com/zjrosen/assetcache/internal/kinds"
	"github.com/zjrosen/assetcache/internal/pipeline"
	"github.com/zjrosen/assetcache/internal/store"
)

// Stack is a wired registry, store, and pipeline over an in-memory file
// system, with spans captured by Spans.
type Stack struct {
	Fs       afero.Fs
	Registry *identity.Registry
	Store    *store.Store
	Bindings *binding.Registry
	Env      *binding.Env
	Pipeline *pipeline.Pipeline
	Spans    *tracetest.SpanRecorder
}

// NewStack builds a Stack with the built-in kinds. repo may be nil.
func NewStack(t *testing.T, repo identity.Repository) *Stack {
	t.Helper()
	types := graph.NewTypes()
	require.NoError(t, kinds.RegisterTypes(types))
	env := binding.NewEnv(types, "assets")

	bindings := binding.NewRegistry()
	require.NoError(t, kinds.Register(bindings, kinds.Options{PrettyEnvelopes: true}, nil))

	registry := identity.NewRegistry(repo)
	st := store.New(registry, store.WithTeardown(pipeline.Teardown(env)))
	spans := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spans))

	fs := afero.NewMemMapFs()
	p, err := pipeline.New(pipeline.Config{
		Fs:       fs,
		Registry: registry,
		Store:    st,
		Bindings: bindings,
		Env:      env,
		Tracer:   tp.Tracer("testutil"),
	})
	require.NoError(t, err)
	t.Cleanup(p.Close)

	return &Stack{
		Fs:       fs,
		Registry: registry,
		Store:    st,
		Bindings: bindings,
		Env:      env,
		Pipeline: p,
		Spans:    spans,
	}
}

// Tree returns a tree builder rooted at root on the stack's file system.
func (s *Stack) Tree(t *testing.T, root string) *Tree {
	return NewTree(t, s.Fs, root)
}
