package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/log"
	"github.com/zjrosen/assetcache/internal/tracing"
)

// CommitEdit writes the unprocessed form of id's artifact back to its path.
// The artifact stays installed: it already reflects the written source.
func (p *Pipeline) CommitEdit(ctx context.Context, id asset.ID) (err error) {
	ctx, span := p.start(ctx, "commit", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()

	path, data, err := p.unprocess(ctx, id)
	if err != nil {
		return err
	}
	if err := p.writeSource(path, data); err != nil {
		return err
	}
	span.AddEvent(tracing.EventSourceWritten, trace.WithAttributes(attribute.Int("bytes", len(data))))
	log.Info(log.CatPipeline, "Committed", "id", id, "path", path, "bytes", len(data))
	return nil
}

// unprocess returns id's path and the source its artifact serializes to.
// Callers hold id's lock.
func (p *Pipeline) unprocess(ctx context.Context, id asset.ID) (string, []byte, error) {
	path, err := p.registry.Resolve(id)
	if err != nil {
		return "", nil, err
	}
	b, err := p.bindings.ForPath(path)
	if err != nil {
		return "", nil, err
	}
	annotate(ctx, path, b.Extension)
	h, ok := p.store.Get(id)
	if !ok {
		return "", nil, fmt.Errorf("%s: %w", id, asset.ErrNotLoaded)
	}
	data, err := b.Unprocess(ctx, p.env, h.Node())
	if err != nil {
		return "", nil, err
	}
	return path, data, nil
}

// Export serializes id's artifact as an envelope.
func (p *Pipeline) Export(ctx context.Context, id asset.ID, pretty bool) (data []byte, err error) {
	_, span := p.start(ctx, "export", id)
	defer func() { tracing.End(span, err) }()

	h, ok := p.store.Get(id)
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, asset.ErrNotLoaded)
	}
	return p.env.Codec.Save(h.Node(), pretty)
}

// DiffOp classifies a DiffLine.
type DiffOp string

const (
	DiffEqual  DiffOp = " "
	DiffDelete DiffOp = "-"
	DiffInsert DiffOp = "+"
)

// DiffLine is one line of a source diff.
type DiffLine struct {
	Op   DiffOp `json:"op"`
	Text string `json:"text"`
}

// DiffResult compares the source on disk with what committing would write.
type DiffResult struct {
	ID             asset.ID   `json:"id"`
	Path           string     `json:"path"`
	RequiresCommit bool       `json:"requires_commit"`
	Added          int        `json:"added"`
	Removed        int        `json:"removed"`
	Lines          []DiffLine `json:"lines,omitempty"`
}

// Diff reports how the on-disk source of id differs from the unprocessed
// form of its live artifact.
func (p *Pipeline) Diff(ctx context.Context, id asset.ID) (res DiffResult, err error) {
	ctx, span := p.start(ctx, "diff", id)
	defer func() { tracing.End(span, err) }()

	unlock := p.locks.lock(id)
	defer unlock()

	path, next, err := p.unprocess(ctx, id)
	if err != nil {
		return DiffResult{}, err
	}
	current, err := p.readSource(path)
	if err != nil {
		return DiffResult{}, err
	}

	res = DiffResult{ID: id, Path: path}
	if string(current) == string(next) {
		return res, nil
	}
	res.RequiresCommit = true
	res.Lines = diffLines(string(current), string(next))
	for _, l := range res.Lines {
		switch l.Op {
		case DiffInsert:
			res.Added++
		case DiffDelete:
			res.Removed++
		}
	}
	span.SetAttributes(attribute.Bool("diff.requires_commit", true))
	return res, nil
}

func diffLines(oldText, newText string) []DiffLine {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCharsToLines(diffs, lines)

	var out []DiffLine
	for _, d := range diffs {
		op := DiffEqual
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			op = DiffDelete
		case diffmatchpatch.DiffInsert:
			op = DiffInsert
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out = append(out, DiffLine{Op: op, Text: strings.TrimSuffix(line, "\n")})
		}
	}
	return out
}
