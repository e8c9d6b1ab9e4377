package pipeline

import (
	"errors"
	"sort"

	"github.com/zjrosen/assetcache/internal/asset"
)

// Messages returns the messages recorded for id, oldest first.
func (p *Pipeline) Messages(id asset.ID) []asset.Message {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]asset.Message(nil), p.messages[id]...)
}

// AllMessages returns every recorded message ordered by path, then time.
func (p *Pipeline) AllMessages() []asset.Message {
	p.mu.RLock()
	var out []asset.Message
	for _, msgs := range p.messages {
		out = append(out, msgs...)
	}
	p.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].At.Before(out[j].At)
	})
	return out
}

func (p *Pipeline) clearMessages(id asset.ID) {
	p.mu.Lock()
	delete(p.messages, id)
	p.mu.Unlock()
}

// record replaces id's messages with one describing err.
func (p *Pipeline) record(id asset.ID, path string, sev asset.Severity, err error) asset.Message {
	msg := asset.Message{
		Severity: sev,
		ID:       id,
		Path:     path,
		Location: asset.LocationOf(err),
		Context:  messageContext(err),
		Text:     err.Error(),
		At:       p.now(),
	}
	p.mu.Lock()
	p.messages[id] = []asset.Message{msg}
	p.mu.Unlock()
	return msg
}

// messageContext names the stage that failed.
func messageContext(err error) string {
	var te *asset.TransformError
	switch {
	case errors.As(err, &te):
		return te.Kind + " " + te.Op
	case errors.Is(err, asset.ErrSourceUnreadable):
		return "read"
	case errors.Is(err, asset.ErrUnknownKind):
		return "binding"
	case errors.Is(err, asset.ErrUnknownIdentifier):
		return "install"
	default:
		return ""
	}
}
