package presentation

import (
	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
)

// ItemDTO represents one registered item for presentation
type ItemDTO struct {
	ID         asset.ID        `json:"id"`
	Path       string          `json:"path"`
	Kind       string          `json:"kind"`
	State      asset.LoadState `json:"state"`
	Generation uint64          `json:"generation,omitempty"`
	Messages   int             `json:"messages"`
}

// KindDTO represents a registered binding
type KindDTO struct {
	Extension   string `json:"extension"`
	Description string `json:"description"`
}

// FromBindings converts bindings to DTOs, keeping their order.
func FromBindings(bindings []binding.Binding) []KindDTO {
	dtos := make([]KindDTO, len(bindings))
	for i, b := range bindings {
		dtos[i] = KindDTO{Extension: b.Extension, Description: b.Description}
	}
	return dtos
}
