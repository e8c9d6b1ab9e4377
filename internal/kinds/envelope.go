package kinds

import (
	"context"

	"github.com/zjrosen/assetcache/internal/asset"
	"github.com/zjrosen/assetcache/internal/binding"
	"github.com/zjrosen/assetcache/internal/graph"
)

// EnvelopeExtension is the extension of items stored directly as envelopes.
const EnvelopeExtension = "asset"

const defaultEnvelope = `{
  "format": "assetcache.envelope",
  "version": 1,
  "items": [
    {
      "type": "Asset",
      "fields": {
        "name": {
          "kind": "string",
          "value": "untitled"
        }
      }
    }
  ]
}
`

// Envelope returns the binding for items whose source is itself an envelope.
// Process is a codec load expecting an Asset; unprocess is a codec save, so
// the item's UUID travels inside the file.
func Envelope(pretty bool) binding.Binding {
	return binding.Binding{
		Extension:     EnvelopeExtension,
		Description:   "JSON envelope holding one asset",
		DefaultSource: []byte(defaultEnvelope),
		Process: func(_ context.Context, env *binding.Env, src []byte) (*graph.Node, error) {
			// Attachment is left to the caller, which first stamps the item's ID.
			node, err := env.Codec.Load(src, nil, TypeAsset)
			if err != nil {
				return nil, &asset.TransformError{
					Kind:     EnvelopeExtension,
					Op:       "process",
					Location: asset.LocationOf(err),
					Err:      err,
				}
			}
			return node, nil
		},
		Unprocess: func(_ context.Context, env *binding.Env, node *graph.Node) ([]byte, error) {
			data, err := env.Codec.Save(node, pretty)
			if err != nil {
				return nil, &asset.TransformError{Kind: EnvelopeExtension, Op: "unprocess", Err: err}
			}
			return data, nil
		},
	}
}
