package tracing

// Span attribute keys.
const (
	AttrAssetID    = "asset.id"
	AttrAssetPath  = "asset.path"
	AttrAssetKind  = "asset.kind"
	AttrAssetState = "asset.state"
	AttrGeneration = "artifact.generation"

	AttrScanRoot  = "scan.root"
	AttrScanCount = "scan.count"

	AttrErrorMessage = "error.message"
	AttrErrorType    = "error.type"
)

// Span name prefixes.
const (
	SpanPrefixPipeline = "pipeline."
	SpanPrefixScan     = "scan."
)

// Event names for span events.
const (
	EventEvicted       = "artifact.evicted"
	EventInstalled     = "artifact.installed"
	EventSourceRead    = "source.read"
	EventSourceWritten = "source.written"
	EventDiscarded     = "artifact.discarded"
)
