package asset

import "time"

// LoadState is the derivation state of one item.
// Valid transitions:
//
//	Unloaded   -> Loaded, Dirty
//	Loaded     -> Dirty, Unloaded
//	Dirty      -> Rebuilding, Unloaded
//	Rebuilding -> Loaded, Unloaded
//
// Unloaded doubles as "Missing": a failed load or rebuild lands there.
type LoadState string

const (
	// StateUnloaded means no artifact is installed for the item.
	StateUnloaded LoadState = "unloaded"
	// StateLoaded means the installed artifact reflects the latest source.
	StateLoaded LoadState = "loaded"
	// StateDirty means the source changed and the artifact has been evicted.
	StateDirty LoadState = "dirty"
	// StateRebuilding means the kind's process is running on the new source.
	StateRebuilding LoadState = "rebuilding"
)

var validTransitions = map[LoadState]map[LoadState]bool{
	StateUnloaded: {
		StateLoaded: true,
		StateDirty:  true,
	},
	StateLoaded: {
		StateDirty:    true,
		StateUnloaded: true,
	},
	StateDirty: {
		StateRebuilding: true,
		StateUnloaded:   true,
	},
	StateRebuilding: {
		StateLoaded:   true,
		StateUnloaded: true,
	},
}

func (s LoadState) String() string {
	return string(s)
}

// IsValid returns true if this is a recognized LoadState value.
func (s LoadState) IsValid() bool {
	_, ok := validTransitions[s]
	return ok
}

// CanTransitionTo returns true if moving from s to target is allowed.
func (s LoadState) CanTransitionTo(target LoadState) bool {
	allowed, ok := validTransitions[s]
	if !ok {
		return false
	}
	return allowed[target]
}

// Severity classifies a Message.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Message is one entry of the per-item message list shown next to an editor.
type Message struct {
	Severity Severity  `json:"severity"`
	ID       ID        `json:"id"`
	Path     string    `json:"path"`
	Location Location  `json:"location"`
	Context  string    `json:"context,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`
}
