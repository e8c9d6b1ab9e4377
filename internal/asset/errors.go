package asset

import (
	"errors"
	"fmt"
)

// ===========================================================================
// Registry and store errors (local precondition violations)
// ===========================================================================

// ErrUnknownIdentifier is returned when an ID has no location record.
var ErrUnknownIdentifier = errors.New("unknown identifier")

// ErrDuplicateIdentifier is returned when an ID is already bound to a different path.
var ErrDuplicateIdentifier = errors.New("identifier already bound to a different path")

// ErrNotFound is returned when no item owns a path.
var ErrNotFound = errors.New("no item owns path")

// ErrPathInUse is returned when creating an item at a path another item owns.
var ErrPathInUse = errors.New("path already owned by an item")

// ErrUnknownKind is returned when no binding is registered for an extension.
var ErrUnknownKind = errors.New("no binding registered for kind")

// ===========================================================================
// Pipeline errors (recoverable, reported upward)
// ===========================================================================

// ErrSourceUnreadable is returned when the backing path cannot be read.
var ErrSourceUnreadable = errors.New("source unreadable")

// ErrTransformFailed wraps a kind-specific process or unprocess failure.
var ErrTransformFailed = errors.New("transform failed")

// ErrDetachFailed is returned when an artifact cannot be unlinked from its owner.
var ErrDetachFailed = errors.New("detach failed")

// ErrNotLoaded is returned when an operation needs a live artifact and the
// item has none.
var ErrNotLoaded = errors.New("item has no loaded artifact")

// ===========================================================================
// Codec errors
// ===========================================================================

// ErrMalformedEnvelope is returned when an envelope cannot be parsed.
var ErrMalformedEnvelope = errors.New("malformed envelope")

// ErrArity is returned when an envelope does not hold exactly one root item.
var ErrArity = errors.New("envelope must contain exactly one root item")

// ErrTypeMismatch is returned when a loaded item is not of the expected type.
var ErrTypeMismatch = errors.New("type mismatch")

// Location points into a source or envelope. Zero values mean unknown.
type Location struct {
	Line   int `json:"line,omitempty"`
	Column int `json:"column,omitempty"`
}

// IsZero reports whether the location is unknown.
func (l Location) IsZero() bool {
	return l.Line == 0 && l.Column == 0
}

func (l Location) String() string {
	switch {
	case l.IsZero():
		return ""
	case l.Column == 0:
		return fmt.Sprintf("%d", l.Line)
	default:
		return fmt.Sprintf("%d:%d", l.Line, l.Column)
	}
}

// DuplicateIdentifierError reports a conflicting registration.
type DuplicateIdentifierError struct {
	ID        ID
	Existing  string
	Requested string
}

func (e *DuplicateIdentifierError) Error() string {
	return fmt.Sprintf("identifier %s already bound to %s (requested %s)", e.ID, e.Existing, e.Requested)
}

func (e *DuplicateIdentifierError) Is(target error) bool {
	return target == ErrDuplicateIdentifier
}

// SourceError reports a failure to read or write an item's external source.
type SourceError struct {
	Path string
	Err  error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s unreadable: %v", e.Path, e.Err)
}

func (e *SourceError) Is(target error) bool {
	return target == ErrSourceUnreadable
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// TransformError reports a failure inside a binding's process or unprocess.
type TransformError struct {
	Kind     string
	Op       string // "process" or "unprocess"
	Location Location
	Err      error
}

func (e *TransformError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("%s %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s at %s: %v", e.Kind, e.Op, e.Location, e.Err)
}

func (e *TransformError) Is(target error) bool {
	return target == ErrTransformFailed
}

func (e *TransformError) Unwrap() error {
	return e.Err
}

// SyntaxError reports an envelope that could not be parsed.
type SyntaxError struct {
	Location Location
	Err      error
}

func (e *SyntaxError) Error() string {
	if e.Location.IsZero() {
		return fmt.Sprintf("malformed envelope: %v", e.Err)
	}
	return fmt.Sprintf("malformed envelope at %s: %v", e.Location, e.Err)
}

func (e *SyntaxError) Is(target error) bool {
	return target == ErrMalformedEnvelope
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// ArityError reports an envelope with other than one root item.
type ArityError struct {
	Count int
}

func (e *ArityError) Error() string {
	return fmt.Sprintf("envelope holds %d root items, want exactly 1", e.Count)
}

func (e *ArityError) Is(target error) bool {
	return target == ErrArity
}

// TypeMismatchError reports a loaded item whose type is not the expected one.
type TypeMismatchError struct {
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch: want %s, got %s", e.Want, e.Got)
}

func (e *TypeMismatchError) Is(target error) bool {
	return target == ErrTypeMismatch
}

// DetachError reports an artifact that could not be unlinked from its owner.
type DetachError struct {
	ID     ID
	Owner  string
	Reason string
}

func (e *DetachError) Error() string {
	if e.Owner == "" {
		return fmt.Sprintf("detach %s: %s", e.ID, e.Reason)
	}
	return fmt.Sprintf("detach %s from %s: %s", e.ID, e.Owner, e.Reason)
}

func (e *DetachError) Is(target error) bool {
	return target == ErrDetachFailed
}

// LocationOf extracts the source location carried by err, if any.
func LocationOf(err error) Location {
	var te *TransformError
	if errors.As(err, &te) {
		return te.Location
	}
	var se *SyntaxError
	if errors.As(err, &se) {
		return se.Location
	}
	return Location{}
}
