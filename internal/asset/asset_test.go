package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewID_IsValid(t *testing.T) {
	id := NewID()
	require.True(t, id.IsValid())
	require.Len(t, id.String(), 36)
	require.NotEqual(t, id, NewID(), "ids should be unique")
}

func TestParseID_Canonicalizes(t *testing.T) {
	raw := "{6BA7B810-9DAD-11D1-80B4-00C04FD430C8}"
	id, err := ParseID(raw)
	require.NoError(t, err)
	require.Equal(t, ID("6ba7b810-9dad-11d1-80b4-00c04fd430c8"), id)
}

func TestParseID_Invalid(t *testing.T) {
	_, err := ParseID("not-a-uuid")
	require.Error(t, err)
	require.False(t, ID("").IsValid())
	require.False(t, ID("nope").IsValid())
}

func TestID_Short(t *testing.T) {
	require.Equal(t, "6ba7b810", ID("6ba7b810-9dad-11d1-80b4-00c04fd430c8").Short())
	require.Equal(t, "abc", ID("abc").Short())
}

func TestLoadState_Transitions(t *testing.T) {
	tests := []struct {
		from, to LoadState
		want     bool
	}{
		{StateUnloaded, StateLoaded, true},
		{StateUnloaded, StateDirty, true},
		{StateUnloaded, StateRebuilding, false},
		{StateLoaded, StateDirty, true},
		{StateLoaded, StateRebuilding, false},
		{StateDirty, StateRebuilding, true},
		{StateDirty, StateLoaded, false},
		{StateRebuilding, StateLoaded, true},
		{StateRebuilding, StateUnloaded, true},
		{LoadState("bogus"), StateLoaded, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			require.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	require.False(t, LoadState("bogus").IsValid())
	require.True(t, StateRebuilding.IsValid())
}

func TestTypedErrors_MatchSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"duplicate", &DuplicateIdentifierError{ID: "x", Existing: "a", Requested: "b"}, ErrDuplicateIdentifier},
		{"source", &SourceError{Path: "a.obj", Err: fs.ErrNotExist}, ErrSourceUnreadable},
		{"transform", &TransformError{Kind: "obj", Op: "process", Err: errors.New("bad")}, ErrTransformFailed},
		{"syntax", &SyntaxError{Err: errors.New("eof")}, ErrMalformedEnvelope},
		{"arity", &ArityError{Count: 2}, ErrArity},
		{"type", &TypeMismatchError{Want: "Asset", Got: "Bounds"}, ErrTypeMismatch},
		{"detach", &DetachError{ID: "x", Reason: "referenced"}, ErrDetachFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", tt.err)
			require.ErrorIs(t, wrapped, tt.sentinel)
		})
	}
}

func TestSourceError_UnwrapsCause(t *testing.T) {
	err := &SourceError{Path: "a.obj", Err: fs.ErrNotExist}
	require.ErrorIs(t, err, fs.ErrNotExist)
	require.True(t, strings.Contains(err.Error(), "a.obj"))
}

func TestLocationOf(t *testing.T) {
	err := fmt.Errorf("load: %w", &TransformError{Kind: "obj", Op: "process", Location: Location{Line: 3}, Err: errors.New("bad")})
	require.Equal(t, Location{Line: 3}, LocationOf(err))
	require.Contains(t, err.Error(), "at 3")

	err = &SyntaxError{Location: Location{Line: 2, Column: 5}, Err: errors.New("bad")}
	require.Equal(t, "2:5", LocationOf(err).String())

	require.True(t, LocationOf(errors.New("plain")).IsZero())
}
