package transport

import "fmt"

// Typed errors following the small-unexported-struct-plus-predicate pattern
// used throughout the codebase for component-local error taxonomies.

type staleInfoError struct {
	ref string
}

func (e *staleInfoError) Error() string {
	return fmt.Sprintf("stale info: %s", e.ref)
}

// NewStaleInfoError reports a CAS mismatch: the client's `old` hash for a
// ref no longer matches the ref's current value.
func NewStaleInfoError(ref string) error {
	return &staleInfoError{ref: ref}
}

// IsStaleInfo reports whether err is a CAS mismatch.
func IsStaleInfo(err error) bool {
	_, ok := err.(*staleInfoError)
	return ok
}

type refExistsError struct {
	ref string
}

func (e *refExistsError) Error() string {
	return fmt.Sprintf("ref already exists: %s", e.ref)
}

// NewRefExistsError reports that a create command named a ref that is
// already present.
func NewRefExistsError(ref string) error {
	return &refExistsError{ref: ref}
}

// IsRefExists reports whether err is a create-on-existing-ref conflict.
func IsRefExists(err error) bool {
	_, ok := err.(*refExistsError)
	return ok
}

type badCommandError struct {
	line string
}

func (e *badCommandError) Error() string {
	return fmt.Sprintf("malformed command line: %q", e.line)
}

// NewBadCommandError reports a receive-pack command line that could not be
// parsed as `<old> <new> <refname>`.
func NewBadCommandError(line string) error {
	return &badCommandError{line: line}
}

// IsBadCommand reports whether err is a malformed command line.
func IsBadCommand(err error) bool {
	_, ok := err.(*badCommandError)
	return ok
}

type unknownCapabilityError struct {
	cap string
}

func (e *unknownCapabilityError) Error() string {
	return fmt.Sprintf("unknown capability: %s", e.cap)
}

// NewUnknownCapabilityError reports a capability token the server does not
// recognize. The server is permissive by default (unknown capabilities are
// ignored, per Git convention) — this exists for callers that want to
// enforce a strict allow-list.
func NewUnknownCapabilityError(cap string) error {
	return &unknownCapabilityError{cap: cap}
}

// IsUnknownCapability reports whether err is an unrecognized capability.
func IsUnknownCapability(err error) bool {
	_, ok := err.(*unknownCapabilityError)
	return ok
}
