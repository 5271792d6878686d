// Package object implements the canonical Git object model: typed entities
// (blob/tree/commit/tag/signature) with the exact byte serialization that
// Git itself uses to compute object identity. See §3/§4.B of the design.
package object

import (
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/plumbing"
)

// ObjectType is the closed set of Git object types. OffsetDelta and
// HashDelta only ever appear inside a pack file; they are never persisted.
type ObjectType int8

const (
	InvalidObject ObjectType = iota
	BlobObject
	TreeObject
	CommitObject
	TagObject
	// OffsetDeltaObject and HashDeltaObject are pack-only pseudo types: a
	// decoded pack entry carries one of these until its delta chain is
	// resolved into a Blob/Tree/Commit/Tag.
	OffsetDeltaObject
	HashDeltaObject
)

func (t ObjectType) String() string {
	switch t {
	case BlobObject:
		return "blob"
	case TreeObject:
		return "tree"
	case CommitObject:
		return "commit"
	case TagObject:
		return "tag"
	case OffsetDeltaObject:
		return "ofs-delta"
	case HashDeltaObject:
		return "ref-delta"
	default:
		return "invalid"
	}
}

// Valid reports whether t is one of the four persisted object types.
func (t ObjectType) Valid() bool {
	switch t {
	case BlobObject, TreeObject, CommitObject, TagObject:
		return true
	default:
		return false
	}
}

// ObjectTypeFromString maps a Git wire/header type name back to ObjectType.
func ObjectTypeFromString(s string) ObjectType {
	switch s {
	case "blob":
		return BlobObject
	case "tree":
		return TreeObject
	case "commit":
		return CommitObject
	case "tag":
		return TagObject
	default:
		return InvalidObject
	}
}

// Errors returned while decoding the canonical byte form of an object. These
// map directly onto §4.B's error taxonomy.
var (
	ErrInvalidHeader      = fmt.Errorf("object: invalid header")
	ErrInvalidUTF8        = fmt.Errorf("object: invalid utf-8")
	ErrInvalidHash        = fmt.Errorf("object: invalid hash")
	ErrInvalidSignature   = fmt.Errorf("object: invalid signature")
	ErrInvalidObjectType  = fmt.Errorf("object: invalid object type")
	ErrUnsupportedObject  = fmt.Errorf("object: unsupported object for decode target")
)

// Object is implemented by every persisted entity. Encode/Decode round-trip
// the canonical serialization whose SHA-1 is the object's identity.
type Object interface {
	Type() ObjectType
	Encode(w io.Writer) error
}

// HashOf computes the Git object identity of an already-encoded object body.
func HashOf(t ObjectType, body []byte) plumbing.Hash {
	return plumbing.HashBytes(t.String(), body)
}
