package object

import (
	"bytes"
	"io"

	"github.com/mega-forge/mega/modules/plumbing"
)

// Blob is opaque file content. Git assigns it no structure beyond its
// byte-exact payload.
type Blob struct {
	Hash plumbing.Hash
	Size int64
	r    io.Reader
}

// NewBlob wraps raw content into a Blob and computes its identity.
func NewBlob(data []byte) *Blob {
	return &Blob{
		Hash: HashOf(BlobObject, data),
		Size: int64(len(data)),
		r:    bytes.NewReader(data),
	}
}

func (b *Blob) Type() ObjectType { return BlobObject }

// Reader returns a reader over the blob content. Decode implementations
// that stream from a pack or loose object set this directly, bypassing an
// in-memory copy.
func (b *Blob) Reader() io.Reader { return b.r }

func (b *Blob) SetReader(r io.Reader) { b.r = r }

// Encode writes the blob's raw payload. Blobs carry no header of their
// own — the "blob <size>\0" framing belongs to the outer object/pack
// envelope, not to the payload itself.
func (b *Blob) Encode(w io.Writer) error {
	if b.r == nil {
		return nil
	}
	_, err := io.Copy(w, b.r)
	return err
}
