// Package pack implements the Git pack file format: the type-and-size
// object header, offset/hash delta encodings, delta instruction streams,
// and the bounded-memory encoder/decoder built on top of them.
package pack

import (
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/object"
)

// PackSignature is the 4-byte magic every pack file starts with.
var PackSignature = [4]byte{'P', 'A', 'C', 'K'}

// PackVersion is the only pack version this implementation understands.
const PackVersion = 2

// objectTypeShift is how far the 3 object-type bits sit above the first
// byte's low 4 bits, which carry the low bits of the size (any continuation
// bytes carry the rest).
const objectTypeShift = 4

// Pack type codes, per the pack format: distinct from object.ObjectType's
// own ordinal values, which exist to name Go constants, not to match the
// 3-bit wire encoding.
const (
	packTypeCommit   = 1
	packTypeTree     = 2
	packTypeBlob     = 3
	packTypeTag      = 4
	packTypeOfsDelta = 6
	packTypeRefDelta = 7
)

func packTypeOf(t object.ObjectType) (byte, error) {
	switch t {
	case object.CommitObject:
		return packTypeCommit, nil
	case object.TreeObject:
		return packTypeTree, nil
	case object.BlobObject:
		return packTypeBlob, nil
	case object.TagObject:
		return packTypeTag, nil
	case object.OffsetDeltaObject:
		return packTypeOfsDelta, nil
	case object.HashDeltaObject:
		return packTypeRefDelta, nil
	default:
		return 0, fmt.Errorf("pack: cannot encode object type %s", t)
	}
}

func objectTypeOfPackType(pt byte) object.ObjectType {
	switch pt {
	case packTypeCommit:
		return object.CommitObject
	case packTypeTree:
		return object.TreeObject
	case packTypeBlob:
		return object.BlobObject
	case packTypeTag:
		return object.TagObject
	case packTypeOfsDelta:
		return object.OffsetDeltaObject
	case packTypeRefDelta:
		return object.HashDeltaObject
	default:
		return object.InvalidObject
	}
}

// WriteObjectHeader writes the type-and-size varint header that prefixes
// every pack entry: the first byte holds 3 type bits and the low 4 size
// bits, a continuation bit signals more size bytes follow, and subsequent
// bytes each carry 7 more size bits least-significant-first.
func WriteObjectHeader(w io.Writer, t object.ObjectType, size int64) error {
	pt, err := packTypeOf(t)
	if err != nil {
		return err
	}
	b := pt << objectTypeShift
	b |= byte(size) & 0x0f
	size >>= 4
	if size != 0 {
		b |= 0x80
	}
	if err := writeByte(w, b); err != nil {
		return err
	}
	for size != 0 {
		b = byte(size) & 0x7f
		size >>= 7
		if size != 0 {
			b |= 0x80
		}
		if err := writeByte(w, b); err != nil {
			return err
		}
	}
	return nil
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// ReadObjectHeader reads the type-and-size varint header written by
// WriteObjectHeader.
func ReadObjectHeader(r io.ByteReader) (object.ObjectType, int64, error) {
	first, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	t := objectTypeOfPackType((first >> objectTypeShift) & 0x07)
	size := int64(first & 0x0f)
	shift := uint(4)
	for first&0x80 != 0 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, 0, err
		}
		size |= int64(b&0x7f) << shift
		shift += 7
		first = b
	}
	return t, size, nil
}

// WriteOffsetDelta writes a base-128 offset back-reference using the
// pack format's "implicit +1" encoding: each byte but the last has its
// high bit set, and the accumulated value at byte i (counting from the
// most significant) is offset by adding 1 before shifting in the next 7
// bits, so the same numeric offset never has more than one encoding.
func WriteOffsetDelta(w io.Writer, offset int64) error {
	var buf [10]byte
	i := len(buf) - 1
	buf[i] = byte(offset & 0x7f)
	offset >>= 7
	for offset != 0 {
		offset--
		i--
		buf[i] = 0x80 | byte(offset&0x7f)
		offset >>= 7
	}
	_, err := w.Write(buf[i:])
	return err
}

// ReadOffsetDelta reads a base-128 offset back-reference written by
// WriteOffsetDelta.
func ReadOffsetDelta(r io.ByteReader) (int64, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	offset := int64(b & 0x7f)
	for b&0x80 != 0 {
		b, err = r.ReadByte()
		if err != nil {
			return 0, err
		}
		offset++
		offset = (offset << 7) | int64(b&0x7f)
	}
	return offset, nil
}
