package streamio

import (
	"io"
	"sync"

	"github.com/klauspost/compress/zlib"
)

// zlibWriter wraps a pooled zlib.Writer so callers can Reset it onto a new
// underlying io.Writer without reallocating the deflate tables.
type zlibWriter struct {
	*zlib.Writer
}

var zlibWriterPool = sync.Pool{
	New: func() any {
		return &zlibWriter{Writer: zlib.NewWriter(io.Discard)}
	},
}

// GetZlibWriter returns a *zlibWriter bound to w, managed by a sync.Pool.
// The caller must Close it (to flush the final deflate block) before
// returning it via PutZlibWriter.
func GetZlibWriter(w io.Writer) *zlibWriter {
	zw := zlibWriterPool.Get().(*zlibWriter)
	zw.Reset(w)
	return zw
}

// PutZlibWriter puts w back into its sync.Pool.
func PutZlibWriter(w *zlibWriter) {
	zlibWriterPool.Put(w)
}

// zlibReadCloser holds a zlib reader so PutZlibReader can close it and
// pool the wrapper.
type zlibReadCloser struct {
	Reader io.ReadCloser
}

var zlibReaderPool = sync.Pool{}

// GetZlibReader returns a *zlibReadCloser decoding r. Pool reuse of the
// decompressor itself is left to the klauspost/compress implementation;
// this pool only avoids re-allocating the wrapper struct.
func GetZlibReader(r io.Reader) (*zlibReadCloser, error) {
	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, err
	}
	if v := zlibReaderPool.Get(); v != nil {
		zc := v.(*zlibReadCloser)
		zc.Reader = zr
		return zc, nil
	}
	return &zlibReadCloser{Reader: zr}, nil
}

// PutZlibReader closes the underlying reader and puts the wrapper back into
// its sync.Pool.
func PutZlibReader(zc *zlibReadCloser) {
	if zc == nil {
		return
	}
	_ = zc.Reader.Close()
	zc.Reader = nil
	zlibReaderPool.Put(zc)
}
