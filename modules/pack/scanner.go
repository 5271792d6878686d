package pack

import (
	"bufio"
	"crypto/sha1"
	"hash"
	"io"
)

// scanner wraps a pack byte stream with the two things every entry decode
// needs: a running SHA-1 of everything read (to verify the trailing
// checksum) and an exact byte offset (to record where each entry starts,
// for offset-delta back-references). The hash and the offset both advance
// on *consumed* bytes — bytes actually handed back to the caller — not on
// bytes bufio happens to have pulled ahead into its internal buffer, so
// Sum() matches what the encoder hashed even when a read-ahead fill has
// already swallowed the trailing checksum.
type scanner struct {
	br    *bufio.Reader
	sum   hash.Hash
	nRead int64 // bytes consumed by callers via Read/ReadByte
}

func newScanner(r io.Reader) *scanner {
	return &scanner{sum: sha1.New(), br: bufio.NewReaderSize(r, 1<<16)}
}

// Offset is the position, in the original stream, of the next unread byte.
func (s *scanner) Offset() int64 {
	return s.nRead
}

func (s *scanner) ReadByte() (byte, error) {
	b, err := s.br.ReadByte()
	if err == nil {
		s.sum.Write([]byte{b})
		s.nRead++
	}
	return b, err
}

func (s *scanner) Read(p []byte) (int, error) {
	n, err := s.br.Read(p)
	if n > 0 {
		s.sum.Write(p[:n])
		s.nRead += int64(n)
	}
	return n, err
}

// Sum returns the SHA-1 of every byte read so far, without the final pack
// trailer (callers read the trailer separately and compare against this).
func (s *scanner) Sum() [20]byte {
	var out [20]byte
	copy(out[:], s.sum.Sum(nil))
	return out
}
