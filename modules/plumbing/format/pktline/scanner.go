package pktline

import (
	"bufio"
	"errors"
	"io"
)

// PacketType classifies a decoded packet.
type PacketType int

const (
	// Data is an ordinary payload-carrying packet.
	Data PacketType = iota
	// FlushPkt is a zero-length "0000" control packet.
	FlushPkt
	// DelimPkt is a "0001" control packet (protocol v2 section separator).
	DelimPkt
	// ResponseEndPkt is a "0002" control packet (protocol v2 end of response).
	ResponseEndPkt
)

// Scanner reads a stream of pkt-line packets, in the style of
// bufio.Scanner: call Scan in a loop, then Bytes/Type to inspect the
// packet just read, and Err once the loop ends.
type Scanner struct {
	r       *bufio.Reader
	payload []byte
	typ     PacketType
	err     error
}

// NewScanner returns a Scanner reading from r.
func NewScanner(r io.Reader) *Scanner {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReaderSize(r, maxLineLength)
	}
	return &Scanner{r: br}
}

// Scan reads the next packet. It returns false at EOF or on error; the
// caller distinguishes the two with Err.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	var lenBuf [lenSize]byte
	if _, err := io.ReadFull(s.r, lenBuf[:]); err != nil {
		if err != io.EOF {
			s.err = err
		}
		return false
	}
	n, err := hexDecode(lenBuf)
	if err != nil {
		s.err = err
		return false
	}
	switch n {
	case 0:
		s.typ, s.payload = FlushPkt, nil
		return true
	case 1:
		s.typ, s.payload = DelimPkt, nil
		return true
	case 2:
		s.typ, s.payload = ResponseEndPkt, nil
		return true
	}
	if n < lenSize {
		s.err = ErrInvalidPktLen
		return false
	}
	payload := make([]byte, n-lenSize)
	if _, err := io.ReadFull(s.r, payload); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		s.err = err
		return false
	}
	s.typ, s.payload = Data, payload
	return true
}

// Bytes returns the payload of the most recent Scan; empty for control
// packets.
func (s *Scanner) Bytes() []byte {
	return s.payload
}

// Reader returns the underlying byte stream, including whatever the
// scanner has already buffered past the last packet it returned. Callers
// that need to switch from pkt-line framing to a raw byte stream mid-
// connection (e.g. the pack file that follows receive-pack's command
// list) read from here instead of continuing to Scan.
func (s *Scanner) Reader() io.Reader {
	return s.r
}

// Type returns the kind of the most recent packet.
func (s *Scanner) Type() PacketType {
	return s.typ
}

// Err returns the first non-EOF error encountered by Scan.
func (s *Scanner) Err() error {
	return s.err
}

// hexDecode parses a 4-byte ASCII hex length prefix.
func hexDecode(b [lenSize]byte) (int, error) {
	n := 0
	for _, c := range b {
		var v int
		switch {
		case c >= '0' && c <= '9':
			v = int(c - '0')
		case c >= 'a' && c <= 'f':
			v = int(c-'a') + 10
		case c >= 'A' && c <= 'F':
			v = int(c-'A') + 10
		default:
			return 0, errors.New("pktline: invalid hex digit in length prefix")
		}
		n = n<<4 | v
	}
	if n != 0 && n < lenSize && n > 2 {
		return 0, ErrInvalidPktLen
	}
	return n, nil
}
