package transport

import (
	"github.com/mega-forge/mega/modules/plumbing/format/pktline"
)

// Side-band v2 channel tags, prepended as a single byte to the payload of
// every packet sent while multiplexing is active.
const (
	ChannelPack     byte = 1
	ChannelProgress byte = 2
	ChannelFatal    byte = 3
)

// maxSidebandPayload leaves room for the channel byte within one pkt-line
// packet's payload budget, matching side-band-64k's ~65519-byte frames.
const maxSidebandPayload = pktline.MaxPayloadSize - 1

// SidebandWriter multiplexes pack data, progress messages, and a fatal
// error onto a single pkt-line stream, one channel byte per packet.
type SidebandWriter struct {
	enc *pktline.Encoder
}

// NewSidebandWriter wraps an Encoder for side-band v2 multiplexing.
func NewSidebandWriter(enc *pktline.Encoder) *SidebandWriter {
	return &SidebandWriter{enc: enc}
}

// WritePack sends a chunk of pack-file bytes on channel 1, splitting it
// into as many packets as needed to respect the frame size limit.
func (s *SidebandWriter) WritePack(p []byte) error {
	return s.writeChannel(ChannelPack, p)
}

// WriteProgress sends a human-readable progress message on channel 2.
func (s *SidebandWriter) WriteProgress(msg string) error {
	return s.writeChannel(ChannelProgress, []byte(msg))
}

// Fatal sends a fatal error message on channel 3. The caller closes the
// connection afterward; no further packets should follow.
func (s *SidebandWriter) Fatal(msg string) error {
	return s.writeChannel(ChannelFatal, []byte(msg))
}

func (s *SidebandWriter) writeChannel(channel byte, p []byte) error {
	if len(p) == 0 {
		return s.enc.Encode([]byte{channel})
	}
	for len(p) > 0 {
		n := len(p)
		if n > maxSidebandPayload {
			n = maxSidebandPayload
		}
		frame := make([]byte, n+1)
		frame[0] = channel
		copy(frame[1:], p[:n])
		if err := s.enc.Encode(frame); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Write implements io.Writer over channel 1, so a SidebandWriter can be
// handed directly to the pack encoder as its output sink.
func (s *SidebandWriter) Write(p []byte) (int, error) {
	if err := s.WritePack(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
