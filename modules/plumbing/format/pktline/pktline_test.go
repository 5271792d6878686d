package pktline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encodef("want %s multi_ack\n", strings.Repeat("a", 40)))
	require.NoError(t, enc.EncodeFlush())
	require.NoError(t, enc.Encode([]byte("done\n")))

	sc := NewScanner(&buf)

	require.True(t, sc.Scan())
	assert.Equal(t, Data, sc.Type())
	assert.Equal(t, "want "+strings.Repeat("a", 40)+" multi_ack\n", string(sc.Bytes()))

	require.True(t, sc.Scan())
	assert.Equal(t, FlushPkt, sc.Type())
	assert.Empty(t, sc.Bytes())

	require.True(t, sc.Scan())
	assert.Equal(t, Data, sc.Type())
	assert.Equal(t, "done\n", string(sc.Bytes()))

	assert.False(t, sc.Scan())
	assert.NoError(t, sc.Err())
}

func TestScannerRecognizesDelimAndResponseEnd(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.EncodeDelim())
	require.NoError(t, enc.EncodeResponseEnd())

	sc := NewScanner(&buf)
	require.True(t, sc.Scan())
	assert.Equal(t, DelimPkt, sc.Type())
	require.True(t, sc.Scan())
	assert.Equal(t, ResponseEndPkt, sc.Type())
	assert.False(t, sc.Scan())
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	err := enc.Encode(make([]byte, MaxPayloadSize+1))
	assert.ErrorIs(t, err, ErrPayloadTooLong)
}

func TestScannerRejectsInvalidLengthPrefix(t *testing.T) {
	sc := NewScanner(strings.NewReader("000g"))
	assert.False(t, sc.Scan())
	assert.Error(t, sc.Err())
}

func TestScannerRejectsLengthBelowPrefixSize(t *testing.T) {
	// 0003 is neither a control packet (0,1,2) nor a valid length
	// (>= 4): the prefix alone is already 4 bytes.
	sc := NewScanner(strings.NewReader("0003"))
	assert.False(t, sc.Scan())
	assert.Error(t, sc.Err())
}

func TestScannerRejectsTruncatedPayload(t *testing.T) {
	sc := NewScanner(strings.NewReader("0010abc"))
	assert.False(t, sc.Scan())
	assert.Error(t, sc.Err())
}

func TestAsciiHex16KnownValues(t *testing.T) {
	assert.Equal(t, "0000", asciiHex16(0))
	assert.Equal(t, "001e", asciiHex16(30))
	assert.Equal(t, "ffff", asciiHex16(65535))
}

func TestHexDecodeKnownValues(t *testing.T) {
	var b [lenSize]byte
	copy(b[:], "0014")
	n, err := hexDecode(b)
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	copy(b[:], "ffff")
	n, err = hexDecode(b)
	require.NoError(t, err)
	assert.Equal(t, 65535, n)
}
