package pack

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A regression test for hashing read-ahead bytes: bufio's first Read off
// the source can pull in far more than the caller has consumed so far
// (here, the whole input fits in one 64 KiB fill, trailer included). Sum()
// must reflect only what callers actually consumed up to that point, not
// what bufio happened to have buffered.
func TestScannerSumExcludesUnconsumedReadAhead(t *testing.T) {
	body := []byte("pack body bytes that a caller consumes one entry at a time")
	trailer := sha1.Sum(body)

	var input bytes.Buffer
	input.Write(body)
	input.Write(trailer[:])

	sc := newScanner(&input)

	got := make([]byte, len(body))
	n, err := sc.Read(got)
	require.NoError(t, err)
	require.Equal(t, len(body), n)
	assert.Equal(t, body, got)

	sum := sc.Sum()
	assert.Equal(t, trailer, sum, "Sum must match a hash of only the consumed body, not body+trailer")

	var gotTrailer [20]byte
	_, err = sc.Read(gotTrailer[:])
	require.NoError(t, err)
	assert.Equal(t, trailer[:], gotTrailer[:])
}

func TestScannerOffsetTracksConsumedBytesOnly(t *testing.T) {
	data := bytes.Repeat([]byte{0x01}, 100)
	sc := newScanner(bytes.NewReader(data))

	assert.Equal(t, int64(0), sc.Offset())
	buf := make([]byte, 10)
	_, err := sc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sc.Offset())

	b, err := sc.ReadByte()
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), b)
	assert.Equal(t, int64(11), sc.Offset())
}
