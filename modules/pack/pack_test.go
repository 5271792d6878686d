package pack

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSources() []Source {
	mk := func(t object.ObjectType, data []byte) Source {
		return Source{Hash: object.HashOf(t, data), Type: t, Data: data}
	}
	base := []byte(strings.Repeat("common file content line.\n", 50))
	variant := append([]byte("header\n"), base...)
	return []Source{
		mk(object.BlobObject, base),
		mk(object.BlobObject, variant),
		mk(object.TreeObject, []byte("100644 a.txt\x00"+strings.Repeat("x", 20))),
		mk(object.CommitObject, []byte("tree "+strings.Repeat("c", 40)+"\nauthor a <a@b.c> 1 +0000\ncommitter a <a@b.c> 1 +0000\n\nmsg")),
	}
}

// P3: pack round-trip at window sizes 0, 1, 3, 16 reproduces every source
// object's hash, type, and bytes exactly.
func TestPackRoundTripAcrossWindowSizes(t *testing.T) {
	for _, window := range []int{0, 1, 3, 16} {
		sources := sampleSources()
		enc := NewEncoder(EncoderOptions{Window: window, MinRatio: 0.5, Workers: 2})

		var buf bytes.Buffer
		trailer, err := enc.Encode(context.Background(), &buf, sources)
		require.NoError(t, err)
		assert.False(t, trailer.IsZero())

		dec := NewDecoder(nil)
		entries, err := dec.Decode(context.Background(), bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		require.Len(t, entries, len(sources))

		byHash := make(map[plumbing.Hash]*Entry, len(entries))
		for _, e := range entries {
			byHash[e.Hash] = e
		}
		for _, s := range sources {
			got, ok := byHash[s.Hash]
			require.True(t, ok, "missing object %s at window %d", s.Hash, window)
			assert.Equal(t, s.Type, got.Type)
			assert.Equal(t, s.Data, got.Data)
		}
	}
}

// P4: a corrupted trailer is detected rather than silently accepted.
func TestPackDecodeRejectsBadTrailer(t *testing.T) {
	sources := sampleSources()[:1]
	enc := NewEncoder(EncoderOptions{Window: 0})

	var buf bytes.Buffer
	_, err := enc.Encode(context.Background(), &buf, sources)
	require.NoError(t, err)

	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xff

	dec := NewDecoder(nil)
	_, err = dec.Decode(context.Background(), bytes.NewReader(corrupted))
	assert.True(t, IsTrailerMismatch(err))
}

func TestPackDecodeRejectsBadSignature(t *testing.T) {
	dec := NewDecoder(nil)
	_, err := dec.Decode(context.Background(), bytes.NewReader([]byte("NOTAPACK\x00\x00\x00\x00")))
	assert.True(t, IsBadPackHeader(err))
}
