package pack

import (
	"bytes"
	"testing"

	"github.com/mega-forge/mega/modules/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectHeaderRoundTrip(t *testing.T) {
	sizes := []int64{0, 1, 15, 16, 127, 128, 4095, 1 << 20, 1 << 40}
	types := []object.ObjectType{object.BlobObject, object.TreeObject, object.CommitObject, object.TagObject}

	for _, typ := range types {
		for _, size := range sizes {
			var buf bytes.Buffer
			require.NoError(t, WriteObjectHeader(&buf, typ, size))

			gotType, gotSize, err := ReadObjectHeader(bytes.NewReader(buf.Bytes()))
			require.NoError(t, err)
			assert.Equal(t, typ, gotType)
			assert.Equal(t, size, gotSize)
		}
	}
}

func TestOffsetDeltaRoundTrip(t *testing.T) {
	offsets := []int64{0, 1, 127, 128, 129, 16383, 16384, 1 << 20, 1 << 34}
	for _, off := range offsets {
		var buf bytes.Buffer
		require.NoError(t, WriteOffsetDelta(&buf, off))
		got, err := ReadOffsetDelta(bytes.NewReader(buf.Bytes()))
		require.NoError(t, err)
		assert.Equal(t, off, got, "offset %d", off)
	}
}

func TestOffsetDeltaEncodingIsMinimal(t *testing.T) {
	// Each numeric offset has exactly one valid encoding under the
	// implicit +1 scheme; two small offsets must not collide.
	var b1, b2 bytes.Buffer
	require.NoError(t, WriteOffsetDelta(&b1, 128))
	require.NoError(t, WriteOffsetDelta(&b2, 129))
	assert.NotEqual(t, b1.Bytes(), b2.Bytes())
}
