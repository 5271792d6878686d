package lfs

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildManifestProducesOffsetOrderedChunks(t *testing.T) {
	data := bytes.Repeat([]byte("x"), ChunkSize+ChunkSize/2)
	sum := sha256.Sum256(data)

	m, err := BuildManifest(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(sum[:]), m.Oid)
	require.Len(t, m.Chunks, 2)
	assert.Equal(t, int64(0), m.Chunks[0].Offset)
	assert.Equal(t, int64(ChunkSize), m.Chunks[0].Size)
	assert.Equal(t, int64(ChunkSize), m.Chunks[1].Offset)
	assert.Equal(t, int64(ChunkSize/2), m.Chunks[1].Size)
}

type memFetcher struct {
	chunks map[string][]byte
}

func (f *memFetcher) FetchChunk(ctx context.Context, oid string, size int64) ([]byte, error) {
	return f.chunks[oid], nil
}

func TestDownloadManifestReassemblesAndVerifies(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), ChunkSize/4)
	m, err := BuildManifest(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	fetcher := &memFetcher{chunks: map[string][]byte{}}
	for _, c := range m.Chunks {
		fetcher.chunks[c.Oid] = data[c.Offset : c.Offset+c.Size]
	}

	out := make([]byte, len(data))
	require.NoError(t, DownloadManifest(context.Background(), fetcher, m, &sliceWriterAt{out}, 2))
	assert.Equal(t, data, out)
}

type sliceWriterAt struct {
	buf []byte
}

func (s *sliceWriterAt) WriteAt(p []byte, off int64) (int, error) {
	copy(s.buf[off:], p)
	return len(p), nil
}

func TestDownloadManifestRejectsCorruptChunk(t *testing.T) {
	data := bytes.Repeat([]byte("z"), ChunkSize+1)
	m, err := BuildManifest(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)

	fetcher := &memFetcher{chunks: map[string][]byte{}}
	for _, c := range m.Chunks {
		fetcher.chunks[c.Oid] = data[c.Offset : c.Offset+c.Size]
	}
	// Corrupt the first chunk's bytes without updating its advertised oid.
	first := m.Chunks[0]
	fetcher.chunks[first.Oid] = bytes.Repeat([]byte("Z"), int(first.Size))

	out := make([]byte, len(data))
	err = DownloadManifest(context.Background(), fetcher, m, &sliceWriterAt{out}, 2)
	assert.Error(t, err)
}
