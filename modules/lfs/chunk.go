package lfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// ChunkThreshold is the default size above which an object is split into
// chunks rather than transferred whole.
const ChunkThreshold = 64 << 20 // 64 MiB

// ChunkSize is the fixed size of every chunk but the last.
const ChunkSize = 16 << 20 // 16 MiB

// ChunkEntry is one entry in an object's chunk manifest.
type ChunkEntry struct {
	Oid    string `json:"oid"`    // SHA-256 of this chunk's bytes
	Size   int64  `json:"size"`
	Offset int64  `json:"offset"`
}

// Manifest lists an object's chunks in offset order.
type Manifest struct {
	Oid    string       `json:"oid"`  // the whole object's SHA-256
	Size   int64        `json:"size"` // whole object size
	Chunks []ChunkEntry `json:"chunks"`
}

// BuildManifest splits size bytes (read from r) into fixed-size chunks,
// content-addressing each one, and returns the resulting manifest, whose Oid
// is the whole object's SHA-256. It is the client-side of "requests manifest via
// objects/<oid>/chunks" in reverse: the same splitting logic both client
// and server use to agree on chunk boundaries and oids.
func BuildManifest(r io.Reader, size int64) (*Manifest, error) {
	whole := sha256.New()
	m := &Manifest{Size: size}
	var offset int64
	buf := make([]byte, ChunkSize)
	for offset < size {
		n := ChunkSize
		if remain := size - offset; remain < int64(n) {
			n = int(remain)
		}
		if _, err := io.ReadFull(r, buf[:n]); err != nil {
			return nil, err
		}
		whole.Write(buf[:n])
		h := sha256.Sum256(buf[:n])
		m.Chunks = append(m.Chunks, ChunkEntry{Oid: hex.EncodeToString(h[:]), Size: int64(n), Offset: offset})
		offset += int64(n)
	}
	m.Oid = hex.EncodeToString(whole.Sum(nil))
	return m, nil
}

// ChunkFetcher downloads one chunk's bytes by its content-addressed oid.
type ChunkFetcher interface {
	FetchChunk(ctx context.Context, oid string, size int64) ([]byte, error)
}

// DownloadManifest fetches every chunk in m (optionally from multiple
// sources, hence errgroup-driven parallelism), concatenates them in
// offset order into w, and verifies the whole object hashes to m.Oid.
// Chunk payloads are kept until every chunk has arrived so the whole object
// can be hashed in offset order.
func DownloadManifest(ctx context.Context, fetcher ChunkFetcher, m *Manifest, w io.WriterAt, workers int) error {
	if workers <= 0 {
		workers = 4
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	parts := make([][]byte, len(m.Chunks))
	for i, c := range m.Chunks {
		i, c := i, c
		g.Go(func() error {
			data, err := fetcher.FetchChunk(gctx, c.Oid, c.Size)
			if err != nil {
				return fmt.Errorf("lfs: fetch chunk %s: %w", c.Oid, err)
			}
			if int64(len(data)) != c.Size {
				return fmt.Errorf("lfs: chunk %s size mismatch: want %d got %d", c.Oid, c.Size, len(data))
			}
			sum := sha256.Sum256(data)
			if hex.EncodeToString(sum[:]) != c.Oid {
				return fmt.Errorf("lfs: chunk %s hash mismatch", c.Oid)
			}
			parts[i] = data
			_, err = w.WriteAt(data, c.Offset)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	whole := sha256.New()
	for _, p := range parts {
		whole.Write(p)
	}
	if hex.EncodeToString(whole.Sum(nil)) != m.Oid {
		return fmt.Errorf("lfs: object %s hash mismatch", m.Oid)
	}
	return nil
}

// MissingChunks returns the subset of m.Chunks not yet present in store.
func MissingChunks(ctx context.Context, store ObjectStore, m *Manifest) ([]ChunkEntry, error) {
	var missing []ChunkEntry
	for _, c := range m.Chunks {
		if _, err := store.Stat(ctx, c.Oid); err != nil {
			missing = append(missing, c)
		}
	}
	return missing, nil
}
