package pack

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/mega-forge/mega/modules/plumbing"
	"golang.org/x/sync/errgroup"
)

func cacheKey(oid plumbing.Hash) string {
	return oid.String()
}

// DecodeCache is the bounded-memory store a pack decoder consults while
// resolving delta chains: hot entries live in an in-memory admission/
// eviction cache, entries evicted under memory pressure spill to disk
// instead of being dropped, and a bounded worker pool serializes spill I/O
// so a burst of evictions cannot fork unbounded goroutines.
type DecodeCache interface {
	TryGet(oid plumbing.Hash) ([]byte, bool)
	GetFallback(ctx context.Context, oid plumbing.Hash) ([]byte, bool, error)
	Put(ctx context.Context, oid plumbing.Hash, data []byte) error
	Close() error
}

type decodeCache struct {
	mem       *ristretto.Cache[string, []byte]
	spillDir  string
	spillPool *errgroup.Group
	poolLimit int

	mu     sync.Mutex
	onDisk map[string]bool
}

// NewDecodeCache builds a DecodeCache with the given in-memory admission
// parameters and a disk-spill directory used once ristretto evicts an
// entry. spillWorkers bounds how many spill writes run concurrently.
func NewDecodeCache(numCounters, maxCostBytes int64, spillDir string, spillWorkers int) (DecodeCache, error) {
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return nil, fmt.Errorf("pack: create spill dir: %w", err)
	}
	d := &decodeCache{
		spillDir:  spillDir,
		poolLimit: spillWorkers,
		onDisk:    make(map[string]bool),
	}
	mem, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: numCounters,
		MaxCost:     maxCostBytes,
		BufferItems: 64,
		OnEvict: func(item *ristretto.Item[[]byte]) {
			d.spillAsync(item.Key, item.Value)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pack: initialize decode cache: %w", err)
	}
	d.mem = mem
	sp := new(errgroup.Group)
	sp.SetLimit(spillWorkers)
	d.spillPool = sp
	return d, nil
}

func (d *decodeCache) spillPath(key string) string {
	return filepath.Join(d.spillDir, key[:2], key)
}

func (d *decodeCache) spillAsync(key string, data []byte) {
	d.spillPool.Go(func() error {
		path := d.spillPath(key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		d.mu.Lock()
		d.onDisk[key] = true
		d.mu.Unlock()
		return nil
	})
}

// TryGet returns a hit only if the entry is currently resident in memory;
// it never touches disk, making it safe to call from a hot decode loop
// without risking a blocking I/O stall.
func (d *decodeCache) TryGet(oid plumbing.Hash) ([]byte, bool) {
	return d.mem.Get(cacheKey(oid))
}

// GetFallback checks memory first, then the disk-spill tier, loading the
// entry back into memory on a spill hit.
func (d *decodeCache) GetFallback(ctx context.Context, oid plumbing.Hash) ([]byte, bool, error) {
	key := cacheKey(oid)
	if v, ok := d.mem.Get(key); ok {
		return v, true, nil
	}
	d.mu.Lock()
	onDisk := d.onDisk[key]
	d.mu.Unlock()
	if !onDisk {
		return nil, false, nil
	}
	data, err := os.ReadFile(d.spillPath(key))
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	d.mem.Set(key, data, int64(len(data)))
	return data, true, nil
}

func (d *decodeCache) Put(ctx context.Context, oid plumbing.Hash, data []byte) error {
	d.mem.Set(cacheKey(oid), data, int64(len(data)))
	d.mem.Wait()
	return nil
}

// Close waits for any in-flight spill writes to finish and clears the
// spill directory.
func (d *decodeCache) Close() error {
	_ = d.spillPool.Wait()
	return os.RemoveAll(d.spillDir)
}

// memoryCache is the DecodeCache NewDecoder falls back to when called with
// a nil cache: an unbounded in-process map, with no eviction and nowhere
// to spill. Fine for decoding one pack in a test; a real decode path
// should build a NewDecodeCache instead.
type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (m *memoryCache) TryGet(oid plumbing.Hash) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[cacheKey(oid)]
	return v, ok
}

func (m *memoryCache) GetFallback(context.Context, plumbing.Hash) ([]byte, bool, error) {
	return nil, false, nil
}

func (m *memoryCache) Put(_ context.Context, oid plumbing.Hash, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[cacheKey(oid)] = data
	return nil
}

func (m *memoryCache) Close() error { return nil }

var _ DecodeCache = (*memoryCache)(nil)
