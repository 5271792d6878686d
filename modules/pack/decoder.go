package pack

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/streamio"
)

// Entry is one fully-resolved object decoded from a pack: its final type
// (never OffsetDelta/HashDelta — those are resolved before the entry is
// handed back to the caller), its identity, and its canonical payload.
type Entry struct {
	Hash plumbing.Hash
	Type object.ObjectType
	Data []byte
}

// rawEntry is what the first pass over the pack stream produces: still
// possibly a delta, keyed by its pack offset so later entries can resolve
// offset-deltas against it.
type rawEntry struct {
	offset   int64
	baseOff  int64  // for OffsetDeltaObject
	baseHash plumbing.Hash // for HashDeltaObject
	typ      object.ObjectType
	data     []byte // literal payload, or delta instruction stream
}

// Decoder decodes a pack byte stream into a set of resolved objects,
// resolving delta chains internally and writing every resolved object
// through to a DecodeCache, from which delta bases are read back.
type Decoder struct {
	cache DecodeCache
	// External resolves a ref-delta base that is not itself present in
	// the pack being decoded — e.g. an object already stored from an
	// earlier push. Optional; a ref-delta with no resolvable base (here
	// or via External) is an UnresolvedDelta error.
	External func(ctx context.Context, h plumbing.Hash) (*Entry, error)
}

// NewDecoder builds a Decoder around cache, which every resolved object is
// written through and every delta base is resolved through (TryGet, then
// GetFallback). A nil cache gets a plain unbounded in-process map — fine
// for a single small decode in tests, but callers decoding real traffic
// should pass a NewDecodeCache so delta bases spill to disk under memory
// pressure instead of pinning the whole pack resident.
func NewDecoder(cache DecodeCache) *Decoder {
	if cache == nil {
		cache = newMemoryCache()
	}
	return &Decoder{cache: cache}
}

// Decode reads a full pack stream and returns every object it contains,
// resolved to its final (non-delta) type.
func (d *Decoder) Decode(ctx context.Context, r io.Reader) ([]*Entry, error) {
	sc := newScanner(r)

	var sig [4]byte
	if _, err := io.ReadFull(sc, sig[:]); err != nil {
		return nil, NewBadPackHeaderError("read signature: %v", err)
	}
	if sig != PackSignature {
		return nil, NewBadPackHeaderError("signature %q is not PACK", sig[:])
	}
	var version, count uint32
	if err := binary.Read(sc, binary.BigEndian, &version); err != nil {
		return nil, NewBadPackHeaderError("read version: %v", err)
	}
	if version != PackVersion {
		return nil, NewBadPackHeaderError("unsupported version %d", version)
	}
	if err := binary.Read(sc, binary.BigEndian, &count); err != nil {
		return nil, NewBadPackHeaderError("read object count: %v", err)
	}

	raws := make([]*rawEntry, 0, count)
	byOffset := make(map[int64]*rawEntry, count)

	for i := uint32(0); i < count; i++ {
		offset := sc.Offset()
		t, size, err := ReadObjectHeader(sc)
		if err != nil {
			return nil, fmt.Errorf("pack: read entry %d header: %w", i, err)
		}

		re := &rawEntry{offset: offset, typ: t}

		switch t {
		case object.OffsetDeltaObject:
			negOffset, err := ReadOffsetDelta(sc)
			if err != nil {
				return nil, fmt.Errorf("pack: read entry %d offset-delta base: %w", i, err)
			}
			re.baseOff = offset - negOffset
		case object.HashDeltaObject:
			var h [plumbing.HASH_DIGEST_SIZE]byte
			if _, err := io.ReadFull(sc, h[:]); err != nil {
				return nil, fmt.Errorf("pack: read entry %d ref-delta base: %w", i, err)
			}
			re.baseHash = plumbing.Hash(h)
		}

		data, err := inflate(sc, size)
		if err != nil {
			return nil, fmt.Errorf("pack: inflate entry %d: %w", i, err)
		}
		re.data = data

		raws = append(raws, re)
		byOffset[offset] = re
	}

	computed := sc.Sum()
	var trailer [plumbing.HASH_DIGEST_SIZE]byte
	if _, err := io.ReadFull(sc, trailer[:]); err != nil {
		return nil, fmt.Errorf("pack: read trailer: %w", err)
	}
	if !bytes.Equal(computed[:], trailer[:]) {
		return nil, NewTrailerMismatchError(hex.EncodeToString(trailer[:]), hex.EncodeToString(computed[:]))
	}

	return d.resolve(ctx, raws, byOffset)
}

// resolvedMeta is everything resolve keeps about an object once the cache
// holds its payload: just enough to apply further deltas against it (type,
// for the delta's resulting object type) and to fetch its bytes back out.
// Keeping this instead of the full Entry is what lets resolve's own index
// maps stay small even across a pack with a long delta chain — the payload
// itself lives only in the cache, which is free to spill it to disk.
type resolvedMeta struct {
	hash plumbing.Hash
	typ  object.ObjectType
}

// resolve turns every rawEntry into a final Entry, walking delta chains
// (which may be arbitrarily deep and may reference objects that appear
// later in the pack) with cycle detection. Every resolved payload is
// written through d.cache, and every base lookup goes through d.cache's
// TryGet/GetFallback, so resolve keeps no payload index of its own beside
// the cache; the returned entries still carry every object's data. An entry
// that fails as unresolved (a ref-delta whose base appears later in the
// pack, or a delta built on one) is retried on the next pass, until a pass
// resolves nothing new.
func (d *Decoder) resolve(ctx context.Context, raws []*rawEntry, byOffset map[int64]*rawEntry) ([]*Entry, error) {
	metaByOffset := make(map[int64]resolvedMeta, len(raws))
	metaByHash := make(map[plumbing.Hash]object.ObjectType, len(raws))
	out := make([]*Entry, len(raws))

	fetch := func(h plumbing.Hash) ([]byte, bool, error) {
		if data, ok := d.cache.TryGet(h); ok {
			return data, true, nil
		}
		return d.cache.GetFallback(ctx, h)
	}
	put := func(h plumbing.Hash, data []byte) {
		_ = d.cache.Put(ctx, h, data)
	}

	var resolveOne func(re *rawEntry, visiting map[int64]bool) (resolvedMeta, []byte, error)
	resolveOne = func(re *rawEntry, visiting map[int64]bool) (resolvedMeta, []byte, error) {
		if m, ok := metaByOffset[re.offset]; ok {
			data, ok, err := fetch(m.hash)
			if err != nil {
				return resolvedMeta{}, nil, err
			}
			if !ok {
				return resolvedMeta{}, nil, fmt.Errorf("pack: base %s at offset %d evicted before use", m.hash, re.offset)
			}
			return m, data, nil
		}
		if visiting[re.offset] {
			return resolvedMeta{}, nil, NewUnresolvedDeltaError("cycle detected at pack offset %d", re.offset)
		}
		visiting[re.offset] = true

		switch re.typ {
		case object.BlobObject, object.TreeObject, object.CommitObject, object.TagObject:
			h := object.HashOf(re.typ, re.data)
			m := resolvedMeta{hash: h, typ: re.typ}
			metaByOffset[re.offset] = m
			metaByHash[h] = re.typ
			put(h, re.data)
			return m, re.data, nil

		case object.OffsetDeltaObject:
			baseRaw, ok := byOffset[re.baseOff]
			if !ok {
				return resolvedMeta{}, nil, NewUnresolvedDeltaError("offset-delta at %d references unknown base offset %d", re.offset, re.baseOff)
			}
			baseMeta, baseData, err := resolveOne(baseRaw, visiting)
			if err != nil {
				return resolvedMeta{}, nil, err
			}
			target, err := ApplyDelta(baseData, re.data)
			if err != nil {
				return resolvedMeta{}, nil, err
			}
			h := object.HashOf(baseMeta.typ, target)
			m := resolvedMeta{hash: h, typ: baseMeta.typ}
			metaByOffset[re.offset] = m
			metaByHash[h] = baseMeta.typ
			put(h, target)
			return m, target, nil

		case object.HashDeltaObject:
			baseTyp, baseData, err := d.lookupRefDeltaBase(ctx, re.baseHash, metaByHash, fetch)
			if err != nil {
				return resolvedMeta{}, nil, err
			}
			target, err := ApplyDelta(baseData, re.data)
			if err != nil {
				return resolvedMeta{}, nil, err
			}
			h := object.HashOf(baseTyp, target)
			m := resolvedMeta{hash: h, typ: baseTyp}
			metaByOffset[re.offset] = m
			metaByHash[h] = baseTyp
			put(h, target)
			return m, target, nil
		}
		return resolvedMeta{}, nil, fmt.Errorf("pack: entry at offset %d has invalid type", re.offset)
	}

	pending := make([]int, len(raws))
	for i := range pending {
		pending[i] = i
	}
	for len(pending) > 0 {
		var retry []int
		var lastErr error
		for _, i := range pending {
			m, data, err := resolveOne(raws[i], map[int64]bool{})
			if IsUnresolvedDelta(err) {
				retry, lastErr = append(retry, i), err
				continue
			}
			if err != nil {
				return nil, err
			}
			out[i] = &Entry{Hash: m.hash, Type: m.typ, Data: data}
		}
		if len(retry) == len(pending) {
			return nil, lastErr
		}
		pending = retry
	}
	return out, nil
}

// lookupRefDeltaBase resolves a ref-delta's base: first its type, from the
// already-resolved object of this pack that produced baseHash, then its
// payload via fetch (cache hit or spill fallback). If no resolved object of
// this pack has baseHash, it falls back to External for a base stored from
// an earlier push.
func (d *Decoder) lookupRefDeltaBase(
	ctx context.Context,
	baseHash plumbing.Hash,
	metaByHash map[plumbing.Hash]object.ObjectType,
	fetch func(plumbing.Hash) ([]byte, bool, error),
) (object.ObjectType, []byte, error) {
	if typ, ok := metaByHash[baseHash]; ok {
		if data, ok, err := fetch(baseHash); err != nil {
			return 0, nil, err
		} else if ok {
			return typ, data, nil
		}
	}
	if d.External != nil {
		if e, err := d.External(ctx, baseHash); err == nil && e != nil {
			return e.Type, e.Data, nil
		}
	}
	return 0, nil, NewUnresolvedDeltaError("ref-delta references unknown base %s", baseHash)
}

// inflate reads a zlib-framed payload of the given decompressed size from
// r, which is positioned at the start of the zlib stream.
func inflate(r io.Reader, size int64) ([]byte, error) {
	zr, err := streamio.GetZlibReader(r)
	if err != nil {
		return nil, err
	}
	defer streamio.PutZlibReader(zr)

	buf := make([]byte, size)
	if _, err := io.ReadFull(zr.Reader, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
