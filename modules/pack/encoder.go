package pack

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/binary"
	"io"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/streamio"
	"golang.org/x/sync/errgroup"
)

// Source is one object to be packed, in producer order. Encoder preserves
// this order in the output pack regardless of how delta base selection
// reorders its internal search.
type Source struct {
	Hash plumbing.Hash
	Type object.ObjectType
	Data []byte
}

// EncoderOptions configures the sliding delta-base window.
type EncoderOptions struct {
	// Window is how many immediately preceding objects (of any type) are
	// in the window for each new object; those of the same type as the new
	// object are tried as delta bases. Window == 0 disables delta
	// compression entirely (every object is stored as a literal).
	Window int
	// MinRatio is the minimum fraction of the object's literal size that
	// an encoded delta must save ((literal size - delta size) / literal
	// size); a delta that doesn't reach this ratio is discarded in favor of
	// the literal encoding.
	MinRatio float64
	// Workers bounds how many objects are delta-searched concurrently.
	Workers int
}

func (o *EncoderOptions) checkInit() {
	if o.MinRatio <= 0 {
		o.MinRatio = 0.5
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
}

// Encoder writes objects into a pack file, searching a sliding window of
// recently-written objects for a delta base before falling back to a
// literal encoding.
type Encoder struct {
	opts EncoderOptions
}

func NewEncoder(opts EncoderOptions) *Encoder {
	opts.checkInit()
	return &Encoder{opts: opts}
}

type deltaCandidate struct {
	index int
	base  int // index into window slice, -1 if no delta chosen
	data  []byte
	typ   object.ObjectType
}

// Encode writes every source to w as a pack stream, in producer order,
// and returns the pack's trailing SHA-1.
func (e *Encoder) Encode(ctx context.Context, w io.Writer, sources []Source) (plumbing.Hash, error) {
	sum := sha1.New()
	mw := io.MultiWriter(w, sum)

	if _, err := mw.Write(PackSignature[:]); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := binary.Write(mw, binary.BigEndian, uint32(PackVersion)); err != nil {
		return plumbing.ZeroHash, err
	}
	if err := binary.Write(mw, binary.BigEndian, uint32(len(sources))); err != nil {
		return plumbing.ZeroHash, err
	}

	candidates, err := e.searchDeltas(ctx, sources)
	if err != nil {
		return plumbing.ZeroHash, err
	}

	offsets := make([]int64, len(sources))
	var written int64 = 12 // header already written

	for i, c := range candidates {
		offsets[i] = written
		n, err := e.writeEntry(mw, sources, offsets, i, c)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		written += n
	}

	trailer := sum.Sum(nil)
	if _, err := w.Write(trailer); err != nil {
		return plumbing.ZeroHash, err
	}
	var h plumbing.Hash
	copy(h[:], trailer)
	return h, nil
}

// searchDeltas runs the sliding-window best-base search for every source
// concurrently (bounded by Workers), then returns candidates in the
// original producer order.
func (e *Encoder) searchDeltas(ctx context.Context, sources []Source) ([]deltaCandidate, error) {
	out := make([]deltaCandidate, len(sources))
	if e.opts.Window == 0 {
		for i, s := range sources {
			out[i] = deltaCandidate{index: i, base: -1, data: s.Data, typ: s.Type}
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i := range sources {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			lo := i - e.opts.Window
			if lo < 0 {
				lo = 0
			}
			best := deltaCandidate{index: i, base: -1, data: sources[i].Data, typ: sources[i].Type}
			bestLen := len(sources[i].Data)
			for j := lo; j < i; j++ {
				if sources[j].Type != sources[i].Type {
					continue
				}
				d := EncodeDelta(sources[j].Data, sources[i].Data)
				if len(d) < bestLen && float64(len(d)) <= float64(len(sources[i].Data))*(1-e.opts.MinRatio) {
					bestLen = len(d)
					best = deltaCandidate{index: i, base: j, data: d, typ: object.HashDeltaObject}
				}
			}
			out[i] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Encoder) writeEntry(w io.Writer, sources []Source, offsets []int64, i int, c deltaCandidate) (int64, error) {
	var headerBuf, bodyBuf bytes.Buffer

	if c.base < 0 {
		if err := WriteObjectHeader(&headerBuf, sources[i].Type, int64(len(c.data))); err != nil {
			return 0, err
		}
	} else {
		// Prefer offset-delta over ref-delta: the base is always earlier
		// in this same pack, so its position is cheaper to record than its
		// full 20-byte hash.
		if err := WriteObjectHeader(&headerBuf, object.OffsetDeltaObject, int64(len(c.data))); err != nil {
			return 0, err
		}
		if err := WriteOffsetDelta(&headerBuf, offsets[i]-offsets[c.base]); err != nil {
			return 0, err
		}
	}

	zw := streamio.GetZlibWriter(&bodyBuf)
	if _, err := zw.Write(c.data); err != nil {
		streamio.PutZlibWriter(zw)
		return 0, err
	}
	if err := zw.Close(); err != nil {
		streamio.PutZlibWriter(zw)
		return 0, err
	}
	streamio.PutZlibWriter(zw)

	if _, err := w.Write(headerBuf.Bytes()); err != nil {
		return 0, err
	}
	if _, err := w.Write(bodyBuf.Bytes()); err != nil {
		return 0, err
	}
	return int64(headerBuf.Len() + bodyBuf.Len()), nil
}
