package store

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
)

// FileObjectDB is a loose-object-directory backed store for commits, trees,
// blobs, and tags: each object lives at objects/<aa>/<rest>, content-addressed
// by its hash, the same sharding convention plain Git uses for its loose
// object store (and the one ossJoin shards LFS blobs by in the teacher).
// It supplies the object-graph half of transport.Backend; RefStore supplies
// the ref half.
type FileObjectDB struct {
	root string
}

func NewFileObjectDB(root string) *FileObjectDB {
	return &FileObjectDB{root: root}
}

func (o *FileObjectDB) path(h plumbing.Hash) string {
	s := h.String()
	return filepath.Join(o.root, "objects", s[0:2], s[2:])
}

// Has reports whether an object is already present.
func (o *FileObjectDB) Has(h plumbing.Hash) bool {
	_, err := os.Stat(o.path(h))
	return err == nil
}

// Get reads back one object's canonical payload and type, inferred from the
// on-disk header byte this store prefixes each object with.
func (o *FileObjectDB) Get(h plumbing.Hash) (object.ObjectType, []byte, error) {
	raw, err := os.ReadFile(o.path(h))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return object.InvalidObject, nil, plumbing.NoSuchObject(h)
		}
		return object.InvalidObject, nil, err
	}
	if len(raw) == 0 {
		return object.InvalidObject, nil, fmt.Errorf("store: empty object %s", h)
	}
	return object.ObjectType(raw[0]), raw[1:], nil
}

func (o *FileObjectDB) put(h plumbing.Hash, typ object.ObjectType, data []byte) error {
	p := o.path(h)
	if _, err := os.Stat(p); err == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	tmp := p + ".tmp-" + hex.EncodeToString(h[:4])
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, byte(typ))
	buf = append(buf, data...)
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, p)
}

// Store persists every decoded pack entry, matching transport.Backend's
// all-or-nothing contract: entries land on disk before ApplyUpdates is
// called, so a push that fails ref application hasn't corrupted the graph
// with half-written objects other refs could reach.
func (o *FileObjectDB) Store(ctx context.Context, entries []*pack.Entry) error {
	for _, e := range entries {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := o.put(e.Hash, e.Type, e.Data); err != nil {
			return fmt.Errorf("store object %s: %w", e.Hash, err)
		}
	}
	return nil
}

// Closure walks the commit/tree graph reachable from wants and returns every
// object found that is not reachable from haves (the client's advertised
// common ancestors), as pack.Source values ready for Encoder.Encode. A have
// this store does not hold is skipped.
func (o *FileObjectDB) Closure(ctx context.Context, wants, haves []plumbing.Hash) ([]pack.Source, error) {
	stop := make(map[plumbing.Hash]bool, len(haves))
	for _, h := range haves {
		stop[h] = true
	}
	seen := make(map[plumbing.Hash]bool)
	var out []pack.Source

	var walkTree func(h plumbing.Hash) error
	walkTree = func(h plumbing.Hash) error {
		if seen[h] || stop[h] {
			return nil
		}
		seen[h] = true
		typ, data, err := o.Get(h)
		if err != nil {
			return err
		}
		out = append(out, pack.Source{Hash: h, Type: typ, Data: data})
		if typ != object.TreeObject {
			return nil
		}
		tree, err := object.DecodeTree(data)
		if err != nil {
			return err
		}
		for _, entry := range tree.Entries {
			if entry.Mode.IsDir() {
				if err := walkTree(entry.Hash); err != nil {
					return err
				}
				continue
			}
			if seen[entry.Hash] || stop[entry.Hash] {
				continue
			}
			seen[entry.Hash] = true
			btyp, bdata, err := o.Get(entry.Hash)
			if err != nil {
				return err
			}
			out = append(out, pack.Source{Hash: entry.Hash, Type: btyp, Data: bdata})
		}
		return nil
	}

	var walkCommit func(h plumbing.Hash) error
	walkCommit = func(h plumbing.Hash) error {
		if seen[h] || stop[h] {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		seen[h] = true
		typ, data, err := o.Get(h)
		if err != nil {
			return err
		}
		out = append(out, pack.Source{Hash: h, Type: typ, Data: data})
		if typ != object.CommitObject {
			return nil
		}
		commit, err := object.DecodeCommit(data)
		if err != nil {
			return err
		}
		if err := walkTree(commit.TreeHash); err != nil {
			return err
		}
		for _, parent := range commit.ParentHashes {
			if err := walkCommit(parent); err != nil {
				return err
			}
		}
		return nil
	}

	// Walk the haves first so everything reachable from them is marked
	// seen, then drop what that walk collected.
	for _, h := range haves {
		delete(stop, h)
		if err := walkCommit(h); err != nil && !plumbing.IsNoSuchObject(err) {
			return nil, err
		}
	}
	out = nil

	for _, w := range wants {
		if err := walkCommit(w); err != nil {
			return nil, err
		}
	}
	return out, nil
}

