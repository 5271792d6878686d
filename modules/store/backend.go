package store

import (
	"context"

	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/transport"
)

// Backend pairs a RefStore with a FileObjectDB into a full
// transport.Backend: refs are relational (MySQL, CAS-checked), objects are
// content-addressed files on disk.
type Backend struct {
	refs    *RefStore
	objects *FileObjectDB
}

func NewBackend(refs *RefStore, objects *FileObjectDB) *Backend {
	return &Backend{refs: refs, objects: objects}
}

func (b *Backend) Refs(ctx context.Context) ([]transport.Ref, error) { return b.refs.Refs(ctx) }

func (b *Backend) Head(ctx context.Context) (plumbing.Hash, error) { return b.refs.Head(ctx) }

func (b *Backend) Closure(ctx context.Context, wants, haves []plumbing.Hash) ([]pack.Source, error) {
	return b.objects.Closure(ctx, wants, haves)
}

func (b *Backend) Store(ctx context.Context, entries []*pack.Entry) error {
	return b.objects.Store(ctx, entries)
}

func (b *Backend) ApplyUpdates(ctx context.Context, updates []transport.RefUpdate) ([]transport.RefUpdateResult, error) {
	return b.refs.ApplyUpdates(ctx, updates)
}

var _ transport.Backend = (*Backend)(nil)
