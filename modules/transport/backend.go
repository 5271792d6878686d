package transport

import (
	"context"

	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
)

// Backend is the repository-shaped dependency the protocol state machine
// drives. It abstracts over whatever the persisted state layout actually
// is (content-addressed object store, relational ref store with CAS) so
// the protocol logic stays storage-agnostic.
type Backend interface {
	// Refs lists every ref currently known, excluding HEAD itself.
	Refs(ctx context.Context) ([]Ref, error)
	// Head resolves the default branch to a hash; the zero hash for an
	// empty repository.
	Head(ctx context.Context) (plumbing.Hash, error)

	// Closure returns every object reachable from wants but not from
	// haves, as pack.Source values ready for the encoder, in an order
	// where a delta base always precedes anything that might reference
	// it (the encoder additionally enforces this per-window).
	Closure(ctx context.Context, wants, haves []plumbing.Hash) ([]pack.Source, error)

	// Store persists a batch of decoded objects. Called once per push,
	// before any ref update is applied — a failure here means no ref in
	// the push may be updated.
	Store(ctx context.Context, entries []*pack.Entry) error

	// ApplyUpdates performs the CAS ref updates for one push, in the
	// order given. Implementations must guarantee atomicity per ref
	// (concurrent pushes to the same ref: exactly one observes its
	// expected `old` value). Returns one result per update, in order.
	ApplyUpdates(ctx context.Context, updates []RefUpdate) ([]RefUpdateResult, error)
}
