package lfs

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lock is one held lock on a (refspec, path) pair.
type Lock struct {
	ID       string    `json:"id"`
	Path     string    `json:"path"`
	Ref      string    `json:"ref"`
	Owner    string    `json:"owner"`
	LockedAt time.Time `json:"locked_at"`
}

// LockStore persists locks with the invariant that at most one active
// lock exists per (ref, path).
type LockStore interface {
	// Create inserts a new lock, failing with an error AsLockConflict
	// recognizes if one already covers (ref, path).
	Create(ctx context.Context, ref, path, owner string) (*Lock, error)
	// Find returns every lock currently held for ref.
	Find(ctx context.Context, ref string) ([]*Lock, error)
	// Delete removes a lock by id. If owner doesn't hold it, Delete fails
	// unless force is true. Deleting an already-missing lock with
	// force=true succeeds (idempotent).
	Delete(ctx context.Context, id, owner string, force bool) (*Lock, error)
	// List returns locks matching an optional path filter and cursor,
	// capped at limit (0 means a store-defined default).
	List(ctx context.Context, path, cursor string, limit int) (locks []*Lock, next string, err error)
}

type lockConflictError struct {
	existing *Lock
}

func (e *lockConflictError) Error() string {
	return "lfs: lock already held for " + e.existing.Ref + ":" + e.existing.Path
}

// NewLockConflictError wraps the conflicting lock so callers can surface
// it in a 409 response body.
func NewLockConflictError(existing *Lock) error {
	return &lockConflictError{existing: existing}
}

// AsLockConflict extracts the conflicting lock, if err is a conflict.
func AsLockConflict(err error) (*Lock, bool) {
	e, ok := err.(*lockConflictError)
	if !ok {
		return nil, false
	}
	return e.existing, true
}

type lockNotHeldError struct {
	id string
}

func (e *lockNotHeldError) Error() string {
	return "lfs: lock " + e.id + " is not held by this owner"
}

// NewLockNotHeldError reports an unlock attempt by a non-owner without force.
func NewLockNotHeldError(id string) error {
	return &lockNotHeldError{id: id}
}

// IsLockNotHeld reports whether err is an unauthorized-unlock error.
func IsLockNotHeld(err error) bool {
	_, ok := err.(*lockNotHeldError)
	return ok
}

// VerifyResult splits the locks held on a ref by whether the caller holds
// them ("ours") or someone else does ("theirs").
type VerifyResult struct {
	Ours   []*Lock `json:"ours"`
	Theirs []*Lock `json:"theirs"`
}

// Verify partitions every lock on ref by holder identity relative to who.
func Verify(ctx context.Context, store LockStore, ref, who string) (*VerifyResult, error) {
	locks, err := store.Find(ctx, ref)
	if err != nil {
		return nil, err
	}
	res := &VerifyResult{}
	for _, l := range locks {
		if l.Owner == who {
			res.Ours = append(res.Ours, l)
		} else {
			res.Theirs = append(res.Theirs, l)
		}
	}
	return res, nil
}

// memoryLockStore is an in-process LockStore, enforcing the same
// (ref, path) uniqueness invariant a relational backend would via a
// unique index.
type memoryLockStore struct {
	mu    sync.Mutex
	locks map[string]*Lock
}

// NewMemoryLockStore returns an in-process LockStore.
func NewMemoryLockStore() LockStore {
	return &memoryLockStore{locks: make(map[string]*Lock)}
}

func (s *memoryLockStore) Create(ctx context.Context, ref, path, owner string) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locks {
		if l.Ref == ref && l.Path == path {
			return nil, NewLockConflictError(l)
		}
	}
	l := &Lock{ID: uuid.NewString(), Ref: ref, Path: path, Owner: owner, LockedAt: time.Now()}
	s.locks[l.ID] = l
	return l, nil
}

func (s *memoryLockStore) Find(ctx context.Context, ref string) ([]*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Lock
	for _, l := range s.locks {
		if l.Ref == ref {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *memoryLockStore) Delete(ctx context.Context, id, owner string, force bool) (*Lock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		if force {
			return nil, nil
		}
		return nil, NewLockNotHeldError(id)
	}
	if l.Owner != owner && !force {
		return nil, NewLockNotHeldError(id)
	}
	delete(s.locks, id)
	return l, nil
}

func (s *memoryLockStore) List(ctx context.Context, path, cursor string, limit int) ([]*Lock, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Lock
	for _, l := range s.locks {
		if path != "" && l.Path != path {
			continue
		}
		out = append(out, l)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, "", nil
}
