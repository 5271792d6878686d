package lfs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLockConflictOnSameRefAndPath(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()

	_, err := store.Create(ctx, "refs/heads/main", "a.txt", "alice")
	require.NoError(t, err)

	_, err = store.Create(ctx, "refs/heads/main", "a.txt", "bob")
	require.Error(t, err)
	existing, ok := AsLockConflict(err)
	require.True(t, ok)
	assert.Equal(t, "alice", existing.Owner)
}

func TestLockDifferentPathsDoNotConflict(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "refs/heads/main", "a.txt", "alice")
	require.NoError(t, err)
	_, err = store.Create(ctx, "refs/heads/main", "b.txt", "bob")
	assert.NoError(t, err)
}

func TestVerifySplitsOursAndTheirs(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	_, err := store.Create(ctx, "refs/heads/main", "a.txt", "alice")
	require.NoError(t, err)

	res, err := Verify(ctx, store, "refs/heads/main", "alice")
	require.NoError(t, err)
	assert.Len(t, res.Ours, 1)
	assert.Empty(t, res.Theirs)

	res, err = Verify(ctx, store, "refs/heads/main", "bob")
	require.NoError(t, err)
	assert.Empty(t, res.Ours)
	assert.Len(t, res.Theirs, 1)
}

func TestUnlockRequiresOwnerUnlessForced(t *testing.T) {
	store := NewMemoryLockStore()
	ctx := context.Background()
	l, err := store.Create(ctx, "refs/heads/main", "a.txt", "alice")
	require.NoError(t, err)

	_, err = store.Delete(ctx, l.ID, "bob", false)
	assert.True(t, IsLockNotHeld(err))

	_, err = store.Delete(ctx, l.ID, "bob", true)
	assert.NoError(t, err)
}

func TestUnlockMissingLockIsIdempotentWithForce(t *testing.T) {
	store := NewMemoryLockStore()
	_, err := store.Delete(context.Background(), "does-not-exist", "alice", true)
	assert.NoError(t, err)

	_, err = store.Delete(context.Background(), "does-not-exist", "alice", false)
	assert.Error(t, err)
}
