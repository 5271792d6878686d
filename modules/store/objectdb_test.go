package store

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
)

func hashOf(t *testing.T, typ object.ObjectType, data []byte) plumbing.Hash {
	t.Helper()
	h, err := plumbing.HashObject(typ.String(), int64(len(data)), bytes.NewReader(data))
	require.NoError(t, err)
	return h
}

func TestFileObjectDBStoreAndGetRoundTrip(t *testing.T) {
	db := NewFileObjectDB(t.TempDir())
	blob := []byte("hello world")
	h := hashOf(t, object.BlobObject, blob)

	require.NoError(t, db.Store(context.Background(), []*pack.Entry{{Hash: h, Type: object.BlobObject, Data: blob}}))
	assert.True(t, db.Has(h))

	typ, data, err := db.Get(h)
	require.NoError(t, err)
	assert.Equal(t, object.BlobObject, typ)
	assert.Equal(t, blob, data)
}

func TestFileObjectDBGetMissingReturnsNoSuchObject(t *testing.T) {
	db := NewFileObjectDB(t.TempDir())
	_, _, err := db.Get(plumbing.NewHash("0000000000000000000000000000000000000000"))
	assert.Error(t, err)
	assert.True(t, plumbing.IsNoSuchObject(err))
}

func TestFileObjectDBClosureWalksCommitTreeBlobGraph(t *testing.T) {
	db := NewFileObjectDB(t.TempDir())
	ctx := context.Background()

	blob := []byte("file contents")
	blobHash := hashOf(t, object.BlobObject, blob)
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: blobHash, Type: object.BlobObject, Data: blob}}))

	tree := &object.Tree{Entries: []object.TreeEntry{{Mode: object.FileModeRegular, Name: "file.txt", Hash: blobHash}}}
	var treeBuf bytes.Buffer
	require.NoError(t, tree.Encode(&treeBuf))
	treeHash := hashOf(t, object.TreeObject, treeBuf.Bytes())
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: treeHash, Type: object.TreeObject, Data: treeBuf.Bytes()}}))

	commit := &object.Commit{
		TreeHash:  treeHash,
		Author:    object.Signature{Name: "a", Email: "a@example.com"},
		Committer: object.Signature{Name: "a", Email: "a@example.com"},
		Message:   "initial\n",
	}
	var commitBuf bytes.Buffer
	require.NoError(t, commit.Encode(&commitBuf))
	commitHash := hashOf(t, object.CommitObject, commitBuf.Bytes())
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: commitHash, Type: object.CommitObject, Data: commitBuf.Bytes()}}))

	sources, err := db.Closure(ctx, []plumbing.Hash{commitHash}, nil)
	require.NoError(t, err)
	require.Len(t, sources, 3)

	var gotCommit, gotTree, gotBlob bool
	for _, s := range sources {
		switch s.Hash {
		case commitHash:
			gotCommit = true
		case treeHash:
			gotTree = true
		case blobHash:
			gotBlob = true
		}
	}
	assert.True(t, gotCommit && gotTree && gotBlob)
}

func TestFileObjectDBClosureStopsAtHaves(t *testing.T) {
	db := NewFileObjectDB(t.TempDir())
	ctx := context.Background()

	blob := []byte("unchanged")
	blobHash := hashOf(t, object.BlobObject, blob)
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: blobHash, Type: object.BlobObject, Data: blob}}))

	tree := &object.Tree{Entries: []object.TreeEntry{{Mode: object.FileModeRegular, Name: "f", Hash: blobHash}}}
	var treeBuf bytes.Buffer
	require.NoError(t, tree.Encode(&treeBuf))
	treeHash := hashOf(t, object.TreeObject, treeBuf.Bytes())
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: treeHash, Type: object.TreeObject, Data: treeBuf.Bytes()}}))

	commit := &object.Commit{TreeHash: treeHash, Author: object.Signature{Name: "a", Email: "a@example.com"}, Committer: object.Signature{Name: "a", Email: "a@example.com"}, Message: "c\n"}
	var commitBuf bytes.Buffer
	require.NoError(t, commit.Encode(&commitBuf))
	commitHash := hashOf(t, object.CommitObject, commitBuf.Bytes())
	require.NoError(t, db.Store(ctx, []*pack.Entry{{Hash: commitHash, Type: object.CommitObject, Data: commitBuf.Bytes()}}))

	sources, err := db.Closure(ctx, []plumbing.Hash{commitHash}, []plumbing.Hash{commitHash})
	require.NoError(t, err)
	assert.Empty(t, sources, "a want already present in haves contributes nothing new")
}
