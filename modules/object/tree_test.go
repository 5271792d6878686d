package object

import (
	"bytes"
	"testing"

	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hashN(b byte) plumbing.Hash {
	var h plumbing.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestTreeTypeIsTree(t *testing.T) {
	assert.Equal(t, TreeObject, new(Tree).Type())
}

// "foo" as a directory must sort after "foo-bar", matching git's
// directory-aware tree ordering rather than plain byte comparison.
func TestTreeSortDirectoryVsDashSuffix(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Mode: FileModeDir, Name: "foo", Hash: hashN(1)},
		{Mode: FileModeRegular, Name: "foo-bar", Hash: hashN(2)},
	}}
	tr.Sort()
	assert.Equal(t, "foo-bar", tr.Entries[0].Name)
	assert.Equal(t, "foo", tr.Entries[1].Name)
}

func TestTreeEncodeDecodeRoundTrip(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Mode: FileModeRegular, Name: "a.txt", Hash: hashN(1)},
		{Mode: FileModeDir, Name: "b", Hash: hashN(2)},
		{Mode: FileModeExecutable, Name: "run.sh", Hash: hashN(3)},
	}}
	tr.Sort()

	var buf bytes.Buffer
	require.NoError(t, tr.Encode(&buf))

	got, err := DecodeTree(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, got.Entries, 3)
	assert.Equal(t, tr.Entries, got.Entries)
}

func TestDecodeTreeRejectsOutOfOrderEntries(t *testing.T) {
	var buf bytes.Buffer
	// "z" before "a" — deliberately unsorted.
	buf.WriteString("100644 z\x00")
	buf.Write(hashN(1)[:])
	buf.WriteString("100644 a\x00")
	buf.Write(hashN(2)[:])

	_, err := DecodeTree(buf.Bytes())
	assert.Error(t, err)
}

func TestTreeHashIdempotent(t *testing.T) {
	tr := &Tree{Entries: []TreeEntry{
		{Mode: FileModeRegular, Name: "a.txt", Hash: hashN(1)},
	}}
	var buf1, buf2 bytes.Buffer
	require.NoError(t, tr.Encode(&buf1))
	require.NoError(t, tr.Encode(&buf2))
	assert.Equal(t, HashOf(TreeObject, buf1.Bytes()), HashOf(TreeObject, buf2.Bytes()))
}
