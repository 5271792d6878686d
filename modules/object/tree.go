package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/mega-forge/mega/modules/plumbing"
)

// FileMode is the Git-subset of POSIX file modes recorded in a tree entry.
type FileMode uint32

const (
	FileModeRegular    FileMode = 0o100644
	FileModeExecutable FileMode = 0o100755
	FileModeSymlink    FileMode = 0o120000
	FileModeDir        FileMode = 0o040000
	FileModeSubmodule  FileMode = 0o160000
)

func (m FileMode) IsDir() bool { return m == FileModeDir }

// TreeEntry is one line of a tree object: a mode, a name, and the hash of
// the object it names.
type TreeEntry struct {
	Mode FileMode
	Name string
	Hash plumbing.Hash
}

// Tree is an ordered list of directory entries.
type Tree struct {
	Hash    plumbing.Hash
	Entries []TreeEntry
}

// sortKey returns the name a tree entry sorts by: directories compare as if
// their name carried a trailing "/", so "foo" (a directory) and "foo-bar"
// order correctly relative to each other even though '-' < '/'.
func sortKey(e TreeEntry) string {
	if e.Mode.IsDir() {
		return e.Name + "/"
	}
	return e.Name
}

// Sort orders entries the way `git mktree`/`git write-tree` does: by
// sortKey, byte-wise ascending.
func (t *Tree) Sort() {
	sort.Slice(t.Entries, func(i, j int) bool {
		return sortKey(t.Entries[i]) < sortKey(t.Entries[j])
	})
}

func (t *Tree) Type() ObjectType { return TreeObject }

// Encode writes the canonical tree body: each entry as
// "<octal-mode> <name>\0<20-byte-hash>", entries already in sorted order.
// Callers must call Sort before Encode if entries were appended out of
// order; Encode itself does not re-sort so a caller that deliberately wants
// to detect an unsorted tree (a decode error case) can do so.
func (t *Tree) Encode(w io.Writer) error {
	for _, e := range t.Entries {
		if _, err := fmt.Fprintf(w, "%s %s\x00", strconv.FormatUint(uint64(e.Mode), 8), e.Name); err != nil {
			return err
		}
		if _, err := w.Write(e.Hash[:]); err != nil {
			return err
		}
	}
	return nil
}

// DecodeTree parses a canonical tree body. It rejects entries out of
// sorted order and duplicate names, matching git's fsck tree checks.
func DecodeTree(data []byte) (*Tree, error) {
	t := &Tree{Hash: HashOf(TreeObject, data)}
	br := bufio.NewReader(bytes.NewReader(data))
	var prev string
	havePrev := false
	for {
		modeAndName, err := br.ReadString(0)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ErrInvalidHeader
		}
		modeAndName = modeAndName[:len(modeAndName)-1] // trim NUL
		sp := bytes.IndexByte([]byte(modeAndName), ' ')
		if sp < 0 {
			return nil, ErrInvalidHeader
		}
		modeStr, name := modeAndName[:sp], modeAndName[sp+1:]
		mode, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return nil, ErrInvalidHeader
		}
		var hashBytes [plumbing.HASH_DIGEST_SIZE]byte
		if _, err := io.ReadFull(br, hashBytes[:]); err != nil {
			return nil, ErrInvalidHash
		}
		e := TreeEntry{Mode: FileMode(mode), Name: name, Hash: plumbing.Hash(hashBytes)}
		key := sortKey(e)
		if havePrev && key <= prev {
			return nil, fmt.Errorf("object: tree entries out of order at %q", name)
		}
		prev, havePrev = key, true
		t.Entries = append(t.Entries, e)
	}
	return t, nil
}
