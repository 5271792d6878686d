package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/plumbing"
)

// ExtraHeader is a commit header line beyond the fixed tree/parent/author/
// committer set — "gpgsig", "encoding", "mergetag", and anything else a
// producer chose to attach. Preserved byte-for-byte on round-trip: Mega
// does not interpret signatures or encodings, it just carries them.
type ExtraHeader struct {
	Key   string
	Value string
}

// Commit is a point in history: a tree snapshot, zero or more parents, an
// author and committer signature, a message, and any pass-through headers.
type Commit struct {
	Hash         plumbing.Hash
	TreeHash     plumbing.Hash
	ParentHashes []plumbing.Hash
	Author       Signature
	Committer    Signature
	ExtraHeaders []ExtraHeader
	Message      string
}

func (c *Commit) Type() ObjectType { return CommitObject }

// Encode writes the canonical commit body:
//
//	tree <hex>
//	parent <hex>*
//	author <signature>
//	committer <signature>
//	<extra headers, raw key/value, multi-line values continuation-indented>
//
//	<message>
func (c *Commit) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "tree %s\n", c.TreeHash.String())
	for _, p := range c.ParentHashes {
		fmt.Fprintf(bw, "parent %s\n", p.String())
	}
	fmt.Fprintf(bw, "author %s\n", c.Author.String())
	fmt.Fprintf(bw, "committer %s\n", c.Committer.String())
	for _, h := range c.ExtraHeaders {
		writeHeaderValue(bw, h.Key, h.Value)
	}
	bw.WriteByte('\n')
	bw.WriteString(c.Message)
	return bw.Flush()
}

// writeHeaderValue writes a header whose value may itself span multiple
// lines (gpgsig is the canonical example): continuation lines are indented
// with a single space, matching git's commit-object format.
func writeHeaderValue(bw *bufio.Writer, key, value string) {
	lines := bytes.Split([]byte(value), []byte("\n"))
	fmt.Fprintf(bw, "%s %s\n", key, lines[0])
	for _, l := range lines[1:] {
		bw.WriteByte(' ')
		bw.Write(l)
		bw.WriteByte('\n')
	}
}

// DecodeCommit parses a canonical commit body.
func DecodeCommit(data []byte) (*Commit, error) {
	c := &Commit{Hash: HashOf(CommitObject, data)}
	r := bufio.NewReader(bytes.NewReader(data))

	var pendingKey, pendingVal string
	flushPending := func() {
		if pendingKey == "" {
			return
		}
		switch pendingKey {
		case "tree", "parent", "author", "committer":
			// handled inline below; never buffered here
		default:
			c.ExtraHeaders = append(c.ExtraHeaders, ExtraHeader{Key: pendingKey, Value: pendingVal})
		}
		pendingKey, pendingVal = "", ""
	}

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := bytes.TrimSuffix([]byte(line), []byte("\n"))
		if len(trimmed) == 0 {
			flushPending()
			break
		}
		if trimmed[0] == ' ' {
			// continuation of the previous header's value
			if pendingKey == "" {
				return nil, ErrInvalidHeader
			}
			pendingVal += "\n" + string(trimmed[1:])
			if err == io.EOF {
				break
			}
			continue
		}
		flushPending()

		sp := bytes.IndexByte(trimmed, ' ')
		if sp < 0 {
			return nil, ErrInvalidHeader
		}
		key, val := string(trimmed[:sp]), string(trimmed[sp+1:])
		switch key {
		case "tree":
			h, err := plumbing.NewHashEx(val)
			if err != nil {
				return nil, ErrInvalidHash
			}
			c.TreeHash = h
		case "parent":
			h, err := plumbing.NewHashEx(val)
			if err != nil {
				return nil, ErrInvalidHash
			}
			c.ParentHashes = append(c.ParentHashes, h)
		case "author":
			sig, err := decodeSignature([]byte(val))
			if err != nil {
				return nil, err
			}
			c.Author = sig
		case "committer":
			sig, err := decodeSignature([]byte(val))
			if err != nil {
				return nil, err
			}
			c.Committer = sig
		default:
			pendingKey, pendingVal = key, val
		}
		if err == io.EOF {
			break
		}
	}

	rest, _ := io.ReadAll(r)
	c.Message = string(rest)
	return c, nil
}
