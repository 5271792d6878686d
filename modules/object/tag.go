package object

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/plumbing"
)

// Tag is an annotated tag object: a pointer to another object plus a
// tagger signature and message. Lightweight tags are plain references and
// never produce a Tag object.
type Tag struct {
	Hash       plumbing.Hash
	Object     plumbing.Hash
	ObjectType ObjectType
	Name       string
	Tagger     Signature
	Message    string
}

func (t *Tag) Type() ObjectType { return TagObject }

// Encode writes the canonical tag body:
//
//	object <hex>
//	type <type>
//	tag <name>
//	tagger <signature>
//
//	<message>
func (t *Tag) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "object %s\n", t.Object.String())
	fmt.Fprintf(bw, "type %s\n", t.ObjectType.String())
	fmt.Fprintf(bw, "tag %s\n", t.Name)
	fmt.Fprintf(bw, "tagger %s\n", t.Tagger.String())
	bw.WriteByte('\n')
	bw.WriteString(t.Message)
	return bw.Flush()
}

// DecodeTag parses a canonical annotated tag body.
func DecodeTag(data []byte) (*Tag, error) {
	t := &Tag{Hash: HashOf(TagObject, data)}
	r := bufio.NewReader(bytes.NewReader(data))

	for {
		line, err := r.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		trimmed := bytes.TrimSuffix([]byte(line), []byte("\n"))
		if len(trimmed) == 0 {
			break
		}
		sp := bytes.IndexByte(trimmed, ' ')
		if sp < 0 {
			return nil, ErrInvalidHeader
		}
		key, val := string(trimmed[:sp]), string(trimmed[sp+1:])
		switch key {
		case "object":
			h, err := plumbing.NewHashEx(val)
			if err != nil {
				return nil, ErrInvalidHash
			}
			t.Object = h
		case "type":
			ot := ObjectTypeFromString(val)
			if ot == InvalidObject {
				return nil, ErrInvalidObjectType
			}
			t.ObjectType = ot
		case "tag":
			t.Name = val
		case "tagger":
			sig, err := decodeSignature([]byte(val))
			if err != nil {
				return nil, err
			}
			t.Tagger = sig
		default:
			return nil, ErrInvalidHeader
		}
		if err == io.EOF {
			break
		}
	}

	rest, _ := io.ReadAll(r)
	t.Message = string(rest)
	return t, nil
}
