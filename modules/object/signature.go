package object

import (
	"bytes"
	"fmt"
	"strconv"
	"time"
)

// Signature is an author/committer/tagger line: name, email, a Unix
// timestamp, and the raw timezone offset string exactly as written
// ("+0800", "-0000", ...). The offset is never normalized to UTC so that
// re-encoding reproduces the original bytes.
type Signature struct {
	Name   string
	Email  string
	When   time.Time
	Offset string // raw "±HHMM", preserved verbatim
}

// decodeSignature parses a line of the form
// "Name <email> 1700000000 +0800".
func decodeSignature(line []byte) (Signature, error) {
	var s Signature

	lt := bytes.IndexByte(line, '<')
	gt := bytes.IndexByte(line, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return s, ErrInvalidSignature
	}
	s.Name = string(bytes.TrimSpace(line[:lt]))
	s.Email = string(line[lt+1 : gt])

	rest := bytes.TrimSpace(line[gt+1:])
	fields := bytes.Fields(rest)
	if len(fields) != 2 {
		return s, ErrInvalidSignature
	}
	ts, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return s, ErrInvalidSignature
	}
	offset := string(fields[1])
	loc, err := parseOffsetLocation(offset)
	if err != nil {
		return s, ErrInvalidSignature
	}
	s.When = time.Unix(ts, 0).In(loc)
	s.Offset = offset
	return s, nil
}

func parseOffsetLocation(offset string) (*time.Location, error) {
	if len(offset) != 5 || (offset[0] != '+' && offset[0] != '-') {
		return nil, ErrInvalidSignature
	}
	hh, err := strconv.Atoi(offset[1:3])
	if err != nil {
		return nil, err
	}
	mm, err := strconv.Atoi(offset[3:5])
	if err != nil {
		return nil, err
	}
	secs := hh*3600 + mm*60
	if offset[0] == '-' {
		secs = -secs
	}
	return time.FixedZone(offset, secs), nil
}

// Encode writes "Name <email> <unix-ts> <raw-offset>".
func (s Signature) Encode(w *bytes.Buffer) {
	fmt.Fprintf(w, "%s <%s> %d %s", s.Name, s.Email, s.When.Unix(), s.Offset)
}

func (s Signature) String() string {
	var b bytes.Buffer
	s.Encode(&b)
	return b.String()
}
