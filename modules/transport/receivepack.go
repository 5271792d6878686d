package transport

import (
	"context"
	"io"
	"strings"

	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/plumbing/format/pktline"
	"github.com/sirupsen/logrus"
)

// parseCommandLine parses one receive-pack command line of the form
// `<old> <new> <refname>`.
func parseCommandLine(line string) (RefUpdate, error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return RefUpdate{}, NewBadCommandError(line)
	}
	if !plumbing.ValidateHashHex(fields[0]) || !plumbing.ValidateHashHex(fields[1]) {
		return RefUpdate{}, NewBadCommandError(line)
	}
	return RefUpdate{Old: plumbing.NewHash(fields[0]), New: plumbing.NewHash(fields[1]), Name: fields[2]}, nil
}

// readCommands reads the command-line section of a receive-pack request:
// one `<old> <new> <refname>` line per ref, terminated by a flush packet.
func readCommands(sc *pktline.Scanner) ([]RefUpdate, error) {
	var updates []RefUpdate
	for sc.Scan() {
		switch sc.Type() {
		case pktline.FlushPkt:
			return updates, nil
		case pktline.Data:
			line := strings.TrimRight(string(sc.Bytes()), "\n\x00")
			// The first line may carry a capability list after a NUL;
			// only the part before it is the command.
			if i := strings.IndexByte(line, 0); i >= 0 {
				line = line[:i]
			}
			u, err := parseCommandLine(line)
			if err != nil {
				return nil, err
			}
			updates = append(updates, u)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return updates, nil
}

// validateShape rejects a command with an empty ref name. It does not look
// at the ref's current value: whether a created ref is absent and whether
// a deleted or updated ref still holds the asserted old hash is checked
// inside Backend.ApplyUpdates, which owns the transaction boundary and
// therefore the authoritative CAS check.
func (u RefUpdate) validateShape() error {
	if u.Name == "" {
		return NewBadCommandError(u.Name)
	}
	return nil
}

// ReceivePack drives the server side of a push: reads command lines, then
// the pack stream, decodes and persists it, applies ref updates
// transactionally, and writes a report-status response.
func ReceivePack(ctx context.Context, r io.Reader, w io.Writer, backend Backend, cache pack.DecodeCache) error {
	sc := pktline.NewScanner(r)
	enc := pktline.NewEncoder(w)

	updates, err := readCommands(sc)
	if err != nil {
		return reportUnpackError(enc, err)
	}
	for _, u := range updates {
		if err := u.validateShape(); err != nil {
			return reportUnpackError(enc, err)
		}
	}

	if len(updates) == 0 {
		return enc.EncodeFlush()
	}

	if !allDeletes(updates) {
		dec := pack.NewDecoder(cache)
		entries, err := dec.Decode(ctx, sc.Reader())
		if err != nil {
			logrus.WithError(err).Warn("receive-pack: pack decode failed")
			return reportUnpackError(enc, err)
		}
		if err := backend.Store(ctx, entries); err != nil {
			logrus.WithError(err).Warn("receive-pack: persist failed")
			return reportUnpackError(enc, err)
		}
	}

	results, err := backend.ApplyUpdates(ctx, updates)
	if err != nil {
		return reportUnpackError(enc, err)
	}

	return writeReportStatus(enc, results)
}

// allDeletes reports whether every command is a delete (new == Zero), in
// which case the client sends no pack section at all.
func allDeletes(updates []RefUpdate) bool {
	for _, u := range updates {
		if !u.New.IsZero() {
			return false
		}
	}
	return true
}

func reportUnpackError(enc *pktline.Encoder, cause error) error {
	if err := enc.Encodef("unpack %s\n", cause.Error()); err != nil {
		return err
	}
	return enc.EncodeFlush()
}

// writeReportStatus writes the report-status response: `unpack ok`
// followed by one `ok <ref>` or `ng <ref> <reason>` line per command.
func writeReportStatus(enc *pktline.Encoder, results []RefUpdateResult) error {
	if err := enc.Encodef("unpack ok\n"); err != nil {
		return err
	}
	for _, res := range results {
		var err error
		if res.OK {
			err = enc.Encodef("ok %s\n", res.Name)
		} else {
			err = enc.Encodef("ng %s %s\n", res.Name, res.Reason)
		}
		if err != nil {
			return err
		}
	}
	return enc.EncodeFlush()
}
