// Package transport implements the Git smart protocol surface described in
// the Smart Protocol design: reference advertisement, upload-pack
// negotiation, receive-pack ingestion, side-band v2 multiplexing, and the
// state machine tying them together. The wire format is real Git
// pkt-line/side-band, built on modules/plumbing/format/pktline and
// modules/pack.
package transport

import (
	"github.com/mega-forge/mega/modules/plumbing"
)

// Zero is the all-zero hash Git uses to mean "ref does not exist".
var Zero plumbing.Hash

// Capabilities advertised by this implementation, per the reference
// advertisement format.
const (
	CapMultiAckDetailed = "multi_ack_detailed"
	CapSideBand64k      = "side-band-64k"
	CapOfsDelta         = "ofs-delta"
	CapReportStatus     = "report-status"
	CapAgentPrefix      = "agent="
	CapObjectFormat     = "object-format=sha1"
	Agent               = "mega/1.0"
)

// Ref is one reference as advertised to a client.
type Ref struct {
	Name string
	Hash plumbing.Hash
}

// RefUpdate is one command line from a receive-pack push.
type RefUpdate struct {
	Old  plumbing.Hash
	New  plumbing.Hash
	Name string
}

// Kind classifies a RefUpdate by its old/new hashes.
func (u RefUpdate) Kind() UpdateKind {
	switch {
	case u.Old.IsZero() && !u.New.IsZero():
		return Create
	case !u.Old.IsZero() && u.New.IsZero():
		return Delete
	default:
		return Update
	}
}

// UpdateKind is the category of a single ref command.
type UpdateKind int

const (
	Create UpdateKind = iota
	Delete
	Update
)

// RefUpdateResult reports what happened to one RefUpdate.
type RefUpdateResult struct {
	Name   string
	OK     bool
	Reason string // non-empty iff !OK
}
