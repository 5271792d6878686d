package transport

import (
	"fmt"
	"io"

	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/plumbing/format/pktline"
)

// Service names used in the `info/refs?service=...` advertisement line.
const (
	ServiceUploadPack  = "git-upload-pack"
	ServiceReceivePack = "git-receive-pack"
)

// capabilitiesFor returns the capability list advertised for a service, in
// the fixed order the format calls for.
func capabilitiesFor(service string) []string {
	caps := []string{CapMultiAckDetailed, CapSideBand64k, CapOfsDelta, CapAgentPrefix + Agent, CapObjectFormat}
	if service == ServiceReceivePack {
		caps = append(caps, CapReportStatus)
	}
	return caps
}

// WriteAdvertisement writes the info/refs response for the given service:
// the `# service=...` line, the default-branch ref (advertised as HEAD,
// carrying the capability list after a NUL byte), then every remaining
// ref, ending with a flush packet.
//
// head is the hash HEAD currently resolves to; it may be the zero hash for
// an empty repository, in which case no HEAD line is emitted but the
// capability list is still advertised via a capabilities^{} pseudo-ref, per
// Git convention for empty repos.
func WriteAdvertisement(w io.Writer, service string, refs []Ref, head plumbing.Hash) error {
	enc := pktline.NewEncoder(w)
	if err := enc.Encodef("# service=%s\n", service); err != nil {
		return err
	}
	if err := enc.EncodeFlush(); err != nil {
		return err
	}

	caps := capabilitiesFor(service)
	first := true
	writeLine := func(hash plumbing.Hash, name string) error {
		if first {
			first = false
			return enc.Encode(fmt.Appendf(nil, "%s %s\x00%s\n", hash, name, joinCaps(caps)))
		}
		return enc.Encodef("%s %s\n", hash, name)
	}

	if !head.IsZero() {
		if err := writeLine(head, "HEAD"); err != nil {
			return err
		}
	}
	for _, r := range refs {
		if err := writeLine(r.Hash, r.Name); err != nil {
			return err
		}
	}
	if first {
		// No HEAD and no refs at all: advertise capabilities on the
		// well-known empty-repo pseudo-ref.
		if err := enc.Encode(fmt.Appendf(nil, "%s capabilities^{}\x00%s\n", Zero, joinCaps(caps))); err != nil {
			return err
		}
	}
	return enc.EncodeFlush()
}

func joinCaps(caps []string) string {
	out := caps[0]
	for _, c := range caps[1:] {
		out += " " + c
	}
	return out
}
