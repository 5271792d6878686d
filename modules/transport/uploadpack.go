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

// negotiationResult is what a round of want/have lines produced.
type negotiationResult struct {
	wants []plumbing.Hash
	haves []plumbing.Hash
	done  bool
}

// readNegotiation reads want lines (optionally carrying the capability
// list on the first line) followed, across as many flush-terminated
// rounds as the client sends, by have lines and an eventual `done`.
func readNegotiation(sc *pktline.Scanner) (*negotiationResult, error) {
	res := &negotiationResult{}
	firstWant := true
	for sc.Scan() {
		switch sc.Type() {
		case pktline.FlushPkt:
			if len(res.wants) == 0 {
				continue
			}
			// A flush with no `done` yet just ends this round; the
			// caller decides whether to ACK/NAK and keep reading.
			return res, nil
		case pktline.Data:
			line := strings.TrimRight(string(sc.Bytes()), "\n")
			switch {
			case line == "done":
				res.done = true
				return res, nil
			case strings.HasPrefix(line, "want "):
				fields := strings.Fields(line)
				res.wants = append(res.wants, plumbing.NewHash(fields[1]))
				if firstWant && len(fields) > 2 {
					firstWant = false
				}
			case strings.HasPrefix(line, "have "):
				fields := strings.Fields(line)
				res.haves = append(res.haves, plumbing.NewHash(fields[1]))
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// UploadPack drives the server side of fetch/clone negotiation against r/w:
// Advertising is assumed already sent by the caller (WriteAdvertisement).
// UploadPack reads want/have rounds, acknowledges common ancestors, and on
// `done` streams the resulting pack over side-band v2 channel 1.
func UploadPack(ctx context.Context, r io.Reader, w io.Writer, backend Backend) error {
	sc := pktline.NewScanner(r)
	enc := pktline.NewEncoder(w)

	var wants, haves []plumbing.Hash
	seenHave := make(map[plumbing.Hash]bool)

	for {
		round, err := readNegotiation(sc)
		if err != nil {
			return err
		}
		wants = append(wants, round.wants...)

		newCommon := false
		for _, h := range round.haves {
			if seenHave[h] {
				continue
			}
			seenHave[h] = true
			haves = append(haves, h)
			newCommon = true
		}

		if round.done {
			break
		}
		if len(round.haves) == 0 {
			if err := enc.Encodef("NAK\n"); err != nil {
				return err
			}
			continue
		}
		if newCommon {
			if err := enc.Encodef("ACK %s common\n", haves[len(haves)-1]); err != nil {
				return err
			}
		} else {
			if err := enc.Encodef("ACK %s continue\n", haves[len(haves)-1]); err != nil {
				return err
			}
		}
	}

	if len(haves) > 0 {
		if err := enc.Encodef("ACK %s\n", haves[len(haves)-1]); err != nil {
			return err
		}
	} else {
		if err := enc.Encodef("NAK\n"); err != nil {
			return err
		}
	}

	sources, err := backend.Closure(ctx, wants, haves)
	if err != nil {
		sb := NewSidebandWriter(enc)
		_ = sb.Fatal(err.Error())
		return err
	}

	sb := NewSidebandWriter(enc)
	packEnc := pack.NewEncoder(pack.EncoderOptions{Window: 16, Workers: 4, MinRatio: 0.5})
	if _, err := packEnc.Encode(ctx, sb, sources); err != nil {
		_ = sb.Fatal(err.Error())
		return err
	}
	logrus.WithField("objects", len(sources)).Info("upload-pack: sent pack")
	return enc.EncodeFlush()
}
