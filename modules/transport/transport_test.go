package transport

import (
	"bytes"
	"context"
	"testing"

	"github.com/mega-forge/mega/modules/object"
	"github.com/mega-forge/mega/modules/pack"
	"github.com/mega-forge/mega/modules/plumbing"
	"github.com/mega-forge/mega/modules/plumbing/format/pktline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory Backend for exercising the protocol state
// machine without a real object/ref store.
type fakeBackend struct {
	refs    map[string]plumbing.Hash
	head    plumbing.Hash
	objects map[plumbing.Hash]*pack.Entry
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{refs: map[string]plumbing.Hash{}, objects: map[plumbing.Hash]*pack.Entry{}}
}

func (b *fakeBackend) Refs(ctx context.Context) ([]Ref, error) {
	var out []Ref
	for name, h := range b.refs {
		out = append(out, Ref{Name: name, Hash: h})
	}
	return out, nil
}

func (b *fakeBackend) Head(ctx context.Context) (plumbing.Hash, error) {
	return b.head, nil
}

func (b *fakeBackend) Closure(ctx context.Context, wants, haves []plumbing.Hash) ([]pack.Source, error) {
	exclude := make(map[plumbing.Hash]bool, len(haves))
	for _, h := range haves {
		exclude[h] = true
	}
	var out []pack.Source
	seen := make(map[plumbing.Hash]bool)
	var visit func(h plumbing.Hash)
	visit = func(h plumbing.Hash) {
		if h.IsZero() || seen[h] || exclude[h] {
			return
		}
		seen[h] = true
		e, ok := b.objects[h]
		if !ok {
			return
		}
		out = append(out, pack.Source{Hash: e.Hash, Type: e.Type, Data: e.Data})
		if e.Type == object.CommitObject {
			c, err := object.DecodeCommit(e.Data)
			if err == nil {
				visit(c.TreeHash)
				for _, p := range c.ParentHashes {
					visit(p)
				}
			}
		}
	}
	for _, w := range wants {
		visit(w)
	}
	return out, nil
}

func (b *fakeBackend) Store(ctx context.Context, entries []*pack.Entry) error {
	for _, e := range entries {
		b.objects[e.Hash] = e
	}
	return nil
}

func (b *fakeBackend) ApplyUpdates(ctx context.Context, updates []RefUpdate) ([]RefUpdateResult, error) {
	results := make([]RefUpdateResult, 0, len(updates))
	for _, u := range updates {
		current := b.refs[u.Name]
		switch u.Kind() {
		case Create:
			if !current.IsZero() {
				results = append(results, RefUpdateResult{Name: u.Name, OK: false, Reason: "already exists"})
				continue
			}
		default:
			if current != u.Old {
				results = append(results, RefUpdateResult{Name: u.Name, OK: false, Reason: "stale info"})
				continue
			}
		}
		if u.Kind() == Delete {
			delete(b.refs, u.Name)
		} else {
			b.refs[u.Name] = u.New
		}
		results = append(results, RefUpdateResult{Name: u.Name, OK: true})
	}
	return results, nil
}

func (b *fakeBackend) addObject(e *pack.Entry) {
	b.objects[e.Hash] = e
}

func blobEntry(data []byte) *pack.Entry {
	return &pack.Entry{Hash: object.HashOf(object.BlobObject, data), Type: object.BlobObject, Data: data}
}

func TestWriteAdvertisementFormat(t *testing.T) {
	var buf bytes.Buffer
	head := object.HashOf(object.CommitObject, []byte("fake"))
	refs := []Ref{{Name: "refs/heads/main", Hash: head}, {Name: "refs/tags/v1", Hash: head}}
	require.NoError(t, WriteAdvertisement(&buf, ServiceUploadPack, refs, head))

	sc := pktline.NewScanner(&buf)
	require.True(t, sc.Scan())
	assert.Equal(t, "# service=git-upload-pack\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, pktline.FlushPkt, sc.Type())

	require.True(t, sc.Scan())
	first := string(sc.Bytes())
	assert.Contains(t, first, head.String()+" HEAD\x00")
	assert.Contains(t, first, CapMultiAckDetailed)
	assert.Contains(t, first, CapSideBand64k)

	require.True(t, sc.Scan())
	assert.Contains(t, string(sc.Bytes()), "refs/heads/main")
	require.True(t, sc.Scan())
	assert.Contains(t, string(sc.Bytes()), "refs/tags/v1")
	require.True(t, sc.Scan())
	assert.Equal(t, pktline.FlushPkt, sc.Type())
}

func TestReceivePackCreateUpdateDelete(t *testing.T) {
	b := newFakeBackend()
	existing := object.HashOf(object.BlobObject, []byte("v1"))
	b.refs["refs/heads/keep"] = existing

	newHash := object.HashOf(object.BlobObject, []byte("v2"))

	var req bytes.Buffer
	enc := pktline.NewEncoder(&req)
	require.NoError(t, enc.Encodef("%s %s refs/heads/new\n", Zero, newHash))
	require.NoError(t, enc.Encodef("%s %s refs/heads/keep\n", existing, newHash))
	require.NoError(t, enc.EncodeFlush())

	var packBuf bytes.Buffer
	e := pack.NewEncoder(pack.EncoderOptions{})
	_, err := e.Encode(context.Background(), &packBuf, []pack.Source{{Hash: newHash, Type: object.BlobObject, Data: []byte("v2")}})
	require.NoError(t, err)
	req.Write(packBuf.Bytes())

	var resp bytes.Buffer
	err = ReceivePack(context.Background(), &req, &resp, b, nil)
	require.NoError(t, err)

	sc := pktline.NewScanner(&resp)
	require.True(t, sc.Scan())
	assert.Equal(t, "unpack ok\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, "ok refs/heads/new\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, "ok refs/heads/keep\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, pktline.FlushPkt, sc.Type())

	assert.Equal(t, newHash, b.refs["refs/heads/new"])
	assert.Equal(t, newHash, b.refs["refs/heads/keep"])
}

func TestReceivePackDeleteOnlySendsNoPack(t *testing.T) {
	b := newFakeBackend()
	existing := object.HashOf(object.BlobObject, []byte("v1"))
	b.refs["refs/heads/gone"] = existing

	var req bytes.Buffer
	enc := pktline.NewEncoder(&req)
	require.NoError(t, enc.Encodef("%s %s refs/heads/gone\n", existing, Zero))
	require.NoError(t, enc.EncodeFlush())
	// No pack section follows: a delete-only push carries none.

	var resp bytes.Buffer
	require.NoError(t, ReceivePack(context.Background(), &req, &resp, b, nil))

	sc := pktline.NewScanner(&resp)
	require.True(t, sc.Scan())
	assert.Equal(t, "unpack ok\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, "ok refs/heads/gone\n", string(sc.Bytes()))

	_, stillThere := b.refs["refs/heads/gone"]
	assert.False(t, stillThere)
}

func TestReceivePackReportsStaleInfo(t *testing.T) {
	b := newFakeBackend()
	stale := object.HashOf(object.BlobObject, []byte("stale"))
	actual := object.HashOf(object.BlobObject, []byte("actual"))
	b.refs["refs/heads/main"] = actual
	newHash := object.HashOf(object.BlobObject, []byte("new"))

	var req bytes.Buffer
	enc := pktline.NewEncoder(&req)
	require.NoError(t, enc.Encodef("%s %s refs/heads/main\n", stale, newHash))
	require.NoError(t, enc.EncodeFlush())

	var packBuf bytes.Buffer
	e := pack.NewEncoder(pack.EncoderOptions{})
	_, err := e.Encode(context.Background(), &packBuf, []pack.Source{{Hash: newHash, Type: object.BlobObject, Data: []byte("new")}})
	require.NoError(t, err)
	req.Write(packBuf.Bytes())

	var resp bytes.Buffer
	require.NoError(t, ReceivePack(context.Background(), &req, &resp, b, nil))

	sc := pktline.NewScanner(&resp)
	require.True(t, sc.Scan())
	assert.Equal(t, "unpack ok\n", string(sc.Bytes()))
	require.True(t, sc.Scan())
	assert.Equal(t, "ng refs/heads/main stale info\n", string(sc.Bytes()))

	assert.Equal(t, actual, b.refs["refs/heads/main"], "ref must not change on stale CAS")
}

func TestUploadPackFullClone(t *testing.T) {
	b := newFakeBackend()
	blob := blobEntry([]byte("Hello, World!\n"))
	b.addObject(blob)
	commitData := []byte("tree " + blob.Hash.String() + "\nauthor a <a@b.c> 1 +0000\ncommitter a <a@b.c> 1 +0000\n\nmsg")
	commit := &pack.Entry{Hash: object.HashOf(object.CommitObject, commitData), Type: object.CommitObject, Data: commitData}
	b.addObject(commit)
	b.refs["refs/heads/main"] = commit.Hash
	b.head = commit.Hash

	var req bytes.Buffer
	enc := pktline.NewEncoder(&req)
	require.NoError(t, enc.Encodef("want %s multi_ack_detailed side-band-64k\n", commit.Hash))
	require.NoError(t, enc.EncodeFlush())
	require.NoError(t, enc.Encodef("done\n"))

	var resp bytes.Buffer
	require.NoError(t, UploadPack(context.Background(), &req, &resp, b))

	sc := pktline.NewScanner(&resp)
	require.True(t, sc.Scan())
	assert.Contains(t, string(sc.Bytes()), "NAK")

	var packBytes []byte
	for sc.Scan() {
		if sc.Type() != pktline.Data {
			continue
		}
		payload := sc.Bytes()
		require.NotEmpty(t, payload)
		if payload[0] == ChannelPack {
			packBytes = append(packBytes, payload[1:]...)
		}
	}
	require.NoError(t, sc.Err())

	dec := pack.NewDecoder(nil)
	entries, err := dec.Decode(context.Background(), bytes.NewReader(packBytes))
	require.NoError(t, err)
	assert.Len(t, entries, 2, "the commit and the blob its tree line names, which this fake stores")
}

func TestSessionStateMachineTransitions(t *testing.T) {
	s := NewSession(ServiceReceivePack)
	assert.Equal(t, Advertising, s.State())
	assert.True(t, s.Advance(Negotiating))
	assert.False(t, s.Advance(Sending), "receive-pack session must go to Receiving, not Sending")
	assert.True(t, s.Advance(Receiving))
	assert.True(t, s.Advance(Reporting))
	assert.True(t, s.Advance(Closed))
	assert.False(t, s.Advance(Negotiating), "closed session accepts no further transitions")
}

func TestSidebandWriterSplitsLargePayloads(t *testing.T) {
	var buf bytes.Buffer
	sb := NewSidebandWriter(pktline.NewEncoder(&buf))
	big := bytes.Repeat([]byte("x"), maxSidebandPayload*2+10)
	require.NoError(t, sb.WritePack(big))

	sc := pktline.NewScanner(&buf)
	var got []byte
	count := 0
	for sc.Scan() {
		count++
		payload := sc.Bytes()
		require.Equal(t, ChannelPack, payload[0])
		got = append(got, payload[1:]...)
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, 3, count)
	assert.Equal(t, big, got)
}
