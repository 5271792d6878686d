package lfs

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	present map[string]int64
}

func (s *fakeObjectStore) Stat(ctx context.Context, oid string) (int64, error) {
	if size, ok := s.present[oid]; ok {
		return size, nil
	}
	return 0, os.ErrNotExist
}

func (s *fakeObjectStore) SignUpload(ctx context.Context, oid string, size int64) (*Action, error) {
	return &Action{Href: "https://example.com/upload/" + oid}, nil
}

func (s *fakeObjectStore) SignDownload(ctx context.Context, oid string, size int64) (*Action, error) {
	return &Action{Href: "https://example.com/download/" + oid}, nil
}

func TestBatchUploadSkipsExistingObjects(t *testing.T) {
	presentOid := "0000000000000000000000000000000000000000000000000000000000aa"
	store := &fakeObjectStore{present: map[string]int64{presentOid: 10}}

	resp := Batch(context.Background(), store, &BatchRequest{
		Operation: OpUpload,
		Objects: []BatchObject{
			{Oid: presentOid, Size: 10},
			{Oid: "0000000000000000000000000000000000000000000000000000000000bb", Size: 20},
		},
	})

	require.Len(t, resp.Objects, 2)
	assert.Nil(t, resp.Objects[0].Actions, "already-present object needs no upload action")
	require.NotNil(t, resp.Objects[1].Actions)
	assert.Contains(t, resp.Objects[1].Actions["upload"].Href, "bb")
}

func TestBatchDownloadMissingObjectReturnsError(t *testing.T) {
	store := &fakeObjectStore{present: map[string]int64{}}
	resp := Batch(context.Background(), store, &BatchRequest{
		Operation: OpDownload,
		Objects:   []BatchObject{{Oid: "0000000000000000000000000000000000000000000000000000000000cc", Size: 5}},
	})
	require.Len(t, resp.Objects, 1)
	require.NotNil(t, resp.Objects[0].Error)
	assert.Equal(t, 404, resp.Objects[0].Error.Code)
}

func TestBatchRejectsMalformedOid(t *testing.T) {
	store := &fakeObjectStore{present: map[string]int64{}}
	resp := Batch(context.Background(), store, &BatchRequest{
		Operation: OpUpload,
		Objects:   []BatchObject{{Oid: "not-a-real-oid", Size: 1}},
	})
	require.NotNil(t, resp.Objects[0].Error)
	assert.Equal(t, 422, resp.Objects[0].Error.Code)
}
