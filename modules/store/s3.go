package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/mega-forge/mega/modules/lfs"
)

// S3ObjectStore is the content-addressed LFS object backend: every oid (and
// every chunk oid) lives under a bucket key sharded two levels deep by its
// leading hex digits (<aa>/<bb>/<oid>), generalizing pkg/serve/odb/oss.go's ossJoin scheme to a plain
// content-addressed layout with no repository id component, since an LFS
// object store is shared by content hash alone.
type S3ObjectStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	signTTL time.Duration
}

// NewS3ObjectStore builds an object store against the named bucket, loading
// AWS credentials/region the standard SDK way (env, shared config, IMDS).
func NewS3ObjectStore(ctx context.Context, bucket string) (*S3ObjectStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &S3ObjectStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  bucket,
		signTTL: 15 * time.Minute,
	}, nil
}

func objectKey(oid string) string {
	if len(oid) < 4 {
		return "lfs/objects/" + oid
	}
	return fmt.Sprintf("lfs/objects/%s/%s/%s", oid[0:2], oid[2:4], oid)
}

func chunkKey(oid string) string {
	return "lfs/chunks/" + objectKey(oid)
}

// Stat reports an object's size, or os.ErrNotExist-wrapping semantics via
// errors.Is(err, os.ErrNotExist) when the key is absent, matching
// pkg/serve/odb/oss.go's ossExists convention.
func (s *S3ObjectStore) Stat(ctx context.Context, oid string) (int64, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(oid)),
	})
	if err != nil {
		if isNotFound(err) {
			return 0, &os.PathError{Op: "stat", Path: objectKey(oid), Err: os.ErrNotExist}
		}
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}

// SignUpload returns a presigned PUT URL for direct client upload, the way
// ossJoin-keyed bucket.Share does for download but for the write path Git
// LFS's batch API needs.
func (s *S3ObjectStore) SignUpload(ctx context.Context, oid string, size int64) (*lfs.Action, error) {
	req, err := s.presign.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(oid)),
		ContentLength: aws.Int64(size),
	}, s3.WithPresignExpires(s.signTTL))
	if err != nil {
		return nil, err
	}
	header := make(map[string]string, len(req.SignedHeader))
	for k, v := range req.SignedHeader {
		if len(v) > 0 {
			header[k] = v[0]
		}
	}
	return &lfs.Action{Href: req.URL, Header: header, ExpiresAt: time.Now().Add(s.signTTL)}, nil
}

// SignDownload returns a presigned GET URL, matching bucket.Share's
// expiring-link shape generalized from Aliyun OSS to S3 signature v4.
func (s *S3ObjectStore) SignDownload(ctx context.Context, oid string, size int64) (*lfs.Action, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(oid)),
	}, s3.WithPresignExpires(s.signTTL))
	if err != nil {
		return nil, err
	}
	return &lfs.Action{Href: req.URL, ExpiresAt: time.Now().Add(s.signTTL)}, nil
}

// FetchChunk implements lfs.ChunkFetcher by issuing a GET for the chunk's
// own content-addressed key and reading size bytes of its body.
func (s *S3ObjectStore) FetchChunk(ctx context.Context, oid string, size int64) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(chunkKey(oid)),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	buf := make([]byte, size)
	if _, err := io.ReadFull(out.Body, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

var _ lfs.ObjectStore = (*S3ObjectStore)(nil)
var _ lfs.ChunkFetcher = (*S3ObjectStore)(nil)
