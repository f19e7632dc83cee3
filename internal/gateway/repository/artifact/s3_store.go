package artifact

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// maxPresignTTL is the longest expiry S3 accepts for presigned URLs.
const maxPresignTTL = 7 * 24 * time.Hour

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix namespaces every key, e.g. "prod/".
	Prefix string
	UseSSL bool
}

// S3Store keeps blueprint objects in an S3 compatible bucket (MinIO locally).
// The bucket is created on first use.
type S3Store struct {
	client *minio.Client
	bucket string
	region string
	prefix string

	bucketOnce sync.Once
	bucketErr  error
}

func NewS3Store(cfg S3Config) (*S3Store, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	bucket := strings.TrimSpace(cfg.Bucket)
	switch {
	case endpoint == "":
		return nil, errors.New("s3 endpoint is required")
	case access == "" || secret == "":
		return nil, errors.New("s3 credentials are required")
	case bucket == "":
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	prefix := normalizePath(cfg.Prefix)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, region: region, prefix: prefix}, nil
}

func (s *S3Store) key(p string) (string, error) {
	k := normalizePath(p)
	if k == "" {
		return "", errors.New("path is required")
	}
	return s.prefix + k, nil
}

func (s *S3Store) ready(ctx context.Context) error {
	s.bucketOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.bucketErr = fmt.Errorf("check bucket %s: %w", s.bucket, err)
			return
		}
		if !exists {
			if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
				s.bucketErr = fmt.Errorf("create bucket %s: %w", s.bucket, err)
			}
		}
	})
	return s.bucketErr
}

// Put uploads content with its SHA-256 recorded as user metadata. Zip
// bundles are served as attachments.
func (s *S3Store) Put(ctx context.Context, p string, content []byte, contentType string, metadata map[string]string) error {
	key, err := s.key(p)
	if err != nil {
		return err
	}
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(contentType) == "" {
		contentType = "application/octet-stream"
	}
	meta := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		meta[k] = v
	}
	sum := sha256.Sum256(content)
	meta["sha256"] = hex.EncodeToString(sum[:])

	opts := minio.PutObjectOptions{ContentType: contentType, UserMetadata: meta}
	if contentType == "application/zip" {
		opts.ContentDisposition = attachment(key)
	}
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(content), int64(len(content)), opts); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, p string) ([]byte, error) {
	key, err := s.key(p)
	if err != nil {
		return nil, err
	}
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapS3Error(key, err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapS3Error(key, err)
	}
	return data, nil
}

// SignedURL presigns a download of an existing object. The TTL is clamped
// to what S3 allows.
func (s *S3Store) SignedURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	key, err := s.key(p)
	if err != nil {
		return "", err
	}
	if _, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{}); err != nil {
		return "", mapS3Error(key, err)
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if ttl > maxPresignTTL {
		ttl = maxPresignTTL
	}
	params := url.Values{}
	params.Set("response-content-disposition", attachment(key))
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, params)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

func attachment(key string) string {
	return fmt.Sprintf("attachment; filename=%q", path.Base(key))
}

func mapS3Error(key string, err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%s: %w", key, ErrNotFound)
	}
	return fmt.Errorf("get %s: %w", key, err)
}
