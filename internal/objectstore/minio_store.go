package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

const (
	// MinioScheme prefixes references issued by MinioObjectStore.
	MinioScheme        = "s3"
	defaultContentType = "application/octet-stream"
)

// MinioConfig holds the connection settings for an S3-compatible endpoint.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
}

// MinioObjectStore implements core.BlobStore on an S3-compatible bucket.
type MinioObjectStore struct {
	client  *minio.Client
	bucket  string
	workDir string
}

// NewMinioObjectStore creates the client. It does not contact the server;
// call EnsureBucket before the first Put.
func NewMinioObjectStore(cfg MinioConfig, workDir string) (*MinioObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &MinioObjectStore{
		client:  client,
		bucket:  cfg.Bucket,
		workDir: workDir,
	}, nil
}

// EnsureBucket creates the bucket when it does not exist yet.
func (m *MinioObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket '%s': %w", m.bucket, err)
	}

	if exists {
		return nil
	}

	err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{})
	if err != nil {
		return fmt.Errorf("failed to create bucket '%s': %w", m.bucket, err)
	}

	return nil
}

// Put uploads data under key and returns its s3:// reference.
func (m *MinioObjectStore) Put(ctx context.Context, data []byte, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: ContentTypeFor(key),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object '%s' to bucket '%s': %w", key, m.bucket, err)
	}

	return Ref{Scheme: MinioScheme, Bucket: m.bucket, Key: key}.String(), nil
}

// Get downloads the object behind ref into a local file and returns its path.
func (m *MinioObjectStore) Get(ctx context.Context, ref string) (string, error) {
	parsed, err := parseOwnRef(ref, MinioScheme, m.bucket)
	if err != nil {
		return "", err
	}

	localPath, err := localBlobPath(m.workDir, parsed.Key)
	if err != nil {
		return "", err
	}

	err = m.client.FGetObject(ctx, m.bucket, parsed.Key, localPath, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to download object '%s' from bucket '%s': %w", parsed.Key, m.bucket, err)
	}

	return localPath, nil
}

var audioContentTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
}

// ContentTypeFor returns the MIME type for an episode key by extension.
func ContentTypeFor(key string) string {
	extension := strings.ToLower(path.Ext(key))
	if contentType, ok := audioContentTypes[extension]; ok {
		return contentType
	}

	contentType := mime.TypeByExtension(extension)
	if contentType == "" {
		return defaultContentType
	}

	return contentType
}
