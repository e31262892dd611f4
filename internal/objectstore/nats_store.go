package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsScheme prefixes references issued by NatsObjectStore.
const NatsScheme = "nats"

// NatsObjectStore implements core.BlobStore on a NATS JetStream object store bucket.
type NatsObjectStore struct {
	store   nats.ObjectStore
	bucket  string
	workDir string
}

// NewNatsObjectStore creates the bucket, or binds to it when it already exists.
// Blobs fetched with Get are written under workDir; an empty workDir selects
// the service work directory.
func NewNatsObjectStore(jetstreamContext nats.JetStreamContext, bucketName, workDir string) (*NatsObjectStore, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Rendered podcast episodes for the %s bucket.", bucketName),
		TTL:         0,
		MaxBytes:    0,
		Storage:     nats.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Metadata:    nil,
		Compression: false,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) {
			return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucketName, err)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucketName, err)
		}
	}

	return &NatsObjectStore{
		store:   store,
		bucket:  bucketName,
		workDir: workDir,
	}, nil
}

// Put saves data under key and returns its nats:// reference.
func (n *NatsObjectStore) Put(_ context.Context, data []byte, key string) (string, error) {
	if key == "" {
		return "", ErrEmptyKey
	}

	_, err := n.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: path.Base(key),
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, n.bucket, err)
	}

	return Ref{Scheme: NatsScheme, Bucket: n.bucket, Key: key}.String(), nil
}

// Get downloads the blob behind ref into a local file and returns its path.
func (n *NatsObjectStore) Get(_ context.Context, ref string) (string, error) {
	parsed, err := parseOwnRef(ref, NatsScheme, n.bucket)
	if err != nil {
		return "", err
	}

	obj, err := n.store.Get(parsed.Key)
	if err != nil {
		return "", fmt.Errorf("failed to get object '%s' from bucket '%s': %w", parsed.Key, n.bucket, err)
	}

	localPath, writeErr := writeLocalBlob(n.workDir, parsed.Key, obj)
	closeErr := obj.Close()

	if writeErr != nil {
		return "", writeErr
	}

	if closeErr != nil {
		return "", fmt.Errorf("failed to close object '%s': %w", parsed.Key, closeErr)
	}

	return localPath, nil
}

// Download returns the bytes behind ref.
func (n *NatsObjectStore) Download(_ context.Context, ref string) ([]byte, error) {
	parsed, err := parseOwnRef(ref, NatsScheme, n.bucket)
	if err != nil {
		return nil, err
	}

	obj, err := n.store.Get(parsed.Key)
	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", parsed.Key, n.bucket, err)
	}

	data, readErr := io.ReadAll(obj)
	closeErr := obj.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", parsed.Key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", parsed.Key, closeErr)
	}

	return data, nil
}
