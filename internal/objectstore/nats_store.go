// Package objectstore provides a NATS JetStream implementation of the
// core.ObjectStore interface, used to mirror generated audio alongside the
// local output directory.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Store mirrors audio files into a JetStream object-store bucket.
type Store struct {
	bucket string
	store  nats.ObjectStore
}

// New binds to the named bucket, creating it when it does not exist yet.
func New(jetstreamContext nats.JetStreamContext, bucketName string) (*Store, error) {
	store, err := jetstreamContext.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucketName,
		Description: fmt.Sprintf("Generated sound effects (%s).", bucketName),
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
			return nil, fmt.Errorf(
				"failed to create object store bucket '%s': %w", bucketName, err,
			)
		}

		store, err = jetstreamContext.ObjectStore(bucketName)
		if err != nil {
			return nil, fmt.Errorf(
				"failed to bind to object store bucket '%s': %w", bucketName, err,
			)
		}
	}

	return &Store{
		bucket: bucketName,
		store:  store,
	}, nil
}

// Upload stores audio bytes under the given key, overwriting any previous
// object with the same key.
func (s *Store) Upload(_ context.Context, key string, data []byte) error {
	_, err := s.store.Put(&nats.ObjectMeta{
		Name:        key,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
		Opts:        nil,
	}, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf(
			"failed to put object '%s' into bucket '%s': %w", key, s.bucket, err,
		)
	}

	return nil
}

// Download retrieves the audio bytes stored under the given key.
func (s *Store) Download(_ context.Context, key string) ([]byte, error) {
	object, err := s.store.Get(key)
	if err != nil {
		return nil, fmt.Errorf(
			"failed to get object '%s' from bucket '%s': %w", key, s.bucket, err,
		)
	}

	data, readErr := io.ReadAll(object)
	closeErr := object.Close()

	if readErr != nil {
		return nil, fmt.Errorf("failed to read object '%s': %w", key, readErr)
	}

	if closeErr != nil {
		return data, fmt.Errorf("failed to close object '%s': %w", key, closeErr)
	}

	return data, nil
}
