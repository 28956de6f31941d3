// Package archive writes generated exports to the Firebase Cloud Storage bucket.
package archive

import (
	"context"
	"errors"
	"fmt"

	gcs "cloud.google.com/go/storage"
	"firebase.google.com/go/v4/storage"
	"go.uber.org/zap"
)

// BucketArchiver stores objects in one bucket.
type BucketArchiver struct {
	bucket *gcs.BucketHandle
	logger *zap.Logger
}

// NewFirebaseArchiver uses the app's default bucket (STORAGE_BUCKET).
func NewFirebaseArchiver(client *storage.Client, logger *zap.Logger) (*BucketArchiver, error) {
	if client == nil {
		return nil, errors.New("storage client is not initialized")
	}
	bucket, err := client.DefaultBucket()
	if err != nil {
		return nil, fmt.Errorf("failed to open default bucket: %w", err)
	}
	return &BucketArchiver{bucket: bucket, logger: logger.Named("archive")}, nil
}

// objectWriter is the part of *storage.Writer that Put drives.
type objectWriter interface {
	Write(p []byte) (int, error)
	Close() error
}

// Put uploads data to path.
func (a *BucketArchiver) Put(ctx context.Context, path, contentType string, data []byte) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	w := a.bucket.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	return a.write(w, cancel, path, data)
}

// write finalizes the object only after every byte is written. A failed write aborts the upload
// through its context, since Close would commit the partial object.
func (a *BucketArchiver) write(w objectWriter, abort context.CancelFunc, path string, data []byte) error {
	if _, err := w.Write(data); err != nil {
		abort()
		return fmt.Errorf("failed to write object '%s': %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize object '%s': %w", path, err)
	}
	a.logger.Debug("Export archived", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
