package blobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v5"
	"k8s.io/klog/v2"
)

// Loader downloads blobs, retrying transient failures. A missing blob is
// not retried.
type Loader struct {
	Reader BlobReader

	// MaxAttempts bounds the number of downloads tried; at least one is made.
	MaxAttempts uint
	// InitialInterval is the first retry delay; later delays grow exponentially.
	InitialInterval time.Duration
}

func (l *Loader) Download(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	if l.InitialInterval != 0 {
		b.InitialInterval = l.InitialInterval
	}
	attempts := l.MaxAttempts
	if attempts == 0 {
		attempts = 1
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := l.Reader.Download(ctx, info, destPath)
		if errors.Is(err, os.ErrNotExist) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(attempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Info("blob download failed, will retry", "key", info.Key, "error", err, "retryIn", next)
		}),
	)
	return err
}

// ReadBlob downloads info into a temp directory and returns its contents.
func ReadBlob(ctx context.Context, reader BlobReader, info BlobInfo) ([]byte, error) {
	dir, err := os.MkdirTemp("", "blob")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	p := filepath.Join(dir, "blob")
	if err := reader.Download(ctx, info, p); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("reading downloaded blob: %w", err)
	}
	return b, nil
}
