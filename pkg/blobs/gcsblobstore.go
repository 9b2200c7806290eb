package blobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/dustin/go-humanize"
	"google.golang.org/api/option"
	"k8s.io/klog/v2"
)

type GCSBlobstore struct {
	Bucket string

	// ClientOptions are passed to storage.NewClient.
	ClientOptions []option.ClientOption
}

var _ BlobReader = (*GCSBlobstore)(nil)

func (j *GCSBlobstore) Download(ctx context.Context, info BlobInfo, destinationPath string) error {
	log := klog.FromContext(ctx)

	objectKey := info.Key
	gcsURL := "gs://" + j.Bucket + "/" + objectKey

	client, err := storage.NewClient(ctx, j.ClientOptions...)
	if err != nil {
		return fmt.Errorf("creating GCS storage client: %w", err)
	}
	defer client.Close()

	log.Info("downloading blob from GCS", "source", gcsURL, "destination", destinationPath)

	startedAt := time.Now()
	r, err := client.Bucket(j.Bucket).Object(objectKey).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return fmt.Errorf("object %q not found: %w", gcsURL, errors.Join(os.ErrNotExist, err))
		}
		return fmt.Errorf("opening object from GCS %q: %w", gcsURL, err)
	}
	defer r.Close()

	n, err := writeToFile(ctx, r, destinationPath)
	if err != nil {
		return fmt.Errorf("downloading from GCS: %w", err)
	}

	log.Info("downloaded blob from GCS", "source", gcsURL, "destination", destinationPath, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))

	return nil
}

// writeToFile streams src into a temp file beside destinationPath and renames
// it into place once complete. A failed copy leaves nothing at destinationPath.
func writeToFile(ctx context.Context, src io.Reader, destinationPath string) (n int64, err error) {
	log := klog.FromContext(ctx)

	f, err := os.CreateTemp(filepath.Dir(destinationPath), ".partial-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		// Close may already have happened; only the removal matters here.
		f.Close()
		if removeErr := os.Remove(f.Name()); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			log.Error(removeErr, "removing partial download", "path", f.Name())
		}
	}()

	n, err = io.Copy(f, src)
	if err != nil {
		return n, fmt.Errorf("copying from upstream: %w", err)
	}
	if err := f.Close(); err != nil {
		return n, fmt.Errorf("closing temp file %q: %w", f.Name(), err)
	}
	if err := os.Rename(f.Name(), destinationPath); err != nil {
		return n, fmt.Errorf("renaming %q to %q: %w", f.Name(), destinationPath, err)
	}
	committed = true
	return n, nil
}
