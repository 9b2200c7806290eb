package blobs

import "context"

type BlobReader interface {
	// If no such object exists, Download should return an error for which errors.Is(err, os.ErrNotExist) is true.
	Download(ctx context.Context, info BlobInfo, destPath string) error
}

type BlobInfo struct {
	// Key is the object name within the store.
	Key string
}
