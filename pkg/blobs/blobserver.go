package blobs

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"k8s.io/klog/v2"
)

// BlobServer reads blobs over plain HTTP, one GET per key.
type BlobServer struct {
	// BaseURL is the URL the keys are relative to, typically http://blobserver
	BaseURL *url.URL

	// HTTPClient is used for requests; http.DefaultClient if nil.
	HTTPClient *http.Client
}

var _ BlobReader = &BlobServer{}

func (l *BlobServer) Download(ctx context.Context, info BlobInfo, destPath string) error {
	log := klog.FromContext(ctx)

	u := l.BaseURL.JoinPath(info.Key).String()
	log.Info("downloading from url", "url", u)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	startedAt := time.Now()

	httpClient := l.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("doing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("blob %q not found: %w", u, os.ErrNotExist)
		}
		return fmt.Errorf("unexpected status downloading from %q: %v", u, resp.Status)
	}

	n, err := writeToFile(ctx, resp.Body, destPath)
	if err != nil {
		return fmt.Errorf("downloading from %q: %w", u, err)
	}

	log.Info("downloaded blob", "url", u, "size", humanize.Bytes(uint64(n)), "duration", time.Since(startedAt))

	return nil
}
