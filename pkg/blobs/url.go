package blobs

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// ParseBlobURL splits a blob URL into a reader for its store and the key
// within it. gs://bucket/key reads from GCS; http(s)://host/dir/key reads
// key relative to http(s)://host/dir.
func ParseBlobURL(s string) (BlobReader, BlobInfo, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, BlobInfo{}, fmt.Errorf("parsing blob url %q: %w", s, err)
	}

	switch u.Scheme {
	case "gs":
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return nil, BlobInfo{}, fmt.Errorf("blob url %q must have the form gs://<bucket>/<key>", s)
		}
		return &GCSBlobstore{Bucket: u.Host}, BlobInfo{Key: key}, nil

	case "http", "https":
		dir, key := path.Split(u.Path)
		if u.Host == "" || key == "" {
			return nil, BlobInfo{}, fmt.Errorf("blob url %q must name an object", s)
		}
		base := *u
		base.Path = dir
		base.RawPath = ""
		return &BlobServer{BaseURL: &base}, BlobInfo{Key: key}, nil

	default:
		return nil, BlobInfo{}, fmt.Errorf("unsupported blob url scheme %q in %q", u.Scheme, s)
	}
}
