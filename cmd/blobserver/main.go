package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/justinsb/mxinvoke/pkg/blobs"
	"k8s.io/klog/v2"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

type Config struct {
	Listen           string `env:"LISTEN"            envDefault:":8080"`
	CacheDir         string `env:"CACHE_DIR"         envDefault:"~/.cache/blobserver/blobs"`
	CacheBucket      string `env:"CACHE_BUCKET"`
	DownloadAttempts uint   `env:"DOWNLOAD_ATTEMPTS" envDefault:"3"`
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "listen address")
	fs.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir, "cache directory")
	fs.StringVar(&cfg.CacheBucket, "cache-bucket", cfg.CacheBucket, "GCS bucket (gs://<bucketName>) to fill cache misses from; empty serves only the cache")
	fs.UintVar(&cfg.DownloadAttempts, "download-attempts", cfg.DownloadAttempts, "maximum attempts per GCS download")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func run(ctx context.Context) error {
	log := klog.FromContext(ctx)

	klog.InitFlags(nil)
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	cacheDir := cfg.CacheDir
	if strings.HasPrefix(cacheDir, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("getting home directory: %w", err)
		}
		cacheDir = filepath.Join(homeDir, strings.TrimPrefix(cacheDir, "~/"))
	}

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		return fmt.Errorf("creating cache directory %q: %w", cacheDir, err)
	}

	blobCache := &blobCache{
		BaseDir: cacheDir,
	}

	if cfg.CacheBucket != "" {
		bucket, ok := strings.CutPrefix(cfg.CacheBucket, "gs://")
		if !ok || bucket == "" {
			return fmt.Errorf("cache bucket must be a GCS bucket URL (gs://<bucketName>)")
		}
		log.Info("using GCS cache", "bucket", bucket)
		blobCache.upstream = &blobs.Loader{
			Reader:          &blobs.GCSBlobstore{Bucket: bucket},
			MaxAttempts:     cfg.DownloadAttempts,
			InitialInterval: time.Second,
		}
	}

	s := &http.Server{
		Addr:              cfg.Listen,
		Handler:           &httpServer{blobCache: blobCache},
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.Info("serving blobs", "listen", cfg.Listen, "cacheDir", cacheDir)
	if err := s.ListenAndServe(); err != nil {
		return fmt.Errorf("serving on %q: %w", cfg.Listen, err)
	}

	return nil
}

type httpServer struct {
	blobCache *blobCache
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	if len(tokens) == 1 && tokens[0] != "" {
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			s.serveGETBlob(w, r, tokens[0])
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	http.Error(w, "not found", http.StatusNotFound)
}

func (s *httpServer) serveGETBlob(w http.ResponseWriter, r *http.Request, key string) {
	ctx := r.Context()

	log := klog.FromContext(ctx)

	if !validKey(key) {
		http.Error(w, "invalid blob key", http.StatusBadRequest)
		return
	}

	f, err := s.blobCache.GetBlob(ctx, key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		log.Error(err, "error getting blob", "key", key)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		log.Error(err, "error reading blob", "key", key)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	log.V(2).Info("serving blob", "path", f.Name())
	http.ServeContent(w, r, key, stat.ModTime(), f)
}

// validKey rejects keys that could escape the cache directory.
func validKey(key string) bool {
	return key != "." && key != ".." && !strings.ContainsAny(key, `/\`) && !strings.HasPrefix(key, ".")
}

type blobCache struct {
	BaseDir string

	// upstream fills cache misses; nil serves only what is cached.
	upstream blobs.BlobReader
}

func (c *blobCache) GetBlob(ctx context.Context, key string) (*os.File, error) {
	localPath := filepath.Join(c.BaseDir, key)
	f, err := os.Open(localPath)
	if err == nil {
		return f, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("opening blob %q: %w", key, err)
	}

	if c.upstream == nil {
		return nil, fmt.Errorf("blob %q not found: %w", key, os.ErrNotExist)
	}
	if err := c.upstream.Download(ctx, blobs.BlobInfo{Key: key}, localPath); err != nil {
		return nil, fmt.Errorf("filling blob %q: %w", key, err)
	}
	f, err = os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("opening blob %q: %w", key, err)
	}
	return f, nil
}
