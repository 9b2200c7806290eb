package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"flag"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/justinsb/mxinvoke/pkg/engine/fallback"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
)

func TestDecodeSample(t *testing.T) {
	ctx := context.Background()
	encoded, err := base64.StdEncoding.DecodeString(samplePNG)
	if err != nil {
		t.Fatalf("decoding sample: %v", err)
	}

	result, err := decode(ctx, ndarray.NewRuntime(fallback.New()), encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(result.Shape, []int{4, 1, 3}) {
		t.Errorf("expected shape [4 1 3], got %v", result.Shape)
	}
	if result.DType != ndarray.Float32 {
		t.Errorf("expected float32, got %v", result.DType)
	}
	if len(result.Values) != 12 {
		t.Errorf("expected 12 values, got %d", len(result.Values))
	}
}

func TestDecodeKnownPixels(t *testing.T) {
	ctx := context.Background()

	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img.Set(1, 0, color.NRGBA{R: 40, G: 50, B: 60, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}

	result, err := decode(ctx, ndarray.NewRuntime(fallback.New()), buf.Bytes())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !reflect.DeepEqual(result.Shape, []int{1, 2, 3}) {
		t.Errorf("expected shape [1 2 3], got %v", result.Shape)
	}
	if want := []float32{10, 20, 30, 40, 50, 60}; !reflect.DeepEqual(result.Values, want) {
		t.Errorf("expected %v, got %v", want, result.Values)
	}
}

func TestLoadImageSources(t *testing.T) {
	ctx := context.Background()
	want, _ := base64.StdEncoding.DecodeString(samplePNG)

	cfg, err := ParseConfig(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	got, err := loadImage(ctx, cfg)
	if err != nil {
		t.Fatalf("load default failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("expected the built-in sample by default")
	}

	p := filepath.Join(t.TempDir(), "image.png")
	if err := os.WriteFile(p, want, 0o644); err != nil {
		t.Fatalf("writing image: %v", err)
	}
	got, err = loadImage(ctx, Config{ImageFile: p})
	if err != nil {
		t.Fatalf("load file failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected file contents")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(want)
	}))
	defer srv.Close()
	got, err = loadImage(ctx, Config{ImageBlob: srv.URL + "/images/sample.png", DownloadAttempts: 1})
	if err != nil {
		t.Fatalf("load blob failed: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("unexpected blob contents")
	}
}

func TestParseConfigRejectsMultipleSources(t *testing.T) {
	_, err := ParseConfig(flag.NewFlagSet("test", flag.ContinueOnError), []string{"--image-file", "a.png", "--image-blob", "gs://b/k"})
	if err == nil {
		t.Fatalf("expected two image sources to be rejected")
	}
}
