package main

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/justinsb/mxinvoke/pkg/blobs"
	"github.com/justinsb/mxinvoke/pkg/engine"
	"github.com/justinsb/mxinvoke/pkg/ndarray"
	"k8s.io/klog/v2"
)

func main() {
	ctx := context.Background()
	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	klog.InitFlags(nil)
	cfg, err := ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		return err
	}

	log := klog.FromContext(ctx)

	encoded, err := loadImage(ctx, cfg)
	if err != nil {
		return err
	}

	e, err := engine.NewEngine(cfg.Engine)
	if err != nil {
		return err
	}
	rt := ndarray.NewRuntime(e)

	result, err := decode(ctx, rt, encoded)
	if err != nil {
		return err
	}
	log.Info("decoded image", "shape", result.Shape, "dtype", result.DType)
	fmt.Printf("%v %v\n", result.Shape, result.Values)
	return nil
}

func loadImage(ctx context.Context, cfg Config) ([]byte, error) {
	switch {
	case cfg.ImageFile != "":
		b, err := os.ReadFile(cfg.ImageFile)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		return b, nil

	case cfg.ImageBlob != "":
		reader, info, err := blobs.ParseBlobURL(cfg.ImageBlob)
		if err != nil {
			return nil, err
		}
		loader := &blobs.Loader{
			Reader:          reader,
			MaxAttempts:     cfg.DownloadAttempts,
			InitialInterval: 500 * time.Millisecond,
		}
		b, err := blobs.ReadBlob(ctx, loader, info)
		if err != nil {
			return nil, fmt.Errorf("downloading image: %w", err)
		}
		return b, nil

	default:
		b, err := base64.StdEncoding.DecodeString(cfg.Image)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 image: %w", err)
		}
		return b, nil
	}
}

type decoded struct {
	Shape  []int
	DType  ndarray.DType
	Values []float32
}

// decode runs the engine's image decoder over encoded and converts the
// pixels to float32.
func decode(ctx context.Context, rt *ndarray.Runtime, encoded []byte) (*decoded, error) {
	buf, err := rt.Create(ctx, []int{len(encoded)}, "uint8")
	if err != nil {
		return nil, fmt.Errorf("creating buffer: %w", err)
	}
	defer buf.Close()
	if err := buf.CopyFromHost(ctx, encoded); err != nil {
		return nil, fmt.Errorf("copying image into buffer: %w", err)
	}

	img, err := rt.Call(ctx, "_cvimdecode", []ndarray.Argument{buf}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if img == nil {
		return nil, fmt.Errorf("decoding image: no output")
	}
	defer img.Close()

	shape, err := img.Shape(ctx)
	if err != nil {
		return nil, err
	}
	arr, err := rt.Create(ctx, shape, "float32")
	if err != nil {
		return nil, fmt.Errorf("creating float32 array: %w", err)
	}
	defer arr.Close()
	if err := img.CopyTo(ctx, arr); err != nil {
		return nil, fmt.Errorf("converting pixels: %w", err)
	}

	arrShape, err := arr.Shape(ctx)
	if err != nil {
		return nil, err
	}
	dtype, err := arr.DType(ctx)
	if err != nil {
		return nil, err
	}
	data, err := arr.CopyToHost(ctx)
	if err != nil {
		return nil, err
	}
	values, err := float32s(data)
	if err != nil {
		return nil, err
	}
	return &decoded{Shape: arrShape, DType: dtype, Values: values}, nil
}

func float32s(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%d bytes is not a whole number of float32 values", len(data))
	}
	values := make([]float32, len(data)/4)
	for i := range values {
		values[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return values, nil
}
