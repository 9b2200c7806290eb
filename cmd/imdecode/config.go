package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// samplePNG is a 1x4 RGBA image.
const samplePNG = "iVBORw0KGgoAAAANSUhEUgAAAAEAAAAECAYAAABP2FU6AAAABHNCSVQICAgIfAhkiAAAAB1JREFUCJlj+H+D4T8Dg9r//0z1LowMTAevOTAAAFe6B5o50EKmAAAAAElFTkSuQmCC"

type Config struct {
	Image            string `env:"IMAGE"`
	ImageFile        string `env:"IMAGE_FILE"`
	ImageBlob        string `env:"IMAGE_BLOB"`
	DownloadAttempts uint   `env:"DOWNLOAD_ATTEMPTS" envDefault:"3"`
	Engine           string `env:"TENSOR_ENGINE"     envDefault:"fallback"`
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Image, "image", cfg.Image, "base64-encoded image; defaults to a built-in sample")
	fs.StringVar(&cfg.ImageFile, "image-file", cfg.ImageFile, "path of an image file to decode")
	fs.StringVar(&cfg.ImageBlob, "image-blob", cfg.ImageBlob, "blob url of an image to decode (gs://bucket/key or http(s)://host/prefix/key)")
	fs.UintVar(&cfg.DownloadAttempts, "download-attempts", cfg.DownloadAttempts, "maximum attempts when downloading --image-blob")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "tensor engine: fallback or mxnet")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	sources := 0
	for _, s := range []string{cfg.Image, cfg.ImageFile, cfg.ImageBlob} {
		if s != "" {
			sources++
		}
	}
	if sources > 1 {
		return Config{}, fmt.Errorf("only one of --image, --image-file and --image-blob may be set")
	}
	if sources == 0 {
		cfg.Image = samplePNG
	}
	return cfg, nil
}
