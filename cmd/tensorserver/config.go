package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds tensorserver configuration. Environment variables provide
// defaults; flags override them.
type Config struct {
	Listen        string `env:"LISTEN"         envDefault:":9876"`
	MetricsListen string `env:"METRICS_LISTEN" envDefault:":9877"`
	Engine        string `env:"TENSOR_ENGINE"  envDefault:"fallback"`
}

// ParseConfig parses the environment, then flags from args.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "address to serve gRPC on")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "address to serve /metrics on; empty disables")
	fs.StringVar(&cfg.Engine, "engine", cfg.Engine, "tensor engine: fallback or mxnet")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
