package main

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Server    string `env:"TENSOR_SERVER" envDefault:"127.0.0.1:9876"`
	Operators bool
	Prefix    string
}

func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Server, "server", cfg.Server, "tensorserver address")
	fs.BoolVar(&cfg.Operators, "operators", cfg.Operators, "list the server's operators instead of calculating")
	fs.StringVar(&cfg.Prefix, "prefix", cfg.Prefix, "with --operators, only list operators with this name prefix")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
