// Package sheetsync parses sheetsync service flags and launches the service.
package sheetsync

import (
	"context"
	"flag"

	entrypoint "github.com/rowanvale/sheetsync/internal/platform/cmd"
	server "github.com/rowanvale/sheetsync/internal/services/vaultsync/app"
)

// Config holds sheetsync command configuration.
type Config struct {
	Port int `env:"SHEETSYNC_PORT" envDefault:"8080"`
}

// ParseConfig parses environment and flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The sheetsync HTTP server port")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the sheetsync HTTP API service.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceSheetSync, func(context.Context) error {
		return server.Run(ctx, cfg.Port)
	})
}
