// Package presence parses presence command flags and composes the
// service entrypoint.
package presence

import (
	"context"
	"flag"
	"fmt"

	entrypoint "github.com/pagemesh/pagemesh/internal/platform/cmd"
	server "github.com/pagemesh/pagemesh/internal/presence/app"
)

// Config holds presence command configuration.
type Config struct {
	HTTPAddr string `env:"PAGEMESH_PRESENCE_HTTP_ADDR" envDefault:":8091"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "presence HTTP listen address")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the presence relay and serves WebSocket traffic.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServicePresence, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr: cfg.HTTPAddr,
		}); err != nil {
			return fmt.Errorf("serve presence: %w", err)
		}
		return nil
	})
}
