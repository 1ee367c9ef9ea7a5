// Package broker parses broker command flags and composes the service
// entrypoint.
package broker

import (
	"context"
	"flag"
	"fmt"

	server "github.com/pagemesh/pagemesh/internal/broker/app"
	entrypoint "github.com/pagemesh/pagemesh/internal/platform/cmd"
)

// Config holds broker command configuration.
type Config struct {
	HTTPAddr     string `env:"PAGEMESH_BROKER_HTTP_ADDR"    envDefault:":8090"`
	StoragePath  string `env:"PAGEMESH_BROKER_STORAGE_PATH" envDefault:"pagemesh-broker.db"`
	RelayBaseURL string `env:"PAGEMESH_RELAY_BASE_URL"      envDefault:"http://localhost:8091"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "broker HTTP listen address")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "broker SQLite database path")
	fs.StringVar(&cfg.RelayBaseURL, "relay-base-url", cfg.RelayBaseURL, "relay base URL for snapshot fetches and pushes")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the broker app and serves the side-channel.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceBroker, func(ctx context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:     cfg.HTTPAddr,
			StoragePath:  cfg.StoragePath,
			RelayBaseURL: cfg.RelayBaseURL,
		}); err != nil {
			return fmt.Errorf("serve broker: %w", err)
		}
		return nil
	})
}
