// Package maintenance parses maintenance command flags and runs orphan
// cleanup against the broker store.
package maintenance

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"github.com/pagemesh/pagemesh/internal/broker"
	"github.com/pagemesh/pagemesh/internal/broker/storage/sqlite"
	"github.com/pagemesh/pagemesh/internal/maintenance"
	entrypoint "github.com/pagemesh/pagemesh/internal/platform/cmd"
)

// Config holds maintenance command configuration.
type Config struct {
	StoragePath string `env:"PAGEMESH_BROKER_STORAGE_PATH" envDefault:"pagemesh-broker.db"`
	Domain      string `env:"PAGEMESH_MAINTENANCE_DOMAIN"`

	ActiveIDs string
	DryRun    bool
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "broker SQLite database path")
	fs.StringVar(&cfg.Domain, "domain", cfg.Domain, "domain whose registrations are swept")
	fs.StringVar(&cfg.ActiveIDs, "active", cfg.ActiveIDs, "comma-separated element ids still present on the page")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "report orphan counts without removing anything")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run opens the broker store and sweeps orphaned registrations.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceMaintenance, func(ctx context.Context) error {
		if strings.TrimSpace(cfg.Domain) == "" {
			return fmt.Errorf("domain is required")
		}

		store, err := sqlite.Open(cfg.StoragePath)
		if err != nil {
			return fmt.Errorf("open broker store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				log.Printf("close broker store: %v", err)
			}
		}()

		cleaner := maintenance.NewCleaner(nil, broker.New(store, store, nil, nil), nil)
		report, err := cleaner.Run(ctx, "", cfg.Domain, splitActiveIDs(cfg.ActiveIDs), cfg.DryRun)
		if err != nil {
			return fmt.Errorf("run cleanup: %w", err)
		}

		mode := "removed"
		if cfg.DryRun {
			mode = "would remove"
		}
		log.Printf("scanned %d registrations for %s, %s %d orphans",
			report.RegistryScanned, cfg.Domain, mode, report.RegistryRemoved)
		return nil
	})
}

func splitActiveIDs(raw string) []string {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}
