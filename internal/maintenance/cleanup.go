// Package maintenance sweeps orphaned element state: document entries
// and broker registrations whose element is no longer present on the
// page that created them.
package maintenance

import (
	"context"
	"log"

	"github.com/pagemesh/pagemesh/internal/broker"
	"github.com/pagemesh/pagemesh/internal/elements"
)

// Report summarizes one cleanup sweep.
type Report struct {
	DocScanned      int
	DocRemoved      int
	RegistryScanned int
	RegistryRemoved int
}

// Cleaner removes orphaned state. Either collaborator may be nil, in
// which case its half of the sweep is skipped.
type Cleaner struct {
	doc    elements.Doc
	broker *broker.Broker
	logger *log.Logger
}

// NewCleaner creates a cleaner over a shared document and a broker.
func NewCleaner(doc elements.Doc, b *broker.Broker, logger *log.Logger) *Cleaner {
	if logger == nil {
		logger = log.Default()
	}
	return &Cleaner{doc: doc, broker: b, logger: logger}
}

// Run removes document entries under tag and broker registrations under
// domain whose element id is absent from activeIDs. With dryRun the
// report is computed but nothing is mutated.
func (c *Cleaner) Run(ctx context.Context, tag, domain string, activeIDs []string, dryRun bool) (Report, error) {
	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	var report Report
	if c.doc != nil {
		entries := c.doc.Entries(tag)
		report.DocScanned = len(entries)
		for elementID := range entries {
			if active[elementID] {
				continue
			}
			report.DocRemoved++
			if dryRun {
				continue
			}
			c.doc.Delete(tag, elementID)
			c.logger.Printf("removed orphaned document entry %s/%s", tag, elementID)
		}
	}

	if c.broker != nil && domain != "" {
		brokerReport, err := c.broker.CleanupOrphans(ctx, domain, activeIDs, dryRun)
		if err != nil {
			return report, err
		}
		report.RegistryScanned = brokerReport.Scanned
		report.RegistryRemoved = brokerReport.Removed
	}

	return report, nil
}
