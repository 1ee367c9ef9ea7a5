// Package main runs the one-shot maintenance sweep for orphaned
// shared-element registrations.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	maintenancecmd "github.com/pagemesh/pagemesh/internal/cmd/maintenance"
)

func main() {
	cfg, err := maintenancecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[MAINTENANCE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := maintenancecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("cleanup failed: %v", err)
	}
}
