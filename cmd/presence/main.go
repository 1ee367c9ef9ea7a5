// Package main starts the presence relay and handles termination.
//
// The process is transport-only: cursor state is ephemeral per room and
// nothing survives a disconnect or restart.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	presencecmd "github.com/pagemesh/pagemesh/internal/cmd/presence"
)

func main() {
	cfg, err := presencecmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[PRESENCE] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := presencecmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
