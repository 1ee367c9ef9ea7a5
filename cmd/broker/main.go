// Package main starts the shared-element broker and handles termination.
//
// The process owns the durable registry and subscription set; element
// data itself stays in the rooms and travels through the relay.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	brokercmd "github.com/pagemesh/pagemesh/internal/cmd/broker"
)

func main() {
	cfg, err := brokercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[BROKER] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := brokercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
