// Package timeouts defines shared timeout constants used across services.
// Centralizing these values prevents drift between service boundaries and
// makes the durations discoverable.
package timeouts

import "time"

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long an HTTP server waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second

// CrossRoomFetch caps the wait for a snapshot request issued to another
// room. The broker degrades to a partial result when it elapses.
const CrossRoomFetch = 3 * time.Second

// SubscriberPush caps a single fan-out delivery to one subscriber room.
const SubscriberPush = 2 * time.Second
