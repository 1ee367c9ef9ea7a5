// Package storage defines persistence interfaces for the shared-element
// broker. Registrations and subscriptions are durable: both must survive
// relay restarts, unlike awareness or presence state.
package storage
