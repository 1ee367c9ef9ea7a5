// Package presence models live cursor state: the wire encoding exchanged
// with the relay, a uniform-grid spatial index for sub-linear neighbor
// lookups, and the per-tick proximity protocol built on top of it.
package presence
