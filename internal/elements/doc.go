// Package elements binds tagged page elements to shared-document entries.
//
// The replicated document itself is an external collaborator: this package
// talks to it through the Doc seam and renders whatever resolved values it
// reports back, including echoes of its own writes. That keeps every client
// on the merge engine's answer instead of an optimistic local guess.
package elements
