// Package room derives canonical room identifiers from page locations.
//
// Independent clients viewing the same logical page must land in the same
// room, so derivation is a pure function of the normalized host and path.
package room
