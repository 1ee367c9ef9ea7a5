package room

import (
	"net/url"
	"strconv"
	"strings"
)

// LocalHost is the sentinel host for locally opened files. Collapsing all
// file origins into one room keeps developer machines from fragmenting the
// room namespace and leaves a single prunable room behind.
const LocalHost = "local"

const (
	// MaxIDLength bounds every derived room id.
	MaxIDLength = 255
	// truncateAt is where oversized ids are cut before the hash suffix.
	truncateAt = 200
)

// Scope selects how much of the page location participates in the room id.
type Scope string

const (
	// ScopePage scopes the room to the full normalized path.
	ScopePage Scope = "page"
	// ScopeSection scopes the room to the first path segment.
	ScopeSection Scope = "section"
	// ScopeDomain scopes the room to the host alone.
	ScopeDomain Scope = "domain"
)

// DeriveID computes the canonical room id for a page host and path.
//
// The derivation is deterministic: two clients loading the same logical page
// (with or without "www.", default ports, or a static-hosting file
// extension) converge on the same id. The encoded result never exceeds
// MaxIDLength characters; overflow is truncated and suffixed with a short
// stable hash so distinct long paths stay distinguishable.
func DeriveID(host, path string) string {
	host = normalizeHost(host)
	path = normalizePath(path)

	composed := host
	if path != "/" {
		composed = host + "-" + strings.TrimPrefix(path, "/")
	}

	encoded := url.PathEscape(composed)
	if len(encoded) <= MaxIDLength {
		return encoded
	}
	return encoded[:truncateAt] + "-" + hashBase36(encoded[truncateAt:])
}

// DeriveScopedID computes the room id for a semantic scope of the same page.
//
// Two independently configured features requesting the same scope get
// identical ids, so they share one relay connection instead of opening a
// redundant one.
func DeriveScopedID(host, path string, scope Scope) string {
	switch scope {
	case ScopeDomain:
		return DeriveID(host, "/")
	case ScopeSection:
		return DeriveID(host, firstSegment(path))
	default:
		return DeriveID(host, path)
	}
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" || strings.HasPrefix(host, "file:") {
		return LocalHost
	}
	host = strings.TrimPrefix(host, "www.")
	host = strings.TrimSuffix(host, ":80")
	host = strings.TrimSuffix(host, ":443")
	if host == "" {
		return LocalHost
	}
	return host
}

func normalizePath(path string) string {
	path = strings.TrimSpace(path)
	if path == "" || path == "/" {
		return "/"
	}

	if segment, ok := localFileSegment(path); ok {
		path = "/" + segment
	}

	path = stripOneExtension(path)
	if path == "" || path == "/" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return strings.TrimSuffix(path, "/")
}

// localFileSegment collapses absolute machine paths to their final segment.
// A path like /Users/dev/project/index.html must not fragment rooms by the
// directory layout of whoever opened it.
func localFileSegment(path string) (string, bool) {
	lower := strings.ToLower(path)
	isLocal := strings.HasPrefix(lower, "/users/") || strings.HasPrefix(lower, "/home/") || hasDrivePrefix(path)
	if !isLocal {
		return "", false
	}
	trimmed := strings.TrimSuffix(strings.ReplaceAll(path, "\\", "/"), "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 || idx == len(trimmed)-1 {
		return "", false
	}
	return trimmed[idx+1:], true
}

func hasDrivePrefix(path string) bool {
	if len(path) < 3 {
		return false
	}
	drive := path[0]
	isLetter := (drive >= 'a' && drive <= 'z') || (drive >= 'A' && drive <= 'Z')
	return isLetter && path[1] == ':' && (path[2] == '/' || path[2] == '\\')
}

// stripOneExtension drops exactly one trailing file extension so /page.html
// and /page collapse into one room under static hosting.
func stripOneExtension(path string) string {
	slash := strings.LastIndex(path, "/")
	dot := strings.LastIndex(path, ".")
	if dot <= slash+1 {
		return path
	}
	return path[:dot]
}

func firstSegment(path string) string {
	path = strings.TrimPrefix(strings.TrimSpace(path), "/")
	if path == "" {
		return "/"
	}
	if idx := strings.Index(path, "/"); idx >= 0 {
		path = path[:idx]
	}
	return "/" + path
}

// hashBase36 is a 32-bit rolling hash rendered base-36. It only needs to be
// stable across releases and cheap; collisions past 200 shared characters
// are acceptable.
func hashBase36(s string) string {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return strconv.FormatUint(uint64(h), 36)
}
