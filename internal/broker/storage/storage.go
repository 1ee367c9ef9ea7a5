package storage

import (
	"context"
	"time"

	"github.com/pagemesh/pagemesh/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// Permission controls what a consumer may do with a shared element.
type Permission string

const (
	PermissionReadOnly  Permission = "read-only"
	PermissionReadWrite Permission = "read-write"
)

// Valid reports whether the permission is a known value.
func (p Permission) Valid() bool {
	return p == PermissionReadOnly || p == PermissionReadWrite
}

// Scope controls which domains may consume a shared element.
type Scope string

const (
	// ScopeDomain restricts access to the registering domain.
	ScopeDomain Scope = "domain"
	// ScopeGlobal allows any requesting domain.
	ScopeGlobal Scope = "global"
)

// Valid reports whether the scope is a known value.
func (s Scope) Valid() bool {
	return s == ScopeDomain || s == ScopeGlobal
}

// Registration is one exposed element in the broker registry.
type Registration struct {
	Domain       string
	ElementID    string
	SourceRoomID string
	Permission   Permission
	Scope        Scope
	Path         string
	UpdatedAt    time.Time
}

// Key returns the registry key for the registration.
func (r Registration) Key() string {
	return ElementKey(r.Domain, r.ElementID)
}

// ElementKey composes the registry key for a domain and element id.
func ElementKey(domain, elementID string) string {
	return domain + "#" + elementID
}

// RegistryStore persists shared-element registrations.
type RegistryStore interface {
	// UpsertRegistration inserts or replaces a registration. Idempotent.
	UpsertRegistration(ctx context.Context, reg Registration) error
	// GetRegistration returns a registration or ErrNotFound.
	GetRegistration(ctx context.Context, domain, elementID string) (Registration, error)
	// ListRegistrations returns all registrations for a domain.
	ListRegistrations(ctx context.Context, domain string) ([]Registration, error)
	// DeleteRegistration removes a registration. Missing rows are not an error.
	DeleteRegistration(ctx context.Context, domain, elementID string) error
}

// SubscriptionStore persists fan-out membership per element key with set
// semantics: adding an existing member is a no-op.
type SubscriptionStore interface {
	AddSubscription(ctx context.Context, elementKey, roomID string) error
	ListSubscribers(ctx context.Context, elementKey string) ([]string, error)
	RemoveSubscription(ctx context.Context, elementKey, roomID string) error
}
