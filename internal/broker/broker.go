// Package broker mediates shared elements across rooms. Rooms expose
// elements through registration; consumer rooms request access through
// references. The broker never holds element data itself: it keeps the
// registry and subscription set durable and fetches snapshots from the
// source room on demand.
package broker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/pagemesh/pagemesh/internal/broker/storage"
	"github.com/pagemesh/pagemesh/internal/platform/errors"
	"github.com/pagemesh/pagemesh/internal/platform/timeouts"
)

// RoomFetcher retrieves the current snapshot of an element from its
// source room.
type RoomFetcher interface {
	FetchSnapshot(ctx context.Context, roomID, elementID string) (json.RawMessage, error)
}

// UpdatePusher delivers a shared-element update to a subscriber room.
type UpdatePusher interface {
	PushUpdate(ctx context.Context, roomID, elementKey string, data json.RawMessage) error
}

// RegistrationRequest exposes one or more elements from a source room.
type RegistrationRequest struct {
	Domain     string             `json:"domain"`
	RoomID     string             `json:"roomId"`
	ElementIDs []string           `json:"elements"`
	Permission storage.Permission `json:"permissions"`
	Scope      storage.Scope      `json:"sharedWith"`
	Path       string             `json:"path,omitempty"`
}

// Reference names one shared element a consumer room wants.
type Reference struct {
	Domain    string `json:"domain"`
	ElementID string `json:"elementId"`
}

// SharedElement is one granted element in an access response.
type SharedElement struct {
	SourceDomain string             `json:"sourceDomain"`
	ElementID    string             `json:"elementId"`
	Data         json.RawMessage    `json:"data"`
	Permissions  storage.Permission `json:"permissions"`
}

// Broker implements shared-element registration, access, and fan-out.
type Broker struct {
	registry      storage.RegistryStore
	subscriptions storage.SubscriptionStore
	fetcher       RoomFetcher
	pusher        UpdatePusher
	logger        *log.Logger
	now           func() time.Time
}

// Option configures optional broker collaborators.
type Option func(*Broker)

// WithClock overrides the broker clock.
func WithClock(now func() time.Time) Option {
	return func(b *Broker) { b.now = now }
}

// WithLogger overrides the broker logger.
func WithLogger(logger *log.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// New creates a broker over the given stores and room transport.
func New(registry storage.RegistryStore, subscriptions storage.SubscriptionStore, fetcher RoomFetcher, pusher UpdatePusher, opts ...Option) *Broker {
	b := &Broker{
		registry:      registry,
		subscriptions: subscriptions,
		fetcher:       fetcher,
		pusher:        pusher,
		logger:        log.Default(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Register validates and persists a registration request. Validation
// covers the whole request before any write, so a rejected request
// leaves no partial registrations behind.
func (b *Broker) Register(ctx context.Context, req RegistrationRequest) error {
	if err := validateRegistration(req); err != nil {
		return err
	}

	updatedAt := b.now()
	for _, elementID := range req.ElementIDs {
		reg := storage.Registration{
			Domain:       req.Domain,
			ElementID:    elementID,
			SourceRoomID: req.RoomID,
			Permission:   req.Permission,
			Scope:        req.Scope,
			Path:         req.Path,
			UpdatedAt:    updatedAt,
		}
		if err := b.registry.UpsertRegistration(ctx, reg); err != nil {
			return err
		}
	}
	return nil
}

func validateRegistration(req RegistrationRequest) error {
	if req.Domain == "" {
		return errors.New(errors.CodeBrokerEmptyDomain, "registration requires a domain")
	}
	if req.RoomID == "" {
		return errors.New(errors.CodeBrokerEmptyRoomID, "registration requires a source room id")
	}
	if len(req.ElementIDs) == 0 {
		return errors.New(errors.CodeBrokerEmptyElementID, "registration requires at least one element id")
	}
	for _, elementID := range req.ElementIDs {
		if elementID == "" {
			return errors.New(errors.CodeBrokerEmptyElementID, "registration element ids must be non-empty")
		}
	}
	if !req.Permission.Valid() {
		return errors.WithMetadata(errors.CodeBrokerInvalidPermission, "unknown permission", map[string]string{
			"permission": string(req.Permission),
		})
	}
	if !req.Scope.Valid() {
		return errors.WithMetadata(errors.CodeBrokerInvalidScope, "unknown scope", map[string]string{
			"scope": string(req.Scope),
		})
	}
	return nil
}

// AccessRequest asks for a set of shared elements on behalf of a
// consumer room.
type AccessRequest struct {
	Domain     string      `json:"domain"`
	RoomID     string      `json:"roomId"`
	References []Reference `json:"sharedElements"`
}

// RequestAccess resolves each reference against the registry and scope
// policy. Denied, unregistered, and unreachable references are omitted
// from the response rather than reported: the consumer cannot probe for
// the existence of elements it is not allowed to see.
func (b *Broker) RequestAccess(ctx context.Context, req AccessRequest) ([]SharedElement, error) {
	if req.Domain == "" {
		return nil, errors.New(errors.CodeBrokerEmptyDomain, "access request requires a domain")
	}
	if req.RoomID == "" {
		return nil, errors.New(errors.CodeBrokerEmptyRoomID, "access request requires a room id")
	}

	granted := make([]SharedElement, 0, len(req.References))
	for _, ref := range req.References {
		element, ok := b.resolveReference(ctx, req.Domain, req.RoomID, ref)
		if !ok {
			continue
		}
		granted = append(granted, element)
	}
	return granted, nil
}

func (b *Broker) resolveReference(ctx context.Context, requestingDomain, requestingRoomID string, ref Reference) (SharedElement, bool) {
	if ref.Domain == "" || ref.ElementID == "" {
		return SharedElement{}, false
	}

	reg, err := b.registry.GetRegistration(ctx, ref.Domain, ref.ElementID)
	if err != nil {
		return SharedElement{}, false
	}

	if !scopeAllows(reg.Scope, reg.Domain, requestingDomain) {
		b.logger.Printf("access denied: %s requested %s (scope %s)", requestingDomain, reg.Key(), reg.Scope)
		return SharedElement{}, false
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeouts.CrossRoomFetch)
	defer cancel()
	data, err := b.fetcher.FetchSnapshot(fetchCtx, reg.SourceRoomID, reg.ElementID)
	if err != nil {
		b.logger.Printf("snapshot fetch failed for %s: %v", reg.Key(), err)
		return SharedElement{}, false
	}

	if err := b.subscriptions.AddSubscription(ctx, reg.Key(), requestingRoomID); err != nil {
		b.logger.Printf("subscription record failed for %s: %v", reg.Key(), err)
		return SharedElement{}, false
	}

	return SharedElement{
		SourceDomain: reg.Domain,
		ElementID:    reg.ElementID,
		Data:         data,
		Permissions:  reg.Permission,
	}, true
}

// scopeAllows applies the sharing policy: domain scope admits only the
// registering domain, global scope admits any domain.
func scopeAllows(scope storage.Scope, registeredDomain, requestingDomain string) bool {
	switch scope {
	case storage.ScopeGlobal:
		return true
	case storage.ScopeDomain:
		return requestingDomain == registeredDomain
	default:
		return false
	}
}

// PropagateUpdate fans an element update out to every subscriber room.
// A failed delivery removes only that subscriber and never interrupts
// delivery to the rest.
func (b *Broker) PropagateUpdate(ctx context.Context, domain, elementID string, data json.RawMessage) error {
	elementKey := storage.ElementKey(domain, elementID)
	subscribers, err := b.subscriptions.ListSubscribers(ctx, elementKey)
	if err != nil {
		return err
	}

	for _, roomID := range subscribers {
		pushCtx, cancel := context.WithTimeout(ctx, timeouts.SubscriberPush)
		err := b.pusher.PushUpdate(pushCtx, roomID, elementKey, data)
		cancel()
		if err == nil {
			continue
		}
		b.logger.Printf("push to %s failed for %s, dropping subscription: %v", roomID, elementKey, err)
		if removeErr := b.subscriptions.RemoveSubscription(ctx, elementKey, roomID); removeErr != nil {
			b.logger.Printf("subscription removal failed for %s -> %s: %v", elementKey, roomID, removeErr)
		}
	}
	return nil
}

// CleanupReport summarizes an orphan sweep over the registry.
type CleanupReport struct {
	Scanned int
	Removed int
}

// CleanupOrphans removes registrations under a domain whose element id
// is absent from the active set. With dryRun the report is computed but
// nothing is mutated.
func (b *Broker) CleanupOrphans(ctx context.Context, domain string, activeIDs []string, dryRun bool) (CleanupReport, error) {
	if domain == "" {
		return CleanupReport{}, errors.New(errors.CodeBrokerEmptyDomain, "cleanup requires a domain")
	}

	active := make(map[string]bool, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = true
	}

	regs, err := b.registry.ListRegistrations(ctx, domain)
	if err != nil {
		return CleanupReport{}, err
	}

	report := CleanupReport{Scanned: len(regs)}
	for _, reg := range regs {
		if active[reg.ElementID] {
			continue
		}
		report.Removed++
		if dryRun {
			continue
		}
		if err := b.Unregister(ctx, reg.Domain, reg.ElementID); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Unregister removes a registration and its subscriber set.
func (b *Broker) Unregister(ctx context.Context, domain, elementID string) error {
	if domain == "" {
		return errors.New(errors.CodeBrokerEmptyDomain, "unregister requires a domain")
	}
	if elementID == "" {
		return errors.New(errors.CodeBrokerEmptyElementID, "unregister requires an element id")
	}

	elementKey := storage.ElementKey(domain, elementID)
	subscribers, err := b.subscriptions.ListSubscribers(ctx, elementKey)
	if err != nil {
		return err
	}
	for _, roomID := range subscribers {
		if err := b.subscriptions.RemoveSubscription(ctx, elementKey, roomID); err != nil {
			return err
		}
	}
	return b.registry.DeleteRegistration(ctx, domain, elementID)
}
