package session

import (
	"sync"
	"time"
)

// renewalLead is how long before lease expiry the renewal fires.
const renewalLead = time.Hour

// RenewalScheduler keeps at most one pending renewal timer. Scheduling
// for a new lease cancels the previous timer first, so overlapping
// sessions never stack renewals.
type RenewalScheduler struct {
	mu    sync.Mutex
	timer *time.Timer
	renew func()
	now   func() time.Time
}

// NewRenewalScheduler creates a scheduler invoking renew when a lease
// nears expiry.
func NewRenewalScheduler(renew func()) *RenewalScheduler {
	return &RenewalScheduler{
		renew: renew,
		now:   time.Now,
	}
}

// Schedule arms the renewal timer for a lease expiring at expiresAt.
// Leases shorter than the lead time renew at half their remaining life
// instead of firing immediately or in the past.
func (s *RenewalScheduler) Schedule(expiresAt time.Time) {
	remaining := expiresAt.Sub(s.now())
	delay := remaining - renewalLead
	if delay <= 0 {
		delay = remaining / 2
	}
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		s.timer = nil
		s.mu.Unlock()
		if s.renew != nil {
			s.renew()
		}
	})
}

// Stop cancels any pending renewal.
func (s *RenewalScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Pending reports whether a renewal timer is armed.
func (s *RenewalScheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}
