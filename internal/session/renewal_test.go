package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulingTwiceLeavesOnePendingTimer(t *testing.T) {
	var renewals atomic.Int32
	scheduler := NewRenewalScheduler(func() { renewals.Add(1) })
	defer scheduler.Stop()

	// Short leases clamp the lead time: both fire at half the remaining
	// life, and the second Schedule cancels the first.
	scheduler.Schedule(time.Now().Add(100 * time.Millisecond))
	scheduler.Schedule(time.Now().Add(100 * time.Millisecond))

	if !scheduler.Pending() {
		t.Fatal("no renewal pending after Schedule")
	}

	time.Sleep(300 * time.Millisecond)
	if got := renewals.Load(); got != 1 {
		t.Errorf("renew fired %d times, want exactly 1", got)
	}
	if scheduler.Pending() {
		t.Error("renewal still pending after firing")
	}
}

func TestStopCancelsPendingRenewal(t *testing.T) {
	var renewals atomic.Int32
	scheduler := NewRenewalScheduler(func() { renewals.Add(1) })

	scheduler.Schedule(time.Now().Add(50 * time.Millisecond))
	scheduler.Stop()

	if scheduler.Pending() {
		t.Error("renewal pending after Stop")
	}
	time.Sleep(150 * time.Millisecond)
	if got := renewals.Load(); got != 0 {
		t.Errorf("renew fired %d times after Stop, want 0", got)
	}
}

func TestScheduleUsesLeadTimeForLongLeases(t *testing.T) {
	scheduler := NewRenewalScheduler(func() {})
	defer scheduler.Stop()

	// A day-long lease renews an hour early, so nothing fires during the
	// test window.
	scheduler.Schedule(time.Now().Add(24 * time.Hour))
	if !scheduler.Pending() {
		t.Fatal("no renewal pending for long lease")
	}
	time.Sleep(50 * time.Millisecond)
	if !scheduler.Pending() {
		t.Error("long lease renewal fired immediately")
	}
}
