package presence

import "testing"

func tickEvents(t *testing.T, tracker *ProximityTracker, x, y float64) []ProximityEvent {
	t.Helper()
	return tracker.Tick(x, y, true)
}

func TestProximityEnterOnceStayQuietLeaveOnce(t *testing.T) {
	g := NewGrid(50)
	peer := g.Insert("peer", 500, 500, Presence{Player: Player{ID: "stable-peer", Name: "Ada"}})
	tracker := NewProximityTracker(g, 100, "me")

	// Far apart: no events.
	if events := tickEvents(t, tracker, 0, 0); len(events) != 0 {
		t.Fatalf("expected no events while apart, got %v", events)
	}

	// Move within threshold: exactly one entered event with the stable identity.
	events := tickEvents(t, tracker, 450, 500)
	if len(events) != 1 || !events[0].Entered {
		t.Fatalf("expected one entered event, got %v", events)
	}
	if events[0].Player.ID != "stable-peer" {
		t.Fatalf("expected stable identity in event, got %q", events[0].Player.ID)
	}

	// Remaining within threshold across ticks: silence.
	for n := 0; n < 3; n++ {
		if events := tickEvents(t, tracker, 455, 498); len(events) != 0 {
			t.Fatalf("expected no repeat events, got %v", events)
		}
	}

	// Move back out: exactly one left event carrying the peer id.
	events = tickEvents(t, tracker, 0, 0)
	if len(events) != 1 || events[0].Entered {
		t.Fatalf("expected one left event, got %v", events)
	}
	if events[0].ID != peer.ID {
		t.Fatalf("expected left event for %q, got %q", peer.ID, events[0].ID)
	}
}

func TestProximityUnknownPositionEmptiesSet(t *testing.T) {
	g := NewGrid(50)
	g.Insert("peer", 10, 10, Presence{Player: Player{ID: "p"}})
	tracker := NewProximityTracker(g, 100, "me")

	if events := tickEvents(t, tracker, 12, 12); len(events) != 1 {
		t.Fatalf("expected entered event, got %v", events)
	}

	// Losing the local cursor empties the proximity set.
	events := tracker.Tick(0, 0, false)
	if len(events) != 1 || events[0].Entered {
		t.Fatalf("expected left event when position unknown, got %v", events)
	}
	if events := tracker.Tick(0, 0, false); len(events) != 0 {
		t.Fatalf("expected silence while position stays unknown, got %v", events)
	}
}

func TestProximityInclusiveThreshold(t *testing.T) {
	g := NewGrid(50)
	g.Insert("peer", 100, 0, Presence{Player: Player{ID: "p"}})
	tracker := NewProximityTracker(g, 100, "me")

	// Exactly at threshold distance counts as nearby.
	events := tickEvents(t, tracker, 0, 0)
	if len(events) != 1 || !events[0].Entered {
		t.Fatalf("expected inclusive boundary to emit entered, got %v", events)
	}
}
