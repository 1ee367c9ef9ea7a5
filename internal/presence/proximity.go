package presence

// ProximityEvent reports a peer entering or leaving the local cursor's
// proximity threshold.
type ProximityEvent struct {
	Entered bool
	ID      string
	Player  Player
}

// ProximityTracker turns per-frame cursor positions into enter/leave events.
//
// Each Tick recomputes the nearby set through the grid and diffs it against
// the previous tick: new ids emit one entered event, vanished ids emit one
// left event, ids in both sets emit nothing. The threshold rule is
// inclusive, matching Grid.FindNearby.
type ProximityTracker struct {
	grid      *Grid
	threshold float64
	selfID    string
	previous  map[string]Player
}

// NewProximityTracker tracks proximity for the local cursor identified by
// selfID against peers indexed in grid.
func NewProximityTracker(grid *Grid, threshold float64, selfID string) *ProximityTracker {
	return &ProximityTracker{
		grid:      grid,
		threshold: threshold,
		selfID:    selfID,
		previous:  make(map[string]Player),
	}
}

// Tick diffs the current nearby set against the prior tick and returns the
// resulting events. hasPosition=false means the local cursor is unknown: the
// nearby set is empty, and anything previously nearby emits a left event.
func (t *ProximityTracker) Tick(x, y float64, hasPosition bool) []ProximityEvent {
	current := make(map[string]Player)
	if hasPosition {
		for _, item := range t.grid.FindNearby(x, y, t.threshold, t.selfID) {
			player := Player{ID: item.ID}
			if p, ok := item.Data.(Presence); ok {
				player = p.Player
			}
			current[item.ID] = player
		}
	}

	var events []ProximityEvent
	for id, player := range current {
		if _, seen := t.previous[id]; !seen {
			events = append(events, ProximityEvent{Entered: true, ID: id, Player: player})
		}
	}
	for id, player := range t.previous {
		if _, still := current[id]; !still {
			events = append(events, ProximityEvent{Entered: false, ID: id, Player: player})
		}
	}

	t.previous = current
	return events
}

// Reset clears the tracked set without emitting events, for teardown paths.
func (t *ProximityTracker) Reset() {
	t.previous = make(map[string]Player)
}
