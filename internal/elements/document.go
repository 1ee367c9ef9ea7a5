package elements

import (
	"encoding/json"
	"sync"
)

// Event reports one document entry change.
type Event struct {
	Tag       string
	ElementID string
	Data      json.RawMessage
	Deleted   bool
}

// Doc is the seam to the replicated shared document. Implementations must
// provide convergent set semantics and notify observers of every entry
// change, including changes caused by the observer's own writes.
type Doc interface {
	// Get reads the current entry for a key.
	Get(tag, elementID string) (json.RawMessage, bool)
	// Set writes an entry. Fire-and-forget: resolution happens in the
	// merge layer and surfaces through observers.
	Set(tag, elementID string, data json.RawMessage)
	// Delete removes an entry.
	Delete(tag, elementID string)
	// Entries snapshots all entries under a tag.
	Entries(tag string) map[string]json.RawMessage
	// Observe registers a change callback and returns its cancel function.
	Observe(fn func(Event)) (cancel func())
}

// AwarenessEvent reports one connection's ephemeral value change for an
// element.
type AwarenessEvent struct {
	Tag          string
	ElementID    string
	ConnectionID string
	Value        json.RawMessage
	Cleared      bool
}

// Awareness is the seam to the relay's ephemeral awareness channel. Values
// are per-connection and vanish on disconnect; nothing here is durable.
type Awareness interface {
	// SetLocal updates this connection's slot for an element and triggers
	// the broadcast.
	SetLocal(tag, elementID string, value json.RawMessage)
	// All returns every connection's current value for an element.
	All(tag, elementID string) map[string]json.RawMessage
	// Observe registers a change callback and returns its cancel function.
	Observe(fn func(AwarenessEvent)) (cancel func())
}

type docKey struct {
	tag       string
	elementID string
}

// MemDoc is the in-process replica used by handlers and tests. Writes apply
// last-write-wins locally and fan out synchronously to all observers,
// including the writer, which preserves the echo-driven update contract.
type MemDoc struct {
	mu        sync.Mutex
	entries   map[docKey]json.RawMessage
	observers map[int]func(Event)
	nextObs   int
}

// NewMemDoc creates an empty in-memory document.
func NewMemDoc() *MemDoc {
	return &MemDoc{
		entries:   make(map[docKey]json.RawMessage),
		observers: make(map[int]func(Event)),
	}
}

// Get reads the current entry for a key.
func (d *MemDoc) Get(tag, elementID string) (json.RawMessage, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.entries[docKey{tag, elementID}]
	return data, ok
}

// Set writes an entry and notifies every observer.
func (d *MemDoc) Set(tag, elementID string, data json.RawMessage) {
	d.mu.Lock()
	d.entries[docKey{tag, elementID}] = data
	observers := d.snapshotObservers()
	d.mu.Unlock()

	event := Event{Tag: tag, ElementID: elementID, Data: data}
	for _, fn := range observers {
		fn(event)
	}
}

// Delete removes an entry and notifies every observer.
func (d *MemDoc) Delete(tag, elementID string) {
	d.mu.Lock()
	_, existed := d.entries[docKey{tag, elementID}]
	delete(d.entries, docKey{tag, elementID})
	observers := d.snapshotObservers()
	d.mu.Unlock()

	if !existed {
		return
	}
	event := Event{Tag: tag, ElementID: elementID, Deleted: true}
	for _, fn := range observers {
		fn(event)
	}
}

// Entries snapshots all entries under a tag.
func (d *MemDoc) Entries(tag string) map[string]json.RawMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]json.RawMessage)
	for key, data := range d.entries {
		if key.tag == tag {
			out[key.elementID] = data
		}
	}
	return out
}

// Observe registers a change callback.
func (d *MemDoc) Observe(fn func(Event)) (cancel func()) {
	d.mu.Lock()
	idx := d.nextObs
	d.nextObs++
	d.observers[idx] = fn
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.observers, idx)
		d.mu.Unlock()
	}
}

func (d *MemDoc) snapshotObservers() []func(Event) {
	observers := make([]func(Event), 0, len(d.observers))
	for _, fn := range d.observers {
		observers = append(observers, fn)
	}
	return observers
}

// MemAwareness is an in-memory awareness channel for one simulated relay
// room: per-connection slots, cleared wholesale on disconnect.
type MemAwareness struct {
	mu           sync.Mutex
	connectionID string
	values       map[docKey]map[string]json.RawMessage
	observers    map[int]func(AwarenessEvent)
	nextObs      int
}

// NewMemAwareness creates an awareness channel for connectionID.
func NewMemAwareness(connectionID string) *MemAwareness {
	return &MemAwareness{
		connectionID: connectionID,
		values:       make(map[docKey]map[string]json.RawMessage),
		observers:    make(map[int]func(AwarenessEvent)),
	}
}

// SetLocal updates this connection's slot and broadcasts the change.
func (a *MemAwareness) SetLocal(tag, elementID string, value json.RawMessage) {
	a.setConnection(tag, elementID, a.connectionID, value)
}

// SetRemote records another connection's value, standing in for a relay
// broadcast in tests.
func (a *MemAwareness) SetRemote(tag, elementID, connectionID string, value json.RawMessage) {
	a.setConnection(tag, elementID, connectionID, value)
}

func (a *MemAwareness) setConnection(tag, elementID, connectionID string, value json.RawMessage) {
	key := docKey{tag, elementID}
	a.mu.Lock()
	slots, ok := a.values[key]
	if !ok {
		slots = make(map[string]json.RawMessage)
		a.values[key] = slots
	}
	slots[connectionID] = value
	observers := a.snapshotObservers()
	a.mu.Unlock()

	event := AwarenessEvent{Tag: tag, ElementID: elementID, ConnectionID: connectionID, Value: value}
	for _, fn := range observers {
		fn(event)
	}
}

// Disconnect clears every slot owned by connectionID, as the relay does.
func (a *MemAwareness) Disconnect(connectionID string) {
	a.mu.Lock()
	var cleared []docKey
	for key, slots := range a.values {
		if _, ok := slots[connectionID]; ok {
			delete(slots, connectionID)
			cleared = append(cleared, key)
		}
	}
	observers := a.snapshotObservers()
	a.mu.Unlock()

	for _, key := range cleared {
		event := AwarenessEvent{Tag: key.tag, ElementID: key.elementID, ConnectionID: connectionID, Cleared: true}
		for _, fn := range observers {
			fn(event)
		}
	}
}

// All returns every connection's current value for an element.
func (a *MemAwareness) All(tag, elementID string) map[string]json.RawMessage {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]json.RawMessage)
	for conn, value := range a.values[docKey{tag, elementID}] {
		out[conn] = value
	}
	return out
}

// Observe registers a change callback.
func (a *MemAwareness) Observe(fn func(AwarenessEvent)) (cancel func()) {
	a.mu.Lock()
	idx := a.nextObs
	a.nextObs++
	a.observers[idx] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.observers, idx)
		a.mu.Unlock()
	}
}

func (a *MemAwareness) snapshotObservers() []func(AwarenessEvent) {
	observers := make([]func(AwarenessEvent), 0, len(a.observers))
	for _, fn := range a.observers {
		observers = append(observers, fn)
	}
	return observers
}
