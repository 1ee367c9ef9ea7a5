package elements

import (
	"encoding/json"
	"sync"
	"time"
)

// Binding is one element's live connection to its shared-document entry.
//
// SetData is fire-and-forget: the cached value a caller renders from is
// only ever updated when the document layer reports the entry changed, even
// for this binding's own writes. Concurrent writers on different clients
// therefore all converge on the merge layer's resolved value.
type Binding struct {
	session   *Session
	tag       string
	elementID string

	debounce          time.Duration
	onChange          func(data json.RawMessage)
	onAwarenessChange func(connectionID string, value json.RawMessage, cleared bool)

	mu        sync.Mutex
	cached    json.RawMessage
	localData json.RawMessage
	timer     *time.Timer
	cleanup   func()
	closed    bool
}

// Tag returns the binding's capability tag.
func (b *Binding) Tag() string { return b.tag }

// ElementID returns the binding's element key.
func (b *Binding) ElementID() string { return b.elementID }

// Data returns the last value resolved by the document layer.
func (b *Binding) Data() json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cached
}

// SetData writes a new value to the document entry. With a debounce
// interval configured, rapid calls coalesce into a single write carrying
// the last value after the quiet period; there is at most one pending
// timer per binding. The cached value is never touched here.
func (b *Binding) SetData(data json.RawMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.debounce <= 0 {
		b.mu.Unlock()
		b.session.doc.Set(b.tag, b.elementID, data)
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	value := data
	b.timer = time.AfterFunc(b.debounce, func() {
		b.flush(value)
	})
	b.mu.Unlock()
}

func (b *Binding) flush(data json.RawMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.timer = nil
	b.mu.Unlock()
	b.session.doc.Set(b.tag, b.elementID, data)
}

// LocalData returns the binding's non-synced data.
func (b *Binding) LocalData() json.RawMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.localData
}

// SetLocalData replaces the binding's non-synced data. Local data never
// reaches the document or the relay.
func (b *Binding) SetLocalData(data json.RawMessage) {
	b.mu.Lock()
	b.localData = data
	b.mu.Unlock()
}

// SetMyAwareness updates this connection's ephemeral slot for the element
// and triggers the awareness broadcast. The durable document is untouched.
func (b *Binding) SetMyAwareness(value json.RawMessage) {
	if b.session.awareness == nil {
		return
	}
	b.session.awareness.SetLocal(b.tag, b.elementID, value)
}

// applyChange records the document layer's resolved value and notifies the
// change callback. This is the only path that mutates the cached value.
func (b *Binding) applyChange(data json.RawMessage) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.cached = data
	onChange := b.onChange
	b.mu.Unlock()

	if onChange != nil {
		onChange(data)
	}
}

func (b *Binding) applyAwareness(event AwarenessEvent) {
	b.mu.Lock()
	closed := b.closed
	onAwareness := b.onAwarenessChange
	b.mu.Unlock()

	if closed || onAwareness == nil {
		return
	}
	onAwareness(event.ConnectionID, event.Value, event.Cleared)
}

// close cancels any pending debounce write and runs the mount cleanup.
func (b *Binding) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	cleanup := b.cleanup
	b.cleanup = nil
	b.mu.Unlock()

	if cleanup != nil {
		cleanup()
	}
}
