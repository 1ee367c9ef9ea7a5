package elements

import (
	"encoding/json"
	"time"
)

// Element is the page-side view of a bindable node: its stable id, the
// capability tag it carries, and any attributes the descriptor's default
// factory may derive data from.
type Element struct {
	ID    string
	Tag   string
	Attrs map[string]string
}

// Descriptor declares the behavior of one capability tag. Descriptors are
// resolved once at bind time from the session's table; callers extend the
// table through RegisterDescriptor with their own tagged variants rather
// than attaching behavior to arbitrary nodes.
type Descriptor struct {
	// Tag is the capability attribute this descriptor serves.
	Tag string
	// DefaultData derives the initial document entry from the element when
	// no entry exists yet. Nil means an empty JSON object.
	DefaultData func(el Element) json.RawMessage
	// DefaultLocalData seeds the binding's non-synced data.
	DefaultLocalData json.RawMessage
	// DefaultAwareness seeds this connection's awareness slot at bind time.
	// Nil means no initial awareness broadcast.
	DefaultAwareness json.RawMessage
	// Debounce coalesces rapid SetData calls into one write after the quiet
	// period. Zero writes immediately.
	Debounce time.Duration
	// Mount attaches auxiliary listeners after the initial change callback
	// and returns their cleanup, which runs on unbind.
	Mount func(b *Binding) (cleanup func(), err error)
}

func rawObject() json.RawMessage {
	return json.RawMessage(`{}`)
}

// Built-in capability tags.
const (
	TagCanMove      = "can-move"
	TagCanToggle    = "can-toggle"
	TagCanDuplicate = "can-duplicate"
	TagCanPlay      = "can-play"
)

// builtinDescriptors is the stock capability table each session starts from.
func builtinDescriptors() map[string]Descriptor {
	return map[string]Descriptor{
		TagCanMove: {
			Tag: TagCanMove,
			DefaultData: func(Element) json.RawMessage {
				return json.RawMessage(`{"x":0,"y":0}`)
			},
			Debounce: 50 * time.Millisecond,
		},
		TagCanToggle: {
			Tag: TagCanToggle,
			DefaultData: func(el Element) json.RawMessage {
				if el.Attrs["data-toggled"] == "true" {
					return json.RawMessage(`{"on":true}`)
				}
				return json.RawMessage(`{"on":false}`)
			},
		},
		TagCanDuplicate: {
			Tag: TagCanDuplicate,
			DefaultData: func(Element) json.RawMessage {
				return json.RawMessage(`{"ids":[]}`)
			},
		},
		TagCanPlay: {
			Tag: TagCanPlay,
			DefaultData: func(el Element) json.RawMessage {
				if seed, ok := el.Attrs["data-default"]; ok && json.Valid([]byte(seed)) {
					return json.RawMessage(seed)
				}
				return rawObject()
			},
			DefaultAwareness: rawObject(),
		},
	}
}
