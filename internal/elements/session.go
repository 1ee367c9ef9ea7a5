package elements

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/pagemesh/pagemesh/internal/platform/errors"
)

type bindingKey struct {
	tag       string
	elementID string
}

// BindOptions overrides descriptor defaults for one binding.
type BindOptions struct {
	// DefaultData replaces the descriptor's default entry factory.
	DefaultData json.RawMessage
	// DefaultLocalData replaces the descriptor's local-data seed.
	DefaultLocalData json.RawMessage
	// DefaultAwareness replaces the descriptor's initial awareness value.
	DefaultAwareness json.RawMessage
	// OnChange receives every resolved value, starting with the initial one.
	OnChange func(data json.RawMessage)
	// OnAwarenessChange receives per-connection awareness updates.
	OnAwarenessChange func(connectionID string, value json.RawMessage, cleared bool)
	// Debounce overrides the descriptor's write coalescing interval.
	Debounce time.Duration
	// IgnoreIfBound makes re-binding an already-bound key a no-op, so page
	// rescans never double up listeners.
	IgnoreIfBound bool
	// Mount replaces the descriptor's mount hook.
	Mount func(b *Binding) (cleanup func(), err error)
}

// Session owns every binding, observer, and timer for one page's room
// connection. All shared handler state lives here rather than in package
// globals; Close releases everything.
type Session struct {
	doc       Doc
	awareness Awareness

	mu              sync.Mutex
	descriptors     map[string]Descriptor
	bindings        map[bindingKey]*Binding
	cancelDoc       func()
	cancelAwareness func()
	closed          bool
}

// NewSession creates a session over a shared document and an optional
// awareness channel.
func NewSession(doc Doc, awareness Awareness) *Session {
	s := &Session{
		doc:         doc,
		awareness:   awareness,
		descriptors: builtinDescriptors(),
		bindings:    make(map[bindingKey]*Binding),
	}
	s.cancelDoc = doc.Observe(s.dispatchDoc)
	if awareness != nil {
		s.cancelAwareness = awareness.Observe(s.dispatchAwareness)
	}
	return s
}

// RegisterDescriptor adds or replaces a capability descriptor. This is the
// extension point for caller-supplied tagged variants.
func (s *Session) RegisterDescriptor(d Descriptor) error {
	if d.Tag == "" {
		return errors.New(errors.CodeBindingUnknownTag, "descriptor tag is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New(errors.CodeBindingSessionClosed, "session is closed")
	}
	s.descriptors[d.Tag] = d
	return nil
}

// Bind connects an element to its document entry.
//
// The sequence: read the existing entry for the key; when absent, write the
// default exactly once (the merge layer's convergent set makes concurrent
// defaults safe without a lock); invoke OnChange once with the initial
// value; then run the mount hook. Elements without a stable id fail fast
// with a configuration error and are skipped, not retried.
func (s *Session) Bind(el Element, opts BindOptions) (*Binding, error) {
	if el.ID == "" {
		return nil, errors.WithMetadata(errors.CodeBindingMissingElementID,
			"element has no stable id", map[string]string{"tag": el.Tag})
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errors.New(errors.CodeBindingSessionClosed, "session is closed")
	}
	descriptor, ok := s.descriptors[el.Tag]
	if !ok {
		s.mu.Unlock()
		return nil, errors.WithMetadata(errors.CodeBindingUnknownTag,
			"no descriptor for capability tag", map[string]string{"tag": el.Tag})
	}

	key := bindingKey{tag: el.Tag, elementID: el.ID}
	if existing, bound := s.bindings[key]; bound {
		s.mu.Unlock()
		if opts.IgnoreIfBound {
			return existing, nil
		}
		return nil, errors.WithMetadata(errors.CodeBindingDuplicate,
			"element is already bound", map[string]string{"tag": el.Tag, "element": el.ID})
	}

	debounce := descriptor.Debounce
	if opts.Debounce > 0 {
		debounce = opts.Debounce
	}
	localData := descriptor.DefaultLocalData
	if opts.DefaultLocalData != nil {
		localData = opts.DefaultLocalData
	}

	binding := &Binding{
		session:           s,
		tag:               el.Tag,
		elementID:         el.ID,
		debounce:          debounce,
		onChange:          opts.OnChange,
		onAwarenessChange: opts.OnAwarenessChange,
		localData:         localData,
	}
	s.bindings[key] = binding
	s.mu.Unlock()

	if data, exists := s.doc.Get(el.Tag, el.ID); exists {
		binding.applyChange(data)
	} else {
		defaultData := opts.DefaultData
		if defaultData == nil && descriptor.DefaultData != nil {
			defaultData = descriptor.DefaultData(el)
		}
		if defaultData == nil {
			defaultData = rawObject()
		}
		// The echo from this write delivers the initial OnChange.
		s.doc.Set(el.Tag, el.ID, defaultData)
	}

	defaultAwareness := opts.DefaultAwareness
	if defaultAwareness == nil {
		defaultAwareness = descriptor.DefaultAwareness
	}
	if defaultAwareness != nil && s.awareness != nil {
		s.awareness.SetLocal(el.Tag, el.ID, defaultAwareness)
	}

	mount := opts.Mount
	if mount == nil {
		mount = descriptor.Mount
	}
	if mount != nil {
		cleanup, err := mount(binding)
		if err != nil {
			s.removeBinding(key)
			binding.close()
			return nil, err
		}
		binding.mu.Lock()
		binding.cleanup = cleanup
		binding.mu.Unlock()
	}

	return binding, nil
}

// Binding returns the active binding for a key, if any.
func (s *Session) Binding(tag, elementID string) (*Binding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bindings[bindingKey{tag: tag, elementID: elementID}]
	return b, ok
}

// Unbind releases one binding: the mount cleanup runs and pending debounce
// writes are dropped. The document entry is left in place.
func (s *Session) Unbind(tag, elementID string) {
	key := bindingKey{tag: tag, elementID: elementID}
	s.mu.Lock()
	binding, ok := s.bindings[key]
	if ok {
		delete(s.bindings, key)
	}
	s.mu.Unlock()

	if ok {
		binding.close()
	}
}

// Close tears the session down: observers detach, every binding's cleanup
// runs, and pending debounce timers are cancelled so nothing writes after
// close.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancelDoc := s.cancelDoc
	cancelAwareness := s.cancelAwareness
	s.cancelDoc = nil
	s.cancelAwareness = nil
	bindings := make([]*Binding, 0, len(s.bindings))
	for _, b := range s.bindings {
		bindings = append(bindings, b)
	}
	s.bindings = make(map[bindingKey]*Binding)
	s.mu.Unlock()

	if cancelDoc != nil {
		cancelDoc()
	}
	if cancelAwareness != nil {
		cancelAwareness()
	}
	for _, b := range bindings {
		b.close()
	}
}

func (s *Session) removeBinding(key bindingKey) {
	s.mu.Lock()
	delete(s.bindings, key)
	s.mu.Unlock()
}

func (s *Session) dispatchDoc(event Event) {
	s.mu.Lock()
	binding, ok := s.bindings[bindingKey{tag: event.Tag, elementID: event.ElementID}]
	s.mu.Unlock()
	if !ok || event.Deleted {
		return
	}
	binding.applyChange(event.Data)
}

func (s *Session) dispatchAwareness(event AwarenessEvent) {
	s.mu.Lock()
	binding, ok := s.bindings[bindingKey{tag: event.Tag, elementID: event.ElementID}]
	s.mu.Unlock()
	if !ok {
		return
	}
	binding.applyAwareness(event)
}
