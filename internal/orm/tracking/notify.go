package tracking

import "sync"

// FieldChange represents a change to a single field
type FieldChange struct {
	Field    string
	OldValue interface{}
	NewValue interface{}

	// HasOldValue is false when the sender does not know the previous
	// value; the tracker then compares against its snapshot.
	HasOldValue bool
}

// Observable is implemented by entities that report their own field changes
type Observable interface {
	// Subscribe registers fn and returns a function that removes it
	Subscribe(fn func(FieldChange)) func()
}

// Notifier is an embeddable Observable implementation. The zero value is
// ready to use.
type Notifier struct {
	mu          sync.Mutex
	next        int
	subscribers map[int]func(FieldChange)
}

// Subscribe registers fn and returns a function that removes it
func (n *Notifier) Subscribe(fn func(FieldChange)) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.subscribers == nil {
		n.subscribers = make(map[int]func(FieldChange))
	}
	id := n.next
	n.next++
	n.subscribers[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subscribers, id)
			n.mu.Unlock()
		})
	}
}

// Notify delivers change to every subscriber on the calling goroutine
func (n *Notifier) Notify(change FieldChange) {
	n.mu.Lock()
	subs := make([]func(FieldChange), 0, len(n.subscribers))
	for _, fn := range n.subscribers {
		subs = append(subs, fn)
	}
	n.mu.Unlock()

	for _, fn := range subs {
		fn(change)
	}
}

// Set assigns v to *dst and notifies subscribers when the value changed.
// It returns the previous value.
//
//	func (c *Customer) SetName(v string) {
//		tracking.Set(&c.Notifier, "Name", &c.Name, v)
//	}
func Set[V comparable](n *Notifier, field string, dst *V, v V) V {
	old := *dst
	if old == v {
		return old
	}
	*dst = v
	n.Notify(FieldChange{Field: field, OldValue: old, NewValue: v, HasOldValue: true})
	return old
}
