// Package notify is a payload-less change notification fan-out. Observers are
// told that something changed and re-read whatever state they care about.
package notify

import (
	"slices"
	"sync"
)

// Notifier delivers change notifications to subscribed observers.
// The zero value is ready to use.
type Notifier struct {
	mu        sync.Mutex
	next      uint64
	observers map[uint64]func()
}

// Subscribe registers fn and returns a function that unregisters it.
// The returned function is safe to call more than once.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	n.mu.Lock()
	if n.observers == nil {
		n.observers = make(map[uint64]func())
	}
	id := n.next
	n.next++
	n.observers[id] = fn
	n.mu.Unlock()

	return func() {
		n.mu.Lock()
		delete(n.observers, id)
		n.mu.Unlock()
	}
}

// Notify calls every observer synchronously, in subscription order.
// Observers may subscribe or unsubscribe from within the callback.
func (n *Notifier) Notify() {
	n.mu.Lock()
	ids := make([]uint64, 0, len(n.observers))
	for id := range n.observers {
		ids = append(ids, id)
	}
	fns := make([]func(), 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		fns = append(fns, n.observers[id])
	}
	n.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Len returns the number of observers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.observers)
}
