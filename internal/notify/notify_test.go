package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_SubscribeNotifyUnsubscribe(t *testing.T) {
	var n Notifier
	var order []string

	unA := n.Subscribe(func() { order = append(order, "a") })
	n.Subscribe(func() { order = append(order, "b") })
	assert.Equal(t, 2, n.Len())

	n.Notify()
	assert.Equal(t, []string{"a", "b"}, order)

	unA()
	unA()
	order = nil
	n.Notify()
	assert.Equal(t, []string{"b"}, order)
}

func TestNotifier_ReentrantSubscribe(t *testing.T) {
	var n Notifier
	calls := 0
	var un func()
	un = n.Subscribe(func() {
		calls++
		un()
		n.Subscribe(func() { calls += 10 })
	})

	n.Notify()
	assert.Equal(t, 1, calls)
	n.Notify()
	assert.Equal(t, 11, calls)
}

func TestNotifier_NilObserver(t *testing.T) {
	var n Notifier
	n.Subscribe(nil)()
	assert.Equal(t, 0, n.Len())
	n.Notify()
}
