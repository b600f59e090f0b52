package notifier

import (
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

type notificationKind int

const (
	userUpdated notificationKind = iota
	flagsUpdated
	connectionUnavailable
)

type notification struct {
	kind notificationKind
	keys []string
}

// Dispatcher queues notifications and delivers them in order on a single goroutine.
//
// Queueing never blocks: the queue has no fixed size. Notifications for one batch of flag changes
// are delivered one key at a time, in the order the keys were reported, and each batch is fully
// delivered before the next one starts. A panic in a delegate method is logged and does not stop
// delivery of later notifications.
type Dispatcher struct {
	delegate Delegate
	pending  []notification
	closed   bool
	lock     sync.Mutex
	wakeCh   chan struct{}
	doneCh   chan struct{}
	loggers  ldlog.Loggers
}

// NewDispatcher creates a Dispatcher and starts its goroutine.
func NewDispatcher(loggers ldlog.Loggers) *Dispatcher {
	loggers.SetPrefix("[Notifier]")
	d := &Dispatcher{
		wakeCh:  make(chan struct{}, 1),
		doneCh:  make(chan struct{}),
		loggers: loggers,
	}
	go d.run()
	return d
}

// SetDelegate replaces the delegate. Notifications that are already queued go to whichever delegate
// is registered when they are delivered. A nil delegate discards notifications.
func (d *Dispatcher) SetDelegate(delegate Delegate) {
	d.lock.Lock()
	d.delegate = delegate
	d.lock.Unlock()
}

// UserUpdated queues a UserDidUpdate notification.
func (d *Dispatcher) UserUpdated() {
	d.enqueue(notification{kind: userUpdated})
}

// FlagsUpdated queues a FeatureFlagDidUpdate notification for each key.
func (d *Dispatcher) FlagsUpdated(keys []string) {
	if len(keys) == 0 {
		return
	}
	d.enqueue(notification{kind: flagsUpdated, keys: append([]string(nil), keys...)})
}

// ConnectionUnavailable queues a ServerConnectionUnavailable notification.
func (d *Dispatcher) ConnectionUnavailable() {
	d.enqueue(notification{kind: connectionUnavailable})
}

// Close stops accepting notifications. Notifications that were already queued are still delivered.
// The returned channel is closed when the dispatch goroutine has exited.
func (d *Dispatcher) Close() <-chan struct{} {
	d.lock.Lock()
	d.closed = true
	d.lock.Unlock()
	d.wake()
	return d.doneCh
}

func (d *Dispatcher) enqueue(n notification) {
	d.lock.Lock()
	if d.closed {
		d.lock.Unlock()
		return
	}
	d.pending = append(d.pending, n)
	d.lock.Unlock()
	d.wake()
}

func (d *Dispatcher) wake() {
	select {
	case d.wakeCh <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)
	for range d.wakeCh {
		for {
			d.lock.Lock()
			if len(d.pending) == 0 {
				closed := d.closed
				d.lock.Unlock()
				if closed {
					return
				}
				break
			}
			n := d.pending[0]
			d.pending[0] = notification{}
			d.pending = d.pending[1:]
			delegate := d.delegate
			d.lock.Unlock()

			d.deliver(delegate, n)
		}
	}
}

func (d *Dispatcher) deliver(delegate Delegate, n notification) {
	if delegate == nil {
		return
	}
	switch n.kind {
	case userUpdated:
		if o, ok := delegate.(UserUpdateObserver); ok {
			d.safely("UserDidUpdate", o.UserDidUpdate)
		}
	case flagsUpdated:
		if o, ok := delegate.(FlagUpdateObserver); ok {
			for _, key := range n.keys {
				key := key
				d.safely("FeatureFlagDidUpdate", func() { o.FeatureFlagDidUpdate(key) })
			}
		}
	case connectionUnavailable:
		if o, ok := delegate.(ConnectionObserver); ok {
			d.safely("ServerConnectionUnavailable", o.ServerConnectionUnavailable)
		}
	}
}

func (d *Dispatcher) safely(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.loggers.Errorf("Delegate method %s panicked: %v", name, r)
		}
	}()
	fn()
}
