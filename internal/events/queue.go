package events

import "sync"

// EventQueue is a bounded, ordered buffer of events. When it is full, adding an event evicts the oldest
// one, so memory use never exceeds the capacity.
//
// An EventQueue is safe for concurrent use. It outlives any one EventProcessor: events added while the
// client is stopped stay here until the next processor drains them.
type EventQueue struct {
	buf      []Event
	start    int
	size     int
	evicted  int
	lock     sync.Mutex
	overflow bool
}

// NewEventQueue creates an EventQueue. A capacity less than 1 is treated as 1.
func NewEventQueue(capacity int) *EventQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &EventQueue{buf: make([]Event, capacity)}
}

// Capacity returns the maximum number of events the queue holds.
func (q *EventQueue) Capacity() int {
	return len(q.buf)
}

// Len returns the number of events currently in the queue.
func (q *EventQueue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return q.size
}

// Add appends an event. It returns true if the oldest event had to be evicted to make room.
func (q *EventQueue) Add(e Event) bool {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.size == len(q.buf) {
		q.buf[q.start] = e
		q.start = (q.start + 1) % len(q.buf)
		q.evicted++
		return true
	}
	q.buf[(q.start+q.size)%len(q.buf)] = e
	q.size++
	return false
}

// Drain removes and returns all events, oldest first.
func (q *EventQueue) Drain() []Event {
	q.lock.Lock()
	defer q.lock.Unlock()
	if q.size == 0 {
		return nil
	}
	ret := make([]Event, q.size)
	for i := range ret {
		idx := (q.start + i) % len(q.buf)
		ret[i] = q.buf[idx]
		q.buf[idx] = nil
	}
	q.start, q.size = 0, 0
	return ret
}

// Requeue puts a batch back in front of any events that were added since it was drained. If the
// result would exceed the capacity, the oldest events are discarded, so events added later always
// win. It returns the number of events discarded.
func (q *EventQueue) Requeue(batch []Event) int {
	q.lock.Lock()
	defer q.lock.Unlock()

	current := make([]Event, 0, q.size)
	for i := 0; i < q.size; i++ {
		idx := (q.start + i) % len(q.buf)
		current = append(current, q.buf[idx])
		q.buf[idx] = nil
	}
	combined := append(append(make([]Event, 0, len(batch)+len(current)), batch...), current...)
	discarded := 0
	if len(combined) > len(q.buf) {
		discarded = len(combined) - len(q.buf)
		combined = combined[discarded:]
	}
	copy(q.buf, combined)
	q.start, q.size = 0, len(combined)
	q.evicted += discarded
	return discarded
}

// Clear discards all events.
func (q *EventQueue) Clear() int {
	return len(q.Drain())
}

// TakeEvictedCount returns the number of events evicted since the last call, and whether this is the
// first eviction since the queue last had room. It is used for logging and metrics only.
func (q *EventQueue) TakeEvictedCount() (int, bool) {
	q.lock.Lock()
	defer q.lock.Unlock()
	n := q.evicted
	q.evicted = 0
	first := n > 0 && !q.overflow
	q.overflow = n > 0
	return n, first
}
