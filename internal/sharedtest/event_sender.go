package sharedtest

import (
	"context"
	"sync"

	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// SentEvents is one batch received by a TestEventSender.
type SentEvents struct {
	Payload []byte
	Count   int
}

// Kinds returns the "kind" property of each event in the payload.
func (s SentEvents) Kinds() []string {
	var ret []string
	events := ldvalue.Parse(s.Payload)
	for i := 0; i < events.Count(); i++ {
		ret = append(ret, events.GetByIndex(i).GetByKey("kind").StringValue())
	}
	return ret
}

// TestEventSender is an events.EventSender that records every batch it is given.
type TestEventSender struct {
	Batches chan SentEvents

	lock    sync.Mutex
	results []error
	block   chan struct{}
}

// NewTestEventSender creates a TestEventSender that accepts every batch.
func NewTestEventSender() *TestEventSender {
	return &TestEventSender{Batches: make(chan SentEvents, 100)}
}

// SetResults queues the results of the next deliveries. Once they are used up, deliveries succeed.
func (s *TestEventSender) SetResults(results ...error) {
	s.lock.Lock()
	s.results = append(s.results, results...)
	s.lock.Unlock()
}

// Block makes every delivery wait until the returned function is called or the delivery is canceled.
func (s *TestEventSender) Block() (release func()) {
	ch := make(chan struct{})
	s.lock.Lock()
	s.block = ch
	s.lock.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// SendEvents implements events.EventSender.
func (s *TestEventSender) SendEvents(ctx context.Context, payload []byte, count int) error {
	s.lock.Lock()
	block := s.block
	s.lock.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.Batches <- SentEvents{Payload: payload, Count: count}
	s.lock.Lock()
	defer s.lock.Unlock()
	if len(s.results) == 0 {
		return nil
	}
	result := s.results[0]
	s.results = s.results[1:]
	return result
}
