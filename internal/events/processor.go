package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/metrics"
	"github.com/launchdarkly/go-client-sdk/internal/util"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const (
	defaultFlushInterval = 30 * time.Second
	defaultFlushTimeout  = 5 * time.Second
	defaultMaxAttempts   = 3
	defaultRetryDelay    = time.Second
	maxRetryDelay        = time.Minute
	flushRequestQueue    = 10
)

// EventProcessor delivers the contents of an EventQueue in the background.
//
// Enqueue never blocks and never fails. A single goroutine owns delivery: every flush interval, or
// whenever Flush is called, it drains the queue as one batch and sends it. If delivery fails, the
// batch goes back to the front of the queue and the goroutine retries after a backoff delay, until
// the maximum number of attempts is reached and the batch is dropped. Events that are enqueued while
// a retry is pending become part of that retry.
//
// While offline, events accumulate in the queue but nothing is sent.
type EventProcessor struct {
	queue         *EventQueue
	sender        EventSender
	loggers       ldlog.Loggers
	metrics       *metrics.Recorder
	flushInterval time.Duration
	flushTimeout  time.Duration
	maxAttempts   int
	backoff       *util.Backoff

	flushCh   chan flushRequest
	onlineCh  chan struct{}
	closer    chan struct{}
	exited    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	lock     sync.RWMutex
	offline  bool
	disabled bool

	// owned by the processor goroutine
	attempts   int
	retryTimer *time.Timer
	waiters    []chan bool
}

type flushRequest struct {
	done chan bool
}

// OptionType defines optional parameters for NewEventProcessor.
type OptionType interface {
	apply(*EventProcessor)
}

// OptionFlushInterval specifies the interval for automatic flushes.
type OptionFlushInterval time.Duration

func (o OptionFlushInterval) apply(p *EventProcessor) {
	if o > 0 {
		p.flushInterval = time.Duration(o)
	}
}

// OptionFlushTimeout specifies how long Flush waits for delivery.
type OptionFlushTimeout time.Duration

func (o OptionFlushTimeout) apply(p *EventProcessor) {
	if o > 0 {
		p.flushTimeout = time.Duration(o)
	}
}

// OptionMaxAttempts specifies how many times delivery of a batch is attempted before it is dropped.
type OptionMaxAttempts int

func (o OptionMaxAttempts) apply(p *EventProcessor) {
	if o > 0 {
		p.maxAttempts = int(o)
	}
}

// OptionRetryDelay specifies the delay before the first retry of a failed batch. Later retries back
// off exponentially.
type OptionRetryDelay time.Duration

func (o OptionRetryDelay) apply(p *EventProcessor) {
	if o > 0 {
		p.backoff = util.NewBackoff(time.Duration(o), maxRetryDelay)
	}
}

// OptionOffline specifies whether the processor starts in offline mode.
type OptionOffline bool

func (o OptionOffline) apply(p *EventProcessor) {
	p.offline = bool(o)
}

// OptionMetrics specifies where to record event counts.
type OptionMetrics struct {
	Recorder *metrics.Recorder
}

func (o OptionMetrics) apply(p *EventProcessor) {
	p.metrics = o.Recorder
}

// NewEventProcessor creates an EventProcessor for an existing queue and starts its goroutine.
func NewEventProcessor(queue *EventQueue, sender EventSender, loggers ldlog.Loggers, options ...OptionType) *EventProcessor {
	loggers.SetPrefix("[Events]")
	p := &EventProcessor{
		queue:         queue,
		sender:        sender,
		loggers:       loggers,
		flushInterval: defaultFlushInterval,
		flushTimeout:  defaultFlushTimeout,
		maxAttempts:   defaultMaxAttempts,
		backoff:       util.NewBackoff(defaultRetryDelay, maxRetryDelay),
		flushCh:       make(chan flushRequest, flushRequestQueue),
		onlineCh:      make(chan struct{}, 1),
		closer:        make(chan struct{}),
		exited:        make(chan struct{}),
	}
	for _, o := range options {
		o.apply(p)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()
		for !p.runLoop(ticker) {
		}
		p.stopRetryTimer()
		p.resolveWaiters(false)
		close(p.exited)
	}()

	return p
}

// Enqueue adds an event to the queue. It never blocks.
func (p *EventProcessor) Enqueue(e Event) {
	p.lock.RLock()
	disabled := p.disabled
	p.lock.RUnlock()
	if disabled {
		p.metrics.EventsDropped(1)
		return
	}
	p.queue.Add(e)
	p.metrics.EventsEnqueued(1)
	p.reportEvictions()
}

// Flush asks the processor to deliver all queued events and waits until delivery has succeeded or
// been abandoned, or the flush timeout elapses. It returns true if there was nothing to send or the
// events were accepted, and always returns true while offline.
func (p *EventProcessor) Flush() bool {
	if p.IsOffline() {
		return true
	}
	if p.queue.Len() == 0 {
		return true
	}
	select {
	case <-p.closer:
		return false
	default:
	}
	req := flushRequest{done: make(chan bool, 1)}
	timeout := time.NewTimer(p.flushTimeout)
	defer timeout.Stop()
	select {
	case p.flushCh <- req:
	case <-p.closer:
		return false
	case <-timeout.C:
		return false
	}
	select {
	case ok := <-req.done:
		return ok
	case <-p.exited:
		select {
		case ok := <-req.done:
			return ok
		default:
			return false
		}
	case <-timeout.C:
		p.loggers.Warnf("Timed out after %s waiting for events to be delivered", p.flushTimeout)
		return false
	}
}

// SetOffline switches offline mode on or off. Going back online does not send anything immediately;
// queued events are sent at the next flush.
func (p *EventProcessor) SetOffline(offline bool) {
	p.lock.Lock()
	p.offline = offline
	p.lock.Unlock()
	if !offline {
		select {
		case p.onlineCh <- struct{}{}:
		default:
		}
	}
}

// IsOffline returns true if the processor is in offline mode.
func (p *EventProcessor) IsOffline() bool {
	p.lock.RLock()
	defer p.lock.RUnlock()
	return p.offline
}

// Close stops the processor goroutine. Events still in the queue stay there. It waits for any
// in-progress delivery attempt to finish, but not longer than maxWait if that is positive.
func (p *EventProcessor) Close(maxWait time.Duration) {
	p.closeOnce.Do(func() {
		close(p.closer)
	})
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	if maxWait <= 0 {
		<-done
		return
	}
	t := time.NewTimer(maxWait)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		p.loggers.Warn("Event processor did not stop within the timeout; an in-progress delivery will be abandoned")
	}
}

// runLoop returns true when the processor has been closed, or false if it panicked and should be
// restarted.
func (p *EventProcessor) runLoop(ticker *time.Ticker) (closed bool) {
	defer func() {
		if r := recover(); r != nil {
			p.loggers.Errorf("Unexpected panic in event processor, restarting: %v", r)
			closed = false
		}
	}()
	for {
		var retryC <-chan time.Time
		if p.retryTimer != nil {
			retryC = p.retryTimer.C
		}
		select {
		case <-p.closer:
			return true
		case req := <-p.flushCh:
			p.waiters = append(p.waiters, req.done)
			if p.retryTimer == nil {
				p.flush()
			}
		case <-ticker.C:
			if p.retryTimer == nil {
				p.flush()
			}
		case <-retryC:
			p.retryTimer = nil
			p.flush()
		case <-p.onlineCh:
			if p.retryTimer == nil && len(p.waiters) > 0 {
				p.flush()
			}
		}
	}
}

func (p *EventProcessor) flush() {
	p.lock.RLock()
	offline, disabled := p.offline, p.disabled
	p.lock.RUnlock()
	if offline || disabled {
		p.resolveWaiters(true)
		return
	}

	batch := p.queue.Drain()
	if len(batch) == 0 {
		p.attempts = 0
		p.resolveWaiters(true)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-p.closer:
			cancel()
		case <-ctx.Done():
		}
	}()
	err := p.sender.SendEvents(ctx, SerializeEvents(batch), len(batch))
	cancel()

	switch {
	case err == nil:
		p.attempts = 0
		p.metrics.EventsFlushed(len(batch))
		p.resolveWaiters(true)
	case errors.Is(err, ErrMustShutDown):
		p.loggers.Warn("Discarding in-memory and all future events due to unrecoverable failure when sending events")
		p.lock.Lock()
		p.disabled = true
		p.lock.Unlock()
		p.attempts = 0
		p.metrics.EventsDropped(len(batch) + p.queue.Clear())
		p.resolveWaiters(false)
	default:
		p.attempts++
		if p.attempts >= p.maxAttempts {
			p.loggers.Errorf("Dropping %d event(s) after %d failed delivery attempts", len(batch), p.attempts)
			p.attempts = 0
			p.metrics.EventsDropped(len(batch))
			p.resolveWaiters(false)
			return
		}
		p.queue.Requeue(batch)
		p.reportEvictions()
		delay := p.backoff.Delay(p.attempts)
		p.loggers.Warnf("Event delivery failed (attempt %d of %d); will retry in %s", p.attempts, p.maxAttempts, delay)
		p.retryTimer = time.NewTimer(delay)
	}
}

func (p *EventProcessor) resolveWaiters(ok bool) {
	for _, w := range p.waiters {
		w <- ok
	}
	p.waiters = nil
}

func (p *EventProcessor) stopRetryTimer() {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
}

func (p *EventProcessor) reportEvictions() {
	n, first := p.queue.TakeEvictedCount()
	if n == 0 {
		return
	}
	p.metrics.EventsDropped(n)
	if first {
		p.loggers.Warnf("Exceeded event queue capacity of %d. Increase capacity to avoid dropping events.", p.queue.Capacity())
	}
}
