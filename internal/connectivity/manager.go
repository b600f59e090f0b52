// Package connectivity contains the state machine that starts, suspends, and stops the SDK's
// background components.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/datasource"
	"github.com/launchdarkly/go-client-sdk/internal/events"
	"github.com/launchdarkly/go-client-sdk/internal/flagcache"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"
	"github.com/launchdarkly/go-client-sdk/internal/metrics"
	"github.com/launchdarkly/go-client-sdk/internal/usercontext"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"

	"golang.org/x/sync/errgroup"
)

// State is the connectivity state of a client.
type State int

const (
	// Stopped means there are no background components. This is the initial state.
	Stopped State = iota
	// Online means the background components are running and contacting LaunchDarkly.
	Online
	// Offline means the background components are running but make no network requests.
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "Online"
	case Offline:
		return "Offline"
	default:
		return "Stopped"
	}
}

const cacheExpiryTimeout = 5 * time.Second

// Components is the set of background components for one run of the client. Manager creates a new
// set on every Start; none of them is reused after Stop.
type Components struct {
	Synchronizer *datasource.Synchronizer
	Processor    *events.EventProcessor
	Cache        flagcache.Cache
}

// ComponentsFactory creates the background components for a run of the client. The default
// factory is DefaultComponentsFactory; tests substitute their own transport.
type ComponentsFactory func(p ComponentsParams) (Components, error)

// ComponentsParams is everything a ComponentsFactory needs to build one run's components.
type ComponentsParams struct {
	Config   config.Config
	Context  ldcontext.Context
	Store    *flagstore.Store
	Queue    *events.EventQueue
	Listener datasource.Listener
	Events   datasource.EventSink
	Metrics  *metrics.Recorder
	Offline  bool
	Loggers  ldlog.Loggers
}

// Manager owns the connectivity state of a client.
//
// The flag store and the event queue belong to the Manager and survive Stop, so that a stopped client
// still answers from the last known flags and still buffers events; the buffered events are
// delivered by the next run. Everything else is created on Start and released on Stop.
type Manager struct {
	store    *flagstore.Store
	listener datasource.Listener
	factory  ComponentsFactory
	loggers  ldlog.Loggers

	lock       sync.RWMutex
	state      State
	config     config.Config
	context    ldcontext.Context
	queue      *events.EventQueue
	components Components
}

// NewManager creates a Manager in the Stopped state. If factory is nil, DefaultComponentsFactory is used.
func NewManager(
	store *flagstore.Store,
	listener datasource.Listener,
	factory ComponentsFactory,
	loggers ldlog.Loggers,
) *Manager {
	if factory == nil {
		factory = DefaultComponentsFactory
	}
	return &Manager{
		store:    store,
		listener: listener,
		factory:  factory,
		loggers:  loggers,
		queue:    events.NewEventQueue(config.DefaultEventCapacity),
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.state
}

// Config returns the configuration of the current run, or of the last run if stopped.
func (m *Manager) Config() config.Config {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.config
}

// CurrentContext returns the current evaluation context.
func (m *Manager) CurrentContext() ldcontext.Context {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.context
}

// Start moves from Stopped to Online, or to Offline if the configuration says so.
//
// It returns false without changing anything if the configuration or context is invalid, or if the
// client is already running with a different configuration. Starting a running client with the same
// configuration is allowed; if the context differs from the current one, it behaves like SetContext.
func (m *Manager) Start(c config.Config, user ldcontext.Context) bool {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.state != Stopped {
		if m.config.Equal(c) {
			if user.Equal(m.context) {
				return true
			}
			normalized, err := usercontext.Normalize(user)
			if err != nil {
				m.loggers.Errorf("Invalid context: %s", err)
				return false
			}
			m.switchContext(normalized)
			return true
		}
		m.loggers.Error("Client is already running with a different configuration; stop it first")
		return false
	}

	if err := config.ValidateConfig(&c, m.loggers); err != nil {
		m.loggers.Errorf("Invalid configuration: %s", err)
		return false
	}
	normalized, err := usercontext.Normalize(user)
	if err != nil {
		m.loggers.Errorf("Invalid context: %s", err)
		return false
	}

	capacity := c.Events.Capacity.GetOrElse(config.DefaultEventCapacity)
	if capacity != m.queue.Capacity() {
		queue := events.NewEventQueue(capacity)
		if dropped := queue.Requeue(m.queue.Drain()); dropped > 0 {
			m.loggers.Warnf("Discarded %d buffered event(s) that did not fit the configured capacity", dropped)
		}
		m.queue = queue
	}

	loggers := m.loggers
	if c.Main.LogLevel.IsDefined() {
		loggers.SetMinLevel(c.Main.LogLevel.GetOrElse(ldlog.Info))
	}

	m.store.Init(nil)
	recorder := metrics.NewRecorder(c.Application.ID, loggers)
	components, err := m.factory(ComponentsParams{
		Config:   c,
		Context:  normalized,
		Store:    m.store,
		Queue:    m.queue,
		Listener: m.listener,
		Events:   eventSinkFunc(m.Enqueue),
		Metrics:  recorder,
		Offline:  c.Main.Offline,
		Loggers:  loggers,
	})
	if err != nil {
		m.loggers.Errorf("Unable to start client: %s", err)
		return false
	}

	m.config = c
	m.context = normalized
	m.components = components
	if c.Main.Offline {
		m.state = Offline
	} else {
		m.state = Online
	}

	components.Processor.Enqueue(events.NewIdentifyEvent(normalized))
	components.Synchronizer.Start()
	if components.Cache != nil {
		go expireCache(components.Cache, c.Cache.TTL.GetOrElse(config.DefaultCacheTTL), m.loggers)
	}
	m.loggers.Infof("Client started in %s state", m.state)
	return true
}

// WaitForReady waits until flags have been received for the first time in the current run, or the
// timeout elapses. It returns false immediately if the client is not Online.
func (m *Manager) WaitForReady(timeout time.Duration) bool {
	m.lock.RLock()
	state, synchronizer := m.state, m.components.Synchronizer
	m.lock.RUnlock()
	if state != Online {
		return false
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-synchronizer.Ready():
		return true
	case <-t.C:
		m.loggers.Warnf("Flags were not received within %s; continuing with cached or fallback values", timeout)
		return false
	}
}

// GoOffline moves from Online to Offline. It returns false if the client is stopped.
func (m *Manager) GoOffline() bool {
	return m.setOffline(true)
}

// GoOnline moves from Offline to Online, and fetches flags immediately. It returns false if the
// client is stopped.
func (m *Manager) GoOnline() bool {
	return m.setOffline(false)
}

func (m *Manager) setOffline(offline bool) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch {
	case m.state == Stopped:
		return false
	case (m.state == Offline) == offline:
		return true
	}
	m.components.Synchronizer.SetOffline(offline)
	m.components.Processor.SetOffline(offline)
	if offline {
		m.state = Offline
	} else {
		m.state = Online
	}
	m.loggers.Infof("Client is now %s", m.state)
	return true
}

// SetContext replaces the current context. If the client is running, its flags are fetched
// immediately. It returns false if the client is stopped or the context is invalid.
func (m *Manager) SetContext(user ldcontext.Context) bool {
	normalized, err := usercontext.Normalize(user)
	if err != nil {
		m.loggers.Errorf("Invalid context: %s", err)
		return false
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.state == Stopped {
		return false
	}
	m.switchContext(normalized)
	return true
}

// must be called with the write lock held while running
func (m *Manager) switchContext(normalized ldcontext.Context) {
	m.context = normalized
	m.components.Synchronizer.SetContext(normalized)
	m.components.Processor.Enqueue(events.NewIdentifyEvent(normalized))
}

// Enqueue adds an event to the queue. While stopped, the event waits in the queue for the next run.
func (m *Manager) Enqueue(e events.Event) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	if m.state == Stopped {
		m.queue.Add(e)
		return
	}
	m.components.Processor.Enqueue(e)
}

// Flush delivers buffered events and waits for the result. While stopped, nothing can be delivered,
// so it returns true only if nothing is buffered.
func (m *Manager) Flush() bool {
	m.lock.RLock()
	state, processor, queue := m.state, m.components.Processor, m.queue
	m.lock.RUnlock()
	if state == Stopped {
		return queue.Len() == 0
	}
	return processor.Flush()
}

// Stop moves to Stopped. It makes a final attempt to deliver buffered events, then shuts down the
// background components; the whole operation takes no longer than the configured stop timeout. It is
// idempotent.
func (m *Manager) Stop() bool {
	m.lock.Lock()
	if m.state == Stopped {
		m.lock.Unlock()
		return true
	}
	components := m.components
	offline := m.state == Offline
	stopTimeout := m.config.Connection.StopTimeout.GetOrElse(config.DefaultStopTimeout)
	m.components = Components{}
	m.state = Stopped
	m.lock.Unlock()

	var g errgroup.Group
	g.Go(func() error {
		components.Synchronizer.Close(stopTimeout)
		if components.Cache != nil {
			return components.Cache.Close()
		}
		return nil
	})
	g.Go(func() error {
		if !offline && !flushWithin(components.Processor, stopTimeout) {
			m.loggers.Warn("Final flush of events did not complete; undelivered events are kept for the next start")
		}
		components.Processor.Close(stopTimeout)
		return nil
	})
	if err := g.Wait(); err != nil {
		m.loggers.Warnf("Error while stopping client: %s", err)
	}
	m.loggers.Info("Client stopped")
	return true
}

func flushWithin(p *events.EventProcessor, timeout time.Duration) bool {
	result := make(chan bool, 1)
	go func() { result <- p.Flush() }()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case ok := <-result:
		return ok
	case <-t.C:
		return false
	}
}

func expireCache(cache flagcache.Cache, ttl time.Duration, loggers ldlog.Loggers) {
	ctx, cancel := context.WithTimeout(context.Background(), cacheExpiryTimeout)
	defer cancel()
	n, err := cache.RemoveOlderThan(ctx, time.Now().Add(-ttl))
	if err != nil {
		loggers.Warnf("Unable to remove expired cached flags: %s", err)
		return
	}
	if n > 0 {
		loggers.Debugf("Removed cached flags for %d context(s) not seen within %s", n, ttl)
	}
}

type eventSinkFunc func(events.Event)

func (f eventSinkFunc) Enqueue(e events.Event) { f(e) }

// DefaultComponentsFactory creates components that talk to LaunchDarkly over HTTP.
func DefaultComponentsFactory(p ComponentsParams) (Components, error) {
	c := p.Config
	httpConfig, err := httpconfig.NewHTTPConfig(c.Proxy, c.Main.MobileKey, c.Application,
		c.Connection.RequestTimeout.GetOrElse(config.DefaultRequestTimeout), p.Loggers)
	if err != nil {
		return Components{}, err
	}

	cache, err := flagcache.NewCache(c.Cache, p.Loggers)
	if err != nil {
		return Components{}, err
	}

	requestorLoggers := p.Loggers
	requestorLoggers.SetPrefix("[Requestor]")
	requestor := datasource.NewHTTPRequestor(
		c.Polling.BaseURI.String(),
		httpConfig,
		c.Main.UseReport,
		c.Main.EvaluationReasons,
		requestorLoggers,
	)
	sender := events.NewHTTPEventSender(c.Events.EventsURI.String(), httpConfig, p.Loggers)
	return NewComponents(p, requestor, sender, httpConfig, cache), nil
}

// NewComponents wires a Synchronizer and an EventProcessor around the given transport.
func NewComponents(
	p ComponentsParams,
	requestor datasource.Requestor,
	sender events.EventSender,
	httpConfig httpconfig.HTTPConfig,
	cache flagcache.Cache,
) Components {
	c := p.Config
	syncParams := datasource.SynchronizerParams{
		Store:     p.Store,
		Requestor: requestor,
		Listener:  p.Listener,
		Events:    p.Events,
		Metrics:   p.Metrics,
		Context:   p.Context,
		Offline:   p.Offline,
		Cache:     cache,
	}
	syncConfig := datasource.SynchronizerConfig{
		PollInterval:       c.Polling.PollInterval.GetOrElse(config.DefaultPollInterval),
		InitialBackoff:     c.Connection.InitialBackoff.GetOrElse(config.DefaultInitialBackoff),
		MaxBackoff:         c.Connection.MaxBackoff.GetOrElse(config.DefaultMaxBackoff),
		UnavailableAfter:   c.Connection.UnavailableAfter.GetOrElse(config.DefaultUnavailableAfter),
		WithReasons:        c.Main.EvaluationReasons,
		RequestTimeout:     c.Connection.RequestTimeout.GetOrElse(config.DefaultRequestTimeout),
		Streaming:          c.Streaming.Enabled,
		StreamURI:          c.Streaming.StreamURI.String(),
		StreamInitialRetry: c.Streaming.InitialRetryDelay.GetOrElse(config.DefaultStreamInitialRetryDelay),
		HTTPConfig:         httpConfig,
	}
	processor := events.NewEventProcessor(p.Queue, sender, p.Loggers,
		events.OptionFlushInterval(c.Events.FlushInterval.GetOrElse(config.DefaultEventsFlushInterval)),
		events.OptionFlushTimeout(c.Events.FlushTimeout.GetOrElse(config.DefaultEventsFlushTimeout)),
		events.OptionMaxAttempts(c.Events.MaxAttempts.GetOrElse(config.DefaultEventsMaxAttempts)),
		events.OptionRetryDelay(c.Connection.InitialBackoff.GetOrElse(config.DefaultInitialBackoff)),
		events.OptionOffline(p.Offline),
		events.OptionMetrics{Recorder: p.Metrics},
	)
	return Components{
		Synchronizer: datasource.NewSynchronizer(syncParams, syncConfig, p.Loggers),
		Processor:    processor,
		Cache:        cache,
	}
}
