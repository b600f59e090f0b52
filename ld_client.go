// Package ldclient is the LaunchDarkly client-side SDK for Go.
//
// A client-side SDK evaluates flags for one context at a time: the application starts the client
// with a mobile key and a context, and LaunchDarkly sends the flag values for that context, which
// the client caches and keeps up to date. Variation methods answer from the cache and never block.
//
//	client := ldclient.NewLDClient(logging.MakeDefaultLoggers())
//	if !client.Start(cfg, ldcontext.New("user-key")) {
//		// the configuration or context was invalid
//	}
//	defer client.StopClient()
//	enabled := client.BoolVariation("my-flag", false)
package ldclient

import (
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/connectivity"
	"github.com/launchdarkly/go-client-sdk/internal/events"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/notifier"
	"github.com/launchdarkly/go-client-sdk/internal/usercontext"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// LDClient is the client-side SDK client. Create one with NewLDClient, or use Shared.
//
// All methods are safe to call from any goroutine, and in any state: a client that has not been
// started, or has been stopped, answers variations from the last known flags and buffers events
// until the next Start.
type LDClient struct {
	store      *flagstore.Store
	dispatcher *notifier.Dispatcher
	manager    *connectivity.Manager
	loggers    ldlog.Loggers
}

// ClientDelegate is any value that wants to be notified of changes. It may implement any combination
// of UserUpdateObserver, FlagUpdateObserver, and ConnectionObserver.
type ClientDelegate = notifier.Delegate

// UserUpdateObserver is notified when the flags for the current context have changed.
type UserUpdateObserver = notifier.UserUpdateObserver

// FlagUpdateObserver is notified once for each flag whose value has changed.
type FlagUpdateObserver = notifier.FlagUpdateObserver

// ConnectionObserver is notified when the client has repeatedly failed to reach LaunchDarkly.
type ConnectionObserver = notifier.ConnectionObserver

// NewLDClient creates a client in the stopped state.
func NewLDClient(loggers ldlog.Loggers) *LDClient {
	return newLDClient(loggers, nil)
}

func newLDClient(loggers ldlog.Loggers, factory connectivity.ComponentsFactory) *LDClient {
	store := flagstore.NewStore()
	dispatcher := notifier.NewDispatcher(loggers)
	return &LDClient{
		store:      store,
		dispatcher: dispatcher,
		manager:    connectivity.NewManager(store, dispatcher, factory, loggers),
		loggers:    loggers,
	}
}

// NewAnonymousContext returns an anonymous user context with a generated key.
func NewAnonymousContext() ldcontext.Context {
	return usercontext.NewAnonymous()
}

// Start starts the client with the given configuration and context.
//
// It returns false if the configuration or context is invalid, or if the client is already running
// with a different configuration. If Main.StartWaitTime is set, Start also waits up to that long for
// the first flag values to arrive; it still returns true if they do not.
func (c *LDClient) Start(cfg config.Config, context ldcontext.Context) bool {
	if !c.manager.Start(cfg, context) {
		return false
	}
	if cfg.Main.StartWaitTime.IsDefined() {
		c.manager.WaitForReady(cfg.Main.StartWaitTime.GetOrElse(0))
	}
	return true
}

// StartAndWait starts the client like Start, then waits up to timeout for the first flag values. It
// returns true only if the client started and the flags arrived in time. A client configured to start
// offline never receives flags, so for such a client StartAndWait returns false without waiting.
func (c *LDClient) StartAndWait(cfg config.Config, context ldcontext.Context, timeout time.Duration) bool {
	if !c.manager.Start(cfg, context) {
		return false
	}
	return c.manager.WaitForReady(timeout)
}

// StopClient delivers any buffered events if it can do so quickly, then stops all background
// activity. It always returns true, and calling it more than once has no further effect.
func (c *LDClient) StopClient() bool {
	return c.manager.Stop()
}

// Close stops the client and releases the goroutine that delivers notifications. Unlike StopClient,
// the client cannot be started again afterward.
func (c *LDClient) Close() error {
	c.manager.Stop()
	<-c.dispatcher.Close()
	return nil
}

// Offline stops all network activity. Flags keep their last known values and events are buffered. It
// returns false if the client is not started.
func (c *LDClient) Offline() bool {
	return c.manager.GoOffline()
}

// Online resumes network activity after Offline, and fetches flags immediately. It returns false if
// the client is not started.
func (c *LDClient) Online() bool {
	return c.manager.GoOnline()
}

// IsOnline returns true if the client is started and not offline.
func (c *LDClient) IsOnline() bool {
	return c.manager.State() == connectivity.Online
}

// Flush delivers buffered events and waits for the result, for no longer than the configured flush
// timeout. It returns true if there was nothing to deliver or LaunchDarkly accepted the events, and
// always returns true while offline.
func (c *LDClient) Flush() bool {
	return c.manager.Flush()
}

// UpdateUser switches the client to a different context and fetches its flags. Until they arrive,
// variations return flags cached for that context if there are any, or else the previous context's
// values. It returns false if the client is not started or the context is invalid.
func (c *LDClient) UpdateUser(context ldcontext.Context) bool {
	return c.manager.SetContext(context)
}

// CurrentUser returns the current context.
func (c *LDClient) CurrentUser() ldcontext.Context {
	return c.manager.CurrentContext()
}

// SetDelegate registers the value that receives notifications, replacing any previous one. Passing
// nil stops notifications.
func (c *LDClient) SetDelegate(delegate ClientDelegate) {
	c.dispatcher.SetDelegate(delegate)
}

// Track records a custom event. The data must be null or a JSON object. It returns false only if the
// event name is empty or the data is of another type; otherwise the event is buffered, even while the
// client is offline or stopped.
func (c *LDClient) Track(name string, data ldvalue.Value) bool {
	return c.track(name, data, nil)
}

// TrackWithMetric records a custom event with a numeric value, for use with numeric metrics.
func (c *LDClient) TrackWithMetric(name string, data ldvalue.Value, metricValue float64) bool {
	return c.track(name, data, &metricValue)
}

func (c *LDClient) track(name string, data ldvalue.Value, metricValue *float64) bool {
	if name == "" {
		c.loggers.Warn("Track called with an empty event name")
		return false
	}
	switch data.Type() {
	case ldvalue.NullType, ldvalue.ObjectType:
	default:
		c.loggers.Warnf("Track called for event %q with data of type %s; only null or an object is allowed", name, data.Type())
		return false
	}
	c.manager.Enqueue(events.NewCustomEvent(name, c.manager.CurrentContext(), data, metricValue))
	return true
}
