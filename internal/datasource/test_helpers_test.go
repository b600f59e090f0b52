package datasource

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/events"
	"github.com/launchdarkly/go-client-sdk/internal/flagcache"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	helpers "github.com/launchdarkly/go-test-helpers/v3"

	"github.com/stretchr/testify/require"
)

const testMobileKey = config.MobileKey("mob-key")

var (
	user1 = ldcontext.New("user1")
	user2 = ldcontext.New("user2")
)

func flag(key string, value ldvalue.Value, version int) flagstore.FlagRecord {
	return flagstore.FlagRecord{Key: key, Flag: flagstore.FlagValue{Value: value, Version: version}}
}

func trackedFlag(key string, value ldvalue.Value, version int) flagstore.FlagRecord {
	r := flag(key, value, version)
	r.Flag.TrackEvents = true
	r.Flag.Variation = ldvalue.NewOptionalInt(0)
	return r
}

func makeTestHTTPConfig(t *testing.T) httpconfig.HTTPConfig {
	hc, err := httpconfig.NewHTTPConfig(config.ProxyConfig{}, testMobileKey, config.ApplicationConfig{}, 0, ldlog.NewDisabledLoggers())
	require.NoError(t, err)
	return hc
}

type fetchResult struct {
	records []flagstore.FlagRecord
	err     error
}

// fakeRequestor answers each fetch by calling respond, and reports the key of each requested context
// on requests.
type fakeRequestor struct {
	requests chan string
	lock     sync.Mutex
	respond  func(c ldcontext.Context) fetchResult
}

func newFakeRequestor(respond func(c ldcontext.Context) fetchResult) *fakeRequestor {
	return &fakeRequestor{requests: make(chan string, 100), respond: respond}
}

func constantResult(records ...flagstore.FlagRecord) func(ldcontext.Context) fetchResult {
	return func(ldcontext.Context) fetchResult { return fetchResult{records: records} }
}

func (r *fakeRequestor) Fetch(_ context.Context, c ldcontext.Context) ([]flagstore.FlagRecord, error) {
	select {
	case r.requests <- c.Key():
	default:
	}
	r.lock.Lock()
	respond := r.respond
	r.lock.Unlock()
	result := respond(c)
	return result.records, result.err
}

func (r *fakeRequestor) setResponse(respond func(c ldcontext.Context) fetchResult) {
	r.lock.Lock()
	r.respond = respond
	r.lock.Unlock()
}

type fakeListener struct {
	flagBatches chan []string
	userUpdates chan struct{}
	outages     chan struct{}
}

func newFakeListener() *fakeListener {
	return &fakeListener{
		flagBatches: make(chan []string, 100),
		userUpdates: make(chan struct{}, 100),
		outages:     make(chan struct{}, 100),
	}
}

func (l *fakeListener) FlagsUpdated(keys []string) { l.flagBatches <- keys }
func (l *fakeListener) UserUpdated()               { l.userUpdates <- struct{}{} }
func (l *fakeListener) ConnectionUnavailable()     { l.outages <- struct{}{} }

type fakeEventSink struct {
	events chan events.Event
}

func (s *fakeEventSink) Enqueue(e events.Event) { s.events <- e }

type syncTestParams struct {
	t         *testing.T
	store     *flagstore.Store
	requestor *fakeRequestor
	listener  *fakeListener
	events    *fakeEventSink
	cache     *flagcache.InMemoryCache
	sync      *Synchronizer
	mockLog   *ldlogtest.MockLog
}

type syncTestOption func(*SynchronizerConfig, *SynchronizerParams)

func withOffline() syncTestOption {
	return func(_ *SynchronizerConfig, p *SynchronizerParams) { p.Offline = true }
}

func withUnavailableAfter(n int) syncTestOption {
	return func(c *SynchronizerConfig, _ *SynchronizerParams) { c.UnavailableAfter = n }
}

func withPollInterval(d time.Duration) syncTestOption {
	return func(c *SynchronizerConfig, _ *SynchronizerParams) { c.PollInterval = d }
}

func withStreaming(hc httpconfig.HTTPConfig, streamURI string) syncTestOption {
	return func(c *SynchronizerConfig, _ *SynchronizerParams) {
		c.Streaming = true
		c.StreamURI = streamURI
		c.StreamInitialRetry = time.Millisecond
		c.HTTPConfig = hc
	}
}

func syncTest(t *testing.T, requestor *fakeRequestor, action func(p syncTestParams), options ...syncTestOption) {
	mockLog := ldlogtest.NewMockLog()
	defer mockLog.DumpIfTestFailed(t)
	mockLog.Loggers.SetMinLevel(ldlog.Debug)

	p := syncTestParams{
		t:         t,
		store:     flagstore.NewStore(),
		requestor: requestor,
		listener:  newFakeListener(),
		events:    &fakeEventSink{events: make(chan events.Event, 100)},
		cache:     flagcache.NewInMemoryCache(5),
		mockLog:   mockLog,
	}
	cfg := SynchronizerConfig{
		PollInterval:     time.Hour,
		InitialBackoff:   time.Millisecond,
		MaxBackoff:       10 * time.Millisecond,
		UnavailableAfter: 3,
	}
	params := SynchronizerParams{
		Store:     p.store,
		Requestor: requestor,
		Listener:  p.listener,
		Events:    p.events,
		Cache:     p.cache,
		Context:   user1,
	}
	for _, o := range options {
		o(&cfg, &params)
	}
	p.sync = NewSynchronizer(params, cfg, mockLog.Loggers)
	p.sync.Start()
	defer p.sync.Close(time.Second)

	action(p)
}

func (p syncTestParams) requireRequest() string {
	return helpers.RequireValue(p.t, p.requestor.requests, time.Second, "timed out waiting for flag request")
}

func (p syncTestParams) requireNoMoreRequests() {
	helpers.AssertNoMoreValues(p.t, p.requestor.requests, 50*time.Millisecond, "unexpected flag request")
}

func (p syncTestParams) requireFlagBatch() []string {
	return helpers.RequireValue(p.t, p.listener.flagBatches, time.Second, "timed out waiting for flag notification")
}

func (p syncTestParams) requireFlagValue(key string, expected ldvalue.Value) {
	require.Eventually(p.t, func() bool {
		f, ok := p.store.Lookup(key)
		return ok && f.Value.Equal(expected)
	}, time.Second, time.Millisecond, "flag %q never had value %s", key, expected)
}
