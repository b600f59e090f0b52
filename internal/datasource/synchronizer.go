package datasource

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/events"
	"github.com/launchdarkly/go-client-sdk/internal/flagcache"
	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"
	"github.com/launchdarkly/go-client-sdk/internal/metrics"
	"github.com/launchdarkly/go-client-sdk/internal/usercontext"
	"github.com/launchdarkly/go-client-sdk/internal/util"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldtime"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

const cacheOperationTimeout = 2 * time.Second

// Listener receives the notifications that the Synchronizer produces. Its methods must not block.
type Listener interface {
	FlagsUpdated(keys []string)
	UserUpdated()
	ConnectionUnavailable()
}

// EventSink receives the feature events that the Synchronizer produces for tracked flags.
type EventSink interface {
	Enqueue(e events.Event)
}

// SynchronizerConfig contains the timing and transport settings of a Synchronizer.
type SynchronizerConfig struct {
	PollInterval     time.Duration
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	UnavailableAfter int
	WithReasons      bool

	// RequestTimeout bounds each polling request. Zero means no limit beyond the HTTP client's own.
	RequestTimeout time.Duration

	// If Streaming is true, flags are received from StreamURI and polling is only done when the
	// stream asks for it.
	Streaming          bool
	StreamURI          string
	StreamInitialRetry time.Duration
	HTTPConfig         httpconfig.HTTPConfig
}

// SynchronizerParams contains the collaborators of a Synchronizer. Events, Cache, and Metrics may be nil.
type SynchronizerParams struct {
	Store     *flagstore.Store
	Requestor Requestor
	Listener  Listener
	Events    EventSink
	Cache     flagcache.Cache
	Metrics   *metrics.Recorder
	Context   ldcontext.Context
	Offline   bool
}

// Synchronizer keeps a flag store converged with LaunchDarkly's flag values for the current context.
//
// It runs one goroutine. In polling mode, that goroutine fetches flags every poll interval, or after a
// backoff delay if the last fetch failed. In streaming mode, it owns a stream connection for the
// current context instead, and a "ping" from the stream makes the goroutine poll once. Changing the
// context starts a new generation: the store is seeded from
// the cache if possible, a fetch or stream connection for the new context starts immediately, and any
// result that arrives for an older generation is discarded.
//
// While offline, the goroutine makes no requests but keeps running, so that going online again can
// fetch immediately.
type Synchronizer struct {
	store     *flagstore.Store
	requestor Requestor
	listener  Listener
	events    EventSink
	cache     flagcache.Cache
	metrics   *metrics.Recorder
	config    SynchronizerConfig
	backoff   *util.Backoff
	loggers   ldlog.Loggers

	// applyLock is held while a batch is applied and its notifications are sent, so that listeners
	// see batches in the order they were applied
	applyLock sync.Mutex

	lock           sync.Mutex
	context        ldcontext.Context
	generation     uint64
	offline        bool
	closed         bool
	failures       int
	reportedOutage bool
	pollRequested  bool
	pollGen        uint64

	wakeCh    chan struct{}
	readyCh   chan struct{}
	readyOnce sync.Once
	closer    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// owned by the synchronizer goroutine
	stream       *streamingDataSource
	seededGen    uint64
	seededAnyGen bool
}

// NewSynchronizer creates a Synchronizer. It does nothing until Start is called.
func NewSynchronizer(params SynchronizerParams, config SynchronizerConfig, loggers ldlog.Loggers) *Synchronizer {
	loggers.SetPrefix("[Synchronizer]")
	if config.UnavailableAfter < 1 {
		config.UnavailableAfter = 1
	}
	return &Synchronizer{
		store:     params.Store,
		requestor: params.Requestor,
		listener:  params.Listener,
		events:    params.Events,
		cache:     params.Cache,
		metrics:   params.Metrics,
		config:    config,
		backoff:   util.NewBackoff(config.InitialBackoff, config.MaxBackoff),
		loggers:   loggers,
		context:   params.Context,
		offline:   params.Offline,
		wakeCh:    make(chan struct{}, 1),
		readyCh:   make(chan struct{}),
		closer:    make(chan struct{}),
	}
}

// Start starts the synchronizer goroutine.
func (s *Synchronizer) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for !s.runLoop() {
		}
		s.stopStream()
	}()
}

// Ready returns a channel that is closed when flags have been received for the first time.
func (s *Synchronizer) Ready() <-chan struct{} {
	return s.readyCh
}

// SetContext makes c the current context and begins fetching its flags immediately. Results for the
// previous context that are still in flight will be discarded.
func (s *Synchronizer) SetContext(c ldcontext.Context) {
	s.lock.Lock()
	s.context = c
	s.generation++
	s.lock.Unlock()
	s.wake()
}

// CurrentContext returns the current context.
func (s *Synchronizer) CurrentContext() ldcontext.Context {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.context
}

// SetOffline suspends or resumes network activity. Going online fetches immediately.
func (s *Synchronizer) SetOffline(offline bool) {
	s.lock.Lock()
	s.offline = offline
	s.lock.Unlock()
	s.wake()
}

// Close stops the synchronizer goroutine. A request that is in progress is allowed to finish, but
// its result is discarded, and Close waits for it no longer than maxWait if that is positive.
func (s *Synchronizer) Close(maxWait time.Duration) {
	s.closeOnce.Do(func() {
		s.lock.Lock()
		s.closed = true
		s.lock.Unlock()
		close(s.closer)
	})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
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
		s.loggers.Warn("Synchronizer did not stop within the timeout; an in-progress request will be abandoned")
	}
}

// requestPoll asks the synchronizer goroutine to poll once for the given generation, in streaming mode.
// Requests made before the goroutine gets to them are coalesced.
func (s *Synchronizer) requestPoll(gen uint64) {
	s.lock.Lock()
	s.pollRequested = true
	s.pollGen = gen
	s.lock.Unlock()
	s.wake()
}

func (s *Synchronizer) takePollRequest(gen uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	requested := s.pollRequested && s.pollGen == gen
	s.pollRequested = false
	return requested
}

func (s *Synchronizer) isCurrent(gen uint64) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return !s.closed && gen == s.generation
}

func (s *Synchronizer) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Synchronizer) snapshot() (ldcontext.Context, uint64, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.context, s.generation, s.offline
}

// runLoop returns true when the synchronizer has been closed, or false if it panicked and should be
// restarted.
func (s *Synchronizer) runLoop() (closed bool) {
	defer func() {
		if r := recover(); r != nil {
			s.loggers.Errorf(logMsgPanic, r)
			closed = false
		}
	}()
	for {
		c, gen, offline := s.snapshot()
		if !s.seededAnyGen || s.seededGen != gen {
			s.seededGen, s.seededAnyGen = gen, true
			s.seedFromCache(gen, c)
		}

		if offline {
			s.stopStream()
			select {
			case <-s.closer:
				return true
			case <-s.wakeCh:
				continue
			}
		}

		if s.config.Streaming {
			if s.stream == nil || s.stream.generation != gen {
				s.stopStream()
				s.stream = newStreamingDataSource(s, gen, c)
				s.stream.start()
			}
			if s.takePollRequest(gen) {
				s.poll(gen, c, true)
			}
			select {
			case <-s.closer:
				return true
			case <-s.wakeCh:
				continue
			}
		}

		delay := s.config.PollInterval
		if !s.poll(gen, c, false) {
			s.lock.Lock()
			failures := s.failures
			s.lock.Unlock()
			delay = s.backoff.Delay(failures)
		}
		timer := time.NewTimer(delay)
		select {
		case <-s.closer:
			timer.Stop()
			return true
		case <-s.wakeCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (s *Synchronizer) stopStream() {
	if s.stream != nil {
		s.stream.close()
		s.stream = nil
	}
}

// poll fetches flags for the given generation. If merge is true, the result is merged with updates
// that the stream may have applied during the fetch instead of replacing the store. It returns false if
// the fetch failed. The outcome of a fetch for a generation that is no longer current is ignored.
func (s *Synchronizer) poll(gen uint64, c ldcontext.Context, merge bool) bool {
	var before map[string]flagstore.FlagValue
	if merge {
		before = s.store.All()
	}
	ctx := context.Background()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}
	records, err := s.requestor.Fetch(ctx, c)
	if !s.isCurrent(gen) {
		s.loggers.Debug(logMsgStaleContext)
		return true
	}
	if errors.Is(err, ErrNotModified) {
		s.metrics.FlagFetch(metrics.PollingSource, true)
		s.recordSuccess()
		s.markReady()
		return true
	}
	if err != nil {
		s.metrics.FlagFetch(metrics.PollingSource, false)
		s.recordFailure(err)
		return false
	}
	s.metrics.FlagFetch(metrics.PollingSource, true)
	if merge {
		s.applyMerge(gen, before, records)
	} else {
		s.applyFull(gen, records)
	}
	return true
}

// applyFull replaces all flags with a complete data set for the given generation.
func (s *Synchronizer) applyFull(gen uint64, records []flagstore.FlagRecord) {
	s.apply(gen, func() []string { return s.store.Init(records) })
}

// applyMerge applies a complete data set that was fetched while stream updates could still arrive.
// Each record is applied only if it is newer than the stored flag. A stored flag that is missing from
// the data set is removed only if it has not changed since the fetch began.
func (s *Synchronizer) applyMerge(gen uint64, before map[string]flagstore.FlagValue, records []flagstore.FlagRecord) {
	s.apply(gen, func() []string {
		var changed []string
		present := make(map[string]struct{}, len(records))
		for _, r := range records {
			present[r.Key] = struct{}{}
			if s.store.Upsert(r) {
				changed = append(changed, r.Key)
			}
		}
		var removed []string
		for key, f := range before {
			if _, ok := present[key]; ok {
				continue
			}
			if s.store.DeleteVersioned(key, f.Version+1) {
				removed = append(removed, key)
			}
		}
		sort.Strings(removed)
		return append(changed, removed...)
	})
}

func (s *Synchronizer) applyPatch(gen uint64, record flagstore.FlagRecord) {
	s.apply(gen, func() []string {
		if s.store.Upsert(record) {
			return []string{record.Key}
		}
		return nil
	})
}

func (s *Synchronizer) applyDelete(gen uint64, key string, version int) {
	s.apply(gen, func() []string {
		if s.store.DeleteVersioned(key, version) {
			return []string{key}
		}
		return nil
	})
}

func (s *Synchronizer) apply(gen uint64, update func() []string) {
	s.applyLock.Lock()
	defer s.applyLock.Unlock()

	s.lock.Lock()
	if s.closed || gen != s.generation {
		s.lock.Unlock()
		s.loggers.Debug(logMsgStaleContext)
		return
	}
	// the lock is held while updating the store so that SetContext cannot slip in between the
	// generation check and the update
	changed := update()
	c := s.context
	s.lock.Unlock()

	s.recordSuccess()
	s.markReady()
	if len(changed) == 0 {
		return
	}
	s.saveToCache(c)
	s.enqueueFeatureEvents(c, changed)
	s.listener.FlagsUpdated(changed)
	s.listener.UserUpdated()
}

func (s *Synchronizer) enqueueFeatureEvents(c ldcontext.Context, changed []string) {
	if s.events == nil {
		return
	}
	now := ldtime.UnixMillisNow()
	for _, key := range changed {
		f, ok := s.store.Lookup(key)
		if !ok || !f.TrackEvents {
			continue
		}
		version := f.FlagVersion
		if !version.IsDefined() {
			version = ldvalue.NewOptionalInt(f.Version)
		}
		e := events.FeatureEvent{
			Created:   now,
			Key:       key,
			Context:   c,
			Value:     f.Value,
			Default:   ldvalue.Null(),
			Version:   version,
			Variation: f.Variation,
		}
		if s.config.WithReasons || f.TrackReason {
			e.Reason = f.Reason
		}
		s.events.Enqueue(e)
	}
}

func (s *Synchronizer) seedFromCache(gen uint64, c ldcontext.Context) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOperationTimeout)
	defer cancel()
	records, ok, err := s.cache.Load(ctx, usercontext.CacheKey(c))
	if err != nil {
		s.loggers.Warnf(logMsgCacheLoadFailed, err)
		return
	}
	if !ok {
		return
	}
	s.applyLock.Lock()
	defer s.applyLock.Unlock()
	s.lock.Lock()
	if gen != s.generation {
		s.lock.Unlock()
		return
	}
	changed := s.store.Init(records)
	s.lock.Unlock()
	s.loggers.Debugf(logMsgCacheLoaded, len(records))
	if len(changed) > 0 {
		s.listener.FlagsUpdated(changed)
	}
}

func (s *Synchronizer) saveToCache(c ldcontext.Context) {
	if s.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cacheOperationTimeout)
	defer cancel()
	if err := s.cache.Save(ctx, usercontext.CacheKey(c), s.store.All()); err != nil {
		s.loggers.Warnf(logMsgCacheSaveFailed, err)
	}
}

func (s *Synchronizer) markReady() {
	s.readyOnce.Do(func() { close(s.readyCh) })
}

func (s *Synchronizer) recordSuccess() {
	s.lock.Lock()
	restored := s.reportedOutage
	s.failures = 0
	s.reportedOutage = false
	s.lock.Unlock()
	if restored {
		s.loggers.Info(logMsgConnectionRestored)
	}
}

func (s *Synchronizer) recordFailure(err error) {
	s.lock.Lock()
	s.failures++
	failures := s.failures
	notify := failures >= s.config.UnavailableAfter && !s.reportedOutage
	if notify {
		s.reportedOutage = true
	}
	s.lock.Unlock()

	var se httpStatusError
	if errors.As(err, &se) && !isHTTPErrorRecoverable(se.status) {
		s.loggers.Errorf(logMsgPollingBadKey, se.status)
	} else {
		s.loggers.Warnf(logMsgPollingFailed, failures, err)
	}
	if notify {
		s.loggers.Warnf(logMsgConnectionUnavailable, failures)
		s.listener.ConnectionUnavailable()
	}
}
