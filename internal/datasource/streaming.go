package datasource

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/metrics"
	"github.com/launchdarkly/go-client-sdk/internal/usercontext"
	"github.com/launchdarkly/go-client-sdk/internal/util"

	es "github.com/launchdarkly/eventsource"
	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const (
	streamPath               = "/meval/"
	streamReadTimeout        = 5 * time.Minute // the stream sends a heartbeat comment every 3 minutes
	streamMaxRetryDelay      = 30 * time.Second
	streamRetryResetInterval = 60 * time.Second
	streamJitterRatio        = 0.5
	defaultStreamRetryDelay  = time.Second

	putEvent    = "put"
	patchEvent  = "patch"
	deleteEvent = "delete"
	pingEvent   = "ping"
)

var errMissingDeleteKey = errors.New("missing key")

// streamingDataSource is one stream connection for one context. The Synchronizer replaces it whenever
// the context changes, so every update it applies is tagged with the generation it was created for.
type streamingDataSource struct {
	sync       *Synchronizer
	generation uint64
	context    ldcontext.Context
	loggers    ldlog.Loggers
	halt       chan struct{}
	closeOnce  sync.Once
}

func newStreamingDataSource(s *Synchronizer, generation uint64, c ldcontext.Context) *streamingDataSource {
	loggers := s.loggers
	loggers.SetPrefix("[Stream]")
	return &streamingDataSource{
		sync:       s,
		generation: generation,
		context:    c,
		loggers:    loggers,
		halt:       make(chan struct{}),
	}
}

func (sd *streamingDataSource) start() {
	go sd.subscribe()
}

func (sd *streamingDataSource) close() {
	sd.closeOnce.Do(func() {
		close(sd.halt)
	})
}

func (sd *streamingDataSource) subscribe() {
	config := sd.sync.config

	errorHandler := func(err error) es.StreamErrorHandlerResult {
		select {
		case <-sd.halt:
			return es.StreamErrorHandlerResult{CloseNow: true}
		default:
		}
		sd.sync.metrics.FlagFetch(metrics.StreamingSource, false)
		if se, ok := err.(es.SubscriptionError); ok {
			if !isHTTPErrorRecoverable(se.Code) {
				sd.loggers.Errorf(logMsgStreamBadKey, se.Code)
				sd.sync.recordFailure(httpStatusError{status: se.Code, url: config.StreamURI})
				return es.StreamErrorHandlerResult{CloseNow: true}
			}
			sd.loggers.Warnf(logMsgStreamHTTPError, se.Code)
			sd.sync.recordFailure(httpStatusError{status: se.Code, url: config.StreamURI})
			return es.StreamErrorHandlerResult{CloseNow: false}
		}
		sd.loggers.Warnf(logMsgStreamOtherError, err)
		sd.sync.recordFailure(err)
		return es.StreamErrorHandlerResult{CloseNow: false}
	}

	encoded, err := usercontext.EncodeBase64(sd.context)
	if err != nil {
		sd.loggers.Errorf(logMsgStreamOtherError, err)
		return
	}
	streamURL := strings.TrimRight(config.StreamURI, "/") + streamPath + encoded
	if config.WithReasons {
		streamURL += "?withReasons=true"
	}

	req, err := http.NewRequest(http.MethodGet, streamURL, nil)
	if err != nil {
		sd.loggers.Errorf(logMsgStreamOtherError, err)
		return
	}
	for k, vv := range config.HTTPConfig.DefaultHeaders() {
		req.Header[k] = vv
	}
	sd.loggers.Infof(logMsgStreamConnecting, util.RedactURL(strings.TrimRight(config.StreamURI, "/")+streamPath))

	retry := config.StreamInitialRetry
	if retry <= 0 {
		retry = defaultStreamRetryDelay
	}

	// Client.Timeout must be zeroed out for stream connections, since it's not just a connect timeout
	// but a timeout for the entire response
	client := config.HTTPConfig.Client()
	client.Timeout = 0

	stream, err := es.SubscribeWithRequestAndOptions(req,
		es.StreamOptionHTTPClient(client),
		es.StreamOptionReadTimeout(streamReadTimeout),
		es.StreamOptionInitialRetry(retry),
		es.StreamOptionUseBackoff(streamMaxRetryDelay),
		es.StreamOptionUseJitter(streamJitterRatio),
		es.StreamOptionRetryResetInterval(streamRetryResetInterval),
		es.StreamOptionErrorHandler(errorHandler),
		es.StreamOptionCanRetryFirstConnection(-1),
		es.StreamOptionLogger(sd.loggers.ForLevel(ldlog.Info)),
	)
	if err != nil {
		sd.loggers.Errorf(logMsgStreamOtherError, err)
		return
	}

	sd.consumeStream(stream)
}

func (sd *streamingDataSource) consumeStream(stream *es.Stream) {
	// Consume remaining Events and Errors so we can garbage collect
	defer func() {
		for range stream.Events {
		}
		if stream.Errors != nil {
			for range stream.Errors {
			}
		}
	}()

	for {
		select {
		case event, ok := <-stream.Events:
			if !ok {
				return
			}
			if sd.loggers.IsDebugEnabled() {
				sd.loggers.Debugf("Received %q event: %s", event.Event(), event.Data())
			}
			if err := sd.handleEvent(event); err != nil {
				sd.loggers.Errorf(logMsgStreamMalformedData, event.Event(), err)
				stream.Restart()
			}
		case <-sd.halt:
			stream.Close()
			return
		}
	}
}

func (sd *streamingDataSource) handleEvent(event es.Event) error {
	data := []byte(event.Data())
	switch event.Event() {
	case putEvent:
		records, err := flagstore.ParseFlags(data)
		if err != nil {
			return err
		}
		sd.sync.metrics.FlagFetch(metrics.StreamingSource, true)
		sd.sync.applyFull(sd.generation, records)

	case patchEvent:
		record, err := flagstore.ParseFlagRecord(data)
		if err != nil {
			return err
		}
		sd.sync.applyPatch(sd.generation, record)

	case deleteEvent:
		key, version, err := parseDeleteData(data)
		if err != nil {
			return err
		}
		sd.sync.applyDelete(sd.generation, key, version)

	case pingEvent:
		sd.sync.requestPoll(sd.generation)

	default:
		sd.loggers.Warnf(logMsgStreamUnknownEvent, event.Event())
	}
	return nil
}

func parseDeleteData(data []byte) (string, int, error) {
	r := jreader.NewReader(data)
	var key string
	var version int
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "key":
			key = r.String()
		case "version":
			version = r.Int()
		default:
			_ = r.SkipValue()
		}
	}
	if err := r.Error(); err != nil {
		return "", 0, err
	}
	if key == "" {
		return "", 0, errMissingDeleteKey
	}
	return key, version, nil
}
