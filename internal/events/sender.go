package events

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"

	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	ldevents "github.com/launchdarkly/go-sdk-events/v2"
)

var (
	// ErrDeliveryFailed is returned by EventSender when the events could not be delivered but a
	// later attempt might succeed.
	ErrDeliveryFailed = errors.New("event delivery failed")

	// ErrMustShutDown is returned by EventSender when LaunchDarkly rejected the events in a way that
	// means no future delivery will succeed, such as an invalid mobile key.
	ErrMustShutDown = errors.New("event delivery permanently rejected")
)

// EventSender delivers a serialized batch of events.
//
// The only implementation outside of tests is HTTPEventSender. It is an interface so that it can be
// mocked in test code.
type EventSender interface {
	SendEvents(ctx context.Context, payload []byte, count int) error
}

// HTTPEventSender posts events to the LaunchDarkly mobile events endpoint.
type HTTPEventSender struct {
	baseURI    string
	uriPath    string
	client     *http.Client
	httpConfig httpconfig.HTTPConfig
	loggers    ldlog.Loggers
	lock       sync.Mutex
}

// NewHTTPEventSender creates an HTTPEventSender for the given events base URI.
func NewHTTPEventSender(baseURI string, httpConfig httpconfig.HTTPConfig, loggers ldlog.Loggers) *HTTPEventSender {
	return &HTTPEventSender{
		baseURI:    strings.TrimRight(baseURI, "/"),
		uriPath:    MobileEventsPath,
		client:     httpConfig.Client(),
		httpConfig: httpConfig,
		loggers:    loggers,
	}
}

// SendEvents implements EventSender. The underlying ldevents sender already retries once after a
// recoverable error, and logs failures.
func (s *HTTPEventSender) SendEvents(ctx context.Context, payload []byte, count int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.lock.Lock()
	defer s.lock.Unlock()

	sendConfig := ldevents.EventSenderConfiguration{
		Client:        s.client,
		BaseURI:       s.baseURI,
		BaseHeaders:   s.httpConfig.DefaultHeaders,
		SchemaVersion: CurrentEventsSchemaVersion,
		Loggers:       s.loggers,
	}
	result := ldevents.SendEventDataWithRetry(sendConfig, ldevents.AnalyticsEventDataKind, s.uriPath, payload, count)
	switch {
	case result.Success:
		return nil
	case result.MustShutDown:
		return ErrMustShutDown
	default:
		return ErrDeliveryFailed
	}
}
