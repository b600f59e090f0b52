// Package metrics records the SDK's internal counters with OpenCensus, and can expose them to
// Prometheus.
package metrics

import (
	"context"
	"strings"

	"github.com/pborman/uuid"
	"go.opencensus.io/stats"
	"go.opencensus.io/tag"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// DataSourceKind distinguishes flag updates that arrived by polling from those that arrived by streaming.
type DataSourceKind string

const (
	// PollingSource is the tag value for flag data obtained by a polling request.
	PollingSource DataSourceKind = "polling"
	// StreamingSource is the tag value for flag data obtained from the stream.
	StreamingSource DataSourceKind = "streaming"
)

// Recorder records measurements for one client instance. The zero value is not usable, but a nil
// *Recorder is, and discards everything.
type Recorder struct {
	ctx        context.Context
	instanceID string
}

// NewRecorder creates a Recorder whose measurements are tagged with a unique instance ID and the
// application ID.
func NewRecorder(applicationID string, loggers ldlog.Loggers) *Recorder {
	instanceID := uuid.New()
	ctx, err := tag.New(context.Background(),
		tag.Insert(instanceTagKey, instanceID),
		tag.Insert(applicationTagKey, sanitizeTagValue(applicationID)),
	)
	if err != nil {
		loggers.Errorf("Failed to create metrics tags: %s", err)
		ctx = context.Background()
	}
	return &Recorder{ctx: ctx, instanceID: instanceID}
}

// InstanceID returns the unique tag value used for this Recorder's measurements.
func (r *Recorder) InstanceID() string {
	if r == nil {
		return ""
	}
	return r.instanceID
}

// FlagFetch records the outcome of one attempt to obtain flag data.
func (r *Recorder) FlagFetch(kind DataSourceKind, ok bool) {
	if r == nil {
		return
	}
	ctx, _ := tag.New(r.ctx, tag.Upsert(sourceTagKey, string(kind)))
	if ok {
		stats.Record(ctx, flagFetchMeasure.M(1))
	} else {
		stats.Record(ctx, flagFetchFailureMeasure.M(1))
	}
}

// EventsEnqueued records events added to the event buffer.
func (r *Recorder) EventsEnqueued(n int) {
	r.record(eventsEnqueuedMeasure, n)
}

// EventsDropped records events that were discarded, either because the buffer was full or because
// delivery was abandoned.
func (r *Recorder) EventsDropped(n int) {
	r.record(eventsDroppedMeasure, n)
}

// EventsFlushed records events that were delivered.
func (r *Recorder) EventsFlushed(n int) {
	r.record(eventsFlushedMeasure, n)
}

func (r *Recorder) record(m *stats.Int64Measure, n int) {
	if r == nil || n <= 0 {
		return
	}
	stats.Record(r.ctx, m.M(int64(n)))
}

// Pad empty keys to match tag keyset cardinality since empty strings are dropped
func sanitizeTagValue(v string) string {
	if strings.TrimSpace(v) == "" {
		return "_"
	}
	return strings.Replace(v, "/", "_", -1)
}
