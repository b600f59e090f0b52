package metrics

import (
	"go.opencensus.io/stats"
)

var (
	flagFetchMeasure        = stats.Int64("flags/fetches", "successful flag data updates", stats.UnitDimensionless)           //nolint:gochecknoglobals
	flagFetchFailureMeasure = stats.Int64("flags/fetch_failures", "failed flag data requests", stats.UnitDimensionless)       //nolint:gochecknoglobals
	eventsEnqueuedMeasure   = stats.Int64("events/enqueued", "analytics events added to the buffer", stats.UnitDimensionless) //nolint:gochecknoglobals
	eventsDroppedMeasure    = stats.Int64("events/dropped", "analytics events discarded", stats.UnitDimensionless)            //nolint:gochecknoglobals
	eventsFlushedMeasure    = stats.Int64("events/flushed", "analytics events delivered", stats.UnitDimensionless)            //nolint:gochecknoglobals
)
