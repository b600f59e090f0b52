package metrics

import (
	"fmt"
	"sync"

	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

const (
	flagFetchesViewName       = "flag_fetches"
	flagFetchFailuresViewName = "flag_fetch_failures"
	eventsEnqueuedViewName    = "events_enqueued"
	eventsDroppedViewName     = "events_dropped"
	eventsFlushedViewName     = "events_flushed"
)

var (
	registerViewsOnce sync.Once //nolint:gochecknoglobals
	registerViewsErr  error     //nolint:gochecknoglobals
)

func getViews() []*view.View {
	return []*view.View{
		{
			Name:        flagFetchesViewName,
			Measure:     flagFetchMeasure,
			Aggregation: view.Sum(),
			TagKeys:     append([]tag.Key{sourceTagKey}, allTags...),
		},
		{
			Name:        flagFetchFailuresViewName,
			Measure:     flagFetchFailureMeasure,
			Aggregation: view.Sum(),
			TagKeys:     append([]tag.Key{sourceTagKey}, allTags...),
		},
		{Name: eventsEnqueuedViewName, Measure: eventsEnqueuedMeasure, Aggregation: view.Sum(), TagKeys: allTags},
		{Name: eventsDroppedViewName, Measure: eventsDroppedMeasure, Aggregation: view.Sum(), TagKeys: allTags},
		{Name: eventsFlushedViewName, Measure: eventsFlushedMeasure, Aggregation: view.Sum(), TagKeys: allTags},
	}
}

// RegisterViews makes the SDK's measures visible to any OpenCensus exporter. It is safe to call more
// than once.
func RegisterViews() error {
	registerViewsOnce.Do(func() {
		if err := view.Register(getViews()...); err != nil {
			registerViewsErr = fmt.Errorf("error registering metrics views: %w", err)
		}
	})
	return registerViewsErr
}
