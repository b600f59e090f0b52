package metrics

import (
	"go.opencensus.io/tag"
)

const (
	defaultMetricsPrefix = "launchdarkly_client"
	prometheusPath       = "/metrics"
)

var (
	instanceTagKey, _    = tag.NewKey("sdkInstance")    //nolint:gochecknoglobals
	applicationTagKey, _ = tag.NewKey("application")    //nolint:gochecknoglobals
	sourceTagKey, _      = tag.NewKey("dataSourceKind") //nolint:gochecknoglobals

	allTags = []tag.Key{instanceTagKey, applicationTagKey} //nolint:gochecknoglobals
)
