package events

const (
	// CurrentEventsSchemaVersion is the event schema version this SDK produces.
	CurrentEventsSchemaVersion = 4

	// EventSchemaHeader is an HTTP header that describes the schema version for event requests.
	EventSchemaHeader = "X-LaunchDarkly-Event-Schema"

	// MobileEventsPath is the endpoint path for event delivery, relative to the events base URI.
	MobileEventsPath = "/mobile/events/bulk"

	// IdentifyKind is the kind of an event that reports the current context.
	IdentifyKind = "identify"

	// CustomKind is the kind of an event created by the application with Track.
	CustomKind = "custom"

	// FeatureKind is the kind of an event that records a flag value for a flag whose trackEvents
	// property is set.
	FeatureKind = "feature"
)
