package datasource

const (
	logMsgPollingRequest        = "Requesting flags from %s"
	logMsgPollingFailed         = "Error fetching flags (attempt %d): %s"
	logMsgPollingBadKey         = "Mobile key was rejected (HTTP %d); check the client configuration"
	logMsgConnectionUnavailable = "Unable to reach LaunchDarkly after %d consecutive failures"
	logMsgConnectionRestored    = "Connection to LaunchDarkly restored"
	logMsgStaleContext          = "Discarding flag data received for a context that is no longer current"
	logMsgCacheLoadFailed       = "Unable to read cached flags: %s"
	logMsgCacheSaveFailed       = "Unable to save flags to cache: %s"
	logMsgCacheLoaded           = "Loaded %d cached flag(s) for the current context"
	logMsgPanic                 = "Unexpected panic in flag synchronizer, restarting: %v"
	logMsgStreamConnecting      = "Connecting to flag stream at %s"
	logMsgStreamHTTPError       = "HTTP error %d on flag stream"
	logMsgStreamOtherError      = "Unexpected error on flag stream: %s"
	logMsgStreamBadKey          = "Mobile key was rejected by the flag stream (HTTP %d); stream will not reconnect"
	logMsgStreamMalformedData   = "Received streaming %q event with malformed JSON data (%s); will restart stream"
	logMsgStreamUnknownEvent    = "Ignoring unrecognized stream event: %q"
)
