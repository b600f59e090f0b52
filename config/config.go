// Package config contains the configuration types for the LaunchDarkly client-side Go SDK, along with
// helpers for loading them from a file or from environment variables.
package config

import (
	"reflect"
	"time"

	ct "github.com/launchdarkly/go-configtypes"
)

const (
	// DefaultBaseURI is the default base URI of the client-side polling service.
	DefaultBaseURI = "https://clientsdk.launchdarkly.com"

	// DefaultStreamURI is the default base URI of the client-side streaming service.
	DefaultStreamURI = "https://clientstream.launchdarkly.com"

	// DefaultEventsURI is the default base URI of the mobile events service.
	DefaultEventsURI = "https://mobile.launchdarkly.com"

	// DefaultPollInterval is the default value for PollingConfig.PollInterval if not specified.
	DefaultPollInterval = time.Minute * 5

	// DefaultEventsFlushInterval is the default value for EventsConfig.FlushInterval if not specified.
	DefaultEventsFlushInterval = time.Second * 30

	// DefaultEventsFlushTimeout is the default value for EventsConfig.FlushTimeout if not specified.
	DefaultEventsFlushTimeout = time.Second * 5

	// DefaultEventCapacity is the default value for EventsConfig.Capacity if not specified.
	DefaultEventCapacity = 100

	// DefaultEventsMaxAttempts is the default value for EventsConfig.MaxAttempts if not specified.
	DefaultEventsMaxAttempts = 3

	// DefaultInitialBackoff is the default value for ConnectionConfig.InitialBackoff if not specified.
	DefaultInitialBackoff = time.Second

	// DefaultMaxBackoff is the default value for ConnectionConfig.MaxBackoff if not specified.
	DefaultMaxBackoff = time.Minute

	// DefaultUnavailableAfter is the default value for ConnectionConfig.UnavailableAfter if not specified.
	DefaultUnavailableAfter = 3

	// DefaultRequestTimeout is the default value for ConnectionConfig.RequestTimeout if not specified.
	DefaultRequestTimeout = time.Second * 10

	// DefaultStopTimeout is the default value for ConnectionConfig.StopTimeout if not specified.
	DefaultStopTimeout = time.Second * 2

	// DefaultStreamInitialRetryDelay is the default value for StreamingConfig.InitialRetryDelay.
	DefaultStreamInitialRetryDelay = time.Second

	// DefaultMaxCachedContexts is the default value for CacheConfig.MaxCachedContexts if not specified.
	DefaultMaxCachedContexts = 5

	// DefaultCacheTTL is the default value for CacheConfig.TTL if not specified.
	DefaultCacheTTL = time.Hour * 24 * 90
)

const (
	defaultPrometheusPort = 8031
)

// Config describes the configuration for a client instance.
//
// If you are configuring the client programmatically, it is best to start by copying DefaultConfig
// and then changing only the fields you need to change.
//
// Every field is read-only once the client has been started.
type Config struct {
	Main        MainConfig
	Polling     PollingConfig
	Streaming   StreamingConfig
	Events      EventsConfig
	Connection  ConnectionConfig
	Application ApplicationConfig
	Cache       CacheConfig
	Proxy       ProxyConfig
	Prometheus  PrometheusConfig
}

// MainConfig contains global options.
//
// This corresponds to the [Main] section in the configuration file.
type MainConfig struct {
	MobileKey         MobileKey      `conf:"LD_MOBILE_KEY"`
	Offline           bool           `conf:"LD_OFFLINE"`
	EvaluationReasons bool           `conf:"EVALUATION_REASONS"`
	UseReport         bool           `conf:"USE_REPORT"`
	StartWaitTime     ct.OptDuration `conf:"START_WAIT_TIME"`
	LogLevel          OptLogLevel    `conf:"LOG_LEVEL"`
}

// PollingConfig contains options for the polling data source.
//
// This corresponds to the [Polling] section in the configuration file.
type PollingConfig struct {
	BaseURI      ct.OptURLAbsolute `conf:"BASE_URI"`
	PollInterval ct.OptDuration    `conf:"POLL_INTERVAL"`
}

// StreamingConfig contains options for the streaming data source, which is used instead of periodic
// polling only if Enabled is true.
//
// This corresponds to the [Streaming] section in the configuration file.
type StreamingConfig struct {
	Enabled           bool              `conf:"STREAMING"`
	StreamURI         ct.OptURLAbsolute `conf:"STREAM_URI"`
	InitialRetryDelay ct.OptDuration    `conf:"STREAM_INITIAL_RETRY_DELAY"`
}

// EventsConfig contains options for analytics event delivery.
//
// This corresponds to the [Events] section in the configuration file.
type EventsConfig struct {
	EventsURI     ct.OptURLAbsolute        `conf:"EVENTS_URI"`
	Capacity      ct.OptIntGreaterThanZero `conf:"EVENTS_CAPACITY"`
	FlushInterval ct.OptDuration           `conf:"EVENTS_FLUSH_INTERVAL"`
	FlushTimeout  ct.OptDuration           `conf:"EVENTS_FLUSH_TIMEOUT"`
	MaxAttempts   ct.OptIntGreaterThanZero `conf:"EVENTS_MAX_ATTEMPTS"`
}

// ConnectionConfig contains options for retrying failed requests and reporting connection outages.
//
// This corresponds to the [Connection] section in the configuration file.
type ConnectionConfig struct {
	InitialBackoff   ct.OptDuration           `conf:"CONNECTION_INITIAL_BACKOFF"`
	MaxBackoff       ct.OptDuration           `conf:"CONNECTION_MAX_BACKOFF"`
	UnavailableAfter ct.OptIntGreaterThanZero `conf:"CONNECTION_UNAVAILABLE_AFTER"`
	RequestTimeout   ct.OptDuration           `conf:"CONNECTION_REQUEST_TIMEOUT"`
	StopTimeout      ct.OptDuration           `conf:"STOP_TIMEOUT"`
}

// ApplicationConfig describes the application that the SDK is embedded in. These values are sent to
// LaunchDarkly in the X-LaunchDarkly-Tags header.
//
// This corresponds to the [Application] section in the configuration file.
type ApplicationConfig struct {
	ID          string `conf:"APPLICATION_ID"`
	Version     string `conf:"APPLICATION_VERSION"`
	Name        string `conf:"APPLICATION_NAME"`
	VersionName string `conf:"APPLICATION_VERSION_NAME"`
}

// CacheConfig configures the per-context flag cache that is used to serve the last known flag values
// for a context before the first fetch for it has completed.
//
// If RedisURL is set, cached flags are kept in Redis; otherwise they are kept in memory for the
// lifetime of the process.
//
// This corresponds to the [Cache] section in the configuration file.
type CacheConfig struct {
	Disabled          bool                     `conf:"CACHE_DISABLED"`
	MaxCachedContexts ct.OptIntGreaterThanZero `conf:"CACHE_MAX_CONTEXTS"`
	TTL               ct.OptDuration           `conf:"CACHE_TTL"`
	RedisURL          ct.OptURLAbsolute        `conf:"CACHE_REDIS_URL"`
	RedisPrefix       string                   `conf:"CACHE_REDIS_PREFIX"`
}

// ProxyConfig represents the supported HTTP proxy options.
//
// This corresponds to the [Proxy] section in the configuration file.
type ProxyConfig struct {
	URL         ct.OptURLAbsolute `conf:"PROXY_URL"`
	CACertFiles string            `conf:"PROXY_CA_CERTS"`
}

// PrometheusConfig configures the optional Prometheus metrics endpoint of the ld-flag-watch command.
//
// This corresponds to the [Prometheus] section in the configuration file.
type PrometheusConfig struct {
	Enabled bool   `conf:"USE_PROMETHEUS"`
	Port    int    `conf:"PROMETHEUS_PORT"`
	Prefix  string `conf:"PROMETHEUS_PREFIX"`
}

// DefaultConfig contains defaults for all configuration sections.
var DefaultConfig = Config{
	Polling: PollingConfig{
		BaseURI: newOptURLAbsoluteMustBeValid(DefaultBaseURI),
	},
	Streaming: StreamingConfig{
		StreamURI: newOptURLAbsoluteMustBeValid(DefaultStreamURI),
	},
	Events: EventsConfig{
		EventsURI: newOptURLAbsoluteMustBeValid(DefaultEventsURI),
	},
	Prometheus: PrometheusConfig{
		Port: defaultPrometheusPort,
	},
}

// Equal returns true if both configurations have exactly the same settings.
func (c Config) Equal(other Config) bool {
	return reflect.DeepEqual(c, other)
}

func newOptURLAbsoluteMustBeValid(urlString string) ct.OptURLAbsolute {
	o, err := ct.NewOptURLAbsoluteFromString(urlString)
	if err != nil {
		panic(err)
	}
	return o
}
