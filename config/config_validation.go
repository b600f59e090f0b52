package config

import (
	"errors"
	"fmt"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

var (
	errMobileKeyRequired    = errors.New("mobile key is required")
	errRedisURLScheme       = errors.New(`cache Redis URL must use the "redis" or "rediss" scheme`)
	errCacheRedisAndDisable = errors.New("cache Redis URL cannot be set if the cache is disabled")
	errBackoffRange         = errors.New("connection initial backoff must not be greater than maximum backoff")
	errPrometheusPort       = errors.New("Prometheus port must be greater than zero") //nolint:stylecheck
)

func errDurationNotPositive(name string) error {
	return fmt.Errorf("%s must be greater than zero", name)
}

// ValidateConfig ensures that the configuration does not contain missing or contradictory properties.
//
// This covers rules that can't be enforced on a per-field basis. LoadConfigFromEnvironment and
// LoadConfigFile both call it as a last step, and the client calls it again on start, since
// application code can also construct a Config programmatically.
func ValidateConfig(c *Config, loggers ldlog.Loggers) error {
	var result ct.ValidationResult

	validateConfigMain(&result, c, loggers)
	validateConfigDurations(&result, c)
	validateConfigCache(&result, c)
	validateConfigPrometheus(&result, c)

	return result.GetError()
}

func validateConfigMain(result *ct.ValidationResult, c *Config, loggers ldlog.Loggers) {
	if c.Main.MobileKey == "" {
		result.AddError(ct.ValidationPath{"Main", "MobileKey"}, errMobileKeyRequired)
	}
	if c.Streaming.Enabled && c.Main.UseReport {
		loggers.Warn("REPORT requests are only used for polling; the stream connection will use GET")
	}
}

func validateConfigDurations(result *ct.ValidationResult, c *Config) {
	checkPositive := func(section, field string, o ct.OptDuration) {
		if o.IsDefined() && o.GetOrElse(0) <= 0 {
			result.AddError(ct.ValidationPath{section, field}, errDurationNotPositive(section+"."+field))
		}
	}
	checkPositive("Polling", "PollInterval", c.Polling.PollInterval)
	checkPositive("Streaming", "InitialRetryDelay", c.Streaming.InitialRetryDelay)
	checkPositive("Events", "FlushInterval", c.Events.FlushInterval)
	checkPositive("Events", "FlushTimeout", c.Events.FlushTimeout)
	checkPositive("Connection", "InitialBackoff", c.Connection.InitialBackoff)
	checkPositive("Connection", "MaxBackoff", c.Connection.MaxBackoff)
	checkPositive("Connection", "RequestTimeout", c.Connection.RequestTimeout)
	checkPositive("Connection", "StopTimeout", c.Connection.StopTimeout)
	checkPositive("Cache", "TTL", c.Cache.TTL)

	initial := c.Connection.InitialBackoff.GetOrElse(DefaultInitialBackoff)
	max := c.Connection.MaxBackoff.GetOrElse(DefaultMaxBackoff)
	if initial > max {
		result.AddError(ct.ValidationPath{"Connection"}, errBackoffRange)
	}
}

func validateConfigCache(result *ct.ValidationResult, c *Config) {
	if !c.Cache.RedisURL.IsDefined() {
		return
	}
	if c.Cache.Disabled {
		result.AddError(ct.ValidationPath{"Cache"}, errCacheRedisAndDisable)
		return
	}
	switch c.Cache.RedisURL.Get().Scheme {
	case "redis", "rediss":
	default:
		result.AddError(ct.ValidationPath{"Cache", "RedisURL"}, errRedisURLScheme)
	}
}

func validateConfigPrometheus(result *ct.ValidationResult, c *Config) {
	if c.Prometheus.Enabled && c.Prometheus.Port <= 0 {
		result.AddError(ct.ValidationPath{"Prometheus", "Port"}, errPrometheusPort)
	}
}
