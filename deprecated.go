package ldclient

import (
	"github.com/launchdarkly/go-client-sdk/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
)

// StartWithBuilder starts the client with a configuration derived from DefaultConfig by the configure
// function, and the context described by the builder.
//
// Deprecated: Use Start.
func (c *LDClient) StartWithBuilder(configure func(*config.Config), builder *ldcontext.Builder) bool {
	if builder == nil {
		c.loggers.Error("StartWithBuilder called without a context builder")
		return false
	}
	cfg := config.DefaultConfig
	if configure != nil {
		configure(&cfg)
	}
	return c.Start(cfg, builder.Build())
}

// NumberVariation returns the value of a numeric flag.
//
// Deprecated: Use DoubleVariation or IntVariation.
func (c *LDClient) NumberVariation(key string, fallback float64) float64 {
	return c.DoubleVariation(key, fallback)
}
