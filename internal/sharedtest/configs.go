package sharedtest

import (
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// TestMobileKey is the mobile key used by MakeTestConfig.
const TestMobileKey = config.MobileKey("mob-test-key")

// MakeBasicHTTPConfig returns an HTTPConfig with no proxy and the test mobile key.
func MakeBasicHTTPConfig() httpconfig.HTTPConfig {
	ret, err := httpconfig.NewHTTPConfig(config.ProxyConfig{}, TestMobileKey, config.ApplicationConfig{}, 0,
		ldlog.NewDisabledLoggers())
	if err != nil {
		panic(err)
	}
	return ret
}

// MakeTestConfig returns a valid configuration whose timings are short enough for tests. Automatic
// event flushes are effectively disabled, so tests control delivery with Flush.
func MakeTestConfig() config.Config {
	c := config.DefaultConfig
	c.Main.MobileKey = TestMobileKey
	c.Events.FlushInterval = ct.NewOptDuration(time.Hour)
	c.Events.FlushTimeout = ct.NewOptDuration(time.Second)
	c.Connection.InitialBackoff = ct.NewOptDuration(time.Millisecond)
	c.Connection.MaxBackoff = ct.NewOptDuration(10 * time.Millisecond)
	c.Connection.StopTimeout = ct.NewOptDuration(500 * time.Millisecond)
	return c
}
