package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldlogtest"
	helpers "github.com/launchdarkly/go-test-helpers/v3"
)

func mustOptIntGreaterThanZero(n int) ct.OptIntGreaterThanZero {
	o, err := ct.NewOptIntGreaterThanZero(n)
	if err != nil {
		panic(err)
	}
	return o
}

func TestMobileKeyAuthorizationHeader(t *testing.T) {
	assert.Equal(t, "api_key mob-123", MobileKey("mob-123").GetAuthorizationHeaderValue())
	assert.Equal(t, "", MobileKey("").GetAuthorizationHeaderValue())
}

func TestMobileKeyMasked(t *testing.T) {
	assert.Equal(t, "...cdef", MobileKey("mob-abcdef").Masked())
	assert.Equal(t, "abc", MobileKey("abc").Masked())
}

func TestConfigEqual(t *testing.T) {
	c1 := DefaultConfig
	c1.Main.MobileKey = "key"
	c2 := DefaultConfig
	c2.Main.MobileKey = "key"
	assert.True(t, c1.Equal(c2))

	c2.Events.Capacity = mustOptIntGreaterThanZero(5)
	assert.False(t, c1.Equal(c2))
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig
		c.Main.MobileKey = "mob-key"
		return c
	}

	t.Run("minimal config is valid", func(t *testing.T) {
		c := valid()
		assert.NoError(t, ValidateConfig(&c, ldlog.NewDisabledLoggers()))
	})

	t.Run("mobile key is required", func(t *testing.T) {
		c := DefaultConfig
		err := ValidateConfig(&c, ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mobile key is required")
	})

	t.Run("zero duration is rejected", func(t *testing.T) {
		c := valid()
		c.Polling.PollInterval = ct.NewOptDuration(0)
		err := ValidateConfig(&c, ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Polling.PollInterval must be greater than zero")
	})

	t.Run("initial backoff greater than maximum is rejected", func(t *testing.T) {
		c := valid()
		c.Connection.InitialBackoff = ct.NewOptDuration(time.Minute)
		c.Connection.MaxBackoff = ct.NewOptDuration(time.Second)
		err := ValidateConfig(&c, ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "initial backoff")
	})

	t.Run("Redis cache URL must use a Redis scheme", func(t *testing.T) {
		c := valid()
		c.Cache.RedisURL = newOptURLAbsoluteMustBeValid("http://localhost:6379")
		err := ValidateConfig(&c, ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis")
	})

	t.Run("Redis cache URL cannot be combined with a disabled cache", func(t *testing.T) {
		c := valid()
		c.Cache.Disabled = true
		c.Cache.RedisURL = newOptURLAbsoluteMustBeValid("redis://localhost:6379")
		err := ValidateConfig(&c, ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disabled")
	})

	t.Run("streaming with REPORT logs a warning", func(t *testing.T) {
		c := valid()
		c.Streaming.Enabled = true
		c.Main.UseReport = true
		mockLog := ldlogtest.NewMockLog()
		assert.NoError(t, ValidateConfig(&c, mockLog.Loggers))
		mockLog.AssertMessageMatch(t, true, ldlog.Warn, "REPORT requests are only used for polling")
	})
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Run("reads all sections", func(t *testing.T) {
		vars := map[string]string{
			"LD_MOBILE_KEY":          "mob-key",
			"LD_OFFLINE":             "true",
			"EVALUATION_REASONS":     "true",
			"BASE_URI":               "http://polling",
			"POLL_INTERVAL":          "30s",
			"STREAMING":              "true",
			"STREAM_URI":             "http://streaming",
			"EVENTS_URI":             "http://events",
			"EVENTS_CAPACITY":        "50",
			"EVENTS_FLUSH_INTERVAL":  "10s",
			"CONNECTION_MAX_BACKOFF": "20s",
			"APPLICATION_ID":         "my-app",
			"APPLICATION_VERSION":    "1.2.3",
			"CACHE_MAX_CONTEXTS":     "2",
			"PROXY_URL":              "http://proxy:8080",
			"LOG_LEVEL":              "debug",
		}
		expected := DefaultConfig
		expected.Main.MobileKey = "mob-key"
		expected.Main.Offline = true
		expected.Main.EvaluationReasons = true
		expected.Main.LogLevel = NewOptLogLevel(ldlog.Debug)
		expected.Polling.BaseURI = newOptURLAbsoluteMustBeValid("http://polling")
		expected.Polling.PollInterval = ct.NewOptDuration(30 * time.Second)
		expected.Streaming.Enabled = true
		expected.Streaming.StreamURI = newOptURLAbsoluteMustBeValid("http://streaming")
		expected.Events.EventsURI = newOptURLAbsoluteMustBeValid("http://events")
		expected.Events.Capacity = mustOptIntGreaterThanZero(50)
		expected.Events.FlushInterval = ct.NewOptDuration(10 * time.Second)
		expected.Connection.MaxBackoff = ct.NewOptDuration(20 * time.Second)
		expected.Application.ID = "my-app"
		expected.Application.Version = "1.2.3"
		expected.Cache.MaxCachedContexts = mustOptIntGreaterThanZero(2)
		expected.Proxy.URL = newOptURLAbsoluteMustBeValid("http://proxy:8080")

		withEnvironment(vars, func() {
			c := DefaultConfig
			require.NoError(t, LoadConfigFromEnvironment(&c, ldlog.NewDisabledLoggers()))
			assert.Equal(t, expected, c)
		})
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		withEnvironment(map[string]string{"LD_MOBILE_KEY": "k", "EVENTS_CAPACITY": "0"}, func() {
			c := DefaultConfig
			err := LoadConfigFromEnvironment(&c, ldlog.NewDisabledLoggers())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "EVENTS_CAPACITY")
		})
	})

	t.Run("rejects server-side SDK key variable", func(t *testing.T) {
		withEnvironment(map[string]string{"LD_MOBILE_KEY": "k", "LD_SDK_KEY": "sdk-key"}, func() {
			c := DefaultConfig
			err := LoadConfigFromEnvironment(&c, ldlog.NewDisabledLoggers())
			require.Error(t, err)
			assert.Contains(t, err.Error(), "use LD_MOBILE_KEY")
		})
	})
}

func TestConfigFromFile(t *testing.T) {
	t.Run("reads sections", func(t *testing.T) {
		content := `
[Main]
mobileKey = "mob-key"
useReport = true

[Polling]
pollInterval = 1m

[Events]
capacity = 10

[Application]
id = "my-app"
`
		helpers.WithTempFile(func(filename string) {
			require.NoError(t, os.WriteFile(filename, []byte(content), 0))

			c := DefaultConfig
			require.NoError(t, LoadConfigFile(&c, filename, ldlog.NewDisabledLoggers()))
			assert.Equal(t, MobileKey("mob-key"), c.Main.MobileKey)
			assert.True(t, c.Main.UseReport)
			assert.Equal(t, time.Minute, c.Polling.PollInterval.GetOrElse(0))
			assert.Equal(t, 10, c.Events.Capacity.GetOrElse(0))
			assert.Equal(t, "my-app", c.Application.ID)
			assert.Equal(t, DefaultBaseURI, c.Polling.BaseURI.String())
		})
	})

	t.Run("unknown field", func(t *testing.T) {
		c := DefaultConfig
		err := LoadConfigString(&c, "[Main]\nmobileKey = \"k\"\nsdkKey = \"x\"\n", ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported or misspelled")
	})

	t.Run("bad log level", func(t *testing.T) {
		c := DefaultConfig
		err := LoadConfigString(&c, "[Main]\nmobileKey = \"k\"\nlogLevel = \"wrong\"\n", ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"wrong" is not a valid log level`)
	})

	t.Run("missing file", func(t *testing.T) {
		c := DefaultConfig
		err := LoadConfigFile(&c, "/no/such/file.conf", ldlog.NewDisabledLoggers())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read configuration file")
	})
}

func withEnvironment(vars map[string]string, action func()) {
	saved := make(map[string]string)
	for _, kv := range os.Environ() {
		p := strings.Index(kv, "=")
		saved[kv[:p]] = kv[p+1:]
	}
	defer func() {
		os.Clearenv()
		for k, v := range saved {
			os.Setenv(k, v)
		}
	}()
	os.Clearenv()
	for k, v := range vars {
		os.Setenv(k, v)
	}
	action()
}
