package config

import (
	"fmt"
	"strings"

	"github.com/launchdarkly/go-client-sdk/internal/logging"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// MobileKey is a type tag to indicate when a string is used as a mobile key for a LaunchDarkly
// environment.
type MobileKey string

// GetAuthorizationHeaderValue returns the value that should be passed in an HTTP Authorization header
// when using this credential.
func (k MobileKey) GetAuthorizationHeaderValue() string {
	if k == "" {
		return ""
	}
	return "api_key " + string(k)
}

// Masked returns the key with all but its last four characters hidden, for use in log output.
func (k MobileKey) Masked() string {
	if len(k) <= 4 {
		return string(k)
	}
	return "..." + string(k[len(k)-4:])
}

// UnmarshalText sets the key from a string, as required by the configuration file parser and by
// environment variable loading.
func (k *MobileKey) UnmarshalText(data []byte) error {
	*k = MobileKey(strings.TrimSpace(string(data)))
	return nil
}

// OptLogLevel represents an optional log level parameter. It must match one of the level names "debug",
// "info", "warn", "error", or "none" (case-insensitive).
//
// The zero value OptLogLevel{} is valid and undefined (IsDefined() is false).
type OptLogLevel struct {
	level ldlog.LogLevel
}

// NewOptLogLevel creates an OptLogLevel that wraps the given value.
func NewOptLogLevel(level ldlog.LogLevel) OptLogLevel {
	return OptLogLevel{level: level}
}

// NewOptLogLevelFromString creates an OptLogLevel from a string that must either be a valid log level
// name or an empty string.
func NewOptLogLevelFromString(levelName string) (OptLogLevel, error) {
	if levelName == "" {
		return OptLogLevel{}, nil
	}
	if level, ok := logging.ParseLogLevel(levelName); ok {
		return NewOptLogLevel(level), nil
	}
	return OptLogLevel{}, errBadLogLevel(levelName)
}

// IsDefined returns true if the instance contains a value.
func (o OptLogLevel) IsDefined() bool {
	return o.level != 0
}

// GetOrElse returns the wrapped value, or the alternative value if there is no value.
func (o OptLogLevel) GetOrElse(orElseValue ldlog.LogLevel) ldlog.LogLevel {
	if o.level == 0 {
		return orElseValue
	}
	return o.level
}

// UnmarshalText attempts to parse the value from a byte string, using the same logic as
// NewOptLogLevelFromString.
func (o *OptLogLevel) UnmarshalText(data []byte) error {
	opt, err := NewOptLogLevelFromString(string(data))
	if err == nil {
		*o = opt
	}
	return err
}

func errBadLogLevel(s string) error {
	return fmt.Errorf("%q is not a valid log level", s)
}
