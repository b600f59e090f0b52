// Package httpconfig builds the HTTP client settings shared by all of the SDK's network components.
package httpconfig

import (
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/version"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-server-sdk/v7/ldcomponents"
	"github.com/launchdarkly/go-server-sdk/v7/subsystems"
)

const (
	// TagsHeader is the HTTP header that carries application metadata.
	TagsHeader = "X-LaunchDarkly-Tags"

	userAgentPrefix = "GoClient/"
	maxTagLength    = 64
)

var validTagValue = regexp.MustCompile(`^[\w.-]+$`) //nolint:gochecknoglobals

// HTTPConfig encapsulates ProxyConfig plus the credential and application metadata that are sent with
// every request.
type HTTPConfig struct {
	config.ProxyConfig
	MobileKey     config.MobileKey
	Tags          string
	SDKHTTPConfig subsystems.HTTPConfiguration
}

// NewHTTPConfig validates all of the HTTP-related options and returns an HTTPConfig if successful.
func NewHTTPConfig(
	proxyConfig config.ProxyConfig,
	mobileKey config.MobileKey,
	appConfig config.ApplicationConfig,
	connectTimeout time.Duration,
	loggers ldlog.Loggers,
) (HTTPConfig, error) {
	configBuilder := ldcomponents.HTTPConfiguration()
	configBuilder.UserAgent(userAgentPrefix + version.Version)
	if connectTimeout > 0 {
		configBuilder.ConnectTimeout(connectTimeout)
	}

	ret := HTTPConfig{ProxyConfig: proxyConfig, MobileKey: mobileKey}

	if proxyConfig.URL.IsDefined() {
		loggers.Infof("Using proxy server at %s", proxyConfig.URL)
		configBuilder.ProxyURL(proxyConfig.URL.String())
	}
	for _, filePath := range strings.Split(proxyConfig.CACertFiles, ",") {
		if filePath = strings.TrimSpace(filePath); filePath != "" {
			configBuilder.CACertFile(filePath)
		}
	}

	ret.Tags = MakeTagsHeaderValue(appConfig, loggers)

	var err error
	// The server-side SDK would put its own key format into the Authorization header; mobile keys are
	// added by DefaultHeaders instead, so no key is passed here.
	ret.SDKHTTPConfig, err = configBuilder.Build(subsystems.BasicClientContext{})
	return ret, err
}

// Client creates a new HTTP client instance.
func (c HTTPConfig) Client() *http.Client {
	return c.SDKHTTPConfig.CreateHTTPClient()
}

// DefaultHeaders returns a fresh copy of the headers that should be sent with every request to
// LaunchDarkly: user agent, authorization, and tags.
func (c HTTPConfig) DefaultHeaders() http.Header {
	ret := make(http.Header)
	for k, v := range c.SDKHTTPConfig.DefaultHeaders {
		ret[k] = append([]string(nil), v...)
	}
	ret.Del("Authorization")
	if auth := c.MobileKey.GetAuthorizationHeaderValue(); auth != "" {
		ret.Set("Authorization", auth)
	}
	if c.Tags != "" {
		ret.Set(TagsHeader, c.Tags)
	}
	return ret
}

// MakeTagsHeaderValue computes the X-LaunchDarkly-Tags value for the application metadata. Values that
// are too long or contain characters other than letters, digits, '.', '-', and '_' are logged and
// omitted.
func MakeTagsHeaderValue(appConfig config.ApplicationConfig, loggers ldlog.Loggers) string {
	tags := map[string]string{
		"application-id":           appConfig.ID,
		"application-name":         appConfig.Name,
		"application-version":      appConfig.Version,
		"application-version-name": appConfig.VersionName,
	}
	keys := make([]string, 0, len(tags))
	for k, v := range tags {
		if v == "" {
			continue
		}
		if len(v) > maxTagLength || !validTagValue.MatchString(v) {
			loggers.Warnf("Value of %s was invalid and will be ignored: %q", k, v)
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"/"+tags[k])
	}
	return strings.Join(parts, " ")
}
