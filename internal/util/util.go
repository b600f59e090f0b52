package util

import (
	"net/url"
)

// RedactURL is equivalent to parsing a URL string and then calling Redacted() to replace passwords,
// if any, with xxxxx, but it leaves unparseable strings alone.
func RedactURL(inputURL string) string {
	if parsed, err := url.Parse(inputURL); err == nil {
		if parsed != nil && parsed.User != nil {
			if _, hasPW := parsed.User.Password(); hasPW {
				transformed := *parsed
				transformed.User = url.UserPassword(parsed.User.Username(), "xxxxx")
				return transformed.String()
			}
		}
	}
	return inputURL
}
