// Package usercontext contains helpers for validating evaluation contexts and encoding them for
// flag requests.
package usercontext

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pborman/uuid"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
)

var errEmptyKey = errors.New("context key must not be empty unless the context is anonymous")

// NewAnonymous creates an anonymous user context with a randomly generated key.
func NewAnonymous() ldcontext.Context {
	return ldcontext.NewBuilder(uuid.New()).Anonymous(true).Build()
}

// Normalize checks that a context can be used for flag requests. An anonymous single-kind context
// with no key is given a generated key; any other invalid context is rejected.
func Normalize(c ldcontext.Context) (ldcontext.Context, error) {
	if err := c.Err(); err != nil {
		return ldcontext.Context{}, fmt.Errorf("invalid context: %w", err)
	}
	if c.Multiple() {
		return c, nil
	}
	if c.Key() == "" {
		if !c.Anonymous() {
			return ldcontext.Context{}, errEmptyKey
		}
		generated := ldcontext.NewBuilderFromContext(c).Key(uuid.New()).Build()
		if err := generated.Err(); err != nil {
			return ldcontext.Context{}, fmt.Errorf("invalid context: %w", err)
		}
		return generated, nil
	}
	return c, nil
}

// EncodeJSON returns the JSON representation of the context that is sent in REPORT requests.
func EncodeJSON(c ldcontext.Context) ([]byte, error) {
	return json.Marshal(c)
}

// EncodeBase64 returns the URL-safe base64 encoding of the context's JSON representation, as used
// in the path of GET requests and stream connections.
func EncodeBase64(c ldcontext.Context) (string, error) {
	data, err := EncodeJSON(c)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(data), nil
}

// CacheKey returns a string that uniquely identifies the context for the purpose of caching its
// flag values.
func CacheKey(c ldcontext.Context) string {
	return c.FullyQualifiedKey()
}
