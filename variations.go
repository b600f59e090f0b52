package ldclient

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// BoolVariation returns the value of a boolean flag, or fallback if the flag is unknown or is not a
// boolean.
func (c *LDClient) BoolVariation(key string, fallback bool) bool {
	if f, ok := c.store.Get(key, ldvalue.BoolType); ok {
		return f.Value.BoolValue()
	}
	return fallback
}

// DoubleVariation returns the value of a numeric flag, or fallback if the flag is unknown or is not a
// number.
func (c *LDClient) DoubleVariation(key string, fallback float64) float64 {
	if f, ok := c.store.Get(key, ldvalue.NumberType); ok {
		return f.Value.Float64Value()
	}
	return fallback
}

// IntVariation returns the value of a numeric flag whose value is a whole number, or fallback
// otherwise.
func (c *LDClient) IntVariation(key string, fallback int) int {
	if f, ok := c.store.Get(key, ldvalue.NumberType); ok && f.Value.IsInt() {
		return f.Value.IntValue()
	}
	return fallback
}

// StringVariation returns the value of a string flag, or fallback if the flag is unknown or is not a
// string.
func (c *LDClient) StringVariation(key string, fallback string) string {
	if f, ok := c.store.Get(key, ldvalue.StringType); ok {
		return f.Value.StringValue()
	}
	return fallback
}

// ArrayVariation returns the value of a flag whose value is a JSON array, or fallback if the flag is
// unknown or has another type.
func (c *LDClient) ArrayVariation(key string, fallback ldvalue.Value) ldvalue.Value {
	if f, ok := c.store.Get(key, ldvalue.ArrayType); ok {
		return f.Value
	}
	return fallback
}

// DictionaryVariation returns the value of a flag whose value is a JSON object, or fallback if the
// flag is unknown or has another type.
func (c *LDClient) DictionaryVariation(key string, fallback ldvalue.Value) ldvalue.Value {
	if f, ok := c.store.Get(key, ldvalue.ObjectType); ok {
		return f.Value
	}
	return fallback
}

// JSONVariation returns the value of a flag of any type, or fallback if the flag is unknown.
func (c *LDClient) JSONVariation(key string, fallback ldvalue.Value) ldvalue.Value {
	if f, ok := c.store.Lookup(key); ok {
		return f.Value
	}
	return fallback
}

// AllFlags returns the current value of every flag.
func (c *LDClient) AllFlags() map[string]ldvalue.Value {
	all := c.store.All()
	ret := make(map[string]ldvalue.Value, len(all))
	for k, f := range all {
		ret[k] = f.Value
	}
	return ret
}
