// Package flagstore contains the SDK's in-memory cache of evaluated flag values for the current context.
package flagstore

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// FlagValue is the server's evaluation result for one flag and the current context.
//
// The dynamic type of Value is the flag's type tag; the store never converts between types.
type FlagValue struct {
	Value                ldvalue.Value
	Version              int
	FlagVersion          ldvalue.OptionalInt
	Variation            ldvalue.OptionalInt
	TrackEvents          bool
	TrackReason          bool
	DebugEventsUntilDate ldvalue.OptionalInt
	Reason               ldreason.EvaluationReason
}

// Type returns the type tag of the flag's value.
func (f FlagValue) Type() ldvalue.ValueType {
	return f.Value.Type()
}

// SameAs returns true if the two values would look the same to the application: same value and same
// version.
func (f FlagValue) SameAs(other FlagValue) bool {
	return f.Version == other.Version && f.Value.Equal(other.Value)
}

// FlagRecord associates a flag key with its value.
type FlagRecord struct {
	Key  string
	Flag FlagValue
}
