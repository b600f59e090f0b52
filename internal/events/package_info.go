// Package events contains the analytics event pipeline: the event types, the bounded buffer that holds
// them, the background processor that flushes them, and the component that delivers them to
// LaunchDarkly.
package events
