// Package notifier delivers client notifications to the application's delegate on a goroutine of
// its own, so that the components producing them never wait for application code.
package notifier

// Delegate is any value the application registers to receive notifications. It may implement any
// combination of UserUpdateObserver, FlagUpdateObserver, and ConnectionObserver; notifications for
// interfaces it does not implement are discarded.
type Delegate interface{}

// UserUpdateObserver is notified when the flag values for the current context have changed after a
// fetch.
type UserUpdateObserver interface {
	UserDidUpdate()
}

// FlagUpdateObserver is notified once for each flag whose value or version changed.
type FlagUpdateObserver interface {
	FeatureFlagDidUpdate(key string)
}

// ConnectionObserver is notified when the client has failed to reach LaunchDarkly several times in
// a row.
type ConnectionObserver interface {
	ServerConnectionUnavailable()
}
