// Package version contains the current version of the SDK.
package version

// Version is the package version.
const Version = "1.0.0"
