// Package datasource keeps the flag store up to date for the current context, by polling
// LaunchDarkly's client-side evaluation endpoints or by consuming its streaming endpoint.
package datasource
