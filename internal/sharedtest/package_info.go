// Package sharedtest provides fakes and test data that may be used by tests in all SDK packages.
//
// Non-test code should never import this package.
//
// To avoid circular references, code in this package cannot reference the connectivity package or
// the root ldclient package.
package sharedtest
