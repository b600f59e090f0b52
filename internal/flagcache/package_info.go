// Package flagcache keeps the last known flag values for each context the client has used, so that
// switching back to a context can serve its flags before the first fetch for it completes.
package flagcache
