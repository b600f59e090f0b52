package ldclient

import (
	"sync"

	"github.com/launchdarkly/go-client-sdk/internal/logging"
)

var (
	sharedClient *LDClient
	sharedLock   sync.Mutex
)

// Shared returns a process-wide client, creating it on first use with the default loggers. It is
// created stopped; call Start on it as with any other client.
func Shared() *LDClient {
	sharedLock.Lock()
	defer sharedLock.Unlock()
	if sharedClient == nil {
		sharedClient = NewLDClient(logging.MakeDefaultLoggers())
	}
	return sharedClient
}

// ShutdownShared stops and discards the process-wide client. The next call to Shared creates a new one.
func ShutdownShared() {
	sharedLock.Lock()
	client := sharedClient
	sharedClient = nil
	sharedLock.Unlock()
	if client != nil {
		_ = client.Close()
	}
}
