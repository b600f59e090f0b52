// Command testservice exposes the SDK through the REST protocol of the LaunchDarkly SDK contract
// tests, so that the test harness can create clients and drive them.
package main

import (
	"flag"
	"os"

	"github.com/launchdarkly/go-client-sdk/internal/application"
	"github.com/launchdarkly/go-client-sdk/internal/logging"
)

const defaultPort = 8000

func main() {
	loggers := logging.MakeDefaultLoggers()

	port := flag.Int("port", defaultPort, "port to listen on")
	flag.Parse()

	service := newTestService(loggers, func() { os.Exit(0) })
	_, errs := application.StartHTTPServer(*port, service.makeRouter(), loggers)
	for err := range errs {
		loggers.Errorf("Error starting HTTP listener on port: %d  %s", *port, err)
		os.Exit(1)
	}
}
