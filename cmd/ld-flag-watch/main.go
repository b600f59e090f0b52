// Command ld-flag-watch starts a client for one context and logs every flag change it receives. It is
// useful for checking connectivity and configuration from the machine where an application will run.
package main

import (
	"os"
	"os/signal"
	"syscall"

	_ "github.com/kardianos/minwinsvc"

	ldclient "github.com/launchdarkly/go-client-sdk"
	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/application"
	"github.com/launchdarkly/go-client-sdk/internal/logging"
	"github.com/launchdarkly/go-client-sdk/internal/metrics"
	"github.com/launchdarkly/go-client-sdk/internal/version"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
)

func main() {
	loggers := logging.MakeDefaultLoggers()

	opts, err := application.ReadOptions(os.Args, os.Stderr)
	if err != nil {
		loggers.Errorf("Error: %s", err)
		os.Exit(1)
	}

	loggers.Infof(
		"Starting ld-flag-watch version %s with %s",
		application.DescribeVersion(version.Version),
		opts.DescribeConfigSource(),
	)

	c := config.DefaultConfig
	if opts.ConfigFile != "" {
		if err := config.LoadConfigFile(&c, opts.ConfigFile, loggers); err != nil {
			loggers.Errorf("Error loading config file: %s", err)
			os.Exit(1)
		}
	}
	if opts.UseEnvironment {
		if err := config.LoadConfigFromEnvironment(&c, loggers); err != nil {
			loggers.Errorf("Configuration error: %s", err)
			os.Exit(1)
		}
	}

	endpoint, err := metrics.StartPrometheusEndpoint(c.Prometheus, loggers)
	if err != nil {
		loggers.Errorf("Error initializing metrics: %s", err)
	}
	defer endpoint.Close() //nolint:errcheck

	client := ldclient.NewLDClient(loggers)
	defer client.Close() //nolint:errcheck
	client.SetDelegate(newFlagLogger(client, loggers))

	user := ldclient.NewAnonymousContext()
	if !opts.Anonymous {
		user = ldcontext.New(opts.ContextKey)
	}
	if !client.StartAndWait(c, user, opts.Wait) {
		switch {
		case c.Main.Offline:
			loggers.Info("Client is configured to be offline; only cached flag values are shown")
		case !client.IsOnline():
			loggers.Error("Unable to start client")
			os.Exit(1)
		default:
			loggers.Warnf("No flag values received within %s", opts.Wait)
		}
	}
	logAllFlags(client, loggers)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	<-signals
	loggers.Info("Shutting down")
}
