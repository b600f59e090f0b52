package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"contrib.go.opencensus.io/exporter/prometheus"

	"github.com/launchdarkly/go-client-sdk/config"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const prometheusShutdownTimeout = time.Second

// PrometheusEndpoint serves the SDK's metrics in the Prometheus text format.
type PrometheusEndpoint struct {
	server  *http.Server
	loggers ldlog.Loggers
}

// NewPrometheusHandler creates an http.Handler that reports all registered views in the Prometheus
// format.
func NewPrometheusHandler(prefix string, loggers ldlog.Loggers) (http.Handler, error) {
	if prefix == "" {
		prefix = defaultMetricsPrefix
	}
	logPrometheusError := func(e error) {
		loggers.Errorf("Prometheus exporter error: %s", e)
	}
	exporter, err := prometheus.NewExporter(prometheus.Options{Namespace: prefix, OnError: logPrometheusError})
	if err != nil {
		return nil, err
	}
	return exporter, nil
}

// StartPrometheusEndpoint registers the SDK's views and starts an HTTP listener for them, if the
// configuration enables it. It returns nil if Prometheus is disabled.
func StartPrometheusEndpoint(c config.PrometheusConfig, loggers ldlog.Loggers) (*PrometheusEndpoint, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := RegisterViews(); err != nil {
		return nil, err
	}
	handler, err := NewPrometheusHandler(c.Prefix, loggers)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle(prometheusPath, handler)
	e := &PrometheusEndpoint{
		server:  &http.Server{Addr: fmt.Sprintf(":%d", c.Port), Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		loggers: loggers,
	}
	go func() {
		loggers.Infof("Prometheus listening on port %d", c.Port)
		if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			loggers.Errorf("Failed to start Prometheus listener: %s", err)
		}
	}()
	return e, nil
}

// Close stops the listener.
func (e *PrometheusEndpoint) Close() error {
	if e == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), prometheusShutdownTimeout)
	defer cancel()
	return e.server.Shutdown(ctx)
}
