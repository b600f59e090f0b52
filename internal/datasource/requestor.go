package datasource

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"
	"github.com/launchdarkly/go-client-sdk/internal/httpconfig"
	"github.com/launchdarkly/go-client-sdk/internal/usercontext"
	"github.com/launchdarkly/go-client-sdk/internal/util"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

const (
	pollingGetPath    = "/msdk/evalx/contexts/"
	pollingReportPath = "/msdk/evalx/context"
	reportMethod      = "REPORT"
	maxPayloadBytes   = 10 * 1024 * 1024
)

// ErrNotModified is returned by a Requestor when the flags have not changed since the previous
// request for the same context.
var ErrNotModified = errors.New("flag data not modified")

// Requestor obtains the current flag values for a context.
//
// The only implementation outside of tests is HTTPRequestor.
type Requestor interface {
	Fetch(ctx context.Context, c ldcontext.Context) ([]flagstore.FlagRecord, error)
}

type httpStatusError struct {
	status int
	url    string
}

func (e httpStatusError) Error() string {
	return fmt.Sprintf("HTTP error %d from %s", e.status, util.RedactURL(e.url))
}

// isHTTPErrorRecoverable returns true if a request that failed with this status might succeed if it
// is retried.
func isHTTPErrorRecoverable(status int) bool {
	if status >= 400 && status < 500 {
		switch status {
		case 400, 408, 429:
			return true
		default:
			return false
		}
	}
	return true
}

// HTTPRequestor polls the client-side evaluation endpoint.
//
// It remembers the ETag of the last response, and if the next request is for the same context it
// sends If-None-Match; a 304 response becomes ErrNotModified.
type HTTPRequestor struct {
	baseURI     string
	httpConfig  httpconfig.HTTPConfig
	client      *http.Client
	useReport   bool
	withReasons bool
	loggers     ldlog.Loggers

	lock        sync.Mutex
	etag        string
	etagContext string
}

// NewHTTPRequestor creates an HTTPRequestor for the given polling base URI.
func NewHTTPRequestor(
	baseURI string,
	httpConfig httpconfig.HTTPConfig,
	useReport bool,
	withReasons bool,
	loggers ldlog.Loggers,
) *HTTPRequestor {
	return &HTTPRequestor{
		baseURI:     strings.TrimRight(baseURI, "/"),
		httpConfig:  httpConfig,
		client:      httpConfig.Client(),
		useReport:   useReport,
		withReasons: withReasons,
		loggers:     loggers,
	}
}

// Fetch implements Requestor.
func (r *HTTPRequestor) Fetch(ctx context.Context, c ldcontext.Context) ([]flagstore.FlagRecord, error) {
	req, err := r.makeRequest(ctx, c)
	if err != nil {
		return nil, err
	}
	cacheKey := usercontext.CacheKey(c)

	r.lock.Lock()
	if r.etag != "" && r.etagContext == cacheKey {
		req.Header.Set("If-None-Match", r.etag)
	}
	r.lock.Unlock()

	if r.loggers.IsDebugEnabled() {
		r.loggers.Debugf(logMsgPollingRequest, util.RedactURL(req.URL.String()))
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotModified {
		return nil, ErrNotModified
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpStatusError{status: resp.StatusCode, url: req.URL.String()}
	}

	body, err := io.ReadAll(util.NewLimitedReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, err
	}
	records, err := flagstore.ParseFlags(body)
	if err != nil {
		return nil, err
	}

	r.lock.Lock()
	r.etag = resp.Header.Get("ETag")
	r.etagContext = cacheKey
	r.lock.Unlock()

	return records, nil
}

func (r *HTTPRequestor) makeRequest(ctx context.Context, c ldcontext.Context) (*http.Request, error) {
	var req *http.Request
	var err error
	if r.useReport {
		body, encErr := usercontext.EncodeJSON(c)
		if encErr != nil {
			return nil, encErr
		}
		req, err = http.NewRequestWithContext(ctx, reportMethod, r.baseURI+pollingReportPath, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	} else {
		encoded, encErr := usercontext.EncodeBase64(c)
		if encErr != nil {
			return nil, encErr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, r.baseURI+pollingGetPath+encoded, nil)
	}
	if err != nil {
		return nil, err
	}
	if r.withReasons {
		req.URL.RawQuery = "withReasons=true"
	}
	for k, vv := range r.httpConfig.DefaultHeaders() {
		req.Header[k] = vv
	}
	return req, nil
}
