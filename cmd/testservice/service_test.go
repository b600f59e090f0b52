package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/launchdarkly/go-client-sdk/internal/api"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
	helpers "github.com/launchdarkly/go-test-helpers/v3"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fakeFlagsJSON = `{"flagA":{"value":true,"version":1},"flagB":{"value":"x","version":2},"flagC":{"value":3,"version":1}}`

type serviceTestParams struct {
	service  *testService
	handler  http.Handler
	exited   chan struct{}
	pollURI  string
	eventURI string
	eventsCh <-chan httphelpers.HTTPRequestInfo
}

func serviceTest(t *testing.T, action func(p serviceTestParams)) {
	pollHandler := httphelpers.HandlerWithJSONResponse(json.RawMessage(fakeFlagsJSON), nil)
	eventsHandler, eventsCh := httphelpers.RecordingHandler(httphelpers.HandlerWithStatus(http.StatusAccepted))
	httphelpers.WithServer(pollHandler, func(pollServer *httptest.Server) {
		httphelpers.WithServer(eventsHandler, func(eventsServer *httptest.Server) {
			exited := make(chan struct{}, 1)
			service := newTestService(ldlog.NewDisabledLoggers(), func() { exited <- struct{}{} })
			p := serviceTestParams{
				service:  service,
				handler:  service.makeRouter(),
				exited:   exited,
				pollURI:  pollServer.URL,
				eventURI: eventsServer.URL,
				eventsCh: eventsCh,
			}
			defer func() {
				for _, c := range service.clients {
					_ = c.Close()
				}
			}()
			action(p)
		})
	})
}

func (p serviceTestParams) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	var data []byte
	if body != nil {
		var err error
		data, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req, err := http.NewRequest(method, path, bytes.NewReader(data))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	p.handler.ServeHTTP(w, req)
	return w
}

func (p serviceTestParams) createClient(t *testing.T) string {
	body := map[string]interface{}{
		"tag": "test",
		"configuration": map[string]interface{}{
			"credential":      "mob-key",
			"startWaitTimeMs": 1000,
			"polling":         map[string]interface{}{"baseUri": p.pollURI},
			"events":          map[string]interface{}{"baseUri": p.eventURI, "flushIntervalMs": 3600000},
			"tags":            map[string]interface{}{"applicationId": "app"},
			"clientSide":      map[string]interface{}{"initialContext": map[string]interface{}{"kind": "user", "key": "u1"}},
		},
	}
	w := p.do(t, "POST", "/", body)
	require.Equal(t, http.StatusCreated, w.Code)
	location := w.Header().Get("Location")
	require.NotEqual(t, "", location)
	return location
}

func (p serviceTestParams) command(t *testing.T, location string, params interface{}) *httptest.ResponseRecorder {
	return p.do(t, "POST", location, params)
}

func TestStatus(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		w := p.do(t, "GET", "/", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rep api.StatusRep
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.Equal(t, serviceName, rep.Name)
		assert.Contains(t, rep.Capabilities, "client-side")
		assert.Contains(t, rep.Capabilities, "tags")
	})
}

func TestCreateClientAndEvaluate(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		location := p.createClient(t)
		assert.Equal(t, "/clients/1", location)

		evaluate := func(key, valueType string, defaultValue ldvalue.Value) ldvalue.Value {
			w := p.command(t, location, map[string]interface{}{
				"command":  "evaluate",
				"evaluate": map[string]interface{}{"flagKey": key, "valueType": valueType, "defaultValue": defaultValue},
			})
			require.Equal(t, http.StatusOK, w.Code)
			var resp api.EvaluateFlagResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			return resp.Value
		}
		assert.Equal(t, ldvalue.Bool(true), evaluate("flagA", "bool", ldvalue.Bool(false)))
		assert.Equal(t, ldvalue.String("x"), evaluate("flagB", "string", ldvalue.String("")))
		assert.Equal(t, ldvalue.Int(3), evaluate("flagC", "int", ldvalue.Int(0)))
		assert.Equal(t, ldvalue.String("d"), evaluate("flagA", "string", ldvalue.String("d")))
		assert.Equal(t, ldvalue.String("x"), evaluate("flagB", "any", ldvalue.Null()))
		assert.Equal(t, ldvalue.Int(9), evaluate("missing", "any", ldvalue.Int(9)))
	})
}

func TestEvaluateAll(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		location := p.createClient(t)
		w := p.command(t, location, map[string]interface{}{"command": "evaluateAll", "evaluateAll": map[string]interface{}{}})
		require.Equal(t, http.StatusOK, w.Code)
		var resp api.EvaluateAllFlagsResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Len(t, resp.State, 3)
		assert.Equal(t, ldvalue.Bool(true), resp.State["flagA"])
	})
}

func TestEventCommands(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		location := p.createClient(t)

		w := p.command(t, location, map[string]interface{}{
			"command":       "identifyEvent",
			"identifyEvent": map[string]interface{}{"context": map[string]interface{}{"kind": "user", "key": "u2"}},
		})
		require.Equal(t, http.StatusAccepted, w.Code)

		w = p.command(t, location, map[string]interface{}{
			"command":     "customEvent",
			"customEvent": map[string]interface{}{"eventKey": "e1", "data": map[string]interface{}{"a": 1}, "metricValue": 2.5},
		})
		require.Equal(t, http.StatusAccepted, w.Code)

		w = p.command(t, location, map[string]interface{}{"command": "flushEvents"})
		require.Equal(t, http.StatusAccepted, w.Code)

		r := helpers.RequireValue(t, p.eventsCh, time.Second, "timed out waiting for events")
		events := ldvalue.Parse(r.Body)
		require.Equal(t, 3, events.Count())
		assert.Equal(t, "identify", events.GetByIndex(0).GetByKey("kind").StringValue())
		assert.Equal(t, "identify", events.GetByIndex(1).GetByKey("kind").StringValue())
		custom := events.GetByIndex(2)
		assert.Equal(t, "custom", custom.GetByKey("kind").StringValue())
		assert.Equal(t, "e1", custom.GetByKey("key").StringValue())
		assert.Equal(t, 2.5, custom.GetByKey("metricValue").Float64Value())
		assert.Equal(t, "application-id/app", r.Request.Header.Get("X-LaunchDarkly-Tags"))
	})
}

func TestInvalidCommands(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		location := p.createClient(t)
		assert.Equal(t, http.StatusBadRequest, p.command(t, location, map[string]interface{}{"command": "unknown"}).Code)
		assert.Equal(t, http.StatusBadRequest, p.command(t, location, map[string]interface{}{"command": "evaluate"}).Code)
		assert.Equal(t, http.StatusBadRequest, p.command(t, location, map[string]interface{}{
			"command":     "customEvent",
			"customEvent": map[string]interface{}{"eventKey": "", "data": nil},
		}).Code)
		assert.Equal(t, http.StatusNotFound, p.command(t, "/clients/99", map[string]interface{}{"command": "flushEvents"}).Code)
	})
}

func TestCreateClientWithoutContextFails(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		w := p.do(t, "POST", "/", map[string]interface{}{
			"configuration": map[string]interface{}{"credential": "mob-key", "clientSide": map[string]interface{}{}},
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeleteClient(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		location := p.createClient(t)
		assert.Equal(t, http.StatusAccepted, p.do(t, "DELETE", location, nil).Code)
		assert.Equal(t, http.StatusNotFound, p.do(t, "DELETE", location, nil).Code)
		assert.Equal(t, http.StatusNotFound, p.command(t, location, map[string]interface{}{"command": "flushEvents"}).Code)
	})
}

func TestShutdown(t *testing.T) {
	serviceTest(t, func(p serviceTestParams) {
		p.createClient(t)
		assert.Equal(t, http.StatusNoContent, p.do(t, "DELETE", "/", nil).Code)
		helpers.RequireValue(t, p.exited, time.Second)
		assert.Len(t, p.service.clients, 0)
	})
}
