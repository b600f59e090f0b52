package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	ldclient "github.com/launchdarkly/go-client-sdk"
	"github.com/launchdarkly/go-client-sdk/config"
	"github.com/launchdarkly/go-client-sdk/internal/api"
	"github.com/launchdarkly/go-client-sdk/internal/middleware"
	"github.com/launchdarkly/go-client-sdk/internal/version"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"

	"github.com/gorilla/mux"
)

const (
	serviceName          = "go-client-sdk"
	defaultStartWaitTime = 5 * time.Second
)

var capabilities = []string{"client-side", "mobile", "service-endpoints", "tags"}

var (
	errNoContext      = errors.New("configuration has no initial context")
	errUnknownCommand = errors.New("unknown command")
	errMissingParams  = errors.New("command parameters are missing")
)

// testService keeps the clients that the test harness has created, numbered in creation order.
type testService struct {
	loggers ldlog.Loggers
	exit    func()

	lock    sync.Mutex
	clients map[string]*ldclient.LDClient
	counter int
}

func newTestService(loggers ldlog.Loggers, exit func()) *testService {
	return &testService{
		loggers: loggers,
		exit:    exit,
		clients: make(map[string]*ldclient.LDClient),
	}
}

func (s *testService) makeRouter() *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestLogger(s.loggers))
	router.HandleFunc("/", s.getStatus).Methods("GET")
	router.HandleFunc("/", s.createClient).Methods("POST")
	router.HandleFunc("/", s.shutdown).Methods("DELETE")
	clientsRouter := router.PathPrefix("/clients").Subrouter()
	clientsRouter.HandleFunc("/{id}", s.runCommand).Methods("POST")
	clientsRouter.HandleFunc("/{id}", s.deleteClient).Methods("DELETE")
	return router
}

func (s *testService) getStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, api.StatusRep{
		Name:          serviceName,
		Capabilities:  capabilities,
		ClientVersion: version.Version,
	})
}

func (s *testService) createClient(w http.ResponseWriter, req *http.Request) {
	var params api.CreateInstanceParams
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := makeSDKConfig(params.Configuration)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	user, err := initialContext(params.Configuration.ClientSide)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	loggers := s.loggers
	if params.Tag != "" {
		loggers.SetPrefix("[" + params.Tag + "]")
	}
	client := ldclient.NewLDClient(loggers)
	if !client.Start(c, user) {
		_ = client.Close()
		http.Error(w, "client could not be started", http.StatusInternalServerError)
		return
	}

	s.lock.Lock()
	s.counter++
	id := strconv.Itoa(s.counter)
	s.clients[id] = client
	s.lock.Unlock()

	w.Header().Set("Location", "/clients/"+id)
	w.WriteHeader(http.StatusCreated)
}

func (s *testService) getClient(req *http.Request) (string, *ldclient.LDClient) {
	id := mux.Vars(req)["id"]
	s.lock.Lock()
	defer s.lock.Unlock()
	return id, s.clients[id]
}

func (s *testService) deleteClient(w http.ResponseWriter, req *http.Request) {
	id, client := s.getClient(req)
	if client == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.lock.Lock()
	delete(s.clients, id)
	s.lock.Unlock()
	_ = client.Close()
	w.WriteHeader(http.StatusAccepted)
}

func (s *testService) shutdown(w http.ResponseWriter, req *http.Request) {
	s.lock.Lock()
	clients := s.clients
	s.clients = make(map[string]*ldclient.LDClient)
	s.lock.Unlock()
	for _, client := range clients {
		_ = client.Close()
	}
	w.WriteHeader(http.StatusNoContent)
	s.exit()
}

func (s *testService) runCommand(w http.ResponseWriter, req *http.Request) {
	_, client := s.getClient(req)
	if client == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	var params api.CommandParams
	if err := json.NewDecoder(req.Body).Decode(&params); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	result, err := runCommand(client, params)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if result == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, result)
}

func runCommand(client *ldclient.LDClient, params api.CommandParams) (interface{}, error) {
	switch params.Command {
	case "evaluate":
		if params.Evaluate == nil {
			return nil, errMissingParams
		}
		return evaluate(client, *params.Evaluate), nil
	case "evaluateAll":
		return api.EvaluateAllFlagsResponse{State: client.AllFlags()}, nil
	case "identifyEvent":
		if params.IdentifyEvent == nil {
			return nil, errMissingParams
		}
		user := params.IdentifyEvent.Context
		if user == nil {
			user = params.IdentifyEvent.User
		}
		if user == nil || !client.UpdateUser(*user) {
			return nil, fmt.Errorf("invalid context for identify")
		}
		return nil, nil
	case "customEvent":
		if params.CustomEvent == nil {
			return nil, errMissingParams
		}
		e := params.CustomEvent
		var ok bool
		if e.MetricValue != nil {
			ok = client.TrackWithMetric(e.EventKey, e.Data, *e.MetricValue)
		} else {
			ok = client.Track(e.EventKey, e.Data)
		}
		if !ok {
			return nil, fmt.Errorf("custom event %q was rejected", e.EventKey)
		}
		return nil, nil
	case "flushEvents":
		client.Flush()
		return nil, nil
	default:
		return nil, errUnknownCommand
	}
}

func evaluate(client *ldclient.LDClient, p api.EvaluateFlagParams) api.EvaluateFlagResponse {
	var value ldvalue.Value
	switch p.ValueType {
	case "bool":
		value = ldvalue.Bool(client.BoolVariation(p.FlagKey, p.DefaultValue.BoolValue()))
	case "int":
		value = ldvalue.Int(client.IntVariation(p.FlagKey, p.DefaultValue.IntValue()))
	case "double":
		value = ldvalue.Float64(client.DoubleVariation(p.FlagKey, p.DefaultValue.Float64Value()))
	case "string":
		value = ldvalue.String(client.StringVariation(p.FlagKey, p.DefaultValue.StringValue()))
	default:
		value = client.JSONVariation(p.FlagKey, p.DefaultValue)
	}
	return api.EvaluateFlagResponse{Value: value}
}

func initialContext(p api.ClientSideParamsRep) (ldcontext.Context, error) {
	switch {
	case p.InitialContext != nil:
		return *p.InitialContext, nil
	case p.InitialUser != nil:
		return *p.InitialUser, nil
	default:
		return ldcontext.Context{}, errNoContext
	}
}

func makeSDKConfig(p api.SDKConfigurationRep) (config.Config, error) {
	c := config.DefaultConfig
	c.Main.MobileKey = config.MobileKey(p.Credential)
	c.Main.EvaluationReasons = p.ClientSide.EvaluationReasons
	c.Main.UseReport = p.ClientSide.UseReport
	c.Main.StartWaitTime = ct.NewOptDuration(millisOrElse(p.StartWaitTimeMS, defaultStartWaitTime))

	var err error
	setURI := func(target *ct.OptURLAbsolute, uri string) {
		if uri == "" || err != nil {
			return
		}
		*target, err = ct.NewOptURLAbsoluteFromString(uri)
	}
	setCount := func(target *ct.OptIntGreaterThanZero, n ldvalue.OptionalInt) {
		if !n.IsDefined() || err != nil {
			return
		}
		*target, err = ct.NewOptIntGreaterThanZero(n.IntValue())
	}

	if p.Streaming != nil {
		c.Streaming.Enabled = true
		setURI(&c.Streaming.StreamURI, p.Streaming.BaseURI)
		if p.Streaming.InitialRetryDelayMS.IsDefined() {
			c.Streaming.InitialRetryDelay = ct.NewOptDuration(millisOrElse(p.Streaming.InitialRetryDelayMS, 0))
		}
	}
	if p.Polling != nil {
		setURI(&c.Polling.BaseURI, p.Polling.BaseURI)
		if p.Polling.PollIntervalMS.IsDefined() {
			c.Polling.PollInterval = ct.NewOptDuration(millisOrElse(p.Polling.PollIntervalMS, 0))
		}
	}
	if p.Events != nil {
		setURI(&c.Events.EventsURI, p.Events.BaseURI)
		setCount(&c.Events.Capacity, p.Events.Capacity)
		if p.Events.FlushIntervalMS.IsDefined() {
			c.Events.FlushInterval = ct.NewOptDuration(millisOrElse(p.Events.FlushIntervalMS, 0))
		}
	}
	if p.Tags != nil {
		c.Application.ID = p.Tags.ApplicationID
		c.Application.Version = p.Tags.ApplicationVersion
	}
	return c, err
}

func millisOrElse(ms ldvalue.OptionalInt, orElse time.Duration) time.Duration {
	if !ms.IsDefined() {
		return orElse
	}
	return time.Duration(ms.IntValue()) * time.Millisecond
}

func writeJSON(w http.ResponseWriter, rep interface{}) {
	data, err := json.Marshal(rep)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}
