// Package api contains the JSON representations used by the contract-test service in cmd/testservice.
//
// These are exported for use in integration test code.
package api

import (
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// StatusRep is the JSON representation returned by the service's root endpoint.
type StatusRep struct {
	Name          string   `json:"name"`
	Capabilities  []string `json:"capabilities"`
	ClientVersion string   `json:"clientVersion"`
}

// CreateInstanceParams is the body of a request to create a client.
type CreateInstanceParams struct {
	Tag           string              `json:"tag"`
	Configuration SDKConfigurationRep `json:"configuration"`
}

// SDKConfigurationRep describes how a client should be configured.
type SDKConfigurationRep struct {
	Credential      string              `json:"credential"`
	StartWaitTimeMS ldvalue.OptionalInt `json:"startWaitTimeMs"`
	InitCanFail     bool                `json:"initCanFail"`
	Streaming       *StreamingParamsRep `json:"streaming,omitempty"`
	Polling         *PollingParamsRep   `json:"polling,omitempty"`
	Events          *EventParamsRep     `json:"events,omitempty"`
	Tags            *TagParamsRep       `json:"tags,omitempty"`
	ClientSide      ClientSideParamsRep `json:"clientSide"`
}

// StreamingParamsRep enables streaming, optionally with a custom base URI.
type StreamingParamsRep struct {
	BaseURI             string              `json:"baseUri,omitempty"`
	InitialRetryDelayMS ldvalue.OptionalInt `json:"initialRetryDelayMs"`
}

// PollingParamsRep configures polling.
type PollingParamsRep struct {
	BaseURI        string              `json:"baseUri,omitempty"`
	PollIntervalMS ldvalue.OptionalInt `json:"pollIntervalMs"`
}

// EventParamsRep configures event delivery.
type EventParamsRep struct {
	BaseURI         string              `json:"baseUri,omitempty"`
	Capacity        ldvalue.OptionalInt `json:"capacity"`
	FlushIntervalMS ldvalue.OptionalInt `json:"flushIntervalMs"`
}

// TagParamsRep contains application metadata.
type TagParamsRep struct {
	ApplicationID      string `json:"applicationId,omitempty"`
	ApplicationVersion string `json:"applicationVersion,omitempty"`
}

// ClientSideParamsRep contains the options that only apply to client-side SDKs. InitialUser is an
// older name for InitialContext.
type ClientSideParamsRep struct {
	InitialContext    *ldcontext.Context `json:"initialContext,omitempty"`
	InitialUser       *ldcontext.Context `json:"initialUser,omitempty"`
	EvaluationReasons bool               `json:"evaluationReasons"`
	UseReport         bool               `json:"useReport"`
}

// CommandParams is the body of a request to run a command on a client.
type CommandParams struct {
	Command       string                  `json:"command"`
	Evaluate      *EvaluateFlagParams     `json:"evaluate,omitempty"`
	EvaluateAll   *EvaluateAllFlagsParams `json:"evaluateAll,omitempty"`
	IdentifyEvent *IdentifyEventParams    `json:"identifyEvent,omitempty"`
	CustomEvent   *CustomEventParams      `json:"customEvent,omitempty"`
}

// EvaluateFlagParams are the parameters of the "evaluate" command.
type EvaluateFlagParams struct {
	FlagKey      string        `json:"flagKey"`
	ValueType    string        `json:"valueType"`
	DefaultValue ldvalue.Value `json:"defaultValue"`
	Detail       bool          `json:"detail"`
}

// EvaluateFlagResponse is the result of the "evaluate" command.
type EvaluateFlagResponse struct {
	Value ldvalue.Value `json:"value"`
}

// EvaluateAllFlagsParams are the parameters of the "evaluateAll" command.
type EvaluateAllFlagsParams struct {
	WithReasons bool `json:"withReasons"`
}

// EvaluateAllFlagsResponse is the result of the "evaluateAll" command.
type EvaluateAllFlagsResponse struct {
	State map[string]ldvalue.Value `json:"state"`
}

// IdentifyEventParams are the parameters of the "identifyEvent" command. User is an older name for
// Context.
type IdentifyEventParams struct {
	Context *ldcontext.Context `json:"context,omitempty"`
	User    *ldcontext.Context `json:"user,omitempty"`
}

// CustomEventParams are the parameters of the "customEvent" command.
type CustomEventParams struct {
	EventKey    string        `json:"eventKey"`
	Data        ldvalue.Value `json:"data"`
	MetricValue *float64      `json:"metricValue,omitempty"`
}
