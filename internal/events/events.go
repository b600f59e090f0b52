package events

import (
	"encoding/json"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldreason"
	"github.com/launchdarkly/go-sdk-common/v3/ldtime"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// Event is implemented by all analytics event types. Events are immutable once created.
type Event interface {
	Kind() string
	CreationDate() ldtime.UnixMillisecondTime
	writeTo(w *jwriter.Writer)
}

// IdentifyEvent reports the context that the application is using.
type IdentifyEvent struct {
	Created ldtime.UnixMillisecondTime
	Context ldcontext.Context
}

// CustomEvent is created by the application to record an action.
type CustomEvent struct {
	Created     ldtime.UnixMillisecondTime
	Key         string
	Context     ldcontext.Context
	Data        ldvalue.Value
	MetricValue *float64
}

// FeatureEvent records a flag value that the context received.
type FeatureEvent struct {
	Created   ldtime.UnixMillisecondTime
	Key       string
	Context   ldcontext.Context
	Value     ldvalue.Value
	Default   ldvalue.Value
	Version   ldvalue.OptionalInt
	Variation ldvalue.OptionalInt
	Reason    ldreason.EvaluationReason
}

// NewIdentifyEvent creates an IdentifyEvent timestamped with the current time.
func NewIdentifyEvent(context ldcontext.Context) IdentifyEvent {
	return IdentifyEvent{Created: ldtime.UnixMillisNow(), Context: context}
}

// NewCustomEvent creates a CustomEvent timestamped with the current time.
func NewCustomEvent(key string, context ldcontext.Context, data ldvalue.Value, metricValue *float64) CustomEvent {
	return CustomEvent{Created: ldtime.UnixMillisNow(), Key: key, Context: context, Data: data, MetricValue: metricValue}
}

func (e IdentifyEvent) Kind() string { return IdentifyKind } //nolint:golint
func (e CustomEvent) Kind() string   { return CustomKind }   //nolint:golint
func (e FeatureEvent) Kind() string  { return FeatureKind }  //nolint:golint

func (e IdentifyEvent) CreationDate() ldtime.UnixMillisecondTime { return e.Created } //nolint:golint
func (e CustomEvent) CreationDate() ldtime.UnixMillisecondTime   { return e.Created } //nolint:golint
func (e FeatureEvent) CreationDate() ldtime.UnixMillisecondTime  { return e.Created } //nolint:golint

func (e IdentifyEvent) writeTo(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("kind").String(IdentifyKind)
	obj.Name("creationDate").Int(int(e.Created))
	writeContext(obj.Name("context"), e.Context)
	obj.End()
}

func (e CustomEvent) writeTo(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("kind").String(CustomKind)
	obj.Name("creationDate").Int(int(e.Created))
	obj.Name("key").String(e.Key)
	writeContextKeys(obj.Name("contextKeys"), e.Context)
	if !e.Data.IsNull() {
		e.Data.WriteToJSONWriter(obj.Name("data"))
	}
	if e.MetricValue != nil {
		obj.Name("metricValue").Float64(*e.MetricValue)
	}
	obj.End()
}

func (e FeatureEvent) writeTo(w *jwriter.Writer) {
	obj := w.Object()
	obj.Name("kind").String(FeatureKind)
	obj.Name("creationDate").Int(int(e.Created))
	obj.Name("key").String(e.Key)
	writeContextKeys(obj.Name("contextKeys"), e.Context)
	e.Value.WriteToJSONWriter(obj.Name("value"))
	e.Default.WriteToJSONWriter(obj.Name("default"))
	if e.Version.IsDefined() {
		e.Version.WriteToJSONWriter(obj.Name("version"))
	}
	if e.Variation.IsDefined() {
		e.Variation.WriteToJSONWriter(obj.Name("variation"))
	}
	if e.Reason.GetKind() != "" {
		e.Reason.WriteToJSONWriter(obj.Name("reason"))
	}
	obj.End()
}

func writeContext(w *jwriter.Writer, c ldcontext.Context) {
	data, err := json.Marshal(c)
	if err != nil {
		w.Null()
		return
	}
	w.Raw(data)
}

func writeContextKeys(w *jwriter.Writer, c ldcontext.Context) {
	obj := w.Object()
	if c.Multiple() {
		for _, ic := range c.GetAllIndividualContexts(nil) {
			obj.Name(string(ic.Kind())).String(ic.Key())
		}
	} else if c.Err() == nil {
		obj.Name(string(c.Kind())).String(c.Key())
	}
	obj.End()
}

// SerializeEvents produces the JSON array that is posted to the events service.
func SerializeEvents(events []Event) []byte {
	w := jwriter.NewWriter()
	arr := w.Array()
	for _, e := range events {
		e.writeTo(&w)
	}
	arr.End()
	return w.Bytes()
}
