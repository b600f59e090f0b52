package flagstore

import (
	"fmt"
	"sort"

	"github.com/launchdarkly/go-jsonstream/v3/jreader"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
)

// ParseFlags parses the client-side flag representation, a JSON object whose property names are flag
// keys and whose values are flag objects. The records are returned in the order they appeared.
func ParseFlags(data []byte) ([]FlagRecord, error) {
	r := jreader.NewReader(data)
	var ret []FlagRecord
	for obj := r.Object(); obj.Next(); {
		key := string(obj.Name())
		flag := readFlagValue(&r, nil)
		ret = append(ret, FlagRecord{Key: key, Flag: flag})
	}
	if err := r.Error(); err != nil {
		return nil, fmt.Errorf("malformed flag data: %w", err)
	}
	return ret, nil
}

// ParseFlagRecord parses a single flag object that carries its own "key" property, as sent in a
// stream "patch" event.
func ParseFlagRecord(data []byte) (FlagRecord, error) {
	r := jreader.NewReader(data)
	var key string
	flag := readFlagValue(&r, &key)
	if err := r.Error(); err != nil {
		return FlagRecord{}, fmt.Errorf("malformed flag data: %w", err)
	}
	if key == "" {
		return FlagRecord{}, fmt.Errorf("malformed flag data: missing key")
	}
	return FlagRecord{Key: key, Flag: flag}, nil
}

func readFlagValue(r *jreader.Reader, key *string) FlagValue {
	var f FlagValue
	for obj := r.Object(); obj.Next(); {
		switch string(obj.Name()) {
		case "key":
			if key != nil {
				*key = r.String()
			} else {
				_ = r.SkipValue()
			}
		case "value":
			f.Value.ReadFromJSONReader(r)
		case "version":
			f.Version, _ = r.IntOrNull()
		case "flagVersion":
			f.FlagVersion.ReadFromJSONReader(r)
		case "variation":
			f.Variation.ReadFromJSONReader(r)
		case "trackEvents":
			f.TrackEvents, _ = r.BoolOrNull()
		case "trackReason":
			f.TrackReason, _ = r.BoolOrNull()
		case "debugEventsUntilDate":
			f.DebugEventsUntilDate.ReadFromJSONReader(r)
		case "reason":
			f.Reason.ReadFromJSONReader(r)
		default:
			_ = r.SkipValue()
		}
	}
	return f
}

// SerializeFlags writes flags in the same representation that ParseFlags reads, with keys in sorted
// order.
func SerializeFlags(flags map[string]FlagValue) []byte {
	keys := make([]string, 0, len(flags))
	for k := range flags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	w := jwriter.NewWriter()
	obj := w.Object()
	for _, k := range keys {
		writeFlagValue(obj.Name(k), flags[k])
	}
	obj.End()
	return w.Bytes()
}

func writeFlagValue(w *jwriter.Writer, f FlagValue) {
	obj := w.Object()
	f.Value.WriteToJSONWriter(obj.Name("value"))
	obj.Name("version").Int(f.Version)
	if f.FlagVersion.IsDefined() {
		f.FlagVersion.WriteToJSONWriter(obj.Name("flagVersion"))
	}
	if f.Variation.IsDefined() {
		f.Variation.WriteToJSONWriter(obj.Name("variation"))
	}
	obj.Maybe("trackEvents", f.TrackEvents).Bool(true)
	obj.Maybe("trackReason", f.TrackReason).Bool(true)
	if f.DebugEventsUntilDate.IsDefined() {
		f.DebugEventsUntilDate.WriteToJSONWriter(obj.Name("debugEventsUntilDate"))
	}
	if f.Reason.GetKind() != "" {
		f.Reason.WriteToJSONWriter(obj.Name("reason"))
	}
	obj.End()
}
