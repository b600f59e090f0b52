package main

import (
	"sort"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

type flagSource interface {
	JSONVariation(key string, fallback ldvalue.Value) ldvalue.Value
	AllFlags() map[string]ldvalue.Value
}

// flagLogger is the client delegate that reports changes to the log.
type flagLogger struct {
	flags   flagSource
	loggers ldlog.Loggers
}

func newFlagLogger(flags flagSource, loggers ldlog.Loggers) *flagLogger {
	return &flagLogger{flags: flags, loggers: loggers}
}

func (f *flagLogger) FeatureFlagDidUpdate(key string) {
	f.loggers.Infof("Flag %q is now %s", key, f.flags.JSONVariation(key, ldvalue.Null()).JSONString())
}

func (f *flagLogger) UserDidUpdate() {
	f.loggers.Debug("Flags for the current context were updated")
}

func (f *flagLogger) ServerConnectionUnavailable() {
	f.loggers.Warn("LaunchDarkly is unreachable; flag values may be out of date")
}

func logAllFlags(flags flagSource, loggers ldlog.Loggers) {
	all := flags.AllFlags()
	keys := make([]string, 0, len(all))
	for k := range all {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	loggers.Infof("%d flag(s) known", len(keys))
	for _, k := range keys {
		loggers.Infof("  %s = %s", k, all[k].JSONString())
	}
}
