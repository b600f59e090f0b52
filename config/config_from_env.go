package config

import (
	"errors"
	"fmt"
	"os"

	ct "github.com/launchdarkly/go-configtypes"
	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
)

// LoadConfigFromEnvironment sets parameters in a Config struct from environment variables.
//
// The Config parameter should be initialized with default values first.
func LoadConfigFromEnvironment(c *Config, loggers ldlog.Loggers) error {
	reader := ct.NewVarReaderFromEnvironment()

	reader.ReadStruct(&c.Main, false)
	reader.ReadStruct(&c.Polling, false)
	reader.ReadStruct(&c.Streaming, false)
	reader.ReadStruct(&c.Events, false)
	reader.ReadStruct(&c.Connection, false)
	reader.ReadStruct(&c.Application, false)
	reader.ReadStruct(&c.Cache, false)
	reader.ReadStruct(&c.Proxy, false)
	reader.ReadStruct(&c.Prometheus, false)

	rejectObsoleteVariableName("LD_SDK_KEY", "LD_MOBILE_KEY", reader)
	rejectObsoleteVariableName("EVENTS_SAMPLING_INTERVAL", "", reader)

	if !reader.Result().OK() {
		return reader.Result().GetError()
	}

	return ValidateConfig(c, loggers)
}

func rejectObsoleteVariableName(oldName, preferredName string, reader *ct.VarReader) {
	// Unrecognized environment variables are normally ignored, but a variable that looks like it was
	// meant for this SDK and is not supported should not be silently dropped.
	if os.Getenv(oldName) != "" {
		if preferredName == "" {
			reader.AddError(ct.ValidationPath{oldName}, errors.New("this variable is not supported"))
		} else {
			reader.AddError(ct.ValidationPath{oldName},
				fmt.Errorf("this variable is not supported; use %s", preferredName))
		}
	}
}
