// Package application contains the process-level helpers shared by the commands in cmd/: reading
// command-line options and running an HTTP listener.
package application

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// DefaultConfigPath is the default configuration file path.
const DefaultConfigPath = "/etc/ld-flag-watch.conf"

// Options represents all options that can be set from the command line.
type Options struct {
	ConfigFile       string
	AllowMissingFile bool
	UseEnvironment   bool
	ContextKey       string
	Anonymous        bool
	Wait             time.Duration
}

func errConfigFileNotFound(filename string) error {
	return fmt.Errorf("configuration file %q does not exist", filename)
}

var errNoContext = fmt.Errorf("either --context or --anonymous must be specified")

// DescribeConfigSource returns a human-readable phrase describing whether the configuration comes from a
// file, from variables, or both.
func (o Options) DescribeConfigSource() string {
	if o.ConfigFile == "" && o.UseEnvironment {
		return "configuration from environment variables"
	}
	if o.ConfigFile == "" {
		return "default configuration"
	}
	desc := fmt.Sprintf("configuration file %s", o.ConfigFile)
	if o.UseEnvironment {
		desc += " plus environment variables"
	}
	return desc
}

// ReadOptions reads and validates the command-line options. The first element of args is the program
// name. Usage errors are written to errWriter.
//
// The configuration parameter behavior is as follows:
//  1. If you specify --config $FILEPATH, it loads that file. Failure to find it or parse it is a fatal
//     error, unless you also specify --allow-missing-file.
//  2. If you specify --from-env, it creates a configuration from environment variables.
//  3. If you specify both, the file is loaded first, then it applies changes from variables if any.
//  4. Omitting both is equivalent to explicitly specifying --config /etc/ld-flag-watch.conf.
//
// Exactly one of --context and --anonymous selects the context whose flags are watched.
func ReadOptions(args []string, errWriter io.Writer) (Options, error) {
	var o Options

	fs := flag.NewFlagSet(programName(args), flag.ContinueOnError)
	fs.SetOutput(errWriter)
	fs.StringVar(&o.ConfigFile, "config", "", "configuration file location")
	fs.BoolVar(&o.AllowMissingFile, "allow-missing-file", false, "suppress error if config file is not found")
	fs.BoolVar(&o.UseEnvironment, "from-env", false, "read configuration from environment variables")
	fs.StringVar(&o.ContextKey, "context", "", "key of the user context to watch")
	fs.BoolVar(&o.Anonymous, "anonymous", false, "watch an anonymous context with a generated key")
	fs.DurationVar(&o.Wait, "wait", 5*time.Second, "how long to wait for the first flag values")
	var rest []string
	if len(args) > 1 {
		rest = args[1:]
	}
	if err := fs.Parse(rest); err != nil {
		return o, err
	}

	if (o.ContextKey == "") == !o.Anonymous {
		return o, errNoContext
	}

	if o.ConfigFile == "" && !o.UseEnvironment {
		o.ConfigFile = DefaultConfigPath
	}

	if o.ConfigFile != "" {
		_, err := os.Stat(o.ConfigFile)
		fileExists := err == nil || !os.IsNotExist(err)
		if !fileExists {
			if !o.AllowMissingFile {
				return o, errConfigFileNotFound(o.ConfigFile)
			}
			o.ConfigFile = ""
		}
	}

	return o, nil
}

// DescribeVersion returns the same version string unless it is a prerelease build, in which case it
// is reformatted to change "+xxx" into "(build xxx)".
func DescribeVersion(version string) string {
	split := strings.Split(version, "+")
	if len(split) == 2 {
		return fmt.Sprintf("%s (build %s)", split[0], split[1])
	}
	return version
}

func programName(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
