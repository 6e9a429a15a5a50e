// Package config provides the shared flag+YAML configuration loading
// helper used by every MCMOT binary: defaults come from flags, a YAML file
// overlays them, and -config.expand-env expands environment variables in
// the file before it is parsed.
package config

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/drone/envsubst"
	"gopkg.in/yaml.v3"
)

// FlagRegisterer is implemented by every component config.
type FlagRegisterer interface {
	RegisterFlags(prefix string, f *flag.FlagSet)
}

// Options controls how Load parses os.Args.
type Options struct {
	// ConfigFileFlag is the flag name used for the config file path,
	// e.g. "config.file".
	ConfigFileFlag string
	// ExpandEnvFlag is the flag name used to opt into env-var expansion.
	ExpandEnvFlag string
}

// DefaultOptions mirrors the flag names the teacher's cmd/tempo/main.go
// uses.
var DefaultOptions = Options{
	ConfigFileFlag: "config.file",
	ExpandEnvFlag:  "config.expand-env",
}

// Load registers cfg's flags on flag.CommandLine, applies defaults,
// overlays a YAML config file named by -config.file (if any, optionally
// env-expanded), then re-parses the command line so CLI flags win over
// the file. args is normally os.Args[1:].
func Load(cfg FlagRegisterer, args []string, opts Options) error {
	var configFile string
	var expandEnv bool

	// First pass: find -config.file / -config.expand-env without requiring
	// every other flag to already be registered, exactly as
	// cmd/tempo/main.go:loadConfig does.
	peek := flag.NewFlagSet("", flag.ContinueOnError)
	peek.SetOutput(io.Discard)
	peek.StringVar(&configFile, opts.ConfigFileFlag, "", "")
	peek.BoolVar(&expandEnv, opts.ExpandEnvFlag, false, "")

	remaining := args
	for len(remaining) > 0 {
		_ = peek.Parse(remaining)
		remaining = remaining[1:]
	}

	cfg.RegisterFlags("", flag.CommandLine)

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return fmt.Errorf("failed to read configFile %s: %w", configFile, err)
		}
		if expandEnv {
			s, err := envsubst.EvalEnv(string(buf))
			if err != nil {
				return fmt.Errorf("failed to expand env vars from configFile %s: %w", configFile, err)
			}
			buf = []byte(s)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return fmt.Errorf("failed to parse configFile %s: %w", configFile, err)
		}
	}

	flag.StringVar(new(string), opts.ConfigFileFlag, "", "Configuration file to load")
	flag.BoolVar(new(bool), opts.ExpandEnvFlag, false, "Expand environment variables in the config file")
	if err := flag.CommandLine.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}

	return nil
}
