// Package cli implements the rapidsbuild command-line interface.
//
// The commands drive the same hook dispatcher a Python build frontend uses:
//   - hook: run one build-backend hook and print its JSON result
//   - hooks: list the hooks the project exposes
//   - config: show every option with its resolved value and source
//   - preview: show the pyproject.toml rewrite as a unified diff
//   - build: gather requirements and build a wheel, sdist or editable wheel
//
// All commands support --verbose (-v) for debug-level logging, which also
// reports each hook, backend call, backup and probe.
package cli

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/rapidsbuild/pkg/backend"
	"github.com/matzehuels/rapidsbuild/pkg/buildinfo"
	"github.com/matzehuels/rapidsbuild/pkg/config"
	"github.com/matzehuels/rapidsbuild/pkg/dispatch"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for display.
const appName = "rapidsbuild"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// out receives command output; os.Stdout unless replaced in tests.
	out io.Writer
	// loader overrides the Python backend loader.
	loader dispatch.Loader
	// runner overrides the probe's command runner.
	runner probe.Runner
	// lookupEnv overrides os.LookupEnv for option overrides.
	lookupEnv func(string) (string, bool)

	dir      string
	python   string
	settings []string
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		out:    os.Stdout,
	}
}

// SetLogLevel updates the logger's level. At debug level the observability
// hooks log every hook, backend call, backup and probe.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
	if level <= log.DebugLevel {
		h := &logHooks{logger: c.Logger}
		observability.SetDispatchHooks(h)
		observability.SetTransactionHooks(h)
		observability.SetProbeHooks(h)
	}
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "rapidsbuild wraps a Python build backend for CUDA-suffixed RAPIDS builds",
		Long: `rapidsbuild runs PEP 517 build hooks through a wrapped build backend.
Before each hook it rewrites pyproject.toml for the local CUDA toolkit and
writes the current git commit into the configured marker files; both are
restored when the hook returns.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())

	flags := root.PersistentFlags()
	flags.StringVarP(&c.dir, "dir", "C", ".", "project directory containing pyproject.toml")
	flags.StringVar(&c.python, "python", backend.DefaultInterpreter, "Python interpreter that runs the wrapped backend")
	flags.StringArrayVar(&c.settings, "setting", nil, "config setting passed to the hooks, key=value (repeatable)")

	// Register all subcommands
	root.AddCommand(c.hookCommand())
	root.AddCommand(c.hooksCommand())
	root.AddCommand(c.configCommand())
	root.AddCommand(c.previewCommand())
	root.AddCommand(c.buildCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Dispatcher Factory
// =============================================================================

// newDispatcher creates a hook dispatcher for the selected project.
func (c *CLI) newDispatcher() *dispatch.Dispatcher {
	loader := c.loader
	if loader == nil {
		loader = backend.NewLoader(backend.Exec{
			Interpreter: c.python,
			Dir:         c.dir,
			// stdout carries command results, so the backend's own output
			// goes to stderr.
			Stdout: os.Stderr,
			Stderr: os.Stderr,
		})
	}
	return &dispatch.Dispatcher{
		Dir:       c.dir,
		Probe:     probe.New(c.dir, c.runner, c.Logger),
		Loader:    loader,
		Logger:    c.Logger,
		LookupEnv: c.lookupEnv,
	}
}

// parseSettings parses the --setting flags.
func (c *CLI) parseSettings() (config.Settings, error) {
	return config.ParseSettings(c.settings)
}

// loadConfig resolves the project configuration with the --setting flags.
func (c *CLI) loadConfig() (*config.Config, error) {
	settings, err := c.parseSettings()
	if err != nil {
		return nil, err
	}
	var opts []config.LoadOption
	if c.lookupEnv != nil {
		opts = append(opts, config.WithLookupEnv(c.lookupEnv))
	}
	return config.Load(c.dir, settings, opts...)
}
