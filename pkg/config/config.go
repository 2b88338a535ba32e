// Package config resolves rapidsbuild options.
//
// Options live in the [tool.rapids-build-backend] table of pyproject.toml.
// Options marked overridable may also be set per invocation, through an
// environment variable or a frontend config setting:
//
//	RAPIDS_ONLY_RELEASE_DEPS=true          (environment, highest precedence)
//	--config-settings rapidsai.only-release-deps=true
//	[tool.rapids-build-backend]
//	only-release-deps = true                (manifest)
//
// When no source supplies a value the option's default is used; options
// without a default fail with MISSING_OPTION.
//
// A Config is a snapshot of the manifest taken by [Load]. Callers that rewrite
// pyproject.toml must Load again to observe their own changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/pyproject"
)

// Table is the manifest table holding rapidsbuild options.
var Table = []string{"tool", "rapids-build-backend"}

// EnvPrefix prefixes the environment variable of every overridable option.
const EnvPrefix = "RAPIDS_"

// Config is a resolved view over one invocation's option sources.
type Config struct {
	dir      string
	table    map[string]any
	settings Settings
	lookup   func(string) (string, bool)
}

// LoadOption customizes Load.
type LoadOption func(*Config)

// WithLookupEnv replaces os.LookupEnv.
func WithLookupEnv(fn func(string) (string, bool)) LoadOption {
	return func(c *Config) { c.lookup = fn }
}

// Load reads the rapidsbuild table from dir/pyproject.toml.
func Load(dir string, settings Settings, opts ...LoadOption) (*Config, error) {
	doc, err := pyproject.Load(filepath.Join(dir, pyproject.Filename))
	if err != nil {
		return nil, err
	}
	return FromDocument(dir, doc, settings, opts...)
}

// FromDocument builds a Config from an already parsed manifest.
func FromDocument(dir string, doc *pyproject.Document, settings Settings, opts ...LoadOption) (*Config, error) {
	table, ok := doc.Table(Table...)
	if !ok {
		return nil, errs.New(errs.ErrCodeInvalidManifest,
			"no %s table in %s", strings.Join(Table, "."), pyproject.Filename)
	}
	c := &Config{
		dir:      dir,
		table:    table,
		settings: settings,
		lookup:   os.LookupEnv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Dir returns the project directory the config was loaded from.
func (c *Config) Dir() string { return c.dir }

// Settings returns the invocation's frontend settings.
func (c *Config) Settings() Settings { return c.settings }

// Get resolves option name. The result is a string, bool or []string
// according to the option's kind.
func (c *Config) Get(name Option) (any, error) {
	d, ok := descriptors[name]
	if !ok {
		return nil, errs.New(errs.ErrCodeUnknownOption, "attempted to access unknown option %s", name)
	}

	if d.overridable {
		if raw, ok := c.lookup(name.EnvVar()); ok {
			return d.fromString(name.EnvVar(), raw)
		}
		if raw, ok := c.settings.Lookup(name); ok {
			return d.fromString(SettingsPrefix+string(name), raw)
		}
	}

	if v, ok := c.table[string(name)]; ok {
		return d.fromTable(name, v)
	}
	if d.required {
		return nil, errs.New(errs.ErrCodeMissingOption, "config is missing required attribute %s", name)
	}
	return d.defaultValue(), nil
}

// IsSet reports whether option name is present in the manifest table.
func (c *Config) IsSet(name Option) bool {
	_, ok := c.table[string(name)]
	return ok
}

func (c *Config) str(name Option) (string, error) {
	v, err := c.Get(name)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Config) flag(name Option) (bool, error) {
	v, err := c.Get(name)
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *Config) list(name Option) ([]string, error) {
	v, err := c.Get(name)
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// BuildBackend returns the wrapped backend's module path.
func (c *Config) BuildBackend() (string, error) { return c.str(BuildBackend) }

// CommitFileType returns the marker format, "raw" or "python".
func (c *Config) CommitFileType() (string, error) {
	t, err := c.str(CommitFileType)
	if err != nil {
		return "", err
	}
	switch t {
	case CommitFileRaw, CommitFilePython:
		return t, nil
	default:
		return "", errs.New(errs.ErrCodeInvalidManifest,
			"commit-file-type must be %q or %q, not %q", CommitFileRaw, CommitFilePython, t)
	}
}

// DisableCUDA reports whether CUDA detection and suffixing are turned off.
func (c *Config) DisableCUDA() (bool, error) { return c.flag(DisableCUDA) }

// OnlyReleaseDeps reports whether nightly floors are suppressed.
func (c *Config) OnlyReleaseDeps() (bool, error) { return c.flag(OnlyReleaseDeps) }

// RequireCUDA reports whether a missing CUDA toolkit is fatal.
func (c *Config) RequireCUDA() (bool, error) { return c.flag(RequireCUDA) }

// Requires returns the extra build requirements.
func (c *Config) Requires() ([]string, error) { return c.list(Requires) }

// DependenciesFile returns the dependency file path, relative to the project
// directory unless absolute.
func (c *Config) DependenciesFile() (string, error) {
	p, err := c.str(DependenciesFile)
	if err != nil || p == "" || filepath.IsAbs(p) {
		return p, err
	}
	return filepath.Join(c.dir, p), nil
}

// MatrixEntry returns the explicit matrix override, "key=value;...".
func (c *Config) MatrixEntry() (string, error) { return c.str(MatrixEntry) }

// CommitFiles returns the marker paths, relative to the project directory.
// The legacy commit-file option is appended to commit-files. When neither is
// set, derived is used; callers pass the default package marker path. Paths
// are cleaned and each file is listed once, in first-seen order.
func (c *Config) CommitFiles(derived ...string) ([]string, error) {
	files, err := c.list(CommitFiles)
	if err != nil {
		return nil, err
	}
	if !c.IsSet(CommitFiles) {
		files = slices.Clone(derived)
	}
	legacy, err := c.str(CommitFile)
	if err != nil {
		return nil, err
	}
	if legacy != "" {
		files = append(files, legacy)
	}
	out := make([]string, 0, len(files))
	for _, f := range files {
		if err := errs.ValidateMarkerPath(f); err != nil {
			return nil, err
		}
		f = filepath.ToSlash(filepath.Clean(f))
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// Resolved returns every option's resolved value in table order, with errors
// reported per option rather than aborting.
func (c *Config) Resolved() []Resolution {
	out := make([]Resolution, 0, len(Options))
	for _, name := range Options {
		v, err := c.Get(name)
		out = append(out, Resolution{Option: name, Value: v, Source: c.source(name), Err: err})
	}
	return out
}

// Resolution is one option's resolved value and where it came from.
type Resolution struct {
	Option Option
	Value  any
	Source string
	Err    error
}

func (c *Config) source(name Option) string {
	d := descriptors[name]
	if d.overridable {
		if _, ok := c.lookup(name.EnvVar()); ok {
			return "env " + name.EnvVar()
		}
		if _, ok := c.settings.Lookup(name); ok {
			return "setting " + SettingsPrefix + string(name)
		}
	}
	if c.IsSet(name) {
		return fmt.Sprintf("%s %s", pyproject.Filename, strings.Join(Table, "."))
	}
	return "default"
}
