package config

import (
	"slices"
	"strings"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/pyproject"
)

// Option names a recognized configuration option.
type Option string

// Recognized options.
const (
	BuildBackend     Option = "build-backend"
	CommitFiles      Option = "commit-files"
	CommitFile       Option = "commit-file"
	CommitFileType   Option = "commit-file-type"
	DisableCUDA      Option = "disable-cuda"
	OnlyReleaseDeps  Option = "only-release-deps"
	RequireCUDA      Option = "require-cuda"
	Requires         Option = "requires"
	DependenciesFile Option = "dependencies-file"
	MatrixEntry      Option = "matrix-entry"
)

// Commit marker formats.
const (
	CommitFileRaw    = "raw"
	CommitFilePython = "python"
)

// Options lists every recognized option in display order.
var Options = []Option{
	BuildBackend,
	CommitFiles,
	CommitFile,
	CommitFileType,
	DisableCUDA,
	OnlyReleaseDeps,
	RequireCUDA,
	Requires,
	DependenciesFile,
	MatrixEntry,
}

// EnvVar returns the environment variable that overrides the option.
func (o Option) EnvVar() string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(string(o), "-", "_"))
}

// Overridable reports whether env vars and settings may override the option.
func (o Option) Overridable() bool { return descriptors[o].overridable }

type kind int

const (
	kindString kind = iota
	kindBool
	kindList
)

func (k kind) String() string {
	switch k {
	case kindBool:
		return "bool"
	case kindList:
		return "list"
	default:
		return "string"
	}
}

type descriptor struct {
	kind        kind
	def         any
	required    bool
	overridable bool
}

var descriptors = map[Option]descriptor{
	BuildBackend:     {kind: kindString, required: true},
	CommitFiles:      {kind: kindList, def: []string{}},
	CommitFile:       {kind: kindString, def: ""},
	CommitFileType:   {kind: kindString, def: CommitFileRaw},
	DisableCUDA:      {kind: kindBool, def: false, overridable: true},
	OnlyReleaseDeps:  {kind: kindBool, def: false, overridable: true},
	RequireCUDA:      {kind: kindBool, def: true, overridable: true},
	Requires:         {kind: kindList, def: []string{}},
	DependenciesFile: {kind: kindString, def: "dependencies.yaml", overridable: true},
	MatrixEntry:      {kind: kindString, def: "", overridable: true},
}

func (d descriptor) defaultValue() any {
	if l, ok := d.def.([]string); ok {
		return slices.Clone(l)
	}
	return d.def
}

// fromString converts an override. Only string and bool options are
// overridable.
func (d descriptor) fromString(source, raw string) (any, error) {
	if d.kind != kindBool {
		return raw, nil
	}
	switch raw {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return nil, errs.New(errs.ErrCodeInvalidBool, "%s must be 'true' or 'false', not %s", source, raw)
	}
}

func (d descriptor) fromTable(name Option, v any) (any, error) {
	switch d.kind {
	case kindBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
	case kindList:
		l, err := pyproject.ToStrings(v)
		if err == nil {
			return l, nil
		}
	default:
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	return nil, errs.New(errs.ErrCodeInvalidManifest,
		"%s: expected %s for option %s, got %T", strings.Join(Table, "."), d.kind, name, v)
}
