// Package backend calls the PEP 517 build backend that rapidsbuild wraps.
//
// A [Backend] exposes the hooks it implements and runs them one call at a
// time. The [Python] implementation runs each call in a fresh interpreter
// through a small embedded runner script, which imports the backend module,
// calls the hook, and writes the JSON-encoded result to a file.
package backend

import (
	"context"
	"slices"
	"strings"
)

// Hook names a PEP 517 or PEP 660 hook.
type Hook string

// Build hooks.
const (
	GetRequiresForBuildWheel        Hook = "get_requires_for_build_wheel"
	GetRequiresForBuildSdist        Hook = "get_requires_for_build_sdist"
	GetRequiresForBuildEditable     Hook = "get_requires_for_build_editable"
	BuildWheel                      Hook = "build_wheel"
	BuildSdist                      Hook = "build_sdist"
	BuildEditable                   Hook = "build_editable"
	PrepareMetadataForBuildWheel    Hook = "prepare_metadata_for_build_wheel"
	PrepareMetadataForBuildEditable Hook = "prepare_metadata_for_build_editable"
)

// Hooks lists every hook in canonical order.
var Hooks = []Hook{
	GetRequiresForBuildWheel,
	GetRequiresForBuildSdist,
	GetRequiresForBuildEditable,
	BuildWheel,
	BuildSdist,
	BuildEditable,
	PrepareMetadataForBuildWheel,
	PrepareMetadataForBuildEditable,
}

// ParseHook returns the hook with the given name.
func ParseHook(name string) (Hook, bool) {
	h := Hook(name)
	return h, slices.Contains(Hooks, h)
}

// IsRequires reports whether h gathers build requirements.
func (h Hook) IsRequires() bool { return strings.HasPrefix(string(h), "get_requires_for_build_") }

// IsMetadata reports whether h prepares metadata.
func (h Hook) IsMetadata() bool { return strings.HasPrefix(string(h), "prepare_metadata_for_build_") }

// IsBuild reports whether h produces an artifact.
func (h Hook) IsBuild() bool { return h == BuildWheel || h == BuildSdist || h == BuildEditable }

// IsEditable reports whether h belongs to the PEP 660 editable family.
func (h Hook) IsEditable() bool { return strings.HasSuffix(string(h), "_editable") }

// Target returns the artifact kind: "wheel", "sdist" or "editable".
func (h Hook) Target() string {
	s := string(h)
	return s[strings.LastIndexByte(s, '_')+1:]
}

// Mandatory reports whether every backend must implement h. The requirement
// hooks for wheel and sdist are optional for backends but always exposed by
// rapidsbuild, which supplies its own requirements.
func (h Hook) Mandatory() bool { return h == BuildWheel || h == BuildSdist }

// HookSet is a set of hooks.
type HookSet map[Hook]bool

// NewHookSet returns a set holding hooks.
func NewHookSet(hooks ...Hook) HookSet {
	s := make(HookSet, len(hooks))
	for _, h := range hooks {
		s[h] = true
	}
	return s
}

// Has reports whether h is in the set.
func (s HookSet) Has(h Hook) bool { return s[h] }

// List returns the hooks in canonical order.
func (s HookSet) List() []Hook {
	var out []Hook
	for _, h := range Hooks {
		if s[h] {
			out = append(out, h)
		}
	}
	return out
}

// Request carries a hook's arguments.
type Request struct {
	// Directory is the output directory for build hooks and the metadata
	// directory for prepare_metadata hooks.
	Directory string `json:"directory,omitempty"`
	// MetadataDirectory is the optional prepared metadata for build_wheel
	// and build_editable.
	MetadataDirectory string `json:"metadata_directory,omitempty"`

	Settings map[string]string `json:"config_settings"`
}

// Response is a hook's result. Requirement hooks fill Requires; the others
// fill Path with the basename of the artifact or metadata directory.
type Response struct {
	Requires []string `json:"requires,omitempty"`
	Path     string   `json:"path,omitempty"`
}

// Backend is a loaded build backend.
type Backend interface {
	// Name returns the backend's module path, e.g. "setuptools.build_meta".
	Name() string
	// Hooks returns the hooks the backend defines.
	Hooks() HookSet
	// Call runs hook h.
	Call(ctx context.Context, h Hook, req Request) (*Response, error)
}
