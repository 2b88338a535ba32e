package rewrite

import "github.com/matzehuels/rapidsbuild/pkg/pep508"

// Registry classifies the wheels that receive special treatment.
// All names are stored in PEP 503 normalized form.
type Registry struct {
	// Suffixed wheels are published once per CUDA major version and get the
	// accelerator suffix appended to their name.
	Suffixed map[string]bool
	// Unsuffixed wheels are CUDA agnostic but still follow the nightly
	// release stream.
	Unsuffixed map[string]bool
	// Exclusive maps wheels that only exist for one CUDA major version to
	// that version. They are dropped for any other known major and never
	// receive a nightly floor.
	Exclusive map[string]int
}

// NewRegistry builds a Registry, normalizing every name.
func NewRegistry(suffixed, unsuffixed []string, exclusive map[string]int) *Registry {
	r := &Registry{
		Suffixed:   make(map[string]bool, len(suffixed)),
		Unsuffixed: make(map[string]bool, len(unsuffixed)),
		Exclusive:  make(map[string]int, len(exclusive)),
	}
	for _, n := range suffixed {
		r.Suffixed[pep508.Normalize(n)] = true
	}
	for _, n := range unsuffixed {
		r.Unsuffixed[pep508.Normalize(n)] = true
	}
	for n, major := range exclusive {
		r.Exclusive[pep508.Normalize(n)] = major
	}
	return r
}

// DefaultRegistry lists the RAPIDS wheels.
var DefaultRegistry = NewRegistry(
	[]string{
		"cubinlinker",
		"cucim",
		"cudf",
		"cugraph",
		"cugraph-dgl",
		"cugraph-equivariant",
		"cugraph-pyg",
		"cuml",
		"cuproj",
		"cuspatial",
		"cuxfilter",
		"dask-cudf",
		"distributed-ucxx",
		"nx-cugraph",
		"ptxcompiler",
		"pylibcugraph",
		"pylibcugraphops",
		"pylibraft",
		"pylibwholegraph",
		"pynvjitlink",
		"raft-dask",
		"rmm",
		"ucx-py",
		"ucxx",
	},
	[]string{
		"dask-cuda",
		"rapids-dask-dependency",
	},
	map[string]int{
		"cubinlinker": 11,
		"ptxcompiler": 11,
	},
)
