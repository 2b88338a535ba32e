// Package rewrite computes CUDA-variant, nightly-compatible requirement lists.
//
// Given the requirements declared by a project, [Rewrite] applies, in order:
//
//  1. Drop wheels that only exist for a different CUDA major version.
//  2. Add the nightly floor (>=0.0.0a0) to RAPIDS wheels, unless only release
//     dependencies are wanted or the wheel is major-exclusive.
//  3. Append the CUDA suffix (-cu12) to suffixed wheels, and rename cupy to
//     its cupy-cuda12x distribution.
//
// Lookups always use the name as declared, so the floor is decided before a
// suffix changes the name. Rewrite never touches the filesystem and always
// returns a new slice.
package rewrite

import (
	"fmt"

	"github.com/matzehuels/rapidsbuild/pkg/pep508"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
)

// NightlyFloor admits any pre-release build of a dependency.
var NightlyFloor = pep508.MustSpecifiers(">=0.0.0a0")

// cupy is not a RAPIDS wheel but is published per CUDA major version under
// its own naming scheme.
const cupy = "cupy"

// Options controls a rewrite.
type Options struct {
	// CUDA is the detected or declared toolkit version; nil when unknown.
	CUDA *probe.CUDAVersion
	// OnlyReleaseDeps suppresses the nightly floor.
	OnlyReleaseDeps bool
	// Registry classifies wheels; nil means DefaultRegistry.
	Registry *Registry
}

// Rewrite returns the rewritten form of reqs.
func Rewrite(reqs []string, opts Options) ([]string, error) {
	reg := opts.Registry
	if reg == nil {
		reg = DefaultRegistry
	}
	out := make([]string, 0, len(reqs))
	for _, raw := range reqs {
		req, err := pep508.Parse(raw)
		if err != nil {
			return nil, err
		}
		key := req.Key()

		major, exclusive := reg.Exclusive[key]
		if exclusive && opts.CUDA != nil && opts.CUDA.Major != major {
			continue
		}

		suffixed := reg.Suffixed[key]
		if (suffixed || reg.Unsuffixed[key]) && !opts.OnlyReleaseDeps && !exclusive {
			req.Specifiers = req.Specifiers.Union(NightlyFloor)
		}

		if opts.CUDA != nil {
			switch {
			case suffixed:
				req.Name += opts.CUDA.Suffix()
			case key == cupy:
				req.Name += fmt.Sprintf("-cuda%dx", opts.CUDA.Major)
			}
		}

		out = append(out, req.String())
	}
	return out, nil
}
