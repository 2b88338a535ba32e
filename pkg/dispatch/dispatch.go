// Package dispatch implements the build-backend hooks rapidsbuild exposes to a
// Python build frontend.
//
// Every call runs the same sequence. The configuration is resolved from
// pyproject.toml, the environment and the frontend's config settings. The
// manifest is then rewritten for the detected CUDA version and, for
// requirement and build hooks, the git commit markers are written. The wrapped
// backend is called last. The files are restored when the call returns,
// whether it succeeded or not.
package dispatch

import (
	"context"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/rapidsbuild/pkg/backend"
	"github.com/matzehuels/rapidsbuild/pkg/config"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
	"github.com/matzehuels/rapidsbuild/pkg/rewrite"
	"github.com/matzehuels/rapidsbuild/pkg/txn"
)

// SetuptoolsBackend is the backend whose requirement hooks are answered
// without calling it.
const SetuptoolsBackend = "setuptools.build_meta"

// setuptoolsRequires is added to the wheel and editable requirements of
// setuptools projects in place of the backend's own answer.
var setuptoolsRequires = []string{"wheel"}

// Loader resolves a backend module path to a loaded backend.
type Loader interface {
	Load(ctx context.Context, module string) (backend.Backend, error)
}

// Dispatcher runs hooks for one project directory.
type Dispatcher struct {
	// Dir is the project root holding pyproject.toml.
	Dir string
	// Probe answers CUDA and git queries. Nil builds one with ExecRunner.
	Probe *probe.Probe
	// Loader loads the wrapped backend.
	Loader Loader
	// Logger receives diagnostics; nil uses log.Default().
	Logger *log.Logger
	// LookupEnv replaces os.LookupEnv for option overrides.
	LookupEnv func(string) (string, bool)
	// Registry overrides the rewrite registry; nil uses the default.
	Registry *rewrite.Registry

	defaults sync.Once
	exposed  struct {
		once  sync.Once
		hooks backend.HookSet
		err   error
	}
}

func (d *Dispatcher) setup() {
	d.defaults.Do(func() {
		if d.Logger == nil {
			d.Logger = log.Default()
		}
		if d.Probe == nil {
			d.Probe = probe.New(d.Dir, nil, d.Logger)
		}
		if d.LookupEnv == nil {
			d.LookupEnv = os.LookupEnv
		}
	})
}

func (d *Dispatcher) loadConfig(settings config.Settings) (*config.Config, error) {
	return config.Load(d.Dir, settings, config.WithLookupEnv(d.LookupEnv))
}

func (d *Dispatcher) loadBackend(ctx context.Context, cfg *config.Config) (backend.Backend, error) {
	module, err := cfg.BuildBackend()
	if err != nil {
		return nil, err
	}
	return d.Loader.Load(ctx, module)
}

// Exposed returns the hooks this project offers. The requirement and build
// hooks for wheels and sdists are always present; the editable and metadata
// hooks are present only when the wrapped backend defines them. The answer is
// computed once, from the manifest without config settings.
func (d *Dispatcher) Exposed(ctx context.Context) (backend.HookSet, error) {
	d.setup()
	d.exposed.once.Do(func() {
		cfg, err := d.loadConfig(nil)
		if err != nil {
			d.exposed.err = err
			return
		}
		b, err := d.loadBackend(ctx, cfg)
		if err != nil {
			d.exposed.err = err
			return
		}
		set := backend.HookSet{}
		for _, h := range backend.Hooks {
			// The wheel and sdist requirement hooks are answered from the
			// manifest even when the backend has none.
			always := h.Mandatory() || (h.IsRequires() && !h.IsEditable())
			if always || b.Hooks().Has(h) {
				set[h] = true
			}
		}
		d.exposed.hooks = set
	})
	return d.exposed.hooks, d.exposed.err
}

// Call runs hook h. req.Settings holds the frontend's config settings;
// the rapidsai.* entries configure rapidsbuild and are removed before the
// backend sees them.
func (d *Dispatcher) Call(ctx context.Context, h backend.Hook, req backend.Request) (_ *backend.Response, err error) {
	d.setup()
	cfg, err := d.loadConfig(config.Settings(req.Settings))
	if err != nil {
		return nil, err
	}
	module, err := cfg.BuildBackend()
	if err != nil {
		return nil, err
	}
	// The guard runs ahead of any subprocess, the CUDA probe included.
	if h.IsRequires() && module == SetuptoolsBackend {
		if err := checkSetupPyFile(d.Dir); err != nil {
			return nil, err
		}
	}

	exposed, err := d.Exposed(ctx)
	if err != nil {
		return nil, err
	}
	if !exposed.Has(h) {
		return nil, errs.New(errs.ErrCodeUnsupported, "hook %s is not available for build backend %s", h, module)
	}

	start := time.Now()
	observability.Dispatch().OnHookStart(ctx, string(h))
	defer func() {
		observability.Dispatch().OnHookComplete(ctx, string(h), time.Since(start), err)
	}()

	req.Settings = cfg.Settings().ForBackend()
	manifest := txn.NewManifest(cfg, d.Probe, d.Logger)
	if d.Registry != nil {
		manifest.WithRegistry(d.Registry)
	}
	var out *backend.Response
	call := func() error {
		var cerr error
		if h.IsRequires() {
			out, cerr = d.requires(ctx, cfg, h, req)
		} else {
			out, cerr = d.delegate(ctx, cfg, h, req)
		}
		return cerr
	}
	err = manifest.Run(ctx, func(edit *txn.Edit) error {
		if h.IsMetadata() {
			return call()
		}
		markers, merr := d.markers(cfg, edit)
		if merr != nil {
			return merr
		}
		return markers.Run(ctx, call)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) markers(cfg *config.Config, edit *txn.Edit) (*txn.Markers, error) {
	paths, err := cfg.CommitFiles(txn.DerivedCommitFiles(d.Dir, edit.OriginalName)...)
	if err != nil {
		return nil, err
	}
	format, err := cfg.CommitFileType()
	if err != nil {
		return nil, err
	}
	return txn.NewMarkers(d.Dir, paths, format, d.Probe, d.Logger), nil
}

// requires answers a get_requires_for_build_* hook. The configuration is read
// again, with the same settings as base, so the rewritten requires list is used.
func (d *Dispatcher) requires(ctx context.Context, base *config.Config, h backend.Hook, req backend.Request) (*backend.Response, error) {
	cfg, err := d.loadConfig(base.Settings())
	if err != nil {
		return nil, err
	}
	requires, err := cfg.Requires()
	if err != nil {
		return nil, err
	}
	requires = slices.Clone(requires)

	module, err := cfg.BuildBackend()
	if err != nil {
		return nil, err
	}
	if module == SetuptoolsBackend {
		if h != backend.GetRequiresForBuildSdist {
			requires = append(requires, setuptoolsRequires...)
		}
		return &backend.Response{Requires: requires}, nil
	}

	b, err := d.loadBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if b.Hooks().Has(h) {
		resp, err := b.Call(ctx, h, req)
		if err != nil {
			return nil, err
		}
		requires = append(requires, resp.Requires...)
	}
	d.Logger.Debug("build requirements", "hook", h, "count", len(requires))
	return &backend.Response{Requires: requires}, nil
}

// delegate forwards a build or metadata hook to the wrapped backend.
func (d *Dispatcher) delegate(ctx context.Context, cfg *config.Config, h backend.Hook, req backend.Request) (*backend.Response, error) {
	b, err := d.loadBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return b.Call(ctx, h, req)
}
