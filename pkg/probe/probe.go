// Package probe discovers facts about the local build machine: the CUDA
// toolkit version reported by nvcc and the current git revision.
//
// Both answers cannot change during a build, so a [Probe] runs each query at
// most once and replays the result afterwards. Commands are executed through
// a [Runner], which tests replace with a fake.
package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	goversion "github.com/hashicorp/go-version"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
)

// Runner executes external commands.
type Runner interface {
	// LookPath reports the absolute path of an executable, or an error when
	// it is not on PATH.
	LookPath(name string) (string, error)
	// Output runs name with args in dir and returns its standard output.
	Output(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) LookPath(name string) (string, error) { return exec.LookPath(name) }

func (ExecRunner) Output(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// CUDAVersion is the toolkit version reported by nvcc.
type CUDAVersion struct {
	Major int
	Minor int
}

// String returns "major.minor", the form used as a dependency matrix value.
func (v CUDAVersion) String() string { return fmt.Sprintf("%d.%d", v.Major, v.Minor) }

// Suffix returns the wheel name suffix for this version, e.g. "-cu12".
func (v CUDAVersion) Suffix() string { return fmt.Sprintf("-cu%d", v.Major) }

// Probe answers toolchain and revision queries for one project directory.
// The zero value is not usable; construct with New.
type Probe struct {
	dir    string
	runner Runner
	logger *log.Logger

	cudaOnce sync.Once
	cuda     *CUDAVersion
	cudaErr  error

	revOnce sync.Once
	rev     string
}

// New returns a Probe rooted at dir. A nil runner uses ExecRunner and a nil
// logger uses log.Default().
func New(dir string, runner Runner, logger *log.Logger) *Probe {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Probe{dir: dir, runner: runner, logger: logger}
}

// releaseRE matches the version line of `nvcc --version`, e.g.
// "Cuda compilation tools, release 12.4, V12.4.131".
var releaseRE = regexp.MustCompile(`release (\d+\.\d+)`)

// CUDAVersion returns the local CUDA toolkit version.
//
// When nvcc is missing or its output cannot be parsed the result is nil, or a
// TOOLCHAIN error if require is set. The underlying query runs once.
func (p *Probe) CUDAVersion(ctx context.Context, require bool) (*CUDAVersion, error) {
	p.cudaOnce.Do(func() {
		start := time.Now()
		p.cuda, p.cudaErr = p.queryCUDA(ctx)
		observability.Probe().OnProbe(ctx, "nvcc", time.Since(start), p.cudaErr)
		if p.cudaErr != nil {
			p.logger.Debug("cuda probe failed", "err", p.cudaErr)
		} else {
			p.logger.Debug("cuda probe", "version", p.cuda.String())
		}
	})
	if p.cudaErr != nil {
		if require {
			return nil, p.cudaErr
		}
		return nil, nil
	}
	v := *p.cuda
	return &v, nil
}

func (p *Probe) queryCUDA(ctx context.Context) (*CUDAVersion, error) {
	if _, err := p.runner.LookPath("nvcc"); err != nil {
		return nil, errs.Wrap(errs.ErrCodeToolchain, err, "could not determine the CUDA version; make sure nvcc is in your PATH")
	}
	out, err := p.runner.Output(ctx, p.dir, "nvcc", "--version")
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeToolchain, err, "failed to get version from nvcc")
	}
	return ParseNVCCOutput(out)
}

// ParseNVCCOutput extracts the toolkit version from `nvcc --version` output.
func ParseNVCCOutput(out []byte) (*CUDAVersion, error) {
	m := releaseRE.FindSubmatch(out)
	if m == nil {
		return nil, errs.New(errs.ErrCodeToolchain, "failed to parse CUDA version from nvcc output")
	}
	v, err := goversion.NewVersion(string(m[1]))
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeToolchain, err, "failed to parse CUDA version from nvcc output")
	}
	seg := v.Segments()
	return &CUDAVersion{Major: seg[0], Minor: seg[1]}, nil
}

// Suffix returns the accelerator suffix ("-cu12"), or "" when no version is
// available and require is false.
func (p *Probe) Suffix(ctx context.Context, require bool) (string, error) {
	v, err := p.CUDAVersion(ctx, require)
	if err != nil || v == nil {
		return "", err
	}
	return v.Suffix(), nil
}

// Revision returns the current git commit of the project directory. It
// reports false when git is unavailable or the query fails; it never errors.
func (p *Probe) Revision(ctx context.Context) (string, bool) {
	p.revOnce.Do(func() {
		if _, err := p.runner.LookPath("git"); err != nil {
			p.logger.Debug("git not found, skipping commit files")
			return
		}
		start := time.Now()
		out, err := p.runner.Output(ctx, p.dir, "git", "rev-parse", "HEAD")
		observability.Probe().OnProbe(ctx, "git", time.Since(start), err)
		if err != nil {
			p.logger.Debug("git rev-parse failed", "err", err)
			return
		}
		p.rev = strings.TrimSpace(string(out))
	})
	return p.rev, p.rev != ""
}
