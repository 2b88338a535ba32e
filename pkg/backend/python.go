package backend

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/matzehuels/rapidsbuild/pkg/buildinfo"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
)

//go:embed hookrunner.py
var hookRunner string

// DefaultInterpreter is the Python executable used when none is configured.
const DefaultInterpreter = "python3"

// unavailableMessage explains how to fix a backend that cannot be imported.
const unavailableMessage = "Could not import build backend specified in pyproject.toml's " +
	"tool.rapids-build-backend table. Make sure you specified the right optional " +
	"dependency in your build-system.requires entry for rapids-build-backend."

// Python is a backend implemented by a Python module and invoked through a
// subprocess per call.
type Python struct {
	module string
	exec   Exec
	hooks  HookSet
}

// Exec describes how to start the interpreter.
type Exec struct {
	// Interpreter is the Python executable; DefaultInterpreter when empty.
	Interpreter string
	// Dir is the working directory, the project root.
	Dir string
	// Env is appended to the current environment.
	Env []string
	// Stdout and Stderr receive the backend's own output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer
}

// runnerResult is the JSON document written by the runner script.
type runnerResult struct {
	Hooks     []Hook          `json:"hooks"`
	Value     json.RawMessage `json:"value"`
	Error     string          `json:"error"`
	Message   string          `json:"message"`
	Traceback string          `json:"traceback"`
}

// LoadPython imports module in a probe subprocess and records which hooks it
// defines. A module that cannot be imported yields BACKEND_UNAVAILABLE.
func LoadPython(ctx context.Context, module string, x Exec) (*Python, error) {
	if x.Interpreter == "" {
		x.Interpreter = DefaultInterpreter
	}
	p := &Python{module: module, exec: x}
	res, err := p.run(ctx, "probe", nil)
	if err != nil {
		return nil, err
	}
	p.hooks = NewHookSet(res.Hooks...)
	return p, nil
}

// Name implements Backend.
func (p *Python) Name() string { return p.module }

// Hooks implements Backend.
func (p *Python) Hooks() HookSet { return p.hooks }

// Call implements Backend.
func (p *Python) Call(ctx context.Context, h Hook, req Request) (*Response, error) {
	if !p.hooks.Has(h) {
		return nil, errs.New(errs.ErrCodeUnsupported, "build backend %s does not define %s", p.module, h)
	}
	if req.Settings == nil {
		req.Settings = map[string]string{}
	}
	stdin, err := json.Marshal(req)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "encode %s request", h)
	}

	start := time.Now()
	res, err := p.run(ctx, string(h), stdin)
	observability.Dispatch().OnBackendCall(ctx, p.module, string(h), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	if h.IsRequires() {
		var requires []string
		if err := json.Unmarshal(res.Value, &requires); err != nil {
			return nil, errs.Wrap(errs.ErrCodeBackendFailed, err, "%s.%s returned an invalid requirement list", p.module, h)
		}
		return &Response{Requires: requires}, nil
	}
	var path string
	if err := json.Unmarshal(res.Value, &path); err != nil {
		return nil, errs.Wrap(errs.ErrCodeBackendFailed, err, "%s.%s returned a non-string result", p.module, h)
	}
	return &Response{Path: path}, nil
}

// run executes the runner script in mode and decodes its result file.
func (p *Python) run(ctx context.Context, mode string, stdin []byte) (*runnerResult, error) {
	tmp, err := os.MkdirTemp("", "rapidsbuild-")
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "create temp dir")
	}
	defer os.RemoveAll(tmp)
	resultPath := filepath.Join(tmp, "result.json")

	cmd := exec.CommandContext(ctx, p.exec.Interpreter, "-c", hookRunner, mode, p.module, resultPath)
	cmd.Dir = p.exec.Dir
	cmd.Env = append(os.Environ(), "RAPIDSBUILD_VERSION="+buildinfo.Short())
	cmd.Env = append(cmd.Env, p.exec.Env...)
	cmd.Stdin = bytes.NewReader(stdin)
	cmd.Stdout = p.exec.Stdout
	cmd.Stderr = p.exec.Stderr
	runErr := cmd.Run()

	data, readErr := os.ReadFile(resultPath)
	if readErr != nil {
		if runErr == nil {
			runErr = readErr
		}
		var execErr *exec.Error
		if errors.As(runErr, &execErr) {
			return nil, errs.Wrap(errs.ErrCodeBackendUnavailable, execErr, "cannot run %s", p.exec.Interpreter)
		}
		return nil, errs.Wrap(errs.ErrCodeBackendFailed, runErr, "%s %s produced no result", p.module, mode)
	}

	var res runnerResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, errs.Wrap(errs.ErrCodeInternal, err, "decode %s result", mode)
	}
	switch res.Error {
	case "":
		return &res, nil
	case "import":
		return nil, errs.Wrap(errs.ErrCodeBackendUnavailable, errors.New(res.Message), unavailableMessage)
	default:
		msg := res.Message
		if tb := strings.TrimSpace(res.Traceback); tb != "" {
			msg = tb
		}
		return nil, errs.Wrap(errs.ErrCodeBackendFailed, errors.New(msg), "%s.%s failed", p.module, mode)
	}
}

func unavailable(module string) error {
	return errs.Wrap(errs.ErrCodeBackendUnavailable, errors.New("no module named "+module), unavailableMessage)
}
