package backend

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

func TestHookClassification(t *testing.T) {
	tests := []struct {
		hook     Hook
		requires bool
		metadata bool
		build    bool
		editable bool
		target   string
	}{
		{GetRequiresForBuildWheel, true, false, false, false, "wheel"},
		{GetRequiresForBuildEditable, true, false, false, true, "editable"},
		{BuildSdist, false, false, true, false, "sdist"},
		{BuildEditable, false, false, true, true, "editable"},
		{PrepareMetadataForBuildWheel, false, true, false, false, "wheel"},
	}
	for _, tt := range tests {
		if got := tt.hook.IsRequires(); got != tt.requires {
			t.Errorf("%s.IsRequires() = %v", tt.hook, got)
		}
		if got := tt.hook.IsMetadata(); got != tt.metadata {
			t.Errorf("%s.IsMetadata() = %v", tt.hook, got)
		}
		if got := tt.hook.IsBuild(); got != tt.build {
			t.Errorf("%s.IsBuild() = %v", tt.hook, got)
		}
		if got := tt.hook.IsEditable(); got != tt.editable {
			t.Errorf("%s.IsEditable() = %v", tt.hook, got)
		}
		if got := tt.hook.Target(); got != tt.target {
			t.Errorf("%s.Target() = %q", tt.hook, got)
		}
	}
}

func TestParseHook(t *testing.T) {
	if h, ok := ParseHook("build_wheel"); !ok || h != BuildWheel {
		t.Errorf("ParseHook(build_wheel) = %q, %v", h, ok)
	}
	if _, ok := ParseHook("build_everything"); ok {
		t.Error("unknown hook accepted")
	}
}

func TestHookSetList(t *testing.T) {
	s := NewHookSet(BuildSdist, PrepareMetadataForBuildWheel, BuildWheel)
	want := []Hook{BuildWheel, BuildSdist, PrepareMetadataForBuildWheel}
	if diff := cmp.Diff(want, s.List()); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

type stubBackend struct{ name string }

func (s stubBackend) Name() string   { return s.name }
func (s stubBackend) Hooks() HookSet { return NewHookSet(BuildWheel) }
func (s stubBackend) Call(context.Context, Hook, Request) (*Response, error) {
	return &Response{Path: "x.whl"}, nil
}

func TestLoaderCaches(t *testing.T) {
	loads := 0
	l := &Loader{
		load: func(_ context.Context, module string, _ Exec) (Backend, error) {
			loads++
			return stubBackend{name: module}, nil
		},
		cache: make(map[string]Backend),
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Load(ctx, "flit_core.buildapi"); err != nil {
			t.Fatal(err)
		}
	}
	if loads != 1 {
		t.Errorf("backend loaded %d times, want 1", loads)
	}
}

func TestStaticLoader(t *testing.T) {
	l := Static(stubBackend{name: "setuptools.build_meta"})
	if _, err := l.Load(context.Background(), "setuptools.build_meta"); err != nil {
		t.Fatal(err)
	}
	_, err := l.Load(context.Background(), "missing.backend")
	if !errs.Is(err, errs.ErrCodeBackendUnavailable) {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
	if msg := errs.UserMessage(err); !strings.HasPrefix(msg, "Could not import build backend") {
		t.Errorf("unexpected message %q", msg)
	}
}

const fakeBackend = `
import os

def get_requires_for_build_wheel(config_settings=None):
    return ["wheel-dep", "setting=" + config_settings.get("k", "")]

def build_wheel(wheel_directory, config_settings=None, metadata_directory=None):
    name = "fake-1.0-py3-none-any.whl"
    open(os.path.join(wheel_directory, name), "w").close()
    return name

def build_sdist(sdist_directory, config_settings=None):
    raise RuntimeError("sdist broken")
`

func requirePython(t *testing.T) string {
	t.Helper()
	py, err := exec.LookPath(DefaultInterpreter)
	if err != nil {
		t.Skip("python3 not available")
	}
	return py
}

func TestPythonBackend(t *testing.T) {
	py := requirePython(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "fakebackend.py"), []byte(fakeBackend), 0o644); err != nil {
		t.Fatal(err)
	}
	x := Exec{Interpreter: py, Dir: dir, Env: []string{"PYTHONPATH=" + dir}}
	ctx := context.Background()

	b, err := LoadPython(ctx, "fakebackend", x)
	if err != nil {
		t.Fatalf("LoadPython: %v", err)
	}
	if diff := cmp.Diff([]Hook{GetRequiresForBuildWheel, BuildWheel, BuildSdist}, b.Hooks().List()); diff != "" {
		t.Errorf("hooks (-want +got):\n%s", diff)
	}

	resp, err := b.Call(ctx, GetRequiresForBuildWheel, Request{Settings: map[string]string{"k": "v"}})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"wheel-dep", "setting=v"}, resp.Requires); diff != "" {
		t.Errorf("requires (-want +got):\n%s", diff)
	}

	out := t.TempDir()
	resp, err = b.Call(ctx, BuildWheel, Request{Directory: out})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Path != "fake-1.0-py3-none-any.whl" {
		t.Errorf("path = %q", resp.Path)
	}
	if _, err := os.Stat(filepath.Join(out, resp.Path)); err != nil {
		t.Errorf("wheel not written: %v", err)
	}

	if _, err := b.Call(ctx, BuildSdist, Request{Directory: out}); !errs.Is(err, errs.ErrCodeBackendFailed) {
		t.Errorf("expected BACKEND_FAILED, got %v", err)
	}
	if _, err := b.Call(ctx, BuildEditable, Request{Directory: out}); !errs.Is(err, errs.ErrCodeUnsupported) {
		t.Errorf("expected UNSUPPORTED, got %v", err)
	}
}

func TestPythonBackendImportError(t *testing.T) {
	py := requirePython(t)
	_, err := LoadPython(context.Background(), "definitely_not_a_backend_module", Exec{Interpreter: py, Dir: t.TempDir()})
	if !errs.Is(err, errs.ErrCodeBackendUnavailable) {
		t.Fatalf("expected BACKEND_UNAVAILABLE, got %v", err)
	}
}
