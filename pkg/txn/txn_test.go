package txn

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/go-cmp/cmp"

	"github.com/matzehuels/rapidsbuild/pkg/config"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
	"github.com/matzehuels/rapidsbuild/pkg/pyproject"
)

// fakeRunner answers LookPath and Output from fixed tables.
type fakeRunner struct {
	outputs map[string]string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if _, ok := f.outputs[name]; ok {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("not found")
}

func (f *fakeRunner) Output(_ context.Context, _, name string, _ ...string) ([]byte, error) {
	out, ok := f.outputs[name]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(out), nil
}

func nvcc(version string) string {
	return "nvcc: NVIDIA (R) Cuda compiler driver\nCopyright (c) 2005-2023 NVIDIA Corporation\nBuilt on Tue_Aug_15_22:02:13_PDT_2023\nCuda compilation tools, release " + version + ", V" + version + ".89\n"
}

const manifest = `[project]
name = "demo"  # keep me
dependencies = ["rmm", "numpy>=1.23"]

[project.optional-dependencies]
test = [
    "pytest",
    "dask-cuda",
]

[tool.rapids-build-backend]
build-backend = "setuptools.build_meta"
requires = ["cupy>=12"]
`

func setup(t *testing.T, src string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, pyproject.Filename), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func newManifest(t *testing.T, dir string, outputs map[string]string, env map[string]string, logger *log.Logger) *Manifest {
	t.Helper()
	cfg, err := config.Load(dir, nil, config.WithLookupEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}))
	if err != nil {
		t.Fatal(err)
	}
	return NewManifest(cfg, probe.New(dir, &fakeRunner{outputs: outputs}, logger), logger)
}

func quietLogger() *log.Logger { return log.New(&bytes.Buffer{}) }

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestManifestRewritesAndRestores(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("11.8")}, nil, quietLogger())
	path := filepath.Join(dir, pyproject.Filename)

	var during string
	err := m.Run(context.Background(), func(e *Edit) error {
		if e.OriginalName != "demo" || e.Name != "demo-cu11" {
			t.Errorf("names = %q -> %q", e.OriginalName, e.Name)
		}
		during = readFile(t, path)
		if _, err := os.Stat(BackupPath(path)); err != nil {
			t.Errorf("backup missing during hook: %v", err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := `[project]
name = "demo-cu11"  # keep me
dependencies = ["rmm-cu11>=0.0.0a0", "numpy>=1.23"]

[project.optional-dependencies]
test = [
    "pytest",
    "dask-cuda>=0.0.0a0",
]

[tool.rapids-build-backend]
build-backend = "setuptools.build_meta"
requires = ["cupy-cuda11x>=12"]
`
	if diff := cmp.Diff(want, during); diff != "" {
		t.Errorf("rewritten manifest (-want +got):\n%s", diff)
	}
	if got := readFile(t, path); got != manifest {
		t.Errorf("manifest not restored byte-for-byte:\n%s", got)
	}
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Errorf("backup left behind: %v", err)
	}
}

func TestManifestInlineOptionalDependencies(t *testing.T) {
	src := `[project]
name = "demo"
dependencies = []
optional-dependencies = { test = ["rmm"], docs = ["sphinx"] }

[tool.rapids-build-backend]
build-backend = "setuptools.build_meta"
requires = []
`
	dir := setup(t, src)
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("11.8")}, nil, quietLogger())

	edit, err := m.Prepare(context.Background())
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	want := strings.Replace(src, `{ test = ["rmm"], docs`, `{ test = ["rmm-cu11>=0.0.0a0"], docs`, 1)
	want = strings.Replace(want, `name = "demo"`, `name = "demo-cu11"`, 1)
	if diff := cmp.Diff(want, string(edit.Rewritten)); diff != "" {
		t.Errorf("rewritten manifest (-want +got):\n%s", diff)
	}
}

func TestManifestReleaseOnly(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("11.8")}, map[string]string{"RAPIDS_ONLY_RELEASE_DEPS": "true"}, quietLogger())

	edit, err := m.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(edit.Rewritten), `dependencies = ["rmm-cu11", "numpy>=1.23"]`) {
		t.Errorf("release-only rewrite:\n%s", edit.Rewritten)
	}
}

func TestManifestRestoresOnHookError(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("12.4")}, nil, quietLogger())
	boom := errors.New("backend exploded")

	err := m.Run(context.Background(), func(*Edit) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected hook error, got %v", err)
	}
	if got := readFile(t, filepath.Join(dir, pyproject.Filename)); got != manifest {
		t.Error("manifest not restored after hook error")
	}
}

func TestManifestRequiredCUDAFailsBeforeTouchingFiles(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, nil, nil, quietLogger())

	called := false
	err := m.Run(context.Background(), func(*Edit) error { called = true; return nil })
	if !errs.Is(err, errs.ErrCodeToolchain) {
		t.Fatalf("expected TOOLCHAIN, got %v", err)
	}
	if called {
		t.Error("hook ran despite probe failure")
	}
	path := filepath.Join(dir, pyproject.Filename)
	if _, err := os.Stat(BackupPath(path)); !os.IsNotExist(err) {
		t.Error("backup created before probe failure")
	}
}

func TestManifestUnknownCUDA(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, nil, map[string]string{"RAPIDS_REQUIRE_CUDA": "false"}, quietLogger())

	edit, err := m.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if edit.Name != "demo" || edit.CUDA != nil {
		t.Errorf("got name %q cuda %v", edit.Name, edit.CUDA)
	}
	if !strings.Contains(string(edit.Rewritten), `dependencies = ["rmm>=0.0.0a0", "numpy>=1.23"]`) {
		t.Errorf("unexpected rewrite:\n%s", edit.Rewritten)
	}
}

func TestManifestDisableCUDASkipsProbe(t *testing.T) {
	dir := setup(t, manifest)
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("12.4")}, map[string]string{"RAPIDS_DISABLE_CUDA": "true"}, quietLogger())

	edit, err := m.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if edit.CUDA != nil || edit.Name != "demo" {
		t.Errorf("disable-cuda still suffixed: %q", edit.Name)
	}
}

func TestManifestMissingDependencyFileWarns(t *testing.T) {
	dir := setup(t, manifest)
	var buf bytes.Buffer
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("12.4")}, nil, log.New(&buf))

	if _, err := m.Prepare(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := "File not found: 'dependencies.yaml'. If you want rapids-build-backend to consider dependencies from a dependencies file, supply an existing file via config setting 'dependencies-file'."
	if !strings.Contains(buf.String(), want) {
		t.Errorf("warning not logged, got:\n%s", buf.String())
	}
}

func TestManifestGeneratesFromDependencyFile(t *testing.T) {
	src := `[project]
name = "demo"
dependencies = []

[tool.rapids-build-backend]
build-backend = "setuptools.build_meta"
requires = []
`
	deps := `
files:
  py_run:
    output: pyproject
    extras: {table: project}
    includes: [run]
  py_rbb:
    output: pyproject
    extras: {table: tool.rapids-build-backend}
    includes: [build]
dependencies:
  run:
    specific:
      - output_types: pyproject
        matrices:
          - matrix: {cuda: "12.*"}
            packages: [rmm, numpy]
          - matrix:
            packages: [numpy]
  build:
    common:
      - output_types: pyproject
        packages: [cmake>=3.26]
`
	dir := setup(t, src)
	if err := os.WriteFile(filepath.Join(dir, "dependencies.yaml"), []byte(deps), 0o644); err != nil {
		t.Fatal(err)
	}
	m := newManifest(t, dir, map[string]string{"nvcc": nvcc("12.4")}, nil, quietLogger())

	edit, err := m.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	comment := "# This list was generated by `rapids-dependency-file-generator`. To make changes, edit dependencies.yaml and run `rapids-dependency-file-generator`."
	want := `[project]
name = "demo-cu12"
dependencies = [
    "numpy",
    "rmm-cu12>=0.0.0a0",
] ` + comment + `

[tool.rapids-build-backend]
build-backend = "setuptools.build_meta"
requires = [
    "cmake>=3.26",
] ` + comment + `
`
	if diff := cmp.Diff(want, string(edit.Rewritten)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"py_run", "py_rbb"}, edit.Generated); diff != "" {
		t.Errorf("generated keys (-want +got):\n%s", diff)
	}

	// The explicit matrix entry wins over the detected CUDA version.
	m = newManifest(t, dir, map[string]string{"nvcc": nvcc("12.4")}, map[string]string{"RAPIDS_MATRIX_ENTRY": "cuda=11.8"}, quietLogger())
	edit, err = m.Prepare(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(edit.Rewritten), "rmm") {
		t.Errorf("matrix entry ignored:\n%s", edit.Rewritten)
	}
}

func TestMarkersRaw(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "demo"), 0o755); err != nil {
		t.Fatal(err)
	}
	existing := filepath.Join(dir, "demo", "EXISTING")
	if err := os.WriteFile(existing, []byte("old contents\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	p := probe.New(dir, &fakeRunner{outputs: map[string]string{"git": "abc123\n"}}, quietLogger())
	m := NewMarkers(dir, []string{"demo/GIT_COMMIT", "demo/EXISTING"}, config.CommitFileRaw, p, quietLogger())

	err := m.Run(context.Background(), func() error {
		for _, name := range []string{"GIT_COMMIT", "EXISTING"} {
			if got := readFile(t, filepath.Join(dir, "demo", name)); got != "abc123\n" {
				t.Errorf("%s during hook = %q", name, got)
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "demo", "GIT_COMMIT")); !os.IsNotExist(err) {
		t.Error("generated marker not removed")
	}
	if got := readFile(t, existing); got != "old contents\n" {
		t.Errorf("existing marker not restored: %q", got)
	}
	if _, err := os.Stat(BackupPath(existing)); !os.IsNotExist(err) {
		t.Error("marker backup left behind")
	}
}

func TestMarkersRepeatedPathRestoresOriginal(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "demo"), 0o755); err != nil {
		t.Fatal(err)
	}
	tracked := filepath.Join(dir, "demo", "GIT_COMMIT")
	if err := os.WriteFile(tracked, []byte("checked in\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := probe.New(dir, &fakeRunner{outputs: map[string]string{"git": "abc123\n"}}, quietLogger())
	m := NewMarkers(dir, []string{"demo/GIT_COMMIT", "./demo/GIT_COMMIT"}, config.CommitFileRaw, p, quietLogger())

	err := m.Run(context.Background(), func() error {
		if got := readFile(t, tracked); got != "abc123\n" {
			t.Errorf("marker during hook = %q", got)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := readFile(t, tracked); got != "checked in\n" {
		t.Errorf("tracked marker not restored: %q", got)
	}
	if _, err := os.Stat(BackupPath(tracked)); !os.IsNotExist(err) {
		t.Error("marker backup left behind")
	}
}

func TestMarkersCleanupIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := probe.New(dir, &fakeRunner{outputs: map[string]string{"git": "abc123\n"}}, quietLogger())
	m := NewMarkers(dir, []string{"GIT_COMMIT"}, config.CommitFileRaw, p, quietLogger())

	err := m.Run(context.Background(), func() error {
		// The hook removing the marker itself must not break cleanup.
		return os.Remove(filepath.Join(dir, "GIT_COMMIT"))
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func TestMarkersNoRevision(t *testing.T) {
	dir := t.TempDir()
	p := probe.New(dir, &fakeRunner{}, quietLogger())
	m := NewMarkers(dir, []string{"GIT_COMMIT"}, config.CommitFileRaw, p, quietLogger())

	err := m.Run(context.Background(), func() error {
		if _, err := os.Stat(filepath.Join(dir, "GIT_COMMIT")); !os.IsNotExist(err) {
			t.Error("marker written without a revision")
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestRenderPython(t *testing.T) {
	tests := []struct {
		name     string
		existing []byte
		want     string
	}{
		{"new file", nil, "__git_commit__ = \"abc\"\n"},
		{"replace", []byte("__version__ = \"1.0\"\n__git_commit__ = \"\"\n"), "__version__ = \"1.0\"\n__git_commit__ = \"abc\"\n"},
		{"append", []byte("__version__ = \"1.0\""), "__version__ = \"1.0\"\n__git_commit__ = \"abc\"\n"},
		{"indented not replaced", []byte("if x:\n    __git_commit__ = \"\"\n"), "if x:\n    __git_commit__ = \"\"\n__git_commit__ = \"abc\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(Render(config.CommitFilePython, "abc", tt.existing)); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
	if got := string(Render(config.CommitFileRaw, "abc", []byte("x"))); got != "abc\n" {
		t.Errorf("raw: got %q", got)
	}
}

func TestDerivedCommitFiles(t *testing.T) {
	dir := t.TempDir()
	if got := DerivedCommitFiles(dir, "my-pkg"); got != nil {
		t.Errorf("no package dir: got %v", got)
	}
	if err := os.Mkdir(filepath.Join(dir, "my_pkg"), 0o755); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"my_pkg/GIT_COMMIT"}, DerivedCommitFiles(dir, "my-pkg")); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}

func TestBackupPath(t *testing.T) {
	if got, want := BackupPath(filepath.Join("a", "pyproject.toml")), filepath.Join("a", ".pyproject.toml.rapids-build-backend.bak"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
