// Package txn rewrites project files for the duration of one build hook and
// restores them afterwards.
//
// [Manifest] rewrites pyproject.toml: the project name gets the CUDA suffix,
// RAPIDS dependencies are rewritten, and lists generated from
// dependencies.yaml are refreshed. [Markers] writes the current git commit
// into marker files. Both keep a sibling backup while the hook runs and move
// it back on every exit path, so the files end byte-identical to how they
// started.
//
// Nest them manifest first:
//
//	err := manifest.Run(ctx, func(*txn.Edit) error {
//	    return markers.Run(ctx, func() error {
//	        return callBackend()
//	    })
//	})
package txn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/rapidsbuild/pkg/config"
	"github.com/matzehuels/rapidsbuild/pkg/depfile"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
	"github.com/matzehuels/rapidsbuild/pkg/pyproject"
	"github.com/matzehuels/rapidsbuild/pkg/rewrite"
)

// BackupSuffix is appended to ".<name>" to form a backup file name.
const BackupSuffix = ".rapids-build-backend.bak"

// BackupPath returns the backup location for path.
func BackupPath(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+BackupSuffix)
}

// Edit describes a manifest rewrite in progress.
type Edit struct {
	OriginalName string
	Name         string
	// CUDA is the version used for the rewrite; nil when unknown or disabled.
	CUDA *probe.CUDAVersion
	// Original and Rewritten hold the manifest bytes before and after.
	Original  []byte
	Rewritten []byte
	// Generated lists the dependencies.yaml file keys that were applied.
	Generated []string
}

// Manifest rewrites pyproject.toml around a hook call.
type Manifest struct {
	cfg      *config.Config
	probe    *probe.Probe
	logger   *log.Logger
	registry *rewrite.Registry
}

// NewManifest returns a manifest transaction for cfg's project. A nil logger
// uses log.Default().
func NewManifest(cfg *config.Config, p *probe.Probe, logger *log.Logger) *Manifest {
	if logger == nil {
		logger = log.Default()
	}
	return &Manifest{cfg: cfg, probe: p, logger: logger, registry: rewrite.DefaultRegistry}
}

// WithRegistry replaces the wheel registry used for rewriting.
func (m *Manifest) WithRegistry(r *rewrite.Registry) *Manifest {
	m.registry = r
	return m
}

// Path returns the manifest path.
func (m *Manifest) Path() string { return filepath.Join(m.cfg.Dir(), pyproject.Filename) }

// CUDA resolves the CUDA version for this project. A probe failure is
// returned only when require-cuda is set.
func (m *Manifest) CUDA(ctx context.Context) (*probe.CUDAVersion, error) {
	disabled, err := m.cfg.DisableCUDA()
	if err != nil || disabled {
		return nil, err
	}
	require, err := m.cfg.RequireCUDA()
	if err != nil {
		return nil, err
	}
	return m.probe.CUDAVersion(ctx, require)
}

// Prepare computes the rewritten manifest without touching the file.
func (m *Manifest) Prepare(ctx context.Context) (*Edit, error) {
	cuda, err := m.CUDA(ctx)
	if err != nil {
		return nil, err
	}
	onlyRelease, err := m.cfg.OnlyReleaseDeps()
	if err != nil {
		return nil, err
	}

	doc, err := pyproject.Load(m.Path())
	if err != nil {
		return nil, err
	}
	edit := &Edit{CUDA: cuda, Original: doc.Bytes()}

	if edit.Generated, err = m.generate(doc, cuda); err != nil {
		return nil, err
	}

	if edit.OriginalName, err = doc.ProjectName(); err != nil {
		return nil, err
	}
	edit.Name = edit.OriginalName
	if cuda != nil {
		edit.Name += cuda.Suffix()
		if err := doc.SetString([]string{"project", "name"}, edit.Name); err != nil {
			return nil, err
		}
	}

	opts := rewrite.Options{CUDA: cuda, OnlyReleaseDeps: onlyRelease, Registry: m.registry}
	lists := [][]string{{"project", "dependencies"}}
	for _, group := range doc.OptionalDependencyGroups() {
		lists = append(lists, []string{"project", "optional-dependencies", group})
	}
	lists = append(lists, append(slices.Clone(config.Table), string(config.Requires)))
	for _, path := range lists {
		if err := rewriteList(doc, path, opts); err != nil {
			return nil, err
		}
	}

	edit.Rewritten = doc.Bytes()
	return edit, nil
}

func rewriteList(doc *pyproject.Document, path []string, opts rewrite.Options) error {
	reqs, ok, err := doc.Strings(path...)
	if err != nil || !ok {
		return err
	}
	out, err := rewrite.Rewrite(reqs, opts)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInvalidRequirement, err, "%s", strings.Join(path, "."))
	}
	if slices.Equal(reqs, out) {
		return nil
	}
	return doc.SetArray(path, out, "")
}

// generate refreshes the lists produced by dependencies.yaml. A missing
// dependency file only logs a warning.
func (m *Manifest) generate(doc *pyproject.Document, cuda *probe.CUDAVersion) ([]string, error) {
	path, err := m.cfg.DependenciesFile()
	if err != nil || path == "" {
		return nil, err
	}
	deps, err := depfile.Load(path)
	if errs.Is(err, errs.ErrCodeFileNotFound) {
		name, _ := m.cfg.Get(config.DependenciesFile)
		m.logger.Warn(fmt.Sprintf("File not found: '%s'. If you want rapids-build-backend to consider "+
			"dependencies from a dependencies file, supply an existing file via config setting "+
			"'dependencies-file'.", name))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry, err := m.cfg.MatrixEntry()
	if err != nil {
		return nil, err
	}
	explicit, err := depfile.ParseMatrixEntry(entry)
	if err != nil {
		return nil, err
	}
	detected := depfile.Matrix{"arch": {depfile.Arch()}}
	if cuda != nil {
		detected["cuda"] = []string{cuda.String()}
	}

	rel, err := filepath.Rel(m.cfg.Dir(), path)
	if err != nil {
		rel = path
	}
	comment := depfile.GeneratedComment(filepath.ToSlash(rel))

	keys := deps.PyprojectFiles(filepath.Dir(path), m.cfg.Dir())
	m.logger.Debug("loaded dependency file", "path", rel, "files", deps.FileKeys(), "pyproject", keys)
	for _, key := range keys {
		matrix := deps.FileMatrix(key).Merge(detected).Merge(explicit)
		pkgs, err := deps.Generate(key, matrix)
		if err != nil {
			return nil, err
		}
		table, name, err := deps.Target(key)
		if err != nil {
			return nil, err
		}
		if err := doc.SetArray(append(table, name), pkgs, comment); err != nil {
			return nil, err
		}
		m.logger.Debug("generated dependencies", "file", key, "table", strings.Join(table, "."), "key", name, "count", len(pkgs))
	}
	return keys, nil
}

// Run rewrites the manifest, calls fn, and restores the original file.
//
// Everything that can fail without touching the disk (probing, parsing,
// rewriting) happens first. The original is then copied to the backup path
// and the rewritten bytes written in place. On exit the backup is renamed
// over the manifest; a restore failure is joined with fn's error.
func (m *Manifest) Run(ctx context.Context, fn func(*Edit) error) (err error) {
	edit, err := m.Prepare(ctx)
	if err != nil {
		return err
	}

	path := m.Path()
	backup := BackupPath(path)
	if err := copyFile(path, backup); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "back up %s", path)
	}
	observability.Transaction().OnBackup(ctx, path)
	defer func() {
		rerr := os.Rename(backup, path)
		observability.Transaction().OnRestore(ctx, path, rerr)
		if rerr != nil {
			err = errors.Join(err, fmt.Errorf("restore %s: %w", path, rerr))
		}
	}()

	if err := writeInPlace(path, edit.Rewritten); err != nil {
		return errs.Wrap(errs.ErrCodeInternal, err, "write %s", path)
	}
	m.logger.Debug("rewrote manifest", "name", edit.Name, "cuda", cudaString(edit.CUDA))
	return fn(edit)
}

func cudaString(v *probe.CUDAVersion) string {
	if v == nil {
		return "none"
	}
	return v.String()
}

// copyFile copies src to dst, preserving src's permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// writeInPlace overwrites an existing file, keeping its permissions.
func writeInPlace(path string, data []byte) error {
	perm := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}
	return os.WriteFile(path, data, perm)
}
