package txn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/rapidsbuild/pkg/config"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
	"github.com/matzehuels/rapidsbuild/pkg/observability"
	"github.com/matzehuels/rapidsbuild/pkg/probe"
)

// CommitMarkerName is the file written into the package directory when no
// commit files are configured.
const CommitMarkerName = "GIT_COMMIT"

// PythonCommitVariable is the assignment patched by the python marker type.
const PythonCommitVariable = "__git_commit__"

var pythonCommitRE = regexp.MustCompile(`(?m)^` + PythonCommitVariable + `\s*=.*$`)

// DerivedCommitFiles returns the default marker path for project name,
// "<name_with_underscores>/GIT_COMMIT", if that package directory exists.
func DerivedCommitFiles(dir, name string) []string {
	pkg := strings.ReplaceAll(name, "-", "_")
	if info, err := os.Stat(filepath.Join(dir, pkg)); err != nil || !info.IsDir() {
		return nil
	}
	return []string{pkg + "/" + CommitMarkerName}
}

// Markers writes the current git commit into marker files around a hook call.
type Markers struct {
	dir    string
	paths  []string
	format string
	probe  *probe.Probe
	logger *log.Logger
}

// NewMarkers returns a marker transaction writing paths, relative to dir, in
// format (config.CommitFileRaw or config.CommitFilePython).
func NewMarkers(dir string, paths []string, format string, p *probe.Probe, logger *log.Logger) *Markers {
	if logger == nil {
		logger = log.Default()
	}
	return &Markers{dir: dir, paths: paths, format: format, probe: p, logger: logger}
}

// Render returns the marker content for rev. existing is the current file
// content, or nil when the file does not exist.
func Render(format, rev string, existing []byte) []byte {
	if format != config.CommitFilePython {
		return []byte(rev + "\n")
	}
	line := fmt.Sprintf("%s = %q", PythonCommitVariable, rev)
	if existing == nil {
		return []byte(line + "\n")
	}
	if pythonCommitRE.Match(existing) {
		return pythonCommitRE.ReplaceAllLiteral(existing, []byte(line))
	}
	out := string(existing)
	if out != "" && !strings.HasSuffix(out, "\n") {
		out += "\n"
	}
	return []byte(out + line + "\n")
}

type marker struct {
	path      string
	backup    string
	hadBackup bool
}

// Run writes the markers, calls fn, and restores them. Without configured
// paths or without a git revision it only calls fn.
func (m *Markers) Run(ctx context.Context, fn func() error) (err error) {
	if len(m.paths) == 0 {
		return fn()
	}
	rev, ok := m.probe.Revision(ctx)
	if !ok {
		m.logger.Debug("no git revision available, leaving commit files untouched")
		return fn()
	}

	var written []marker
	defer func() {
		for i := len(written) - 1; i >= 0; i-- {
			if rerr := restoreMarker(written[i]); rerr != nil {
				err = errors.Join(err, rerr)
				observability.Transaction().OnRestore(ctx, written[i].path, rerr)
			} else {
				observability.Transaction().OnRestore(ctx, written[i].path, nil)
			}
		}
	}()

	seen := make(map[string]bool, len(m.paths))
	for _, p := range m.paths {
		mk := marker{path: filepath.Join(m.dir, p)}
		// A second write would back up our own marker over the original.
		if seen[mk.path] {
			continue
		}
		seen[mk.path] = true
		mk.backup = BackupPath(mk.path)

		existing, rerr := os.ReadFile(mk.path)
		switch {
		case rerr == nil:
			if err := os.Rename(mk.path, mk.backup); err != nil {
				return errs.Wrap(errs.ErrCodeInternal, err, "back up %s", mk.path)
			}
			mk.hadBackup = true
			observability.Transaction().OnBackup(ctx, mk.path)
		case os.IsNotExist(rerr):
			existing = nil
		default:
			return errs.Wrap(errs.ErrCodeInternal, rerr, "read %s", mk.path)
		}
		written = append(written, mk)

		if err := os.WriteFile(mk.path, Render(m.format, rev, existing), 0o644); err != nil {
			return errs.Wrap(errs.ErrCodeInternal, err, "write %s", mk.path)
		}
		m.logger.Debug("wrote commit file", "path", p, "format", m.format)
	}
	return fn()
}

// restoreMarker moves a backup back or removes a generated file. Missing
// files are not an error.
func restoreMarker(mk marker) error {
	if mk.hadBackup {
		if err := os.Rename(mk.backup, mk.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("restore %s: %w", mk.path, err)
		}
		return nil
	}
	if err := os.Remove(mk.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", mk.path, err)
	}
	return nil
}
