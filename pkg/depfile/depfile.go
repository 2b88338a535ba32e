// Package depfile reads rapids-dependency-file-generator configuration
// (dependencies.yaml) and computes the dependency lists it would write into
// pyproject.toml.
//
// Only the pyproject output is supported. Conda environments and
// requirements.txt files are out of scope; entries restricted to those output
// types are ignored.
//
// # File layout
//
//	files:
//	  py_run:
//	    output: pyproject
//	    pyproject_dir: .
//	    matrix: {cuda: ["12.4"]}
//	    extras: {table: project}
//	    includes: [run]
//	dependencies:
//	  run:
//	    common:
//	      - output_types: [pyproject]
//	        packages: [numpy]
//	    specific:
//	      - output_types: [pyproject]
//	        matrices:
//	          - matrix: {cuda: "12.*"}
//	            packages: [rmm-cu12>=0.0.0a0]
//	          - matrix: null
//	            packages: [rmm]
package depfile

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

// DefaultFilename is the conventional dependency file name.
const DefaultFilename = "dependencies.yaml"

// OutputPyproject is the output type handled by this package.
const OutputPyproject = "pyproject"

// Config is a parsed dependencies.yaml.
type Config struct {
	Files        map[string]File       `yaml:"files"`
	Dependencies map[string]Dependency `yaml:"dependencies"`

	// order keeps file keys in document order for deterministic generation.
	order []string
}

// File describes one generated output.
type File struct {
	Output       StringList        `yaml:"output"`
	Includes     []string          `yaml:"includes"`
	PyprojectDir string            `yaml:"pyproject_dir"`
	Matrix       map[string]Values `yaml:"matrix"`
	Extras       Extras            `yaml:"extras"`
}

// Extras selects where in pyproject.toml a file's packages go.
type Extras struct {
	Table string `yaml:"table"`
	Key   string `yaml:"key"`
}

// Dependency is a named dependency set.
type Dependency struct {
	Common   []CommonEntry   `yaml:"common"`
	Specific []SpecificEntry `yaml:"specific"`
}

// CommonEntry lists packages used for every matrix combination.
type CommonEntry struct {
	OutputTypes StringList `yaml:"output_types"`
	Packages    Packages   `yaml:"packages"`
}

// SpecificEntry lists packages chosen per matrix combination.
type SpecificEntry struct {
	OutputTypes StringList     `yaml:"output_types"`
	Matrices    []MatrixChoice `yaml:"matrices"`
}

// MatrixChoice is one candidate of a specific entry. A nil Matrix marks the
// fallback used when no other candidate matches.
type MatrixChoice struct {
	Matrix   *Selector `yaml:"matrix"`
	Packages Packages  `yaml:"packages"`
}

// Selector maps matrix keys to glob patterns.
type Selector map[string]string

// Matrix maps matrix keys to their allowed values.
type Matrix map[string][]string

// Load reads and parses the dependency file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrCodeFileNotFound, err, "dependency file %s not found", path)
		}
		return nil, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidDependencyFile, err, "failed to parse %s", path)
	}
	return cfg, nil
}

// Parse parses dependency file content.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	var cfg Config
	if err := root.Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.order = fileOrder(&root)
	for _, key := range cfg.order {
		for _, inc := range cfg.Files[key].Includes {
			if _, ok := cfg.Dependencies[inc]; !ok {
				return nil, fmt.Errorf("file %q includes unknown dependency set %q", key, inc)
			}
		}
	}
	return &cfg, nil
}

// fileOrder returns the keys of the top-level files mapping in document order.
func fileOrder(root *yaml.Node) []string {
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value != "files" || doc.Content[i+1].Kind != yaml.MappingNode {
			continue
		}
		files := doc.Content[i+1]
		keys := make([]string, 0, len(files.Content)/2)
		for j := 0; j+1 < len(files.Content); j += 2 {
			keys = append(keys, files.Content[j].Value)
		}
		return keys
	}
	return nil
}

// FileKeys returns the file keys in document order.
func (c *Config) FileKeys() []string { return slices.Clone(c.order) }

// PyprojectFiles returns the keys of files that produce pyproject output and
// whose pyproject_dir, resolved against base, is the same directory as dir.
func (c *Config) PyprojectFiles(base, dir string) []string {
	target, err := os.Stat(dir)
	if err != nil {
		return nil
	}
	var keys []string
	for _, key := range c.order {
		f := c.Files[key]
		if !f.Output.Has(OutputPyproject) {
			continue
		}
		pdir := f.PyprojectDir
		if pdir == "" {
			pdir = "."
		}
		if !filepath.IsAbs(pdir) {
			pdir = filepath.Join(base, pdir)
		}
		info, err := os.Stat(pdir)
		if err != nil || !os.SameFile(info, target) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Generate returns the sorted, de-duplicated pyproject packages of file key
// for every combination of matrix.
func (c *Config) Generate(key string, matrix Matrix) ([]string, error) {
	f, ok := c.Files[key]
	if !ok {
		return nil, errs.New(errs.ErrCodeInvalidDependencyFile, "unknown file key %q", key)
	}
	combos := matrix.Combinations()
	seen := make(map[string]struct{})
	for _, inc := range f.Includes {
		dep := c.Dependencies[inc]
		for _, common := range dep.Common {
			if !common.OutputTypes.Has(OutputPyproject) {
				continue
			}
			for _, p := range common.Packages {
				seen[p] = struct{}{}
			}
		}
		for _, specific := range dep.Specific {
			if !specific.OutputTypes.Has(OutputPyproject) {
				continue
			}
			for _, combo := range combos {
				choice := specific.choose(combo)
				if choice == nil {
					return nil, errs.New(errs.ErrCodeInvalidDependencyFile,
						"no matching matrix found in %q for %s", inc, formatCombo(combo))
				}
				for _, p := range choice.Packages {
					seen[p] = struct{}{}
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

// choose returns the first candidate matching combo, else the fallback.
func (s SpecificEntry) choose(combo map[string]string) *MatrixChoice {
	var fallback *MatrixChoice
	for i := range s.Matrices {
		m := &s.Matrices[i]
		if m.Matrix == nil {
			if fallback == nil {
				fallback = m
			}
			continue
		}
		if m.Matrix.Matches(combo) {
			return m
		}
	}
	return fallback
}

// Matches reports whether every key of the selector is present in combo with
// a value matching its glob.
func (s Selector) Matches(combo map[string]string) bool {
	for k, pattern := range s {
		v, ok := combo[k]
		if !ok {
			return false
		}
		if matched, err := filepath.Match(pattern, v); err != nil || !matched {
			return false
		}
	}
	return true
}

// Combinations returns the cartesian product of the matrix values. An empty
// matrix has exactly one, empty, combination.
func (m Matrix) Combinations() []map[string]string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	combos := []map[string]string{{}}
	for _, k := range keys {
		if len(m[k]) == 0 {
			continue
		}
		next := make([]map[string]string, 0, len(combos)*len(m[k]))
		for _, combo := range combos {
			for _, v := range m[k] {
				c := make(map[string]string, len(combo)+1)
				for ck, cv := range combo {
					c[ck] = cv
				}
				c[k] = v
				next = append(next, c)
			}
		}
		combos = next
	}
	return combos
}

// Merge returns a copy of m with every key of overrides replaced.
func (m Matrix) Merge(overrides Matrix) Matrix {
	out := make(Matrix, len(m)+len(overrides))
	for k, v := range m {
		out[k] = slices.Clone(v)
	}
	for k, v := range overrides {
		out[k] = slices.Clone(v)
	}
	return out
}

// FileMatrix returns the matrix declared by file key.
func (c *Config) FileMatrix(key string) Matrix {
	out := Matrix{}
	for k, v := range c.Files[key].Matrix {
		out[k] = slices.Clone([]string(v))
	}
	return out
}

// ParseMatrixEntry parses "key=value;key=value" into a single-valued matrix.
// An empty string yields a nil matrix.
func ParseMatrixEntry(s string) (Matrix, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := Matrix{}
	for _, item := range strings.Split(s, ";") {
		k, v, ok := strings.Cut(item, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, errs.New(errs.ErrCodeInvalidDependencyFile, "invalid matrix entry %q: expected key=value", item)
		}
		out[k] = []string{strings.TrimSpace(v)}
	}
	return out, nil
}

// Target returns the pyproject.toml table path and key that receive the
// packages of file key.
func (c *Config) Target(key string) ([]string, string, error) {
	f, ok := c.Files[key]
	if !ok {
		return nil, "", errs.New(errs.ErrCodeInvalidDependencyFile, "unknown file key %q", key)
	}
	table := f.Extras.Table
	if table == "" {
		table = "project"
	}
	path := strings.Split(table, ".")
	switch table {
	case "project":
		return path, "dependencies", nil
	case "project.optional-dependencies":
		if f.Extras.Key == "" {
			return nil, "", errs.New(errs.ErrCodeInvalidDependencyFile,
				"file %q: extras.key is required for table %s", key, table)
		}
		return path, f.Extras.Key, nil
	case "build-system":
		return path, "requires", nil
	default:
		if f.Extras.Key != "" {
			return path, f.Extras.Key, nil
		}
		return path, "requires", nil
	}
}

// Arch returns the host architecture in the spelling used by matrix
// selectors ("x86_64", "aarch64").
func Arch() string {
	switch runtime.GOARCH {
	case "amd64":
		return "x86_64"
	case "arm64":
		return "aarch64"
	default:
		return runtime.GOARCH
	}
}

// GeneratedComment is the trailing comment placed on generated arrays.
func GeneratedComment(dependencyFile string) string {
	return "This list was generated by `rapids-dependency-file-generator`. To make changes, edit " +
		dependencyFile + " and run `rapids-dependency-file-generator`."
}

func formatCombo(combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + combo[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
