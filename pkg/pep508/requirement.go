// Package pep508 parses and renders Python dependency specifiers.
//
// Only the parts of PEP 508 that rapidsbuild rewrites are modeled
// structurally: the distribution name, extras and version specifiers. URL
// references and environment markers are carried through verbatim.
//
// Rendering follows the canonical form produced by the Python packaging
// library so that rewritten requirements compare equal to what a frontend
// would print: extras are sorted, specifiers are sorted and comma joined
// without spaces, and a marker is introduced by "; ".
//
//	r, _ := pep508.Parse("rmm >=24.4.0 ; python_version >= '3.10'")
//	r.Name += "-cu12"
//	r.Specifiers = r.Specifiers.Union(pep508.MustSpecifiers(">=0.0.0a0"))
//	r.String() // rmm-cu12>=0.0.0a0,>=24.4.0; python_version >= '3.10'
package pep508

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

var (
	nameRE      = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)`)
	normalizeRE = regexp.MustCompile(`[-_.]+`)
)

// Requirement is a parsed dependency specifier.
type Requirement struct {
	Name       string
	Extras     []string
	Specifiers Specifiers
	URL        string
	Marker     string
}

// Parse parses a single requirement string.
func Parse(s string) (*Requirement, error) {
	rest := strings.TrimSpace(s)
	m := nameRE.FindString(rest)
	if m == "" {
		return nil, errs.New(errs.ErrCodeInvalidRequirement, "invalid requirement %q: missing package name", s)
	}
	if err := errs.ValidatePythonPackageName(m); err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidRequirement, err, "invalid requirement %q", s)
	}
	r := &Requirement{Name: m}
	rest = strings.TrimSpace(rest[len(m):])

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return nil, errs.New(errs.ErrCodeInvalidRequirement, "invalid requirement %q: unterminated extras", s)
		}
		for _, e := range strings.Split(rest[1:end], ",") {
			if e = strings.TrimSpace(e); e != "" {
				r.Extras = append(r.Extras, e)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if strings.HasPrefix(rest, "@") {
		rest = strings.TrimSpace(rest[1:])
		// A URL may itself contain ';', so the marker must be separated by whitespace.
		if i := strings.Index(rest, " ;"); i >= 0 {
			r.URL = strings.TrimSpace(rest[:i])
			r.Marker = strings.TrimSpace(rest[i+2:])
		} else {
			r.URL = rest
		}
		if r.URL == "" {
			return nil, errs.New(errs.ErrCodeInvalidRequirement, "invalid requirement %q: empty URL", s)
		}
		return r, nil
	}

	spec := rest
	if i := strings.IndexByte(rest, ';'); i >= 0 {
		spec = rest[:i]
		r.Marker = strings.TrimSpace(rest[i+1:])
		if r.Marker == "" {
			return nil, errs.New(errs.ErrCodeInvalidRequirement, "invalid requirement %q: empty marker", s)
		}
	}
	spec = strings.TrimSpace(spec)
	if strings.HasPrefix(spec, "(") {
		if !strings.HasSuffix(spec, ")") {
			return nil, errs.New(errs.ErrCodeInvalidRequirement, "invalid requirement %q: unbalanced parenthesis", s)
		}
		spec = spec[1 : len(spec)-1]
	}
	specs, err := ParseSpecifiers(spec)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidRequirement, err, "invalid requirement %q", s)
	}
	r.Specifiers = specs
	return r, nil
}

// Key returns the normalized name used for identity comparisons.
func (r *Requirement) Key() string { return Normalize(r.Name) }

// String renders r in canonical form.
func (r *Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if len(r.Extras) > 0 {
		extras := slices.Clone(r.Extras)
		slices.Sort(extras)
		b.WriteString("[" + strings.Join(extras, ",") + "]")
	}
	if r.URL != "" {
		b.WriteString("@ " + r.URL)
		if r.Marker != "" {
			b.WriteString(" ")
		}
	} else {
		b.WriteString(r.Specifiers.String())
	}
	if r.Marker != "" {
		b.WriteString("; " + r.Marker)
	}
	return b.String()
}

// Normalize returns the PEP 503 normalized form of a distribution name:
// lowercase with runs of "-", "_" and "." collapsed to a single "-".
func Normalize(name string) string {
	return normalizeRE.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// Specifier is a single version clause such as ">=0.0.0a0".
type Specifier struct {
	Op      string
	Version string
}

func (s Specifier) String() string { return s.Op + s.Version }

// operators is ordered so that longer operators match first.
var operators = []string{"===", "~=", "==", "!=", "<=", ">=", "<", ">"}

// ParseSpecifier parses one clause.
func ParseSpecifier(s string) (Specifier, error) {
	s = strings.TrimSpace(s)
	for _, op := range operators {
		if strings.HasPrefix(s, op) {
			v := strings.TrimSpace(s[len(op):])
			if v == "" || strings.ContainsAny(v, " \t,;") {
				return Specifier{}, fmt.Errorf("invalid version in specifier %q", s)
			}
			return Specifier{Op: op, Version: v}, nil
		}
	}
	return Specifier{}, fmt.Errorf("invalid specifier %q", s)
}

// Specifiers is a set of version clauses, all of which must hold.
type Specifiers []Specifier

// ParseSpecifiers parses a comma separated specifier set. An empty string
// yields an empty set.
func ParseSpecifiers(s string) (Specifiers, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var out Specifiers
	for _, part := range strings.Split(s, ",") {
		spec, err := ParseSpecifier(part)
		if err != nil {
			return nil, err
		}
		out = out.Union(Specifiers{spec})
	}
	return out, nil
}

// MustSpecifiers is like ParseSpecifiers but panics on error.
// It is intended for package-level constants.
func MustSpecifiers(s string) Specifiers {
	specs, err := ParseSpecifiers(s)
	if err != nil {
		panic(err)
	}
	return specs
}

// Union returns the set union of s and other. Neither input is modified.
func (s Specifiers) Union(other Specifiers) Specifiers {
	out := slices.Clone(s)
	for _, o := range other {
		if !slices.Contains(out, o) {
			out = append(out, o)
		}
	}
	return out
}

// String renders the set sorted and comma joined.
func (s Specifiers) String() string {
	parts := make([]string, len(s))
	for i, spec := range s {
		parts[i] = spec.String()
	}
	slices.Sort(parts)
	return strings.Join(parts, ",")
}
