// Package pyproject reads and edits pyproject.toml without disturbing it.
//
// A [Document] keeps the original bytes next to a decoded view. Edits splice
// a freshly rendered value into the byte range of the statement being changed
// and leave every other byte untouched, so comments, ordering, quoting and
// blank lines survive a load, edit, save cycle. After each edit the result is
// decoded again, which guarantees the document stays valid TOML.
//
// # Usage
//
//	doc, err := pyproject.Load("pyproject.toml")
//	name, _ := doc.ProjectName()
//	err = doc.SetString([]string{"project", "name"}, name+"-cu12")
//	err = doc.SetArray([]string{"project", "dependencies"}, deps, "")
//	os.WriteFile("pyproject.toml", doc.Bytes(), 0o644)
package pyproject

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

// Filename is the conventional manifest name.
const Filename = "pyproject.toml"

// Document is a parsed pyproject.toml that can be edited in place.
type Document struct {
	src    []byte
	data   map[string]any
	keys   []toml.Key
	layout *layout
}

// Load reads and parses the file at path.
func Load(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.Wrap(errs.ErrCodeFileNotFound, err, "no %s found", Filename)
		}
		return nil, err
	}
	doc, err := Parse(src)
	if err != nil {
		return nil, errs.Wrap(errs.ErrCodeInvalidManifest, err, "failed to parse %s", path)
	}
	return doc, nil
}

// Parse parses TOML source.
func Parse(src []byte) (*Document, error) {
	var data map[string]any
	md, err := toml.Decode(string(src), &data)
	if err != nil {
		return nil, err
	}
	src = slices.Clone(src)
	l, err := locate(src)
	if err != nil {
		return nil, fmt.Errorf("unsupported layout: %w", err)
	}
	return &Document{src: src, data: data, keys: md.Keys(), layout: l}, nil
}

// Bytes returns the current document source.
func (d *Document) Bytes() []byte { return slices.Clone(d.src) }

// Value returns the decoded value at path.
func (d *Document) Value(path ...string) (any, bool) {
	var cur any = d.data
	for _, k := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[k]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Table returns the table at path.
func (d *Document) Table(path ...string) (map[string]any, bool) {
	v, ok := d.Value(path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// String returns the string at path.
func (d *Document) String(path ...string) (string, bool) {
	v, ok := d.Value(path...)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Strings returns the array of strings at path. It reports false when the
// key is absent and an error when the value is not an array of strings.
func (d *Document) Strings(path ...string) ([]string, bool, error) {
	v, ok := d.Value(path...)
	if !ok {
		return nil, false, nil
	}
	out, err := ToStrings(v)
	if err != nil {
		return nil, true, errs.Wrap(errs.ErrCodeInvalidManifest, err, "%s", strings.Join(path, "."))
	}
	return out, true, nil
}

// ToStrings converts a decoded TOML array into a string slice.
func ToStrings(v any) ([]string, error) {
	arr, ok := v.([]any)
	if !ok {
		if s, ok := v.([]string); ok {
			return slices.Clone(s), nil
		}
		return nil, fmt.Errorf("expected an array of strings, got %T", v)
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected an array of strings, found %T element", item)
		}
		out = append(out, s)
	}
	return out, nil
}

// ProjectName returns project.name.
func (d *Document) ProjectName() (string, error) {
	name, ok := d.String("project", "name")
	if !ok || name == "" {
		return "", errs.New(errs.ErrCodeInvalidManifest, "%s has no project.name", Filename)
	}
	return name, nil
}

// OptionalDependencyGroups returns the names of project.optional-dependencies
// in file order.
func (d *Document) OptionalDependencyGroups() []string {
	var groups []string
	for _, k := range d.keys {
		if len(k) == 3 && k[0] == "project" && k[1] == "optional-dependencies" {
			groups = append(groups, k[2])
		}
	}
	return groups
}

// SetString sets the string at path, inserting the key if it is missing.
func (d *Document) SetString(path []string, value string) error {
	return d.set(path, func(string, bool) string { return quote(value) }, "")
}

// SetArray sets the array of strings at path, inserting the key if it is
// missing. An existing array keeps its single-line or multi-line style. When
// comment is non-empty the array is written one item per line and comment
// replaces any trailing comment on the closing line. Arrays inside inline
// tables stay on one line and take no comment.
func (d *Document) SetArray(path []string, values []string, comment string) error {
	return d.set(path, func(old string, inline bool) string {
		return renderArray(values, !inline && (comment != "" || strings.Contains(old, "\n")))
	}, comment)
}

// renderFunc renders a value given the source it replaces, which is empty for
// a new key. inline reports whether the value sits inside an inline table.
type renderFunc func(old string, inline bool) string

func (d *Document) set(path []string, render renderFunc, comment string) error {
	if len(path) == 0 {
		return errs.New(errs.ErrCodeInternal, "empty key path")
	}
	var buf []byte
	if e := d.find(path); e != nil {
		tail := d.src[e.valEnd:e.lineEnd]
		if comment != "" && !e.inline {
			tail = []byte(" # " + comment)
		}
		buf = slices.Concat(
			d.src[:e.valStart],
			[]byte(render(string(d.src[e.valStart:e.valEnd]), e.inline)),
			tail,
			d.src[e.lineEnd:],
		)
	} else {
		buf = d.insert(path, render, comment)
	}

	doc, err := Parse(buf)
	if err != nil {
		return errs.Wrap(errs.ErrCodeInvalidManifest, err, "cannot set %s", strings.Join(path, "."))
	}
	*d = *doc
	return nil
}

func (d *Document) find(path []string) *entry {
	for i := range d.layout.entries {
		if slices.Equal(d.layout.entries[i].path, path) {
			return &d.layout.entries[i]
		}
	}
	return nil
}

// insert adds the key at path to the place its table is defined: an inline
// table, a [table] header, or the dotted keys that imply it. A table defined
// nowhere is created at the end of the document.
func (d *Document) insert(path []string, render renderFunc, comment string) []byte {
	table, key := path[:len(path)-1], path[len(path)-1]
	line := func(keys ...string) string {
		quoted := make([]string, len(keys))
		for i, k := range keys {
			quoted[i] = quoteKey(k)
		}
		s := strings.Join(quoted, ".") + " = " + render("", false)
		if comment != "" {
			s += " # " + comment
		}
		return s
	}

	for _, t := range d.layout.inlines {
		if !slices.Equal(t.path, table) {
			continue
		}
		pair := quoteKey(key) + " = " + render("", true)
		if t.last < 0 {
			return slices.Concat(d.src[:t.open+1], []byte(" "+pair+" "), d.src[t.close:])
		}
		return slices.Concat(d.src[:t.last], []byte(", "+pair), d.src[t.last:])
	}

	if len(table) == 0 {
		if len(d.layout.headers) == 0 {
			return appendLine(d.src, line(key))
		}
		at := d.layout.headers[0].start
		return slices.Concat(d.src[:at], []byte(line(key)+"\n"), d.src[at:])
	}

	for hi, h := range d.layout.headers {
		if h.array || !slices.Equal(h.path, table) {
			continue
		}
		at := h.end
		for _, e := range d.layout.entries {
			if e.header == hi && !e.inline {
				at = e.lineEnd
			}
		}
		return slices.Concat(d.src[:at], []byte("\n"+line(key)), d.src[at:])
	}

	if e := d.dottedOwner(table); e != nil {
		base := len(e.path) - e.keyLen
		return slices.Concat(d.src[:e.lineEnd], []byte("\n"+line(path[base:]...)), d.src[e.lineEnd:])
	}

	src := d.src
	if len(src) > 0 && !strings.HasSuffix(string(src), "\n\n") {
		src = appendLine(src, "")
	}
	keys := make([]string, len(table))
	for i, k := range table {
		keys[i] = quoteKey(k)
	}
	return appendLine(appendLine(src, "["+strings.Join(keys, ".")+"]"), line(key))
}

// dottedOwner returns the last statement whose dotted key implies table,
// such as optional-dependencies.test under [project] for
// project.optional-dependencies.
func (d *Document) dottedOwner(table []string) *entry {
	var owner *entry
	for i := range d.layout.entries {
		e := &d.layout.entries[i]
		base := len(e.path) - e.keyLen
		if e.inline || len(table) <= base || len(table) >= len(e.path) {
			continue
		}
		if e.header >= 0 && d.layout.headers[e.header].array {
			continue
		}
		if slices.Equal(e.path[:len(table)], table) {
			owner = e
		}
	}
	return owner
}

// appendLine appends line as a new line, terminating the previous one first.
func appendLine(src []byte, line string) []byte {
	out := slices.Clone(src)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	return append(out, line+"\n"...)
}

func renderArray(values []string, multiline bool) string {
	if len(values) == 0 {
		return "[]"
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quote(v)
	}
	if !multiline {
		return "[" + strings.Join(quoted, ", ") + "]"
	}
	var b strings.Builder
	b.WriteString("[\n")
	for _, q := range quoted {
		b.WriteString("    " + q + ",\n")
	}
	b.WriteString("]")
	return b.String()
}

// quote renders s as a TOML basic string.
func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			if r < 0x20 || r == 0x7f {
				fmt.Fprintf(&b, `\u%04X`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
	return b.String()
}

func quoteKey(k string) string {
	for i := 0; i < len(k); i++ {
		if !isBareKeyByte(k[i]) {
			return quote(k)
		}
	}
	if k == "" {
		return `""`
	}
	return k
}
