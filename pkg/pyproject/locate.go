package pyproject

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/pelletier/go-toml/v2/unstable"
)

// entry locates one key/value pair in the source.
type entry struct {
	path     []string // table path + key
	keyLen   int      // number of key parts written in the statement
	header   int      // index into headers, -1 for the root table
	inline   bool     // the pair sits inside an inline table
	valStart int
	valEnd   int
	lineEnd  int // index of the line terminator, or len(src); valEnd when inline
}

// header locates a [table] or [[array]] line.
type header struct {
	path  []string
	array bool
	start int
	end   int // index of the line terminator, or len(src)
}

// inlineTable locates a { ... } value bound to a key.
type inlineTable struct {
	path  []string
	open  int // index of '{'
	close int // index of '}'
	last  int // end of the last value, -1 when empty
}

// layout is the byte-level map of a document used for splicing edits.
type layout struct {
	entries []entry
	headers []header
	inlines []inlineTable
}

// locate maps every statement of src using go-toml's AST, whose nodes carry
// the raw byte ranges of keys and scalar values.
func locate(src []byte) (*layout, error) {
	p := &unstable.Parser{KeepComments: true}
	p.Reset(src)
	l := &layout{}
	var table []string
	current := -1
	for p.NextExpression() {
		n := p.Expression()
		switch n.Kind {
		case unstable.Table, unstable.ArrayTable:
			path, start, end := keyPath(n.Key())
			l.headers = append(l.headers, header{
				path:  path,
				array: n.Kind == unstable.ArrayTable,
				start: bytes.LastIndexByte(src[:start], '\n') + 1,
				end:   lineEnd(src, end),
			})
			current = len(l.headers) - 1
			table = path
		case unstable.KeyValue:
			e, err := l.keyValue(p, n, table, true)
			if err != nil {
				return nil, err
			}
			e.header = current
			e.lineEnd = lineEnd(src, e.valEnd)
			l.entries = append(l.entries, e)
		}
	}
	if err := p.Error(); err != nil {
		return nil, err
	}
	return l, nil
}

// keyValue maps a key/value node under table. Inline tables in the value are
// recorded when record is set.
func (l *layout) keyValue(p *unstable.Parser, n *unstable.Node, table []string, record bool) (entry, error) {
	src := p.Data()
	keys, _, keyEnd := keyPath(n.Key())
	e := entry{path: slices.Concat(table, keys), keyLen: len(keys)}

	pos := skipBlanks(src, keyEnd)
	if pos >= len(src) || src[pos] != '=' {
		return e, fmt.Errorf("expected '=' after key %v", keys)
	}
	e.valStart = skipBlanks(src, pos+1)

	var path []string
	if record {
		path = e.path
	}
	end, err := l.value(p, n.Value(), e.valStart, path)
	if err != nil {
		return e, err
	}
	e.valEnd = end
	return e, nil
}

// value returns the end offset of v, which starts at start. A non-nil path
// records v and its pairs when v is an inline table.
func (l *layout) value(p *unstable.Parser, v *unstable.Node, start int, path []string) (int, error) {
	src := p.Data()
	switch v.Kind {
	case unstable.Array:
		pos := start + 1
		it := v.Children()
		for it.Next() {
			c := it.Node()
			if c.Kind == unstable.Comment {
				continue
			}
			end, err := l.value(p, c, skipSeparators(src, pos), nil)
			if err != nil {
				return 0, err
			}
			pos = end
		}
		return closing(src, pos, ']')

	case unstable.InlineTable:
		t := inlineTable{path: path, open: start, last: -1}
		pos := start + 1
		it := v.Children()
		for it.Next() {
			e, err := l.keyValue(p, it.Node(), path, path != nil)
			if err != nil {
				return 0, err
			}
			if path != nil {
				e.header = -1
				e.inline = true
				e.lineEnd = e.valEnd
				l.entries = append(l.entries, e)
			}
			pos, t.last = e.valEnd, e.valEnd
		}
		end, err := closing(src, pos, '}')
		if err != nil {
			return 0, err
		}
		t.close = end - 1
		if path != nil {
			l.inlines = append(l.inlines, t)
		}
		return end, nil

	default:
		// Booleans and dates carry no raw range, but their data aliases the input.
		r := v.Raw
		if r.Length == 0 {
			r = p.Range(v.Data)
		}
		return int(r.Offset + r.Length), nil
	}
}

// keyPath returns the decoded parts of a key and the byte span it covers.
func keyPath(it unstable.Iterator) (parts []string, start, end int) {
	start = -1
	for it.Next() {
		k := it.Node()
		if start < 0 {
			start = int(k.Raw.Offset)
		}
		parts = append(parts, string(k.Data))
		end = int(k.Raw.Offset + k.Raw.Length)
	}
	return parts, start, end
}

func skipBlanks(src []byte, pos int) int {
	for pos < len(src) && (src[pos] == ' ' || src[pos] == '\t') {
		pos++
	}
	return pos
}

// skipSeparators skips whitespace, newlines, commas and comments between
// container elements.
func skipSeparators(src []byte, pos int) int {
	for pos < len(src) {
		switch src[pos] {
		case ' ', '\t', '\r', '\n', ',':
			pos++
		case '#':
			if i := bytes.IndexByte(src[pos:], '\n'); i >= 0 {
				pos += i
			} else {
				pos = len(src)
			}
		default:
			return pos
		}
	}
	return pos
}

// closing returns the offset just past the delimiter c closing a container.
func closing(src []byte, pos int, c byte) (int, error) {
	pos = skipSeparators(src, pos)
	if pos >= len(src) || src[pos] != c {
		return 0, fmt.Errorf("expected %q at offset %d", c, pos)
	}
	return pos + 1, nil
}

// lineEnd returns the index of the line terminator following pos, pointing at
// the '\r' of a CRLF pair.
func lineEnd(src []byte, pos int) int {
	i := bytes.IndexByte(src[pos:], '\n')
	if i < 0 {
		return len(src)
	}
	i += pos
	if i > 0 && src[i-1] == '\r' {
		i--
	}
	return i
}

func isBareKeyByte(c byte) bool {
	return c == '-' || c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
