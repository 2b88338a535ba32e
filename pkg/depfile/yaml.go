package depfile

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// StringList accepts a scalar or a sequence of scalars.
type StringList []string

// Has reports whether s contains v.
func (l StringList) Has(v string) bool { return slices.Contains(l, v) }

func (l *StringList) UnmarshalYAML(n *yaml.Node) error {
	out, err := scalars(n)
	if err != nil {
		return err
	}
	*l = out
	return nil
}

// Values holds the values of one matrix key. Numbers are kept as written, so
// 12.0 stays "12.0".
type Values []string

func (v *Values) UnmarshalYAML(n *yaml.Node) error {
	out, err := scalars(n)
	if err != nil {
		return err
	}
	*v = out
	return nil
}

func (s *Selector) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", n.Line)
	}
	out := make(Selector, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		k, v := n.Content[i], n.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: matrix value for %q must be a scalar", v.Line, k.Value)
		}
		out[k.Value] = v.Value
	}
	*s = out
	return nil
}

// Packages is a package list. Items are plain requirement strings or
// {pip: [...]} mappings; other mappings (conda channels and the like) are
// skipped.
type Packages []string

func (p *Packages) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.SequenceNode {
		return fmt.Errorf("line %d: packages must be a sequence", n.Line)
	}
	var out []string
	for _, item := range n.Content {
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			for i := 0; i+1 < len(item.Content); i += 2 {
				if item.Content[i].Value != "pip" {
					continue
				}
				pip, err := scalars(item.Content[i+1])
				if err != nil {
					return err
				}
				out = append(out, pip...)
			}
		default:
			return fmt.Errorf("line %d: unsupported package entry", item.Line)
		}
	}
	*p = out
	return nil
}

func scalars(n *yaml.Node) ([]string, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		return []string{n.Value}, nil
	case yaml.SequenceNode:
		out := make([]string, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: expected a scalar", item.Line)
			}
			out = append(out, item.Value)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("line %d: expected a scalar or a sequence", n.Line)
	}
}
