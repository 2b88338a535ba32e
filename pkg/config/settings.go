package config

import (
	"slices"
	"strings"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

// SettingsPrefix namespaces rapidsbuild entries among frontend settings.
const SettingsPrefix = "rapidsai."

// Settings are the per-invocation config settings passed by the frontend.
type Settings map[string]string

// ParseSettings parses "key=value" pairs as given on the command line.
func ParseSettings(pairs []string) (Settings, error) {
	s := make(Settings, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, errs.New(errs.ErrCodeInvalidManifest, "invalid setting %q: expected key=value", p)
		}
		s[k] = v
	}
	return s, nil
}

// Lookup returns the namespaced setting for option o. Unnamespaced keys are
// never consulted; they belong to the wrapped backend.
func (s Settings) Lookup(o Option) (string, bool) {
	v, ok := s[SettingsPrefix+string(o)]
	return v, ok
}

// ForBackend returns a copy without rapidsbuild's namespaced entries.
func (s Settings) ForBackend() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		if !strings.HasPrefix(k, SettingsPrefix) {
			out[k] = v
		}
	}
	return out
}

// Keys returns the setting keys in sorted order.
func (s Settings) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
