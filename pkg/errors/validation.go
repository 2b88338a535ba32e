package errors

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// pythonPackageNameRegex matches valid Python package names (PEP 508).
var pythonPackageNameRegex = regexp.MustCompile(`^([A-Za-z0-9]|[A-Za-z0-9][A-Za-z0-9._-]*[A-Za-z0-9])$`)

// ValidatePythonPackageName validates a Python distribution name per PEP 508.
func ValidatePythonPackageName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidRequirement, "package name cannot be empty")
	}
	if !pythonPackageNameRegex.MatchString(name) {
		return New(ErrCodeInvalidRequirement, "invalid Python package name: %q", name)
	}
	return nil
}

// ValidateMarkerPath validates a commit-marker path taken from the manifest.
//
// Marker paths are written and later deleted by the build, so they must stay
// inside the project directory:
//   - Path cannot be empty
//   - No null bytes or control characters
//   - No absolute paths
//   - No components that climb out of the project (..)
func ValidateMarkerPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidManifest, "commit file path cannot be empty")
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidManifest, "commit file path contains invalid characters: %q", path)
		}
	}

	if filepath.IsAbs(path) || strings.HasPrefix(path, "/") {
		return New(ErrCodeInvalidManifest, "commit file path must be relative to the project: %q", path)
	}

	clean := filepath.ToSlash(filepath.Clean(path))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return New(ErrCodeInvalidManifest, "commit file path escapes the project directory: %q", path)
	}

	return nil
}
