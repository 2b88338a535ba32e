package errors

import (
	"testing"
)

func TestValidatePythonPackageName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "rmm", false},
		{"with dash", "dask-cuda", false},
		{"with underscore", "rapids_dask_dependency", false},
		{"with dot", "zope.interface", false},
		{"single char", "x", false},

		{"empty", "", true},
		{"leading dash", "-rmm", true},
		{"trailing dot", "rmm.", true},
		{"space", "r mm", true},
		{"bracket", "rmm[", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePythonPackageName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePythonPackageName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateMarkerPath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"package file", "pkg/GIT_COMMIT", false},
		{"top level", "GIT_COMMIT", false},
		{"nested dots inside", "pkg/../pkg/GIT_COMMIT", false},

		{"empty", "", true},
		{"absolute", "/etc/GIT_COMMIT", true},
		{"escapes", "../GIT_COMMIT", true},
		{"parent only", "..", true},
		{"null byte", "pkg/\x00GIT_COMMIT", true},
		{"newline", "pkg/GIT\nCOMMIT", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMarkerPath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMarkerPath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
