package probe

import (
	"context"
	"errors"
	"strings"
	"testing"

	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

const nvccOutput = `nvcc: NVIDIA (R) Cuda compiler driver
Copyright (c) 2005-2024 NVIDIA Corporation
Built on Thu_Mar_28_02:18:24_PDT_2024
Cuda compilation tools, release 12.4, V12.4.131
Build cuda_12.4.r12.4/compiler.34097967_0
`

// fakeRunner serves canned outputs keyed by the command line.
type fakeRunner struct {
	paths   map[string]bool
	outputs map[string]string
	errs    map[string]error
	calls   []string
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	if f.paths[name] {
		return "/usr/bin/" + name, nil
	}
	return "", errors.New("executable file not found in $PATH")
}

func (f *fakeRunner) Output(_ context.Context, _, name string, args ...string) ([]byte, error) {
	key := strings.Join(append([]string{name}, args...), " ")
	f.calls = append(f.calls, key)
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return []byte(f.outputs[key]), nil
}

func TestParseNVCCOutput(t *testing.T) {
	tests := []struct {
		name    string
		output  string
		want    CUDAVersion
		wantErr bool
	}{
		{"real output", nvccOutput, CUDAVersion{12, 4}, false},
		{"cuda 11", "\n\n\nCuda compilation tools, release 11.8, V11.8.89\n", CUDAVersion{11, 8}, false},
		{"no release line", "nvcc: NVIDIA (R) Cuda compiler driver\n", CUDAVersion{}, true},
		{"empty", "", CUDAVersion{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseNVCCOutput([]byte(tt.output))
			if tt.wantErr {
				if !errs.Is(err, errs.ErrCodeToolchain) {
					t.Fatalf("expected TOOLCHAIN error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != tt.want {
				t.Errorf("got %+v, want %+v", *got, tt.want)
			}
		})
	}
}

func TestCUDAVersionFormatting(t *testing.T) {
	v := CUDAVersion{Major: 12, Minor: 1}
	if v.String() != "12.1" {
		t.Errorf("String() = %q", v.String())
	}
	if v.Suffix() != "-cu12" {
		t.Errorf("Suffix() = %q", v.Suffix())
	}
}

func TestCUDAVersionMissingNVCC(t *testing.T) {
	p := New(t.TempDir(), &fakeRunner{}, nil)
	ctx := context.Background()

	v, err := p.CUDAVersion(ctx, false)
	if err != nil || v != nil {
		t.Fatalf("not required: got (%v, %v), want (nil, nil)", v, err)
	}

	_, err = p.CUDAVersion(ctx, true)
	if !errs.Is(err, errs.ErrCodeToolchain) {
		t.Fatalf("required: expected TOOLCHAIN error, got %v", err)
	}

	suffix, err := p.Suffix(ctx, false)
	if err != nil || suffix != "" {
		t.Errorf("Suffix(false) = (%q, %v), want empty", suffix, err)
	}
}

func TestCUDAVersionUnparsable(t *testing.T) {
	r := &fakeRunner{
		paths:   map[string]bool{"nvcc": true},
		outputs: map[string]string{"nvcc --version": "garbage"},
	}
	p := New(t.TempDir(), r, nil)

	if _, err := p.CUDAVersion(context.Background(), true); !errs.Is(err, errs.ErrCodeToolchain) {
		t.Fatalf("expected TOOLCHAIN error, got %v", err)
	}
}

func TestCUDAVersionMemoized(t *testing.T) {
	r := &fakeRunner{
		paths:   map[string]bool{"nvcc": true},
		outputs: map[string]string{"nvcc --version": nvccOutput},
	}
	p := New(t.TempDir(), r, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		v, err := p.CUDAVersion(ctx, true)
		if err != nil {
			t.Fatal(err)
		}
		if v.Major != 12 {
			t.Fatalf("Major = %d", v.Major)
		}
		// Mutating a returned value must not leak into the cache.
		v.Major = 99
	}
	suffix, _ := p.Suffix(ctx, true)
	if suffix != "-cu12" {
		t.Errorf("Suffix = %q, want -cu12", suffix)
	}
	if len(r.calls) != 1 {
		t.Errorf("nvcc invoked %d times, want 1", len(r.calls))
	}
}

func TestRevision(t *testing.T) {
	tests := []struct {
		name   string
		runner *fakeRunner
		want   string
		wantOK bool
	}{
		{
			name: "git available",
			runner: &fakeRunner{
				paths:   map[string]bool{"git": true},
				outputs: map[string]string{"git rev-parse HEAD": "abc123\n"},
			},
			want:   "abc123",
			wantOK: true,
		},
		{
			name:   "git missing",
			runner: &fakeRunner{},
		},
		{
			name: "not a repository",
			runner: &fakeRunner{
				paths: map[string]bool{"git": true},
				errs:  map[string]error{"git rev-parse HEAD": errors.New("fatal: not a git repository")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(t.TempDir(), tt.runner, nil)
			got, ok := p.Revision(context.Background())
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Revision() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
			p.Revision(context.Background())
			if n := len(tt.runner.calls); n > 1 {
				t.Errorf("git invoked %d times, want at most 1", n)
			}
		})
	}
}
