package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/rapidsbuild/pkg/backend"
	errs "github.com/matzehuels/rapidsbuild/pkg/errors"
)

// hookCommand creates the command that runs a single hook.
func (c *CLI) hookCommand() *cobra.Command {
	var out, metadataDir string

	cmd := &cobra.Command{
		Use:   "hook <name>",
		Short: "Run one build-backend hook and print its result as JSON",
		Long: `Run one PEP 517/660 hook the way a build frontend would.

Requirement hooks print {"requires": [...]}; build and metadata hooks print
{"path": "..."} with the basename of the artifact or metadata directory
written to --out.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: hookNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, ok := backend.ParseHook(args[0])
			if !ok {
				return errs.New(errs.ErrCodeUnsupported, "unknown hook %q (want one of %s)", args[0], strings.Join(hookNames(), ", "))
			}
			if !h.IsRequires() && out == "" {
				return fmt.Errorf("hook %s needs --out", h)
			}
			req, err := c.request(out, metadataDir)
			if err != nil {
				return err
			}
			resp, err := c.newDispatcher().Call(cmd.Context(), h, req)
			if err != nil {
				return err
			}
			return writeJSON(c.out, resp)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output directory for build and metadata hooks")
	cmd.Flags().StringVar(&metadataDir, "metadata-dir", "", "prepared metadata directory for build_wheel and build_editable")
	return cmd
}

// hooksCommand creates the command that lists exposed hooks.
func (c *CLI) hooksCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "hooks",
		Short: "List the hooks this project exposes",
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := c.newDispatcher().Exposed(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(c.out, set.List())
			}
			for _, h := range set.List() {
				printInfo(c.out, "%s", h)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the hook list as JSON")
	return cmd
}

// request builds a hook request with absolute directories.
func (c *CLI) request(out, metadataDir string) (backend.Request, error) {
	settings, err := c.parseSettings()
	if err != nil {
		return backend.Request{}, err
	}
	req := backend.Request{Settings: settings}
	if out != "" {
		if req.Directory, err = filepath.Abs(out); err != nil {
			return backend.Request{}, err
		}
	}
	if metadataDir != "" {
		if req.MetadataDirectory, err = filepath.Abs(metadataDir); err != nil {
			return backend.Request{}, err
		}
	}
	return req, nil
}

func hookNames() []string {
	names := make([]string, len(backend.Hooks))
	for i, h := range backend.Hooks {
		names[i] = string(h)
	}
	return names
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
